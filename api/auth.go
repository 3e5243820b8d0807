// Copyright 2025 OpenCertify Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package api

import (
	"net/http"
	"strings"

	"github.com/opencertify/certledger/registry"
)

// callerIdentity resolves the request's bearer token to a caller principal.
// Authorization itself (owner gatekeeping) happens in the registry; the API
// only establishes who is calling. Requests without a recognized token get
// the empty identity, which can never match the registry owner.
func (a *Api) callerIdentity(r *http.Request) (registry.Identity, bool) {
	authHeader := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(authHeader, "Bearer ")
	if !ok || token == "" {
		return registry.IdentityNone, false
	}
	principal, ok := a.config.AccessTokens[token]
	if !ok {
		return registry.IdentityNone, false
	}
	return registry.Identity(principal), true
}
