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

package registry

import (
	"errors"
	"fmt"
)

// ErrUnauthorized is returned when a mutating operation is attempted by an
// identity other than the current registry owner. No state change occurs.
var ErrUnauthorized = errors.New("caller is not the registry owner")

// ErrInvalidOwner is returned when attempting to transfer ownership to the
// empty identity.
var ErrInvalidOwner = errors.New("new owner must not be the empty identity")

// DuplicateKeyError is returned when storing a certificate hash that is
// already present. Records are immutable once stored.
type DuplicateKeyError struct {
	Hash string
}

func (e *DuplicateKeyError) Error() string {
	return fmt.Sprintf("certificate hash already registered: %s", e.Hash)
}

// OutOfRangeError is returned for index lookups beyond the current
// certificate count.
type OutOfRangeError struct {
	Index int
	Total int
}

func (e *OutOfRangeError) Error() string {
	return fmt.Sprintf(
		"certificate index out of range: index=%d, total=%d",
		e.Index,
		e.Total,
	)
}
