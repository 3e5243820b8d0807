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

package models

// Registry state keys
const (
	RegistryStateKeyOwner = "owner"
)

// RegistryState is a simple key/value row for singleton registry state,
// currently just the owner principal.
type RegistryState struct {
	ID    uint   `gorm:"primarykey"`
	Key   string `gorm:"uniqueIndex"`
	Value string
}

func (RegistryState) TableName() string {
	return "registry_state"
}
