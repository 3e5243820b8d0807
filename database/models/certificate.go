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

import "errors"

var ErrCertificateNotFound = errors.New("certificate not found")

// Certificate is a single registered certificate hash. Position is the
// zero-based slot in the append-only insertion order and is unique per
// record.
type Certificate struct {
	ID           uint   `gorm:"primarykey"`
	Hash         string `gorm:"uniqueIndex"`
	MatricNumber string `gorm:"index"`
	Timestamp    int64
	Position     int `gorm:"uniqueIndex"`
}

func (Certificate) TableName() string {
	return "certificate"
}
