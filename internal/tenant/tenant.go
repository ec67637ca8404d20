// Copyright 2026 The OpenTrusty Authors
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

package tenant

import (
	"encoding/json"
	"fmt"
	"net/mail"
	"regexp"
	"time"
)

// Organization is the master record of a tenant
type Organization struct {
	ID            string    `json:"id"`
	Name          string    `json:"organization_name"`
	PartitionName string    `json:"partition_name"`
	AdminEmail    string    `json:"admin_email"`
	PasswordHash  string    `json:"-"`
	Version       int64     `json:"version"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Document is a tenant-owned record stored in the organization's partition
type Document struct {
	ID        string          `json:"id"`
	Body      json.RawMessage `json:"body"`
	CreatedAt time.Time       `json:"created_at"`
}

// OrphanedPartition is a partition no master record points at any more.
// It is kept until the reclaimer drops it.
type OrphanedPartition struct {
	Name       string    `json:"name"`
	Reason     string    `json:"reason"`
	RecordedAt time.Time `json:"recorded_at"`
}

// Orphan reasons
const (
	OrphanReasonRename        = "rename"
	OrphanReasonDelete        = "delete"
	OrphanReasonRenameAborted = "rename_aborted"
)

// PartitionPrefix is prepended to an organization name to form its partition name
const PartitionPrefix = "org_"

// MaxNameLength keeps PartitionPrefix+name within the 63 byte identifier limit of Postgres.
const MaxNameLength = 63 - len(PartitionPrefix)

var namePattern = regexp.MustCompile(fmt.Sprintf(`^[a-zA-Z0-9_-]{1,%d}$`, MaxNameLength))

// PartitionName derives the partition name of an organization.
func PartitionName(organizationName string) string {
	return PartitionPrefix + organizationName
}

// ValidateName checks an organization name
func ValidateName(name string) error {
	if !namePattern.MatchString(name) {
		return fmt.Errorf("%w: must match %s", ErrInvalidName, namePattern.String())
	}
	return nil
}

// ValidateEmail checks an admin email address
func ValidateEmail(email string) error {
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return ErrInvalidEmail
	}
	return nil
}
