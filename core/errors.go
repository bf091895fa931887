// Copyright 2025 Poiesic Systems
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


package core

import "errors"

// Domain validation errors
var (
	// ErrInvalidDocument indicates a RawDocument failed validation.
	// Documents failing validation are never retried.
	ErrInvalidDocument = errors.New("invalid document")

	// ErrEmptySourceID indicates the SourceID field is empty.
	ErrEmptySourceID = errors.New("source id cannot be empty")

	// ErrEmptyCompanyKey indicates the CompanyKey field is empty.
	ErrEmptyCompanyKey = errors.New("company key cannot be empty")

	// ErrEmptyContent indicates the RawText field is empty or blank.
	ErrEmptyContent = errors.New("content cannot be empty")

	// ErrInvalidDocumentType indicates an unknown DocumentType value.
	ErrInvalidDocumentType = errors.New("invalid document type")

	// ErrInvalidTimestamp indicates a timestamp is missing or in the future.
	ErrInvalidTimestamp = errors.New("fetched_at must be set and not in the future")

	// ErrInvalidStage indicates an unknown Stage value.
	ErrInvalidStage = errors.New("invalid stage")

	// ErrInvalidLength indicates a corrupt length prefix in an encoded record.
	ErrInvalidLength = errors.New("invalid length")
)
