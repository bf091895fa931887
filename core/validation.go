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

import (
	"fmt"
	"strings"
	"time"
)

// clockSkew tolerates fetchers whose clocks run slightly ahead.
const clockSkew = 5 * time.Minute

// ValidateRawDocument validates a RawDocument according to domain rules.
//
// Validation rules:
//   - SourceID and CompanyKey must not be empty
//   - RawText must contain non-whitespace content
//   - DocumentType must be known
//   - FetchedAt must be set and not in the future
//
// StructuralHints are not validated; unknown hints are ignored.
func ValidateRawDocument(doc *RawDocument) error {
	if doc == nil {
		return fmt.Errorf("%w: document is nil", ErrInvalidDocument)
	}

	if strings.TrimSpace(doc.SourceID) == "" {
		return fmt.Errorf("%w: %w", ErrInvalidDocument, ErrEmptySourceID)
	}

	if strings.TrimSpace(doc.CompanyKey) == "" {
		return fmt.Errorf("%w: %w", ErrInvalidDocument, ErrEmptyCompanyKey)
	}

	if strings.TrimSpace(doc.RawText) == "" {
		return fmt.Errorf("%w: %w", ErrInvalidDocument, ErrEmptyContent)
	}

	if err := ValidateDocumentType(doc.DocumentType); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidDocument, err)
	}

	if !IsValidTimestamp(doc.FetchedAt) {
		return fmt.Errorf("%w: %w", ErrInvalidDocument, ErrInvalidTimestamp)
	}

	return nil
}

// ValidateDocumentType validates that a DocumentType has a known value.
func ValidateDocumentType(docType DocumentType) error {
	switch docType {
	case DocumentTypeSECFiling, DocumentTypeWikipedia, DocumentTypeNews:
		return nil
	}
	return fmt.Errorf("%w: %q", ErrInvalidDocumentType, string(docType))
}

// IsValidTimestamp checks if a timestamp is set and not in the future.
func IsValidTimestamp(ts time.Time) bool {
	return !ts.IsZero() && !ts.After(time.Now().Add(clockSkew))
}
