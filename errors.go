// Copyright (c) 2025 Karl Gaissmaier
// SPDX-License-Identifier: MIT

package tcam

import "github.com/pkg/errors"

// Sentinel errors, returned wrapped with context. Use errors.Is.
var (
	// ErrParse reports malformed prefix or address text.
	ErrParse = errors.New("parse error")

	// ErrValidation reports structurally invalid input, e.g. a prefix
	// length above 32 or an empty next hop.
	ErrValidation = errors.New("validation error")

	// ErrNotFound reports the delete of a prefix not in the table.
	ErrNotFound = errors.New("prefix not found")
)
