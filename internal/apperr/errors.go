// Package apperr holds sentinel errors shared across layers. Transports map
// them to status codes with errors.Is.
package apperr

import "errors"

var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrNoUpload     = errors.New("no spreadsheet uploaded")
	ErrNotConverted = errors.New("cards not generated yet")
	ErrConflict     = errors.New("conflict")
	ErrStaleUpload  = errors.New("upload replaced during conversion")
)
