package services

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrUnsupportedFormat = errors.New("unsupported file format")

	// Publish lost an optimistic-lock race; the caller should retry.
	ErrPublishConflict = errors.New("publish conflict")

	ErrUnsupportedArchiveVersion = errors.New("unsupported archive format version")
	ErrMissingArchiveSection     = errors.New("archive missing mandatory section")
	ErrCorruptArchive            = errors.New("corrupt archive container")
)
