package aikor

import "errors"

var (
	// ErrUnsupportedFormat is returned for file extensions no parser handles.
	ErrUnsupportedFormat = errors.New("aikor: unsupported document format")

	// ErrParsingFailed is returned when a file exists but cannot be parsed.
	ErrParsingFailed = errors.New("aikor: parsing failed")

	// ErrNoStructure is returned when a check is requested for a document
	// whose parsed structure is unavailable.
	ErrNoStructure = errors.New("aikor: no document structure")

	// ErrDocumentNotFound is returned when a document ID does not exist.
	ErrDocumentNotFound = errors.New("aikor: document not found")

	// ErrPageNotFound is returned for a page number the document lacks.
	ErrPageNotFound = errors.New("aikor: page not found")

	// ErrPersistenceFailed is returned when check results could not be
	// stored. Nothing from the failed check is kept.
	ErrPersistenceFailed = errors.New("aikor: saving results failed")

	// ErrRenderFailed is returned when no page image could be rendered.
	ErrRenderFailed = errors.New("aikor: rendering failed")

	// ErrVisionRequired is returned by Review when no vision provider is
	// configured.
	ErrVisionRequired = errors.New("aikor: vision provider required for review")

	// ErrInvalidConfig is returned for invalid configuration values.
	ErrInvalidConfig = errors.New("aikor: invalid configuration")

	// ErrStoreClosed is returned when operating on a closed engine.
	ErrStoreClosed = errors.New("aikor: store is closed")
)
