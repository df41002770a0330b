package readmodel

import (
	goerrors "github.com/goliatone/go-errors"
)

var (
	// ErrUnknownKind is returned when an entry names a kind with no registered decoder.
	ErrUnknownKind = goerrors.New("unknown read model kind", goerrors.CategoryBadInput).
			WithTextCode("READMODEL_UNKNOWN_KIND")

	// ErrMalformedEntry is returned when an entry is missing required fields.
	ErrMalformedEntry = goerrors.New("malformed read model entry", goerrors.CategoryBadInput).
				WithTextCode("READMODEL_MALFORMED_ENTRY")
)
