package domain

import "errors"

var (
	ErrNotFound         = errors.New("not found")
	ErrInvalidAsset     = errors.New("invalid asset")
	ErrMissingReference = errors.New("reference asset missing")
	ErrJobNotFound      = errors.New("fix job not found")
	ErrEmptyBatch       = errors.New("batch has no assets")
	ErrNoJobAvailable   = errors.New("no fix job available")
)
