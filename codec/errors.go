package codec

import "errors"

// Format errors. Every one of these is unrecoverable for the frame that
// produced it; the pipeline logs and drops the offending trade rather than
// unwinding.
var (
	ErrInsufficientData = errors.New("codec: insufficient data")
	ErrInvalidVersion   = errors.New("codec: invalid version")
	ErrInvalidSymbol    = errors.New("codec: invalid symbol")
	ErrTooManyAssets    = errors.New("codec: too many assets (max 127)")
	ErrInvalidAssetId   = errors.New("codec: invalid asset id")
	ErrOverflow         = errors.New("codec: delta overflow")
)
