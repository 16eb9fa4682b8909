package message

import "errors"

// Framing errors. All of them mean the bytes do not form a valid frame; the
// gatherer recovers from them by resynchronizing.
var (
	ErrFrameTooShort   = errors.New("message: frame too short")
	ErrBadSync         = errors.New("message: frame does not start with sync byte")
	ErrLengthMismatch  = errors.New("message: frame length does not match LEN field")
	ErrBadChecksum     = errors.New("message: bad checksum")
	ErrPayloadTooLong  = errors.New("message: data exceeds maximum message size")
	ErrPayloadTooShort = errors.New("message: data too short for message ID")
)

// IsFramingError reports whether err is one of the framing errors above.
func IsFramingError(err error) bool {
	return errors.Is(err, ErrFrameTooShort) ||
		errors.Is(err, ErrBadSync) ||
		errors.Is(err, ErrLengthMismatch) ||
		errors.Is(err, ErrBadChecksum) ||
		errors.Is(err, ErrPayloadTooLong) ||
		errors.Is(err, ErrPayloadTooShort)
}
