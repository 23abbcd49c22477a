package batch

import "fmt"

// Kind classifies a rejected request.
type Kind int

const (
	KindEmptyBatch Kind = iota + 1
	KindBatchTooLarge
	KindMissingCreator
	KindInvalidConsent
	KindInvalidOpacity
	KindUnsupportedType
	KindFileTooLarge
	KindInvalidImage
	KindBodyTooLarge
)

func (k Kind) String() string {
	switch k {
	case KindEmptyBatch:
		return "empty_batch"
	case KindBatchTooLarge:
		return "batch_too_large"
	case KindMissingCreator:
		return "missing_creator"
	case KindInvalidConsent:
		return "invalid_consent"
	case KindInvalidOpacity:
		return "invalid_opacity"
	case KindUnsupportedType:
		return "unsupported_type"
	case KindFileTooLarge:
		return "file_too_large"
	case KindInvalidImage:
		return "invalid_image"
	case KindBodyTooLarge:
		return "body_too_large"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// RequestError is a client error. Reason is safe to show to the caller.
type RequestError struct {
	Kind   Kind
	Reason string
	Err    error
}

func (e *RequestError) Error() string { return e.Reason }

func (e *RequestError) Unwrap() error { return e.Err }

func reject(kind Kind, format string, args ...any) *RequestError {
	return &RequestError{Kind: kind, Reason: fmt.Sprintf(format, args...)}
}

// TooManyImages rejects a batch holding more than limit images.
func TooManyImages(limit int) *RequestError {
	return reject(KindBatchTooLarge, "Max %d images allowed per batch.", limit)
}

// FileTooLarge rejects an upload over the per-file cap.
func FileTooLarge(name string) *RequestError {
	return reject(KindFileTooLarge, "File too large: %s", name)
}
