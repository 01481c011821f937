package importer

import "fmt"

// ValidationKind identifies why an upload was rejected before extraction
type ValidationKind int

const (
	NoFile ValidationKind = iota + 1
	WrongMediaType
	PayloadTooLarge
)

func (k ValidationKind) String() string {
	switch k {
	case NoFile:
		return "no_file"
	case WrongMediaType:
		return "wrong_media_type"
	case PayloadTooLarge:
		return "payload_too_large"
	default:
		return "unknown"
	}
}

// ValidationError is returned when the document is rejected before extraction
type ValidationError struct {
	Kind    ValidationKind
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// PersistenceError is returned when parsed transactions could not be stored.
// Nothing from the import is persisted when it occurs.
type PersistenceError struct {
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("storing transactions: %v", e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}
