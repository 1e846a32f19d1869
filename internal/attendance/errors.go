package attendance

import (
	"errors"
	"fmt"
)

var (
	ErrNoFaceDetected    = errors.New("no face detected")
	ErrNoMatch           = errors.New("no enrolled identity matches")
	ErrDuplicateIdentity = errors.New("identity already enrolled")
	ErrInvalidName       = errors.New("invalid name")
	ErrStorageFailure    = errors.New("storage failure")
	// ErrEmbedderFailure also matches ErrNoFaceDetected: to the user an
	// unreachable embedder looks like a frame without a usable face.
	ErrEmbedderFailure = fmt.Errorf("embedder failure: %w", ErrNoFaceDetected)
)

// Kind classifies an error returned by the service.
type Kind int

const (
	KindNone Kind = iota
	KindInvalidName
	KindDuplicate
	KindNoFace
	KindNoMatch
	KindEmbedder
	KindStorage
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "ok"
	case KindInvalidName:
		return "invalid_name"
	case KindDuplicate:
		return "duplicate"
	case KindNoFace:
		return "no_face"
	case KindNoMatch:
		return "no_match"
	case KindEmbedder:
		return "embedder_failure"
	case KindStorage:
		return "storage_failure"
	default:
		return "internal"
	}
}

// KindOf returns the taxonomy entry for err. Embedder failures are checked
// before no-face since they wrap it.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrStorageFailure):
		return KindStorage
	case errors.Is(err, ErrEmbedderFailure):
		return KindEmbedder
	case errors.Is(err, ErrInvalidName):
		return KindInvalidName
	case errors.Is(err, ErrDuplicateIdentity):
		return KindDuplicate
	case errors.Is(err, ErrNoFaceDetected):
		return KindNoFace
	case errors.Is(err, ErrNoMatch):
		return KindNoMatch
	default:
		return KindInternal
	}
}

func wrap(sentinel, err error) error {
	return fmt.Errorf("%w: %w", sentinel, err)
}
