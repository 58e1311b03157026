// Package capability defines the failure taxonomy shared by every external
// AI capability (transcription, embedding, generation, synthesis, vector store)
// and the bounded timeout/retry boundary each call runs inside.
package capability

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Name identifies an external capability.
type Name string

const (
	Transcription Name = "transcription"
	Embedding     Name = "embedding"
	Generation    Name = "generation"
	Synthesis     Name = "synthesis"
	VectorStore   Name = "vector_store"
)

func (n Name) String() string { return string(n) }

var (
	// ErrRateLimited marks a quota or rate-limit rejection from a vendor.
	ErrRateLimited = errors.New("rate limited")
	// ErrEmptyTranscript is returned when transcription produced no usable text.
	ErrEmptyTranscript = errors.New("empty transcription")
	// ErrEmptyResponse is returned when a vendor answered without content.
	ErrEmptyResponse = errors.New("empty response")
)

// Failure is a service failure raised by a named capability. It is the only
// error kind the conversation pipeline recovers from with the apology clip.
type Failure struct {
	Capability Name
	Attempts   int
	Err        error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("%s failed after %d attempt(s): %v", f.Capability, f.Attempts, f.Err)
}

func (f *Failure) Unwrap() error { return f.Err }

// RateLimited reports whether the vendor rejected the call on quota.
func (f *Failure) RateLimited() bool { return errors.Is(f.Err, ErrRateLimited) }

// TimedOut reports whether the capability exceeded its time budget.
func (f *Failure) TimedOut() bool { return errors.Is(f.Err, context.DeadlineExceeded) }

// ErrorType is a low-cardinality label for metrics.
func (f *Failure) ErrorType() string {
	switch {
	case f.RateLimited():
		return "rate_limited"
	case f.TimedOut():
		return "timeout"
	case errors.Is(f.Err, ErrEmptyTranscript), errors.Is(f.Err, ErrEmptyResponse):
		return "empty"
	case errors.Is(f.Err, context.Canceled):
		return "canceled"
	default:
		return "error"
	}
}

// NewFailure wraps err as a single-attempt failure of capability name.
func NewFailure(name Name, err error) *Failure {
	return &Failure{Capability: name, Attempts: 1, Err: err}
}

// AsFailure extracts a *Failure from err's chain.
func AsFailure(err error) (*Failure, bool) {
	var f *Failure
	if errors.As(err, &f) {
		return f, true
	}
	return nil, false
}

type permanentError struct{ err error }

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

func isPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// RateLimited tags err as a quota rejection.
func RateLimited(err error) error {
	return fmt.Errorf("%w: %w", ErrRateLimited, err)
}

// FromGRPC maps a Google Cloud gRPC status onto the failure taxonomy.
func FromGRPC(err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	switch st.Code() {
	case codes.ResourceExhausted:
		return RateLimited(err)
	case codes.InvalidArgument, codes.PermissionDenied, codes.Unauthenticated, codes.NotFound:
		return Permanent(err)
	case codes.DeadlineExceeded:
		return fmt.Errorf("%w: %w", context.DeadlineExceeded, err)
	default:
		return err
	}
}

// FromHTTPStatus maps a vendor HTTP status code onto the failure taxonomy.
func FromHTTPStatus(code int, err error) error {
	switch {
	case code == 429:
		return RateLimited(err)
	case code >= 400 && code < 500 && code != 408:
		return Permanent(err)
	default:
		return err
	}
}
