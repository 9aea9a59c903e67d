package providers

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"stylegen/internal/domain"
)

// Request is the provider-agnostic generation input.
type Request struct {
	Prompt   string
	ImageURL string
	Model    string
}

// Image is a finished Blocking result. Either Data or URL is set.
type Image struct {
	Data []byte
	MIME string
	URL  string
}

// Acceptance acknowledges a NonBlocking submission.
type Acceptance struct {
	ExternalID string
}

// BlockingAdapter returns the final image before returning control.
type BlockingAdapter interface {
	Name() string
	Run(ctx context.Context, req Request) (Image, error)
}

// NonBlockingAdapter submits and returns; completion arrives on callbackURL.
type NonBlockingAdapter interface {
	Name() string
	Submit(ctx context.Context, req Request, callbackURL string) (Acceptance, error)
}

// FailureKind classifies provider errors.
type FailureKind string

const (
	KindRejected FailureKind = "rejected"
	KindTimeout  FailureKind = "timeout"
	KindReported FailureKind = "reported"
)

// Failure is returned by adapters for every provider-side problem.
type Failure struct {
	Kind     FailureKind
	Provider string
	Message  string
	Err      error
}

func (f *Failure) Error() string {
	return f.Provider + ": " + f.Message
}

func (f *Failure) Unwrap() []error {
	errs := []error{kindError(f.Kind)}
	if f.Err != nil {
		errs = append(errs, f.Err)
	}
	return errs
}

func kindError(kind FailureKind) error {
	switch kind {
	case KindRejected:
		return domain.ErrProviderRejected
	case KindTimeout:
		return domain.ErrProviderTimeout
	default:
		return domain.ErrProviderReportedFailure
	}
}

// Rejected reports that the provider refused a submission.
func Rejected(provider, format string, args ...any) *Failure {
	return &Failure{Kind: KindRejected, Provider: provider, Message: fmt.Sprintf(format, args...)}
}

// Reported reports a failure the provider announced after accepting the job.
func Reported(provider, format string, args ...any) *Failure {
	return &Failure{Kind: KindReported, Provider: provider, Message: fmt.Sprintf(format, args...)}
}

// Timeout reports an exhausted poll budget.
func Timeout(provider, message string) *Failure {
	return &Failure{Kind: KindTimeout, Provider: provider, Message: message}
}

// WithCause attaches the underlying error.
func (f *Failure) WithCause(err error) *Failure {
	f.Err = err
	return f
}

// FailureMessage returns the text to record on the job for err.
func FailureMessage(err error) string {
	var f *Failure
	if errors.As(err, &f) {
		return f.Message
	}
	return domain.Message(err)
}

// Set holds the configured adapters keyed by provider kind.
type Set struct {
	blocking    map[string]BlockingAdapter
	nonBlocking map[string]NonBlockingAdapter
}

func NewSet() *Set {
	return &Set{
		blocking:    map[string]BlockingAdapter{},
		nonBlocking: map[string]NonBlockingAdapter{},
	}
}

func (s *Set) AddBlocking(kind string, a BlockingAdapter) {
	s.blocking[kind] = a
}

func (s *Set) AddNonBlocking(kind string, a NonBlockingAdapter) {
	s.nonBlocking[kind] = a
}

func (s *Set) Blocking(kind string) (BlockingAdapter, bool) {
	a, ok := s.blocking[kind]
	return a, ok
}

func (s *Set) NonBlocking(kind string) (NonBlockingAdapter, bool) {
	a, ok := s.nonBlocking[kind]
	return a, ok
}

// Kinds lists configured provider kinds, sorted.
func (s *Set) Kinds() []string {
	out := make([]string, 0, len(s.blocking)+len(s.nonBlocking))
	for k := range s.blocking {
		out = append(out, k)
	}
	for k := range s.nonBlocking {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
