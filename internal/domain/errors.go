package domain

import "errors"

var (
	ErrInvalidRequest          = errors.New("invalid request")
	ErrTemplateNotFound        = errors.New("template not found")
	ErrProviderRejected        = errors.New("provider rejected")
	ErrProviderTimeout         = errors.New("provider timeout")
	ErrProviderReportedFailure = errors.New("provider reported failure")
	ErrMalformedWebhookPayload = errors.New("malformed webhook payload")
	ErrJobNotFound             = errors.New("job not found")
	ErrStoreUnavailable        = errors.New("store unavailable")
	ErrUnauthorized            = errors.New("unauthorized")
)

// Error attaches a human readable message to one of the sentinel kinds above.
type Error struct {
	Kind    error
	Message string
}

// NewError wraps kind with a message suitable for clients.
func NewError(kind error, message string) error {
	return &Error{Kind: kind, Message: message}
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Kind.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Kind }

// Unavailable marks a persistence failure.
func Unavailable(err error) error {
	if err == nil || errors.Is(err, ErrStoreUnavailable) {
		return err
	}
	return &Error{Kind: ErrStoreUnavailable, Message: "store unavailable: " + err.Error()}
}

// Message returns the client-facing text of err.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var de *Error
	if errors.As(err, &de) {
		return de.Error()
	}
	return err.Error()
}
