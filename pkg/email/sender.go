package email

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

// Sender delivers a single HTML email. Implementations never panic and report
// failure through Result rather than an error return, matching the transport
// boundary the notification dispatcher consumes.
type Sender interface {
	Send(ctx context.Context, to, subject, html string) Result
}

// Result is the outcome of a send attempt.
type Result struct {
	Success bool
	Err     error
}

func ok() Result { return Result{Success: true} }

func failed(err error) Result { return Result{Err: err} }

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, to, subject, html string) Result

func (f SenderFunc) Send(ctx context.Context, to, subject, html string) Result {
	return f(ctx, to, subject, html)
}

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$|^[a-zA-Z0-9._%+\-]+@localhost$`)

// ValidateMessage checks the fields every sender requires.
func ValidateMessage(to, subject, html string) error {
	to = strings.TrimSpace(to)
	switch {
	case to == "":
		return fmt.Errorf("%w: recipient is required", ErrInvalidMessage)
	case !emailRegex.MatchString(to):
		return fmt.Errorf("%w: recipient %q is not a valid address", ErrInvalidMessage, to)
	case strings.TrimSpace(subject) == "":
		return fmt.Errorf("%w: subject is required", ErrInvalidMessage)
	case strings.TrimSpace(html) == "":
		return fmt.Errorf("%w: body is required", ErrInvalidMessage)
	}
	return nil
}
