package notification

import (
	"errors"
	"fmt"
)

var ErrInvalidAddress = errors.New("invalid recipient address")

// TemplateError reports a rendering failure: unknown template or a
// variable the template needs but was not given.
type TemplateError struct {
	Name string
	Err  error
}

func (e *TemplateError) Error() string {
	return fmt.Sprintf("render template %q: %v", e.Name, e.Err)
}

func (e *TemplateError) Unwrap() error { return e.Err }

// DeliveryError reports a transport failure: unreachable relay, relay
// auth failure, malformed address or timeout.
type DeliveryError struct {
	To  string
	Err error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("deliver email to %s: %v", e.To, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }
