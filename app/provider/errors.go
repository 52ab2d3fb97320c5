package provider

import (
	"errors"
	"fmt"
)

var (
	ErrAuthExpired       = errors.New("gateway access token expired")
	ErrMalformedCallback = errors.New("malformed provider callback")
	ErrInvalidAmount     = errors.New("amount must be a positive whole number of shillings")
	ErrInvalidMsisdn     = errors.New("msisdn cannot be normalized")
)

// TransportError means the provider could not be reached or did not answer
// usefully. No provider-side effect is assumed.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("mpesa %s transport error: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// GatewayRejectedError is a structured refusal; the request never started.
type GatewayRejectedError struct {
	Op      string
	Code    string
	Message string
}

func (e *GatewayRejectedError) Error() string {
	return fmt.Sprintf("mpesa %s rejected: code=%s message=%s", e.Op, e.Code, e.Message)
}

func IsTransportError(err error) bool {
	var target *TransportError
	return errors.As(err, &target)
}

func IsGatewayRejected(err error) bool {
	var target *GatewayRejectedError
	return errors.As(err, &target)
}
