package errors

import (
	"errors"
	"fmt"
)

// Config errors.
var (
	ErrConfigIO = errors.New("config file I/O failed")
)

// Callback errors.
var (
	ErrBind            = errors.New("could not bind callback listener")
	ErrMissingCode     = errors.New("callback request carried no authorization code")
	ErrTransport       = errors.New("callback transport failed")
	ErrCallbackTimeout = errors.New("timed out waiting for authorization callback")
)

// Token exchange errors.
var (
	ErrProvider = errors.New("token endpoint returned an error")
	ErrNetwork  = errors.New("network request failed")
	ErrDecode   = errors.New("could not decode response")
)

// Negotiation errors.
var (
	ErrProtocol     = errors.New("websocket protocol error")
	ErrAuthRejected = errors.New("websocket authorization rejected")
)

// Server/transport errors for the registration API.
var (
	ErrAPIRequest  = errors.New("API request failed")
	ErrAPIResponse = errors.New("unexpected API response")
)

// ProviderError is a structured OAuth error returned by the hub's token
// endpoint.
type ProviderError struct {
	Status      int
	Code        string
	Description string
}

func (e *ProviderError) Error() string {
	if e.Description == "" {
		return fmt.Sprintf("token endpoint (%d): %s", e.Status, e.Code)
	}

	return fmt.Sprintf("token endpoint (%d): %s: %s", e.Status, e.Code, e.Description)
}

// Is reports ErrProvider as a match so callers can test with errors.Is.
func (e *ProviderError) Is(target error) bool {
	return target == ErrProvider
}

// ProtocolError describes a negotiation message that was malformed, of an
// unknown type, or not valid in the state it arrived in.
type ProtocolError struct {
	State  string
	Type   string
	Detail string
}

func (e *ProtocolError) Error() string {
	msg := "websocket protocol error in state " + e.State
	if e.Type != "" {
		msg += fmt.Sprintf(" (message type %q)", e.Type)
	}

	if e.Detail != "" {
		msg += ": " + e.Detail
	}

	return msg
}

func (e *ProtocolError) Is(target error) bool {
	return target == ErrProtocol
}

// AuthRejectedError carries the hub's auth_invalid message.
type AuthRejectedError struct {
	Message string
}

func (e *AuthRejectedError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = "no reason given"
	}

	return "websocket authorization rejected: " + msg +
		" (perhaps a long-lived token was already created for this client?)"
}

func (e *AuthRejectedError) Is(target error) bool {
	return target == ErrAuthRejected
}
