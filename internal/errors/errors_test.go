package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func allSentinels() []error {
	return []error{
		ErrConfigIO,
		ErrBind,
		ErrMissingCode,
		ErrTransport,
		ErrCallbackTimeout,
		ErrProvider,
		ErrNetwork,
		ErrDecode,
		ErrProtocol,
		ErrAuthRejected,
		ErrAPIRequest,
		ErrAPIResponse,
	}
}

func TestSentinelErrors_ImplementErrorInterface(t *testing.T) {
	for _, err := range allSentinels() {
		assert.NotEmpty(t, err.Error(), "sentinel error should have non-empty message")
	}
}

func TestSentinelErrors_AreDistinct(t *testing.T) {
	sentinels := allSentinels()
	for i := 0; i < len(sentinels); i++ {
		for j := i + 1; j < len(sentinels); j++ {
			assert.NotEqual(t, sentinels[i], sentinels[j],
				"sentinel errors should be distinct: %q vs %q", sentinels[i], sentinels[j])
		}
	}
}

func TestProviderError_MatchesSentinelThroughWrapping(t *testing.T) {
	err := fmt.Errorf("exchanging code: %w", &ProviderError{
		Status:      400,
		Code:        "invalid_request",
		Description: "Invalid code",
	})

	assert.ErrorIs(t, err, ErrProvider)
	assert.NotErrorIs(t, err, ErrNetwork)

	var pe *ProviderError
	assert.True(t, errors.As(err, &pe))
	assert.Equal(t, "invalid_request", pe.Code)
	assert.Contains(t, err.Error(), "Invalid code")
	assert.Contains(t, err.Error(), "400")
}

func TestProviderError_NoDescription(t *testing.T) {
	err := &ProviderError{Status: 401, Code: "invalid_client"}
	assert.Equal(t, "token endpoint (401): invalid_client", err.Error())
}

func TestProtocolError_Message(t *testing.T) {
	err := &ProtocolError{State: "AwaitingResult", Type: "event", Detail: "unexpected message"}
	assert.ErrorIs(t, err, ErrProtocol)
	assert.Equal(t, `websocket protocol error in state AwaitingResult (message type "event"): unexpected message`, err.Error())
}

func TestAuthRejectedError_IncludesMessageAndHint(t *testing.T) {
	err := fmt.Errorf("negotiating: %w", &AuthRejectedError{Message: "denied"})
	assert.ErrorIs(t, err, ErrAuthRejected)
	assert.Contains(t, err.Error(), "denied")
	assert.Contains(t, err.Error(), "perhaps")
}

func TestAuthRejectedError_EmptyMessage(t *testing.T) {
	err := &AuthRejectedError{}
	assert.Contains(t, err.Error(), "no reason given")
}
