package hub

//go:generate mockgen -source=negotiate.go -destination=mock_wsconn_test.go -package=hub -mock_names=wsConn=MockWSConn

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/coder/websocket"
	"github.com/tidwall/gjson"

	apperrors "github.com/alexjbarnes/halcyon/internal/errors"
)

const (
	// LongLivedTokenCommandID is the id of the only command sent on the
	// connection. One request is in flight at a time, so a constant is
	// enough to correlate the result.
	LongLivedTokenCommandID = 11

	// LongLivedTokenLifespanDays is the requested token lifetime.
	LongLivedTokenLifespanDays = 365

	// DefaultClientName labels the issued token in the hub's UI. The hub
	// refuses a second token with the same name.
	DefaultClientName = "Halcyon"

	// negotiateReadLimit bounds a single inbound frame. Every message in
	// this exchange is a small JSON object.
	negotiateReadLimit = 64 * 1024
)

// negotiationState is a step of the long-lived token exchange.
type negotiationState int

const (
	stateConnecting negotiationState = iota
	stateAwaitingAuthRequired
	stateSendingAuth
	stateAwaitingAuthResult
	stateSendingIssueRequest
	stateAwaitingResult
	stateSucceeded
	stateFailed
)

func (s negotiationState) String() string {
	switch s {
	case stateConnecting:
		return "Connecting"
	case stateAwaitingAuthRequired:
		return "AwaitingAuthRequired"
	case stateSendingAuth:
		return "SendingAuth"
	case stateAwaitingAuthResult:
		return "AwaitingAuthResult"
	case stateSendingIssueRequest:
		return "SendingIssueRequest"
	case stateAwaitingResult:
		return "AwaitingResult"
	case stateSucceeded:
		return "Succeeded"
	case stateFailed:
		return "Failed"
	default:
		return fmt.Sprintf("negotiationState(%d)", int(s))
	}
}

// wsConn abstracts the WebSocket connection so the negotiation can be
// tested without a real server. *websocket.Conn satisfies this interface.
type wsConn interface {
	Read(ctx context.Context) (websocket.MessageType, []byte, error)
	Write(ctx context.Context, typ websocket.MessageType, p []byte) error
	Close(code websocket.StatusCode, reason string) error
	SetReadLimit(n int64)
}

// NegotiatorConfig configures a Negotiator.
type NegotiatorConfig struct {
	// ClientName labels the issued token. Defaults to DefaultClientName.
	ClientName string

	// MessageTimeout bounds the dial and each wait for an inbound
	// message. Zero waits indefinitely.
	MessageTimeout time.Duration
}

// Negotiator upgrades a short-lived access token into a long-lived token
// over the hub's websocket API.
type Negotiator struct {
	logger         *slog.Logger
	clientName     string
	messageTimeout time.Duration
	dial           func(ctx context.Context, url string) (wsConn, error)
}

// NewNegotiator creates a Negotiator from the given config.
func NewNegotiator(cfg NegotiatorConfig, logger *slog.Logger) *Negotiator {
	name := cfg.ClientName
	if name == "" {
		name = DefaultClientName
	}

	return &Negotiator{
		logger:         logger,
		clientName:     name,
		messageTimeout: cfg.MessageTimeout,
		dial:           dialWebsocket,
	}
}

func dialWebsocket(ctx context.Context, url string) (wsConn, error) {
	conn, _, err := websocket.Dial(ctx, url, nil) //nolint:bodyclose // websocket.Dial closes the response body internally
	if err != nil {
		return nil, err
	}

	return conn, nil
}

// Negotiate connects to the hub at host, authenticates with accessToken
// and returns the issued long-lived token. The connection is closed
// before returning, on success and on failure.
func (n *Negotiator) Negotiate(ctx context.Context, host, accessToken string) (string, error) {
	eps, err := resolve(host)
	if err != nil {
		return "", err
	}

	url := eps.ws + "/api/websocket"
	n.logger.Debug("connecting", slog.String("url", url))

	dialCtx, cancel := n.withTimeout(ctx)
	conn, err := n.dial(dialCtx, url)
	cancel()

	if err != nil {
		return "", fmt.Errorf("%w: dialing %s: %w", apperrors.ErrNetwork, url, err)
	}

	return n.negotiate(ctx, conn, accessToken)
}

// negotiate runs the message exchange on an established connection.
// Every inbound message either advances the state or ends the exchange;
// nothing is skipped, so an unexpected server message cannot stall it.
func (n *Negotiator) negotiate(ctx context.Context, conn wsConn, accessToken string) (token string, err error) {
	conn.SetReadLimit(negotiateReadLimit)

	state := stateAwaitingAuthRequired

	defer func() {
		if err != nil {
			n.logger.Debug("negotiation failed", slog.String("state", state.String()))
			_ = conn.Close(websocket.StatusInternalError, "negotiation failed")

			return
		}

		_ = conn.Close(websocket.StatusNormalClosure, "done")
	}()

	for {
		msg, err := n.readMessage(ctx, conn, state)
		if err != nil {
			return "", err
		}

		switch m := msg.(type) {
		case AuthRequiredMessage:
			if state != stateAwaitingAuthRequired {
				return "", unexpected(state, m)
			}

			n.logger.Debug("hub requires auth", slog.String("ha_version", m.HAVersion))

			state = stateSendingAuth
			if err := n.writeJSON(ctx, conn, AuthMessage{Type: msgAuth, AccessToken: accessToken}); err != nil {
				return "", fmt.Errorf("%w: sending auth: %w", apperrors.ErrNetwork, err)
			}

			state = stateAwaitingAuthResult

		case AuthOKMessage:
			if state != stateAwaitingAuthResult {
				return "", unexpected(state, m)
			}

			n.logger.Debug("websocket authenticated")

			state = stateSendingIssueRequest
			req := LongLivedTokenRequest{
				ID:         LongLivedTokenCommandID,
				Type:       cmdLongLivedToken,
				ClientName: n.clientName,
				Lifespan:   LongLivedTokenLifespanDays,
			}

			if err := n.writeJSON(ctx, conn, req); err != nil {
				return "", fmt.Errorf("%w: sending token request: %w", apperrors.ErrNetwork, err)
			}

			state = stateAwaitingResult

		case AuthInvalidMessage:
			if state != stateAwaitingAuthResult {
				return "", unexpected(state, m)
			}

			state = stateFailed

			return "", &apperrors.AuthRejectedError{Message: m.Message}

		case ResultMessage:
			if state != stateAwaitingResult {
				return "", unexpected(state, m)
			}

			token, err := n.issuedToken(m)
			if err != nil {
				state = stateFailed
				return "", err
			}

			state = stateSucceeded
			n.logger.Debug("long-lived token issued", slog.String("client_name", n.clientName))

			return token, nil
		}
	}
}

// issuedToken validates the result of the token request.
func (n *Negotiator) issuedToken(m ResultMessage) (string, error) {
	if m.ID != LongLivedTokenCommandID {
		return "", &apperrors.ProtocolError{
			State:  stateAwaitingResult.String(),
			Type:   msgResult,
			Detail: fmt.Sprintf("result id %d does not match request id %d", m.ID, LongLivedTokenCommandID),
		}
	}

	if !m.Success {
		detail := "hub refused to issue a token"
		if m.Error != nil {
			detail += fmt.Sprintf(": %s: %s", m.Error.Code, m.Error.Message)
		}

		detail += fmt.Sprintf(" (perhaps one already exists for client name %q?)", n.clientName)

		return "", &apperrors.ProtocolError{State: stateAwaitingResult.String(), Type: msgResult, Detail: detail}
	}

	if m.Result == nil || *m.Result == "" {
		return "", &apperrors.ProtocolError{
			State:  stateAwaitingResult.String(),
			Type:   msgResult,
			Detail: "successful result carried no token",
		}
	}

	return *m.Result, nil
}

// readMessage waits for the next frame and decodes it. Read failures and
// timeouts are network errors; anything that arrives but cannot be
// understood is a protocol error.
func (n *Negotiator) readMessage(ctx context.Context, conn wsConn, state negotiationState) (message, error) {
	readCtx, cancel := n.withTimeout(ctx)
	defer cancel()

	typ, data, err := conn.Read(readCtx)
	if err != nil {
		if errors.Is(readCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, fmt.Errorf("%w: no message within %s in state %s: %w", apperrors.ErrNetwork, n.messageTimeout, state, err)
		}

		return nil, fmt.Errorf("%w: reading message in state %s: %w", apperrors.ErrNetwork, state, err)
	}

	if typ != websocket.MessageText {
		return nil, &apperrors.ProtocolError{State: state.String(), Detail: fmt.Sprintf("unexpected %s frame", typ)}
	}

	msg, err := decodeMessage(data)
	if err != nil {
		n.logger.Warn("unexpected websocket message",
			slog.String("state", state.String()),
			slog.String("type", gjson.GetBytes(data, "type").String()),
			slog.Int("bytes", len(data)),
		)

		return nil, &apperrors.ProtocolError{
			State:  state.String(),
			Type:   gjson.GetBytes(data, "type").String(),
			Detail: err.Error(),
		}
	}

	return msg, nil
}

// decodeMessage peeks at the type field and decodes the frame into the
// matching message struct.
func decodeMessage(data []byte) (message, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("frame is not valid JSON")
	}

	typ := gjson.GetBytes(data, "type")
	if typ.Type != gjson.String {
		return nil, fmt.Errorf("frame has no string type field")
	}

	var (
		msg message
		err error
	)

	switch typ.Str {
	case msgAuthRequired:
		var m AuthRequiredMessage
		err = json.Unmarshal(data, &m)
		msg = m
	case msgAuthOK:
		var m AuthOKMessage
		err = json.Unmarshal(data, &m)
		msg = m
	case msgAuthInvalid:
		var m AuthInvalidMessage
		err = json.Unmarshal(data, &m)
		msg = m
	case msgResult:
		var m ResultMessage
		err = json.Unmarshal(data, &m)
		msg = m
	default:
		return nil, fmt.Errorf("unrecognized message type")
	}

	if err != nil {
		return nil, fmt.Errorf("decoding %s message: %w", typ.Str, err)
	}

	return msg, nil
}

func unexpected(state negotiationState, m message) error {
	return &apperrors.ProtocolError{
		State:  state.String(),
		Type:   m.messageType(),
		Detail: "message not valid in this state",
	}
}

func (n *Negotiator) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if n.messageTimeout <= 0 {
		return context.WithCancel(ctx)
	}

	return context.WithTimeout(ctx, n.messageTimeout)
}

func (n *Negotiator) writeJSON(ctx context.Context, conn wsConn, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshalling message: %w", err)
	}

	return conn.Write(ctx, websocket.MessageText, data)
}
