package hub

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	apperrors "github.com/alexjbarnes/halcyon/internal/errors"
	"golang.org/x/oauth2"
)

// maxErrorBody caps how much of an unparseable error body is echoed
// back in error messages.
const maxErrorBody = 512

// Client talks to the hub's token endpoint and REST API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	clientID   string
}

// NewClient creates a client for the hub at host using clientID for the
// OAuth grants. If httpClient is nil, http.DefaultClient is used.
func NewClient(host, clientID string, httpClient *http.Client) (*Client, error) {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	eps, err := resolve(host)
	if err != nil {
		return nil, err
	}

	return &Client{
		httpClient: httpClient,
		baseURL:    eps.http,
		clientID:   clientID,
	}, nil
}

func (c *Client) oauthConfig() *oauth2.Config {
	return &oauth2.Config{
		ClientID: c.clientID,
		Endpoint: oauth2.Endpoint{
			AuthURL:   c.baseURL + "/auth/authorize",
			TokenURL:  c.baseURL + "/auth/token",
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

// oauthContext makes the oauth2 package use this client's http.Client.
func (c *Client) oauthContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
}

// ExchangeCode trades an authorization code for a short-lived token pair
// with grant_type=authorization_code.
func (c *Client) ExchangeCode(ctx context.Context, code string) (*ShortLivedToken, error) {
	tok, err := c.oauthConfig().Exchange(c.oauthContext(ctx), code)
	if err != nil {
		return nil, fmt.Errorf("exchanging authorization code: %w", classifyTokenError(err))
	}

	return newShortLivedToken(tok, ""), nil
}

// RefreshToken obtains a new access token with grant_type=refresh_token.
// The hub does not rotate refresh tokens, so the given one is kept when
// the response omits it.
func (c *Client) RefreshToken(ctx context.Context, refreshToken string) (*ShortLivedToken, error) {
	if refreshToken == "" {
		return nil, fmt.Errorf("refreshing token: no refresh token")
	}

	src := c.oauthConfig().TokenSource(c.oauthContext(ctx), &oauth2.Token{RefreshToken: refreshToken})

	tok, err := src.Token()
	if err != nil {
		return nil, fmt.Errorf("refreshing token: %w", classifyTokenError(err))
	}

	return newShortLivedToken(tok, refreshToken), nil
}

// classifyTokenError maps oauth2 failures onto the token exchange
// taxonomy: structured provider errors, transport failures, and
// everything else as undecodable responses.
func classifyTokenError(err error) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		status := 0
		if re.Response != nil {
			status = re.Response.StatusCode
		}

		if re.ErrorCode == "" {
			return fmt.Errorf("%w: token endpoint returned status %d: %s", apperrors.ErrDecode, status, truncate(re.Body))
		}

		return &apperrors.ProviderError{
			Status:      status,
			Code:        re.ErrorCode,
			Description: re.ErrorDescription,
		}
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return fmt.Errorf("%w: %w", apperrors.ErrNetwork, err)
	}

	return fmt.Errorf("%w: %w", apperrors.ErrDecode, err)
}

func truncate(body []byte) string {
	if len(body) > maxErrorBody {
		return string(body[:maxErrorBody]) + "..."
	}

	return string(body)
}

// authorized returns an http.Client that sends cred as a bearer token,
// refreshing a short-lived credential first if it is about to expire.
func (c *Client) authorized(ctx context.Context, cred Credential) (*http.Client, error) {
	if NeedsRefresh(cred, time.Now()) {
		short, ok := cred.(*ShortLivedToken)
		if !ok {
			return nil, fmt.Errorf("credential %T cannot be refreshed", cred)
		}

		fresh, err := c.RefreshToken(ctx, short.RefreshToken)
		if err != nil {
			return nil, err
		}

		cred = fresh
	}

	src := oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: Bearer(cred),
		TokenType:   "Bearer",
	})

	return &http.Client{
		Transport: &oauth2.Transport{Source: src, Base: c.httpClient.Transport},
		Timeout:   c.httpClient.Timeout,
	}, nil
}

// do sends an authorized JSON request and decodes a 2xx response into
// result. body and result may be nil.
func (c *Client) do(ctx context.Context, cred Credential, method, endpoint string, body, result any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshalling request body: %w", err)
		}

		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, reader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	httpClient, err := c.authorized(ctx, cred)
	if err != nil {
		return err
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: sending request to %s: %w", apperrors.ErrAPIRequest, endpoint, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: reading response from %s: %w", apperrors.ErrAPIRequest, endpoint, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr APIError
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Message != "" {
			return fmt.Errorf("%w: %s %s (%d): %s", apperrors.ErrAPIResponse, method, endpoint, resp.StatusCode, apiErr.Message)
		}

		return fmt.Errorf("%w: %s %s returned status %d: %s", apperrors.ErrAPIResponse, method, endpoint, resp.StatusCode, truncate(respBody))
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("%w: decoding response from %s: %w", apperrors.ErrAPIResponse, endpoint, err)
		}
	}

	return nil
}

// States returns every entity state known to the hub.
func (c *Client) States(ctx context.Context, cred Credential) ([]EntityState, error) {
	var states []EntityState
	if err := c.do(ctx, cred, http.MethodGet, "/api/states", nil, &states); err != nil {
		return nil, fmt.Errorf("listing states: %w", err)
	}

	return states, nil
}

// RegisterDevice registers this device with the mobile_app integration
// and returns the webhook id assigned to it.
func (c *Client) RegisterDevice(ctx context.Context, cred Credential, reg DeviceRegistration) (*DeviceRegistrationResponse, error) {
	if reg.AppData == nil {
		reg.AppData = map[string]any{}
	}

	var resp DeviceRegistrationResponse
	if err := c.do(ctx, cred, http.MethodPost, "/api/mobile_app/registrations", reg, &resp); err != nil {
		return nil, fmt.Errorf("registering device: %w", err)
	}

	if resp.WebhookID == "" {
		return nil, fmt.Errorf("registering device: %w: response has no webhook_id", apperrors.ErrAPIResponse)
	}

	return &resp, nil
}

// RegisterSensor creates a sensor through the device webhook.
func (c *Client) RegisterSensor(ctx context.Context, cred Credential, webhookID string, sensor SensorRegistration) error {
	req := webhookRequest{Type: "register_sensor", Data: sensor}

	if err := c.do(ctx, cred, http.MethodPost, webhookPath(webhookID), req, nil); err != nil {
		return fmt.Errorf("registering sensor %s: %w", sensor.UniqueID, err)
	}

	return nil
}

// UpdateSensorStates pushes new states for already registered sensors.
func (c *Client) UpdateSensorStates(ctx context.Context, cred Credential, webhookID string, states []SensorState) error {
	req := webhookRequest{Type: "update_sensor_states", Data: states}

	if err := c.do(ctx, cred, http.MethodPost, webhookPath(webhookID), req, nil); err != nil {
		return fmt.Errorf("updating sensor states: %w", err)
	}

	return nil
}

func webhookPath(webhookID string) string {
	return "/api/webhook/" + url.PathEscape(webhookID)
}
