// Package setup sequences the one-time device setup: device id, long-lived
// token, then registration with the hub. Every step that completes is
// persisted before the next begins, so a failed run can simply be rerun.
package setup

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/alexjbarnes/halcyon/internal/callback"
	"github.com/alexjbarnes/halcyon/internal/hub"
	"github.com/alexjbarnes/halcyon/internal/platform"
	"github.com/alexjbarnes/halcyon/internal/state"
)

// Registration constants sent to the hub's mobile_app integration.
const (
	AppID        = "HalcyonAppId"
	AppName      = "Halcyon"
	Manufacturer = "PC"
)

// CodeWaiter obtains an authorization code for authorizeURL, typically by
// showing the URL to the operator and waiting for the browser redirect.
type CodeWaiter interface {
	AwaitCode(ctx context.Context, authorizeURL string) (string, error)
}

// HubClient is the subset of *hub.Client used during setup.
type HubClient interface {
	ExchangeCode(ctx context.Context, code string) (*hub.ShortLivedToken, error)
	States(ctx context.Context, cred hub.Credential) ([]hub.EntityState, error)
	RegisterDevice(ctx context.Context, cred hub.Credential, reg hub.DeviceRegistration) (*hub.DeviceRegistrationResponse, error)
	RegisterSensor(ctx context.Context, cred hub.Credential, webhookID string, sensor hub.SensorRegistration) error
	UpdateSensorStates(ctx context.Context, cred hub.Credential, webhookID string, states []hub.SensorState) error
}

// TokenNegotiator upgrades a short-lived access token to a long-lived one.
type TokenNegotiator interface {
	Negotiate(ctx context.Context, host, accessToken string) (string, error)
}

// Options are the fixed inputs of a setup run.
type Options struct {
	// CallbackAddr is where the redirect listener binds. It determines
	// the redirect_uri sent to the hub.
	CallbackAddr string
	ClientID     string
	AppVersion   string
	Platform     platform.Info
}

// Runner executes setup. The hub client is built per run because the hub
// address comes from the config record.
type Runner struct {
	opts       Options
	waiter     CodeWaiter
	newClient  func(host string) (HubClient, error)
	negotiator TokenNegotiator
	out        io.Writer
	logger     *slog.Logger
}

// NewRunner creates a Runner. Progress lines for the operator go to out.
func NewRunner(opts Options, waiter CodeWaiter, newClient func(host string) (HubClient, error), negotiator TokenNegotiator, out io.Writer, logger *slog.Logger) *Runner {
	return &Runner{
		opts:       opts,
		waiter:     waiter,
		newClient:  newClient,
		negotiator: negotiator,
		out:        out,
		logger:     logger,
	}
}

// Run performs setup against the record at path. The first failing step
// aborts the run.
func (r *Runner) Run(ctx context.Context, path string) error {
	fmt.Fprintln(r.out, "Welcome to setup")

	rec, err := state.Load(path)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	rec, err = state.EnsureDeviceID(rec, path)
	if err != nil {
		return fmt.Errorf("storing device id: %w", err)
	}

	r.logger.Debug("device id ready", slog.String("device_id", rec.DeviceID()))

	client, err := r.newClient(rec.Host())
	if err != nil {
		return fmt.Errorf("creating hub client: %w", err)
	}

	if !rec.HasLongLivedToken() {
		token, err := r.acquireToken(ctx, client, rec.Host())
		if err != nil {
			return err
		}

		rec, err = state.EnsureLongLivedToken(rec, path, token)
		if err != nil {
			return fmt.Errorf("storing long-lived token: %w", err)
		}

		fmt.Fprintln(r.out, "Long-lived token stored")
	} else {
		r.logger.Debug("long-lived token already present")
	}

	return r.register(ctx, client, rec, path)
}

// acquireToken runs the browser authorization, the code exchange and the
// websocket negotiation.
func (r *Runner) acquireToken(ctx context.Context, client HubClient, host string) (string, error) {
	authorizeURL, err := hub.AuthorizeURL(host, r.opts.ClientID, callback.RedirectURI(r.opts.CallbackAddr))
	if err != nil {
		return "", fmt.Errorf("building authorize URL: %w", err)
	}

	code, err := r.waiter.AwaitCode(ctx, authorizeURL)
	if err != nil {
		return "", fmt.Errorf("authorization callback: %w", err)
	}

	short, err := client.ExchangeCode(ctx, code)
	if err != nil {
		return "", fmt.Errorf("token exchange: %w", err)
	}

	r.logger.Debug("short-lived token obtained", slog.Duration("expires_in", short.ExpiresIn))

	token, err := r.negotiator.Negotiate(ctx, host, short.AccessToken)
	if err != nil {
		return "", fmt.Errorf("long-lived token negotiation: %w", err)
	}

	return token, nil
}

// register makes sure the device exists on the hub. A hub entity whose
// friendly name equals the node name means the device is already known.
func (r *Runner) register(ctx context.Context, client HubClient, rec state.Record, path string) error {
	cred := hub.LongLivedToken(rec.LongLivedToken())
	name := r.opts.Platform.Nodename

	states, err := client.States(ctx, cred)
	if err != nil {
		return fmt.Errorf("device registration: %w", err)
	}

	for _, s := range states {
		if s.Attributes.FriendlyName == name {
			fmt.Fprintf(r.out, "Device %s is already registered\n", name)
			return nil
		}
	}

	fmt.Fprintln(r.out, "Registering device")

	resp, err := client.RegisterDevice(ctx, cred, r.deviceRegistration(rec.DeviceID()))
	if err != nil {
		return fmt.Errorf("device registration: %w", err)
	}

	if _, err := state.EnsureWebhookID(rec, path, resp.WebhookID); err != nil {
		return fmt.Errorf("storing webhook id: %w", err)
	}

	fmt.Fprintln(r.out, "Device registered, registering sensors")

	if err := client.RegisterSensor(ctx, cred, resp.WebhookID, SampleSensor()); err != nil {
		return fmt.Errorf("sensor registration: %w", err)
	}

	fmt.Fprintln(r.out, "Sensors registered")

	return nil
}

func (r *Runner) deviceRegistration(deviceID string) hub.DeviceRegistration {
	p := r.opts.Platform

	return hub.DeviceRegistration{
		DeviceID:     deviceID,
		AppID:        AppID,
		AppName:      AppName,
		AppVersion:   r.opts.AppVersion,
		DeviceName:   p.Nodename,
		Manufacturer: Manufacturer,
		Model:        p.Machine,
		OSName:       p.Sysname,
		OSVersion:    p.Version,
		AppData:      map[string]any{},
	}
}
