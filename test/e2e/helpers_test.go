package e2e_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/require"

	"github.com/alexjbarnes/halcyon/internal/hub"
	"github.com/alexjbarnes/halcyon/internal/platform"
	"github.com/alexjbarnes/halcyon/internal/setup"
)

const (
	testAuthCode  = "e2e-auth-code"
	testShort     = "e2e-short-lived"
	testLongLived = "e2e-long-lived"
	testWebhookID = "e2e-webhook"
	testNodename  = "e2e-node"
)

// fakeHub is an in-process stand-in for the hub: authorize redirect,
// token endpoint, websocket API and the REST endpoints used by setup.
type fakeHub struct {
	srv *httptest.Server

	mu           sync.Mutex
	rejectAuth   bool
	registered   bool
	tokenCalls   int
	wsSessions   int
	redirectURIs []string
	tokenForms   []map[string]string
	webhookTypes []string
	bearers      []string
}

func newFakeHub(t *testing.T) *fakeHub {
	t.Helper()

	h := &fakeHub{}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /auth/authorize", h.handleAuthorize)
	mux.HandleFunc("POST /auth/token", h.handleToken)
	mux.HandleFunc("GET /api/websocket", h.handleWebsocket)
	mux.HandleFunc("GET /api/states", h.handleStates)
	mux.HandleFunc("POST /api/mobile_app/registrations", h.handleRegistration)
	mux.HandleFunc("POST /api/webhook/{id}", h.handleWebhook)

	h.srv = httptest.NewServer(mux)
	t.Cleanup(h.srv.Close)

	return h
}

// host returns the hub address in the bare host:port form used in the
// config file.
func (h *fakeHub) host() string {
	return h.srv.Listener.Addr().String()
}

// handleAuthorize plays the operator approving the device: it redirects
// straight back to the redirect_uri with a code.
func (h *fakeHub) handleAuthorize(w http.ResponseWriter, r *http.Request) {
	redirect := r.URL.Query().Get("redirect_uri")

	h.mu.Lock()
	h.redirectURIs = append(h.redirectURIs, redirect)
	h.mu.Unlock()

	http.Redirect(w, r, redirect+"?code="+testAuthCode, http.StatusFound)
}

func (h *fakeHub) handleToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	h.mu.Lock()
	h.tokenCalls++
	h.tokenForms = append(h.tokenForms, map[string]string{
		"grant_type": r.PostForm.Get("grant_type"),
		"code":       r.PostForm.Get("code"),
		"client_id":  r.PostForm.Get("client_id"),
	})
	h.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")

	if r.PostForm.Get("code") != testAuthCode {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "invalid_request", "error_description": "Invalid code"})

		return
	}

	_ = json.NewEncoder(w).Encode(map[string]any{
		"access_token":  testShort,
		"refresh_token": "e2e-refresh",
		"token_type":    "Bearer",
		"expires_in":    1800,
	})
}

func (h *fakeHub) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	c, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}
	defer c.CloseNow()

	h.mu.Lock()
	h.wsSessions++
	reject := h.rejectAuth
	h.mu.Unlock()

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := wsjson.Write(ctx, c, map[string]string{"type": "auth_required", "ha_version": "e2e"}); err != nil {
		return
	}

	var auth struct {
		AccessToken string `json:"access_token"`
	}
	if err := wsjson.Read(ctx, c, &auth); err != nil {
		return
	}

	if reject || auth.AccessToken != testShort {
		_ = wsjson.Write(ctx, c, map[string]string{"type": "auth_invalid", "message": "Invalid access token or password"})
		_, _, _ = c.Read(ctx)

		return
	}

	if err := wsjson.Write(ctx, c, map[string]string{"type": "auth_ok", "ha_version": "e2e"}); err != nil {
		return
	}

	var req struct {
		ID int `json:"id"`
	}
	if err := wsjson.Read(ctx, c, &req); err != nil {
		return
	}

	_ = wsjson.Write(ctx, c, map[string]any{"id": req.ID, "type": "result", "success": true, "result": testLongLived})
	_, _, _ = c.Read(ctx)
}

func (h *fakeHub) recordBearer(r *http.Request) {
	h.mu.Lock()
	h.bearers = append(h.bearers, r.Header.Get("Authorization"))
	h.mu.Unlock()
}

func (h *fakeHub) handleStates(w http.ResponseWriter, r *http.Request) {
	h.recordBearer(r)

	h.mu.Lock()
	registered := h.registered
	h.mu.Unlock()

	states := []map[string]any{
		{"entity_id": "sun.sun", "state": "above_horizon", "attributes": map[string]string{"friendly_name": "Sun"}},
	}

	if registered {
		states = append(states, map[string]any{
			"entity_id":  "sensor.e2e_node",
			"state":      "init",
			"attributes": map[string]string{"friendly_name": testNodename},
		})
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(states)
}

func (h *fakeHub) handleRegistration(w http.ResponseWriter, r *http.Request) {
	h.recordBearer(r)

	h.mu.Lock()
	h.registered = true
	h.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(map[string]any{"webhook_id": testWebhookID, "secret": nil})
}

func (h *fakeHub) handleWebhook(w http.ResponseWriter, r *http.Request) {
	h.recordBearer(r)

	if r.PathValue("id") != testWebhookID {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	var body struct {
		Type string `json:"type"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)

	h.mu.Lock()
	h.webhookTypes = append(h.webhookTypes, body.Type)
	h.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{}`))
}

func (h *fakeHub) snapshot(fn func(h *fakeHub)) {
	h.mu.Lock()
	defer h.mu.Unlock()

	fn(h)
}

var authorizeURLPattern = regexp.MustCompile(`http://\S+/auth/authorize\?\S+`)

// browser captures operator output and follows the authorize URL as a
// browser would once it is printed.
type browser struct {
	mu   sync.Mutex
	buf  bytes.Buffer
	done chan error
}

func newBrowser() *browser {
	return &browser{done: make(chan error, 1)}
}

func (b *browser) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if url := authorizeURLPattern.Find(p); url != nil {
		go b.visit(string(url))
	}

	return b.buf.Write(p)
}

func (b *browser) visit(url string) {
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		b.done <- err
		return
	}

	resp.Body.Close()
	b.done <- nil
}

func (b *browser) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.buf.String()
}

// harness wires the real setup stack against a fakeHub.
type harness struct {
	hub        *fakeHub
	browser    *browser
	runner     *setup.Runner
	configPath string
	callback   string
}

func freeAddr(t *testing.T) string {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	return addr
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	fh := newFakeHub(t)
	b := newBrowser()
	logger := slog.New(slog.DiscardHandler)

	callbackAddr := freeAddr(t)
	clientID := "http://" + callbackAddr

	configPath := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(configPath, []byte("ha:\n  host: "+fh.host()+"\n"), 0o600))

	httpClient := &http.Client{Timeout: 5 * time.Second}
	newClient := func(host string) (setup.HubClient, error) {
		c, err := hub.NewClient(host, clientID, httpClient)
		if err != nil {
			return nil, err
		}

		return c, nil
	}

	waiter := &setup.BrowserWaiter{
		Addr:    callbackAddr,
		Timeout: 10 * time.Second,
		Out:     b,
		Logger:  logger,
	}

	negotiator := hub.NewNegotiator(hub.NegotiatorConfig{MessageTimeout: 5 * time.Second}, logger)

	opts := setup.Options{
		CallbackAddr: callbackAddr,
		ClientID:     clientID,
		AppVersion:   "e2e",
		Platform:     platform.Info{Nodename: testNodename, Sysname: "Linux", Machine: "x86_64"},
	}

	return &harness{
		hub:        fh,
		browser:    b,
		runner:     setup.NewRunner(opts, waiter, newClient, negotiator, b, logger),
		configPath: configPath,
		callback:   callbackAddr,
	}
}
