// Package callback receives the authorization redirect on a short-lived
// local HTTP listener.
package callback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	apperrors "github.com/alexjbarnes/halcyon/internal/errors"
)

const (
	readHeaderTimeout = 10 * time.Second
	shutdownTimeout   = 5 * time.Second
)

// RedirectURI is the callback URL registered with the hub for a listener
// bound to addr.
func RedirectURI(addr string) string {
	return "http://" + addr + "/callback"
}

type result struct {
	code string
	err  error
}

// Listener serves exactly one redirect request and is then torn down.
// A Listener cannot be reused: create a new one for every setup run.
type Listener struct {
	logger   *slog.Logger
	ln       net.Listener
	server   *http.Server
	once     sync.Once
	resultCh chan result
}

// Listen binds addr. Failing to bind is reported immediately as ErrBind.
func Listen(addr string, logger *slog.Logger) (*Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("%w on %s: %w", apperrors.ErrBind, addr, err)
	}

	l := &Listener{
		logger:   logger,
		ln:       ln,
		resultCh: make(chan result, 1),
	}

	l.server = &http.Server{
		Handler:           http.HandlerFunc(l.handle),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	return l, nil
}

// Addr returns the bound address.
func (l *Listener) Addr() string {
	return l.ln.Addr().String()
}

// Await serves until the first request arrives and returns its code.
// The listener is shut down and the port released before Await returns,
// whatever the outcome. A ctx deadline is reported as ErrCallbackTimeout.
func (l *Listener) Await(ctx context.Context) (string, error) {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := l.server.Serve(l.ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("%w: %w", apperrors.ErrTransport, err)
		}

		return nil
	})

	var code string

	g.Go(func() error {
		defer l.shutdown()

		select {
		case res := <-l.resultCh:
			code = res.code
			return res.err
		case <-gctx.Done():
			switch {
			case errors.Is(ctx.Err(), context.DeadlineExceeded):
				return apperrors.ErrCallbackTimeout
			case ctx.Err() != nil:
				return fmt.Errorf("waiting for authorization callback: %w", ctx.Err())
			default:
				// Serve failed; its error is the one reported.
				return nil
			}
		}
	})

	if err := g.Wait(); err != nil {
		return "", err
	}

	return code, nil
}

func (l *Listener) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := l.server.Shutdown(ctx); err != nil {
		l.logger.Debug("callback listener shutdown", slog.String("error", err.Error()))
	}

	_ = l.ln.Close()
}

func (l *Listener) handle(w http.ResponseWriter, r *http.Request) {
	handled := false

	l.once.Do(func() {
		handled = true
		l.process(w, r)
	})

	if !handled {
		http.Error(w, "callback already processed", http.StatusBadRequest)
	}
}

func (l *Listener) process(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("X-Frame-Options", "DENY")
	w.Header().Set("Content-Security-Policy", "default-src 'self'; style-src 'unsafe-inline'")
	w.Header().Set("Referrer-Policy", "no-referrer")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Content-Type", "text/html; charset=utf-8")

	q := r.URL.Query()
	code := q.Get("code")

	l.logger.Info("authorization callback received",
		slog.String("path", r.URL.Path),
		slog.Bool("has_code", code != ""),
	)

	if code != "" {
		w.WriteHeader(http.StatusOK)
		_ = resultPage.Execute(w, successData)
		l.resultCh <- result{code: code}

		return
	}

	data := failureData
	data.Error = q.Get("error")
	data.Description = q.Get("error_description")

	w.WriteHeader(http.StatusInternalServerError)
	_ = resultPage.Execute(w, data)

	l.resultCh <- result{err: missingCode(data.Error, data.Description)}
}

func missingCode(oauthErr, description string) error {
	if oauthErr == "" {
		return apperrors.ErrMissingCode
	}

	if description == "" {
		return fmt.Errorf("%w: hub returned %s", apperrors.ErrMissingCode, oauthErr)
	}

	return fmt.Errorf("%w: hub returned %s: %s", apperrors.ErrMissingCode, oauthErr, description)
}

// AwaitAuthorizationCode binds addr, hands authorizeURL to announce once
// the listener is ready, and blocks for the single redirect.
func AwaitAuthorizationCode(ctx context.Context, addr, authorizeURL string, announce func(string), logger *slog.Logger) (string, error) {
	l, err := Listen(addr, logger)
	if err != nil {
		return "", err
	}

	logger.Debug("callback listener ready", slog.String("addr", l.Addr()))

	if announce != nil {
		announce(authorizeURL)
	}

	return l.Await(ctx)
}
