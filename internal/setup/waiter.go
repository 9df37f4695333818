package setup

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/alexjbarnes/halcyon/internal/callback"
)

// BrowserWaiter is the CodeWaiter used by the CLI. It prints the
// authorize URL, optionally opens it, and waits on a local listener.
type BrowserWaiter struct {
	Addr        string
	Timeout     time.Duration
	OpenBrowser bool
	Out         io.Writer
	Logger      *slog.Logger
}

// AwaitCode implements CodeWaiter.
func (w *BrowserWaiter) AwaitCode(ctx context.Context, authorizeURL string) (string, error) {
	if w.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.Timeout)
		defer cancel()
	}

	announce := func(url string) {
		fmt.Fprintf(w.Out, "Please open the following URL to authorize this device:\n\n  %s\n\n", url)

		if w.OpenBrowser {
			if err := callback.OpenBrowser(url); err != nil {
				w.Logger.Warn("could not open browser", slog.String("error", err.Error()))
			}
		}
	}

	return callback.AwaitAuthorizationCode(ctx, w.Addr, authorizeURL, announce, w.Logger)
}
