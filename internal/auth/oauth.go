package auth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/pkg/browser"
)

// OAuthTimeout is the maximum time to wait for the browser to come back.
const OAuthTimeout = 5 * time.Minute

// OAuthResult is the token pair handed back by the server's OAuth redirect.
type OAuthResult struct {
	AccessToken  string
	RefreshToken string
}

// OAuthFlow drives a browser login. The server redirects to FromURL with
// accessToken and refreshToken query parameters once the provider is done.
type OAuthFlow struct {
	// AuthURL builds the server's provider URL for a given return address.
	AuthURL func(fromURL string) string

	// Addr is the listen address of the callback server; defaults to an
	// ephemeral port on 127.0.0.1.
	Addr string

	// Open launches the browser; defaults to browser.OpenURL.
	Open func(url string) error

	// Out receives the fallback instructions; defaults to io.Discard.
	Out io.Writer

	Timeout time.Duration
}

// Run starts the callback server, opens the browser and waits for tokens.
func (f OAuthFlow) Run(ctx context.Context) (*OAuthResult, error) {
	if f.AuthURL == nil {
		return nil, errors.New("oauth: no authorization URL")
	}
	addr := f.Addr
	if addr == "" {
		addr = "127.0.0.1:0"
	}
	open := f.Open
	if open == nil {
		open = browser.OpenURL
	}
	out := f.Out
	if out == nil {
		out = io.Discard
	}
	timeout := f.Timeout
	if timeout <= 0 {
		timeout = OAuthTimeout
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to start callback server: %w", err)
	}

	resultChan := make(chan *OAuthResult, 1)
	errChan := make(chan error, 1)
	server := callbackServer(resultChan, errChan)
	go func() {
		if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
			sendErr(errChan, fmt.Errorf("callback server error: %w", err))
		}
	}()
	defer func() { _ = server.Close() }()

	callback := fmt.Sprintf("http://%s/callback", listener.Addr().String())
	authURL := f.AuthURL(callback)

	_, _ = fmt.Fprintf(out, "If browser doesn't open, visit: %s\n", authURL)
	if err := open(authURL); err != nil {
		_, _ = fmt.Fprintln(out, "Could not open browser automatically. Please visit the URL above.")
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	select {
	case res := <-resultChan:
		return res, nil
	case err := <-errChan:
		return nil, err
	case <-timeoutCtx.Done():
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("OAuth flow timed out after %v", timeout)
	}
}

func sendErr(ch chan<- error, err error) {
	select {
	case ch <- err:
	default:
	}
}

// callbackServer receives the server's redirect after the provider login.
func callbackServer(resultChan chan<- *OAuthResult, errChan chan<- error) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/callback", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		w.Header().Set("Content-Type", "text/html")

		if msg := q.Get("error"); msg != "" {
			sendErr(errChan, fmt.Errorf("OAuth error: %s", msg))
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(htmlError(fmt.Sprintf("Authentication failed: %s", msg))))
			return
		}

		access := q.Get("accessToken")
		if access == "" {
			sendErr(errChan, errors.New("no access token in callback"))
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(htmlError("Authentication failed: no access token")))
			return
		}

		select {
		case resultChan <- &OAuthResult{AccessToken: access, RefreshToken: q.Get("refreshToken")}:
		default:
		}
		_, _ = w.Write([]byte(htmlSuccess()))
	})
	return &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
}

// HTML templates for callback responses
func htmlSuccess() string {
	return `<!DOCTYPE html>
<html>
<head>
    <title>Authentication Successful</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, sans-serif;
               display: flex; justify-content: center; align-items: center; height: 100vh;
               margin: 0; background: #1a1a2e; color: #eee; }
        .container { text-align: center; padding: 40px; }
        .icon { font-size: 64px; margin-bottom: 20px; }
        h1 { color: #4ade80; margin-bottom: 10px; }
        p { color: #888; }
    </style>
</head>
<body>
    <div class="container">
        <div class="icon">✓</div>
        <h1>Authentication Successful</h1>
        <p>You can close this window and return to the terminal.</p>
    </div>
</body>
</html>`
}

func htmlError(message string) string {
	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<head>
    <title>Authentication Failed</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, sans-serif;
               display: flex; justify-content: center; align-items: center; height: 100vh;
               margin: 0; background: #1a1a2e; color: #eee; }
        .container { text-align: center; padding: 40px; }
        .icon { font-size: 64px; margin-bottom: 20px; }
        h1 { color: #f87171; margin-bottom: 10px; }
        p { color: #888; }
    </style>
</head>
<body>
    <div class="container">
        <div class="icon">✗</div>
        <h1>Authentication Failed</h1>
        <p>%s</p>
    </div>
</body>
</html>`, message)
}
