package fitbit

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/bloom/internal/interfaces"
)

const callbackPage = `<!DOCTYPE html>
<html><head><title>Bloom</title></head>
<body><p>Fitbit authorization received. You can close this window.</p></body></html>`

// LoopbackSession listens on the redirect URI's host and waits for the provider to
// redirect the user's own browser back to it. The consent URL is logged and also
// exposed through the linker's pending URL.
type LoopbackSession struct {
	logger arbor.ILogger
	ready  func(addr string)
}

var _ interfaces.AuthSession = (*LoopbackSession)(nil)

func NewLoopbackSession(logger arbor.ILogger) *LoopbackSession {
	return &LoopbackSession{logger: logger}
}

// Open serves the redirect path until one request arrives or ctx ends
func (s *LoopbackSession) Open(ctx context.Context, authURL string, redirectURI string) (string, error) {
	redirect, err := url.Parse(redirectURI)
	if err != nil || redirect.Host == "" {
		return "", fmt.Errorf("invalid redirect URI %q", redirectURI)
	}
	if redirect.Scheme != "http" {
		return "", fmt.Errorf("loopback session requires an http redirect URI, got %q", redirect.Scheme)
	}

	listener, err := net.Listen("tcp", redirect.Host)
	if err != nil {
		return "", fmt.Errorf("failed to listen on %s: %w", redirect.Host, err)
	}

	path := redirect.Path
	if path == "" {
		path = "/"
	}

	callback := make(chan string, 1)
	mux := http.NewServeMux()
	mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(callbackPage))
		select {
		case callback <- redirect.Scheme + "://" + redirect.Host + r.URL.RequestURI():
		default:
		}
	})

	server := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	if s.ready != nil {
		s.ready(listener.Addr().String())
	}

	s.logger.Info().
		Str("listen", listener.Addr().String()).
		Str("auth_url", authURL).
		Msg("Open the Fitbit consent URL in a browser to link the account")

	select {
	case u := <-callback:
		return u, nil
	case err := <-serveErr:
		return "", fmt.Errorf("callback listener failed: %w", err)
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
