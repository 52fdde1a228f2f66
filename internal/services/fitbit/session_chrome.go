package fitbit

import (
	"context"
	"fmt"
	"strings"

	"github.com/chromedp/cdproto/inspector"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/bloom/internal/interfaces"
)

// ChromeSession opens the consent page in a visible Chrome window and captures the
// first request made to the redirect URI. Nothing needs to listen on the redirect URI.
type ChromeSession struct {
	execPath string
	logger   arbor.ILogger
}

var _ interfaces.AuthSession = (*ChromeSession)(nil)

// NewChromeSession creates a ChromeSession. execPath may be empty to let chromedp find Chrome.
func NewChromeSession(execPath string, logger arbor.ILogger) *ChromeSession {
	return &ChromeSession{execPath: execPath, logger: logger}
}

// Open blocks until the redirect is captured, the window is closed, or ctx ends
func (s *ChromeSession) Open(ctx context.Context, authURL string, redirectURI string) (string, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", false),
		chromedp.Flag("disable-gpu", false),
		chromedp.WindowSize(900, 800),
	)
	if s.execPath != "" {
		opts = append(opts, chromedp.ExecPath(s.execPath))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	defer allocCancel()

	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	defer browserCancel()

	callback := make(chan string, 1)
	closed := make(chan struct{}, 1)

	chromedp.ListenTarget(browserCtx, func(ev interface{}) {
		switch ev := ev.(type) {
		case *network.EventRequestWillBeSent:
			if ev.Request != nil && strings.HasPrefix(ev.Request.URL, redirectURI) {
				select {
				case callback <- ev.Request.URL:
				default:
				}
			}
		case *inspector.EventDetached, *target.EventTargetCrashed:
			select {
			case closed <- struct{}{}:
			default:
			}
		}
	})

	if err := chromedp.Run(browserCtx, network.Enable(), chromedp.Navigate(authURL)); err != nil {
		// The redirect URI usually has no listener, so navigation to it may error after capture
		select {
		case u := <-callback:
			return u, nil
		default:
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("failed to open consent page: %w", err)
	}

	s.logger.Info().Msg("Fitbit consent page opened in Chrome")

	select {
	case u := <-callback:
		return u, nil
	case <-closed:
		return "", interfaces.ErrConsentCancelled
	case <-browserCtx.Done():
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", interfaces.ErrConsentCancelled
	}
}
