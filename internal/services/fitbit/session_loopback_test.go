package fitbit

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
)

func TestLoopbackSession_CapturesCallback(t *testing.T) {
	session := NewLoopbackSession(arbor.NewLogger())

	bodyCh := make(chan string, 1)
	session.ready = func(addr string) {
		go func() {
			resp, err := http.Get("http://" + addr + "/fitbit/callback?code=CODE&state=STATE")
			if err != nil {
				return
			}
			defer resp.Body.Close()
			b, _ := io.ReadAll(resp.Body)
			bodyCh <- string(b)
		}()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	callback, err := session.Open(ctx, "https://example.test/authorize", "http://127.0.0.1:0/fitbit/callback")
	require.NoError(t, err)

	u, err := url.Parse(callback)
	require.NoError(t, err)
	assert.Equal(t, "/fitbit/callback", u.Path)
	assert.Equal(t, "CODE", u.Query().Get("code"))
	assert.Equal(t, "STATE", u.Query().Get("state"))
	select {
	case body := <-bodyCh:
		assert.Contains(t, body, "You can close this window")
	case <-time.After(2 * time.Second):
		t.Fatal("callback page was not served")
	}
}

func TestLoopbackSession_ContextEnds(t *testing.T) {
	session := NewLoopbackSession(arbor.NewLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := session.Open(ctx, "https://example.test/authorize", "http://127.0.0.1:0/fitbit/callback")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestLoopbackSession_RejectsRedirectURI(t *testing.T) {
	session := NewLoopbackSession(arbor.NewLogger())

	_, err := session.Open(context.Background(), "https://example.test/authorize", "https://127.0.0.1:8765/cb")
	assert.Error(t, err)

	_, err = session.Open(context.Background(), "https://example.test/authorize", "not a url")
	assert.Error(t, err)
}
