package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testProxy = "https://Proxy.Example.com/"

func newTestLogin(o Opener, timeout time.Duration) *PopupLogin {
	return NewPopupLogin(o, testProxy, HandshakeConfig{PollInterval: 5 * time.Millisecond, Timeout: timeout})
}

func runHandshake(t *testing.T, l *PopupLogin, ctx context.Context) (<-chan string, <-chan error) {
	t.Helper()
	tokens := make(chan string, 1)
	errs := make(chan error, 1)
	go func() {
		tok, err := l.Handshake(ctx)
		tokens <- tok
		errs <- err
	}()
	return tokens, errs
}

func waitSubscribed(t *testing.T, p *fakePopup) {
	t.Helper()
	require.Eventually(t, func() bool { return p.subscribers() > 0 }, time.Second, time.Millisecond)
}

func TestNormalizeOrigin(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "https://proxy.example.com", want: "https://proxy.example.com"},
		{in: "https://Proxy.Example.com/", want: "https://proxy.example.com"},
		{in: "http://127.0.0.1:8080/auth/login", want: "http://127.0.0.1:8080"},
		{in: "proxy.example.com", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := NormalizeOrigin(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestHandshake_Success(t *testing.T) {
	p := newFakePopup()
	o := &fakeOpener{popup: p}
	tokens, errs := runHandshake(t, newTestLogin(o, time.Second), context.Background())

	waitSubscribed(t, p)
	p.deliver(Message{Origin: "https://proxy.example.com", Type: MessageSuccess, AccessToken: "gho_abc"})

	assert.Equal(t, "gho_abc", <-tokens)
	assert.NoError(t, <-errs)
	assert.Equal(t, "https://Proxy.Example.com/auth/login", o.url)
	assert.Equal(t, int32(1), p.closes.Load())
	assert.Zero(t, p.subscribers())
}

func TestHandshake_ErrorMessage(t *testing.T) {
	p := newFakePopup()
	tokens, errs := runHandshake(t, newTestLogin(&fakeOpener{popup: p}, time.Second), context.Background())

	waitSubscribed(t, p)
	p.deliver(Message{Origin: "https://proxy.example.com", Type: MessageError, Error: "access_denied"})

	assert.Empty(t, <-tokens)
	var le *LoginError
	require.ErrorAs(t, <-errs, &le)
	assert.Equal(t, "access_denied", le.Reason)
	assert.True(t, p.Closed())
}

func TestHandshake_EmptyTokenIsError(t *testing.T) {
	p := newFakePopup()
	_, errs := runHandshake(t, newTestLogin(&fakeOpener{popup: p}, time.Second), context.Background())

	waitSubscribed(t, p)
	p.deliver(Message{Origin: "https://proxy.example.com", Type: MessageSuccess})

	var le *LoginError
	assert.ErrorAs(t, <-errs, &le)
}

func TestHandshake_IgnoresForeignOriginsAndUnknownTypes(t *testing.T) {
	p := newFakePopup()
	tokens, errs := runHandshake(t, newTestLogin(&fakeOpener{popup: p}, time.Second), context.Background())

	waitSubscribed(t, p)
	p.deliver(Message{Origin: "https://evil.example.com", Type: MessageSuccess, AccessToken: "stolen"})
	p.deliver(Message{Origin: "https://proxy.example.com", Type: "something:else"})
	p.deliver(Message{Origin: "https://proxy.example.com/", Type: MessageSuccess, AccessToken: "real"})

	assert.Equal(t, "real", <-tokens)
	assert.NoError(t, <-errs)
}

func TestHandshake_PopupClosedByUser(t *testing.T) {
	p := newFakePopup()
	_, errs := runHandshake(t, newTestLogin(&fakeOpener{popup: p}, time.Second), context.Background())

	waitSubscribed(t, p)
	p.closed.Store(true)

	assert.ErrorIs(t, <-errs, ErrPopupClosed)
	// Released even though the user closed it.
	assert.Equal(t, int32(1), p.closes.Load())
}

func TestHandshake_Timeout(t *testing.T) {
	p := newFakePopup()
	_, errs := runHandshake(t, newTestLogin(&fakeOpener{popup: p}, 30*time.Millisecond), context.Background())

	assert.ErrorIs(t, <-errs, ErrLoginTimeout)
	assert.Equal(t, int32(1), p.closes.Load())
}

func TestHandshake_ContextCanceled(t *testing.T) {
	p := newFakePopup()
	ctx, cancel := context.WithCancel(context.Background())
	_, errs := runHandshake(t, newTestLogin(&fakeOpener{popup: p}, time.Second), ctx)

	waitSubscribed(t, p)
	cancel()

	assert.ErrorIs(t, <-errs, context.Canceled)
	assert.True(t, p.Closed())
}

func TestHandshake_LateMessagesIgnored(t *testing.T) {
	p := newFakePopup()
	tokens, errs := runHandshake(t, newTestLogin(&fakeOpener{popup: p}, time.Second), context.Background())

	waitSubscribed(t, p)
	p.deliver(Message{Origin: "https://proxy.example.com", Type: MessageSuccess, AccessToken: "first"})
	assert.Equal(t, "first", <-tokens)
	require.NoError(t, <-errs)

	// Unsubscribed; nothing panics and nothing changes.
	p.deliver(Message{Origin: "https://proxy.example.com", Type: MessageError, Error: "late"})
	assert.Zero(t, p.subscribers())
}

func TestHandshake_MessageDuringSubscribe(t *testing.T) {
	p := newFakePopup()
	p.onSub = func(p *fakePopup) {
		p.deliver(Message{Origin: "https://proxy.example.com", Type: MessageSuccess, AccessToken: "sync"})
	}

	tok, err := newTestLogin(&fakeOpener{popup: p}, time.Second).Handshake(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "sync", tok)
	assert.Zero(t, p.subscribers())
}

func TestHandshake_OpenFails(t *testing.T) {
	_, err := newTestLogin(&fakeOpener{err: errors.New("no display")}, time.Second).Handshake(context.Background())
	assert.ErrorIs(t, err, ErrPopupBlocked)
}
