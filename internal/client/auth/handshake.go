// Package auth holds the session credential and runs the OAuth popup
// handshake against the proxy.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"
)

// Message types posted by the proxy callback page.
const (
	MessageSuccess = "auth:success"
	MessageError   = "auth:error"
)

const (
	// DefaultPollInterval is how often the popup is checked for being closed.
	DefaultPollInterval = 500 * time.Millisecond
	// DefaultLoginTimeout bounds the whole handshake.
	DefaultLoginTimeout = 120 * time.Second
)

var (
	// ErrPopupBlocked means the login window could not be opened.
	ErrPopupBlocked = errors.New("login window could not be opened")
	// ErrPopupClosed means the user closed the login window before finishing.
	ErrPopupClosed = errors.New("login popup was closed before authentication completed")
	// ErrLoginTimeout means the handshake did not finish in time.
	ErrLoginTimeout = errors.New("login timed out, please try again")
)

// LoginError carries the error reported by the proxy.
type LoginError struct {
	Reason string
}

func (e *LoginError) Error() string { return "login failed: " + e.Reason }

// Message is one cross-window message as seen by the opener.
type Message struct {
	// Origin is the sender's scheme://host[:port].
	Origin      string
	Type        string
	AccessToken string
	Error       string
}

// Popup is an open login window.
type Popup interface {
	// Subscribe registers fn for incoming messages. The returned func
	// removes the subscription.
	Subscribe(fn func(Message)) (unsubscribe func())
	Closed() bool
	// Close releases the window and anything serving it. It is called once
	// on every exit from the handshake, including after the user closed
	// the window.
	Close()
}

// Opener opens a login window at url.
type Opener interface {
	Open(ctx context.Context, url string) (Popup, error)
}

// HandshakeConfig tunes the handshake. Zero values select the defaults.
type HandshakeConfig struct {
	PollInterval time.Duration
	Timeout      time.Duration
}

// PopupLogin runs the handshake against one proxy.
type PopupLogin struct {
	opener   Opener
	proxyURL string
	cfg      HandshakeConfig
}

// NewPopupLogin returns a PopupLogin for proxyURL.
func NewPopupLogin(opener Opener, proxyURL string, cfg HandshakeConfig) *PopupLogin {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultLoginTimeout
	}
	return &PopupLogin{opener: opener, proxyURL: strings.TrimRight(proxyURL, "/"), cfg: cfg}
}

// NormalizeOrigin reduces rawURL to scheme://host[:port], lower-cased and
// without a trailing slash.
func NormalizeOrigin(rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", fmt.Errorf("parse origin: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("origin %q has no scheme or host", rawURL)
	}
	return strings.ToLower(u.Scheme + "://" + u.Host), nil
}

type outcome struct {
	token string
	err   error
}

// settleGuard lets the first of several racing sources decide the outcome.
// Cleanup runs exactly once, before done is closed.
type settleGuard struct {
	once    sync.Once
	done    chan struct{}
	res     outcome
	cleanup []func()
}

func newSettleGuard() *settleGuard {
	return &settleGuard{done: make(chan struct{})}
}

// onCleanup must be called before any source can settle.
func (g *settleGuard) onCleanup(fn func()) {
	g.cleanup = append(g.cleanup, fn)
}

func (g *settleGuard) settle(r outcome) bool {
	won := false
	g.once.Do(func() {
		won = true
		g.res = r
		for _, fn := range g.cleanup {
			fn()
		}
		close(g.done)
	})
	return won
}

// Handshake opens the proxy login page and waits for the first of: a
// message from the proxy origin, the popup being closed, the timeout, or
// ctx ending. Messages from any other origin are ignored, as is anything
// arriving after the outcome is decided.
func (p *PopupLogin) Handshake(ctx context.Context) (string, error) {
	origin, err := NormalizeOrigin(p.proxyURL)
	if err != nil {
		return "", err
	}

	popup, err := p.opener.Open(ctx, p.proxyURL+"/auth/login")
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrPopupBlocked, err)
	}

	g := newSettleGuard()

	// The subscription may deliver before Subscribe returns, so the
	// unsubscribe func is handed over under a lock.
	var subMu sync.Mutex
	var unsubscribe func()
	released := false

	ticker := time.NewTicker(p.cfg.PollInterval)
	stopPoll := make(chan struct{})
	timer := time.NewTimer(p.cfg.Timeout)
	g.onCleanup(func() {
		subMu.Lock()
		defer subMu.Unlock()
		released = true
		if unsubscribe != nil {
			unsubscribe()
		}
	})
	g.onCleanup(ticker.Stop)
	g.onCleanup(func() { close(stopPoll) })
	g.onCleanup(func() { timer.Stop() })

	unsub := popup.Subscribe(func(m Message) {
		if strings.TrimSuffix(m.Origin, "/") != origin {
			return
		}
		switch m.Type {
		case MessageSuccess:
			if m.AccessToken == "" {
				g.settle(outcome{err: &LoginError{Reason: "empty access token"}})
				return
			}
			g.settle(outcome{token: m.AccessToken})
		case MessageError:
			g.settle(outcome{err: &LoginError{Reason: m.Error}})
		}
	})
	subMu.Lock()
	if released {
		unsub()
	} else {
		unsubscribe = unsub
	}
	subMu.Unlock()

	go func() {
		for {
			select {
			case <-stopPoll:
				return
			case <-ticker.C:
				if popup.Closed() {
					g.settle(outcome{err: ErrPopupClosed})
					return
				}
			}
		}
	}()

	go func() {
		select {
		case <-timer.C:
			g.settle(outcome{err: ErrLoginTimeout})
		case <-ctx.Done():
			g.settle(outcome{err: ctx.Err()})
		case <-g.done:
		}
	}()

	<-g.done
	popup.Close()
	return g.res.token, g.res.err
}
