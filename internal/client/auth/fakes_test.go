package auth

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/atinyakov/ato/internal/models"
)

type fakePopup struct {
	mu     sync.Mutex
	subs   map[int]func(Message)
	next   int
	closed atomic.Bool
	closes atomic.Int32
	onSub  func(p *fakePopup)
}

func newFakePopup() *fakePopup {
	return &fakePopup{subs: map[int]func(Message){}}
}

func (p *fakePopup) Subscribe(fn func(Message)) func() {
	p.mu.Lock()
	id := p.next
	p.next++
	p.subs[id] = fn
	onSub := p.onSub
	p.mu.Unlock()
	if onSub != nil {
		onSub(p)
	}
	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		delete(p.subs, id)
	}
}

func (p *fakePopup) deliver(m Message) {
	p.mu.Lock()
	subs := make([]func(Message), 0, len(p.subs))
	for _, fn := range p.subs {
		subs = append(subs, fn)
	}
	p.mu.Unlock()
	for _, fn := range subs {
		fn(m)
	}
}

func (p *fakePopup) subscribers() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.subs)
}

func (p *fakePopup) Closed() bool { return p.closed.Load() }

func (p *fakePopup) Close() {
	p.closes.Add(1)
	p.closed.Store(true)
}

type fakeOpener struct {
	popup *fakePopup
	err   error
	url   string
}

func (o *fakeOpener) Open(_ context.Context, url string) (Popup, error) {
	o.url = url
	if o.err != nil {
		return nil, o.err
	}
	return o.popup, nil
}

type memCreds struct {
	mu      sync.Mutex
	token   string
	user    *models.User
	repo    bool
	cleared int
}

func (c *memCreds) Token(context.Context) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token
}

func (c *memCreds) SetToken(_ context.Context, token string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
	return nil
}

func (c *memCreds) SetUser(_ context.Context, u models.User) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.user = &u
	return nil
}

func (c *memCreds) ClearSession(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token, c.user, c.repo = "", nil, false
	c.cleared++
	return nil
}

func (c *memCreds) snapshot() (string, *models.User) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token, c.user
}

// scriptedProfile returns errs in order, then the user.
type scriptedProfile struct {
	mu    sync.Mutex
	errs  []error
	user  models.User
	calls int
	// onCall runs before each attempt, outside the lock.
	onCall func(n int)
}

func (p *scriptedProfile) CurrentUser(context.Context) (models.User, error) {
	p.mu.Lock()
	n := p.calls
	p.calls++
	var err error
	if n < len(p.errs) {
		err = p.errs[n]
	}
	onCall := p.onCall
	p.mu.Unlock()
	if onCall != nil {
		onCall(n)
	}
	if err != nil {
		return models.User{}, err
	}
	return p.user, nil
}

func (p *scriptedProfile) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

type fakeHandshaker struct {
	token string
	err   error
}

func (h fakeHandshaker) Handshake(context.Context) (string, error) { return h.token, h.err }
