package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/pkg/browser"
	"go.uber.org/zap"

	"github.com/atinyakov/ato/internal/logger"
)

// DefaultLoopbackAddr is where the opener page is served. The proxy's
// allowed origin must be http://<this address>.
const DefaultLoopbackAddr = "127.0.0.1:8765"

// shutdownGrace leaves the page time to see that the popup should close.
const shutdownGrace = 2 * time.Second

var openerPage = template.Must(template.New("opener").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>ato login</title></head>
<body>
<p id="status">Waiting for GitHub login in the popup window...</p>
<script>
(function () {
  var base = {{.Base}};
  var popup = window.open({{.LoginURL}}, "ato-login", "width=600,height=700");
  function post(path, body) {
    return fetch(base + path, {method: "POST", headers: {"Content-Type": "application/json"}, body: JSON.stringify(body || {})});
  }
  if (!popup) {
    document.getElementById("status").textContent = "Popup blocked. Allow popups for this page and retry.";
    post("/closed");
    return;
  }
  window.addEventListener("message", function (event) {
    post("/message", {origin: event.origin, data: event.data});
  });
  var timer = setInterval(function () {
    if (popup.closed) {
      post("/closed");
      clearInterval(timer);
      return;
    }
    fetch(base + "/state").then(function (r) { return r.json(); }).then(function (s) {
      if (s.close) {
        popup.close();
        clearInterval(timer);
        document.getElementById("status").textContent = "Done. You can close this tab.";
      }
    });
  }, {{.PollMillis}});
})();
</script>
</body>
</html>
`))

// LoopbackConfig configures a LoopbackOpener.
type LoopbackConfig struct {
	// Addr is the listen address, DefaultLoopbackAddr when empty.
	Addr         string
	PollInterval time.Duration
	Logger       *zap.Logger
	// OpenBrowser opens a URL in the user's browser; pkg/browser by default.
	OpenBrowser func(url string) error
}

// LoopbackOpener serves a small page on the loopback interface. The page
// opens the login popup in the system browser and relays its messages and
// closed state back over HTTP.
type LoopbackOpener struct {
	cfg LoopbackConfig
	log *zap.Logger
}

// NewLoopbackOpener returns a LoopbackOpener.
func NewLoopbackOpener(cfg LoopbackConfig) *LoopbackOpener {
	if cfg.Addr == "" {
		cfg.Addr = DefaultLoopbackAddr
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.OpenBrowser == nil {
		cfg.OpenBrowser = browser.OpenURL
	}
	return &LoopbackOpener{cfg: cfg, log: logger.OrNop(cfg.Logger).Named("loopback")}
}

// Open starts the relay server and points the browser at it.
func (o *LoopbackOpener) Open(ctx context.Context, loginURL string) (Popup, error) {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", o.cfg.Addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", o.cfg.Addr, err)
	}

	p := &loopbackPopup{
		id:       uuid.NewString(),
		loginURL: loginURL,
		poll:     o.cfg.PollInterval,
		subs:     map[int]func(Message){},
		log:      o.log,
	}
	p.srv = &http.Server{Handler: p.routes(), ReadHeaderTimeout: 5 * time.Second}
	p.base = "http://" + ln.Addr().String() + "/" + p.id

	go func() {
		if err := p.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			o.log.Warn("loopback server stopped", zap.Error(err))
		}
	}()

	if err := o.cfg.OpenBrowser(p.base); err != nil {
		_ = p.srv.Close()
		return nil, err
	}
	o.log.Info("waiting for browser login", zap.String("url", p.base))
	return p, nil
}

type loopbackPopup struct {
	id       string
	base     string
	loginURL string
	poll     time.Duration
	srv      *http.Server
	log      *zap.Logger

	mu        sync.Mutex
	subs      map[int]func(Message)
	nextSub   int
	closed    bool
	closeSent bool
	released  bool
}

type relayedMessage struct {
	Origin string `json:"origin"`
	Data   struct {
		Type        string `json:"type"`
		AccessToken string `json:"accessToken"`
		Error       string `json:"error"`
	} `json:"data"`
}

func (p *loopbackPopup) routes() http.Handler {
	r := chi.NewRouter()
	r.Route("/"+p.id, func(r chi.Router) {
		r.Get("/", p.page)
		r.Get("/state", p.state)
		r.Post("/message", p.message)
		r.Post("/closed", p.markClosed)
	})
	return r
}

func (p *loopbackPopup) page(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	_ = openerPage.Execute(w, map[string]any{
		"Base":       p.base,
		"LoginURL":   p.loginURL,
		"PollMillis": p.poll.Milliseconds(),
	})
}

func (p *loopbackPopup) state(w http.ResponseWriter, _ *http.Request) {
	p.mu.Lock()
	closeReq := p.closeSent
	p.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]bool{"close": closeReq})
}

func (p *loopbackPopup) message(w http.ResponseWriter, r *http.Request) {
	var m relayedMessage
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&m); err != nil {
		http.Error(w, "invalid message", http.StatusBadRequest)
		return
	}

	p.mu.Lock()
	subs := make([]func(Message), 0, len(p.subs))
	for _, fn := range p.subs {
		subs = append(subs, fn)
	}
	p.mu.Unlock()

	msg := Message{Origin: m.Origin, Type: m.Data.Type, AccessToken: m.Data.AccessToken, Error: m.Data.Error}
	for _, fn := range subs {
		fn(msg)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (p *loopbackPopup) markClosed(w http.ResponseWriter, _ *http.Request) {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

func (p *loopbackPopup) Subscribe(fn func(Message)) func() {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := p.nextSub
	p.nextSub++
	p.subs[id] = fn
	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		delete(p.subs, id)
	}
}

func (p *loopbackPopup) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// Close stops the relay server. If the popup is still open the page is
// first asked to close it, and the server stays up for shutdownGrace so
// the page can see the request. Close may run inside a relay handler, so
// the shutdown never happens on the caller's goroutine.
func (p *loopbackPopup) Close() {
	p.mu.Lock()
	if p.released {
		p.mu.Unlock()
		return
	}
	p.released = true
	grace := time.Duration(0)
	if !p.closed {
		p.closeSent = true
		grace = shutdownGrace
	}
	p.mu.Unlock()

	time.AfterFunc(grace, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if err := p.srv.Shutdown(ctx); err != nil {
			p.log.Debug("loopback shutdown", zap.Error(err))
		}
	})
}
