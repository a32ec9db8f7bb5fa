// Package http provides the OAuth proxy's HTTP handlers: the login
// redirect, the callback that hands the token to the opener window, and
// a health check.
package http

import (
	"context"
	"crypto/subtle"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/atinyakov/ato/internal/logger"
)

const (
	// StateCookie holds the anti-forgery state between login and callback.
	StateCookie = "oauth_state"
	// stateMaxAge is the state cookie lifetime in seconds.
	stateMaxAge = 600

	// Message types posted to the opener window.
	messageSuccess = "auth:success"
	messageError   = "auth:error"

	// Error codes posted on failure.
	errMissingParams       = "missing_params"
	errInvalidState        = "invalid_state"
	errTokenExchangeFailed = "token_exchange_failed"

	callbackCSP = "default-src 'none'; script-src 'unsafe-inline'"
)

// OAuthService defines the upstream OAuth operations required by the handlers.
type OAuthService interface {
	// AuthCodeURL returns the upstream authorize URL carrying state.
	AuthCodeURL(state string) string
	// Exchange trades an authorization code for an access token.
	Exchange(ctx context.Context, code string) (string, error)
}

// AuthHandler handles the OAuth login flow.
type AuthHandler struct {
	// OAuth performs the upstream OAuth operations.
	OAuth OAuthService
	// AllowedOrigin is the only origin the callback posts the token to.
	AllowedOrigin string
	Logger        *zap.Logger
	// NewState generates state values; uuid.NewString when nil.
	NewState func() string
}

// Login sets a fresh state cookie and redirects to the upstream authorize URL.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	newState := h.NewState
	if newState == nil {
		newState = uuid.NewString
	}
	state := newState()

	http.SetCookie(w, stateCookie(state, stateMaxAge))
	w.Header().Set("Cache-Control", "no-store")
	http.Redirect(w, r, h.OAuth.AuthCodeURL(state), http.StatusFound)
}

// Callback validates the state, exchanges the code and responds with a page
// that posts the outcome to the opener window and closes itself. The state
// cookie is cleared on every response.
func (h *AuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, stateCookie("", -1))

	code := r.URL.Query().Get("code")
	state := r.URL.Query().Get("state")
	if code == "" || state == "" {
		h.respond(w, http.StatusBadRequest, messageError, errMissingParams)
		return
	}

	c, err := r.Cookie(StateCookie)
	if err != nil || c.Value == "" || subtle.ConstantTimeCompare([]byte(c.Value), []byte(state)) != 1 {
		h.respond(w, http.StatusBadRequest, messageError, errInvalidState)
		return
	}

	token, err := h.OAuth.Exchange(r.Context(), code)
	if err != nil || token == "" {
		logger.OrNop(h.Logger).Warn("token exchange failed", zap.Error(err))
		h.respond(w, http.StatusBadGateway, messageError, errTokenExchangeFailed)
		return
	}

	h.respond(w, http.StatusOK, messageSuccess, token)
}

// Health reports liveness.
func (h *AuthHandler) Health(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("OK"))
}

func stateCookie(value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     StateCookie,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
	}
}

// respond writes the callback page. For success, detail is the access
// token; for errors, the error code.
func (h *AuthHandler) respond(w http.ResponseWriter, status int, typ, detail string) {
	field := "error"
	if typ == messageSuccess {
		field = "accessToken"
	}

	hdr := w.Header()
	hdr.Set("Content-Type", "text/html; charset=utf-8")
	hdr.Set("Content-Security-Policy", callbackCSP)
	hdr.Set("Cache-Control", "no-store")
	w.WriteHeader(status)

	_, _ = fmt.Fprintf(w, callbackPage,
		escapeScriptString(h.AllowedOrigin),
		escapeScriptString(typ),
		field,
		escapeScriptString(detail),
	)
}

const callbackPage = `<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>ato login</title></head>
<body>
<p>Signing in... you can close this window.</p>
<script>
(function () {
  var origin = "%s";
  var message = {type: "%s", %s: "%s"};
  if (window.opener) {
    window.opener.postMessage(message, origin);
  }
  window.close();
})();
</script>
</body>
</html>
`

var scriptStringReplacer = strings.NewReplacer(
	`\`, `\\`,
	`"`, `\"`,
	`<`, `\u003c`,
	"\n", `\n`,
	"\r", `\r`,
	"\u2028", `\u2028`,
	"\u2029", `\u2029`,
)

// escapeScriptString makes s safe inside a double-quoted string literal
// in an inline script. Escaping < neutralizes </script>.
func escapeScriptString(s string) string {
	return scriptStringReplacer.Replace(s)
}
