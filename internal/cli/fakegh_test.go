package cli

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
)

const (
	testToken = "tok-test"
	testOwner = "alice"
	testRepo  = "ato-datastore"
)

var seededAt = time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC)

type fakeIssue struct {
	Number    int64      `json:"number"`
	Title     string     `json:"title"`
	Body      *string    `json:"body"`
	State     string     `json:"state"`
	Labels    []fakeName `json:"labels"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	ClosedAt  *time.Time `json:"closed_at"`
	HTMLURL   string     `json:"html_url"`
}

type fakeName struct {
	Name string `json:"name"`
}

// fakeGitHub is a just-enough GitHub API for one user and one repository.
// It also answers the proxy health check, so one server stands in for both.
type fakeGitHub struct {
	srv *httptest.Server

	mu         sync.Mutex
	tokens     map[string]bool
	repoExists bool
	issues     map[int64]*fakeIssue
	next       int64
	labels     []string
	// dropPatches closes the connection on PATCH, as a dead network would.
	dropPatches bool
}

func newFakeGitHub(t *testing.T) *fakeGitHub {
	t.Helper()
	gh := &fakeGitHub{
		tokens:     map[string]bool{testToken: true},
		repoExists: true,
		issues:     map[int64]*fakeIssue{},
		next:       1,
		labels:     []string{"work"},
	}

	r := chi.NewRouter()
	r.Get("/auth/health", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("OK"))
	})
	r.Group(func(r chi.Router) {
		r.Use(gh.requireToken)
		r.Get("/user", func(w http.ResponseWriter, _ *http.Request) {
			writeFakeJSON(w, http.StatusOK, map[string]any{"login": testOwner, "id": 1})
		})
		r.Post("/user/repos", gh.createRepo)
		r.Get("/search/issues", gh.search)
		r.Route("/repos/"+testOwner+"/"+testRepo, func(r chi.Router) {
			r.Get("/", gh.getRepo)
			r.Get("/issues", gh.listIssues)
			r.Post("/issues", gh.createIssue)
			r.Get("/issues/{number}", gh.getIssue)
			r.Patch("/issues/{number}", gh.patchIssue)
			r.Get("/labels", gh.listLabels)
		})
	})

	gh.srv = httptest.NewServer(r)
	t.Cleanup(gh.srv.Close)
	return gh
}

func writeFakeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (gh *fakeGitHub) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		gh.mu.Lock()
		ok := gh.tokens[token]
		gh.mu.Unlock()
		if !ok {
			writeFakeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Bad credentials"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (gh *fakeGitHub) seed(title, state string, labels ...string) int64 {
	gh.mu.Lock()
	defer gh.mu.Unlock()
	n := gh.next
	gh.next++
	body := ""
	is := &fakeIssue{
		Number:    n,
		Title:     title,
		Body:      &body,
		State:     state,
		Labels:    []fakeName{},
		CreatedAt: seededAt,
		UpdatedAt: seededAt,
		HTMLURL:   "https://github.com/" + testOwner + "/" + testRepo + "/issues/" + strconv.FormatInt(n, 10),
	}
	for _, l := range labels {
		is.Labels = append(is.Labels, fakeName{l})
	}
	gh.issues[n] = is
	return n
}

func (gh *fakeGitHub) issue(n int64) fakeIssue {
	gh.mu.Lock()
	defer gh.mu.Unlock()
	if is, ok := gh.issues[n]; ok {
		return *is
	}
	return fakeIssue{}
}

func (gh *fakeGitHub) setDropPatches(v bool) {
	gh.mu.Lock()
	defer gh.mu.Unlock()
	gh.dropPatches = v
}

func (gh *fakeGitHub) getRepo(w http.ResponseWriter, _ *http.Request) {
	gh.mu.Lock()
	exists := gh.repoExists
	gh.mu.Unlock()
	if !exists {
		writeFakeJSON(w, http.StatusNotFound, map[string]string{"message": "Not Found"})
		return
	}
	writeFakeJSON(w, http.StatusOK, map[string]any{"full_name": testOwner + "/" + testRepo})
}

func (gh *fakeGitHub) createRepo(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name    string `json:"name"`
		Private bool   `json:"private"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)
	if body.Name != testRepo || !body.Private {
		writeFakeJSON(w, http.StatusUnprocessableEntity, map[string]string{"message": "unexpected repository"})
		return
	}
	gh.mu.Lock()
	gh.repoExists = true
	gh.mu.Unlock()
	writeFakeJSON(w, http.StatusCreated, map[string]any{"full_name": testOwner + "/" + testRepo})
}

func (gh *fakeGitHub) sorted(keep func(*fakeIssue) bool) []fakeIssue {
	gh.mu.Lock()
	defer gh.mu.Unlock()
	out := []fakeIssue{}
	for _, is := range gh.issues {
		if keep(is) {
			out = append(out, *is)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number > out[j].Number })
	return out
}

func (gh *fakeGitHub) listIssues(w http.ResponseWriter, r *http.Request) {
	state := r.URL.Query().Get("state")
	writeFakeJSON(w, http.StatusOK, gh.sorted(func(is *fakeIssue) bool { return is.State == state }))
}

func (gh *fakeGitHub) createIssue(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Title  string   `json:"title"`
		Body   string   `json:"body"`
		Labels []string `json:"labels"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeFakeJSON(w, http.StatusBadRequest, map[string]string{"message": "bad body"})
		return
	}
	n := gh.seed(body.Title, "open", body.Labels...)
	gh.mu.Lock()
	gh.issues[n].Body = &body.Body
	is := *gh.issues[n]
	gh.mu.Unlock()
	writeFakeJSON(w, http.StatusCreated, is)
}

func (gh *fakeGitHub) number(w http.ResponseWriter, r *http.Request) (*fakeIssue, bool) {
	n, _ := strconv.ParseInt(chi.URLParam(r, "number"), 10, 64)
	is, ok := gh.issues[n]
	if !ok {
		writeFakeJSON(w, http.StatusNotFound, map[string]string{"message": "Not Found"})
	}
	return is, ok
}

func (gh *fakeGitHub) getIssue(w http.ResponseWriter, r *http.Request) {
	gh.mu.Lock()
	defer gh.mu.Unlock()
	if is, ok := gh.number(w, r); ok {
		writeFakeJSON(w, http.StatusOK, is)
	}
}

func (gh *fakeGitHub) patchIssue(w http.ResponseWriter, r *http.Request) {
	gh.mu.Lock()
	defer gh.mu.Unlock()

	if gh.dropPatches {
		if hj, ok := w.(http.Hijacker); ok {
			if conn, _, err := hj.Hijack(); err == nil {
				_ = conn.Close()
				return
			}
		}
	}

	is, ok := gh.number(w, r)
	if !ok {
		return
	}
	var body struct {
		Title  *string   `json:"title"`
		Body   *string   `json:"body"`
		State  *string   `json:"state"`
		Labels *[]string `json:"labels"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeFakeJSON(w, http.StatusBadRequest, map[string]string{"message": "bad body"})
		return
	}
	now := time.Now().UTC()
	if body.Title != nil {
		is.Title = *body.Title
	}
	if body.Body != nil {
		is.Body = body.Body
	}
	if body.State != nil {
		is.State = *body.State
		is.ClosedAt = nil
		if is.State == "closed" {
			is.ClosedAt = &now
		}
	}
	if body.Labels != nil {
		is.Labels = []fakeName{}
		for _, l := range *body.Labels {
			is.Labels = append(is.Labels, fakeName{l})
		}
	}
	is.UpdatedAt = now
	writeFakeJSON(w, http.StatusOK, is)
}

func (gh *fakeGitHub) listLabels(w http.ResponseWriter, _ *http.Request) {
	gh.mu.Lock()
	out := make([]map[string]any, 0, len(gh.labels))
	for i, l := range gh.labels {
		out = append(out, map[string]any{"id": i + 1, "name": l, "color": "ededed"})
	}
	gh.mu.Unlock()
	writeFakeJSON(w, http.StatusOK, out)
}

// search matches the free-text words of q against titles.
func (gh *fakeGitHub) search(w http.ResponseWriter, r *http.Request) {
	var words []string
	openOnly := false
	for _, f := range strings.Fields(r.URL.Query().Get("q")) {
		switch {
		case f == "state:open":
			openOnly = true
		case strings.Contains(f, ":"):
		default:
			words = append(words, strings.ToLower(f))
		}
	}
	items := gh.sorted(func(is *fakeIssue) bool {
		if openOnly && is.State != "open" {
			return false
		}
		for _, word := range words {
			if !strings.Contains(strings.ToLower(is.Title), word) {
				return false
			}
		}
		return true
	})
	writeFakeJSON(w, http.StatusOK, map[string]any{"total_count": len(items), "items": items})
}
