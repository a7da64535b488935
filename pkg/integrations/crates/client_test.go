package crates

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/matzehuels/supplychain/pkg/cache"
	"github.com/matzehuels/supplychain/pkg/httputil"
	"github.com/matzehuels/supplychain/pkg/publishers"
)

// registry is a fake crates.io serving canned JSON per path.
type registry struct {
	mu     sync.Mutex
	routes map[string]func(w http.ResponseWriter)
	hits   map[string]int
	ua     string
}

func newRegistry(t *testing.T) (*registry, *httptest.Server) {
	t.Helper()
	reg := &registry{routes: map[string]func(http.ResponseWriter){}, hits: map[string]int{}}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reg.mu.Lock()
		reg.hits[r.URL.Path]++
		reg.ua = r.Header.Get("User-Agent")
		h, ok := reg.routes[r.URL.Path]
		reg.mu.Unlock()
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		h(w)
	}))
	t.Cleanup(srv.Close)
	return reg, srv
}

func (r *registry) json(path, body string) {
	r.routes[path] = func(w http.ResponseWriter) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, body)
	}
}

func (r *registry) status(path string, code int) {
	r.routes[path] = func(w http.ResponseWriter) { w.WriteHeader(code) }
}

func (r *registry) count(path string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.hits[path]
}

func testClient(t *testing.T, serverURL string, opts ...Option) *Client {
	t.Helper()
	opts = append([]Option{
		WithBaseURL(serverURL),
		WithPolicy(httputil.NoDelayPolicy()),
		WithUserAgent("supplychain-test"),
	}, opts...)
	return NewClient(cache.NewNullCache(), time.Hour, opts...)
}

func ids(s *publishers.Set) []string {
	var out []string
	for _, a := range s.Accounts() {
		out = append(out, a.AccountID().String())
	}
	return out
}

func TestOwnersOfUsers(t *testing.T) {
	reg, srv := newRegistry(t)
	reg.json("/api/v1/crates/serde/owners", `{"users":[
		{"id":3618,"login":"dtolnay","kind":"user","name":"David Tolnay","url":"https://github.com/dtolnay"},
		{"id":1,"login":"erickt","kind":"user","name":null}
	]}`)

	set, err := testClient(t, srv.URL).OwnersOf(context.Background(), "serde")
	if err != nil {
		t.Fatalf("OwnersOf: %v", err)
	}
	if got, want := ids(set), []string{"user:1", "user:3618"}; !reflect.DeepEqual(got, want) {
		t.Errorf("owners = %v, want %v", got, want)
	}
	users := set.Users()
	if users[1].Login != "dtolnay" || users[1].Name != "David Tolnay" {
		t.Errorf("user = %+v", users[1])
	}
	if reg.ua != "supplychain-test" {
		t.Errorf("User-Agent = %q", reg.ua)
	}
}

func TestOwnersOfExpandsTeam(t *testing.T) {
	reg, srv := newRegistry(t)
	reg.json("/api/v1/crates/alpha/owners", `{"users":[
		{"id":7,"login":"github:acme:core-team","kind":"team","name":"Core"}
	]}`)
	reg.json("/api/v1/teams/7/members", `{"users":[
		{"id":3,"login":"u3","kind":"user"},
		{"id":4,"login":"u4","kind":"user"}
	]}`)

	set, err := testClient(t, srv.URL).OwnersOf(context.Background(), "alpha")
	if err != nil {
		t.Fatalf("OwnersOf: %v", err)
	}
	if got, want := ids(set), []string{"user:3", "user:4"}; !reflect.DeepEqual(got, want) {
		t.Errorf("owners = %v, want %v", got, want)
	}
}

func TestOwnersOfInlineMembers(t *testing.T) {
	reg, srv := newRegistry(t)
	reg.json("/api/v1/crates/beta/owners", `{"users":[
		{"id":7,"login":"github:acme:core","kind":"team","members":[{"id":5,"login":"u5","kind":"user"}]}
	]}`)

	set, err := testClient(t, srv.URL).OwnersOf(context.Background(), "beta")
	if err != nil {
		t.Fatal(err)
	}
	if got := ids(set); !reflect.DeepEqual(got, []string{"user:5"}) {
		t.Errorf("owners = %v", got)
	}
	if reg.count("/api/v1/teams/7/members") != 0 {
		t.Error("inline membership should not trigger a members request")
	}
}

func TestOwnersOfTeamExpansionFails(t *testing.T) {
	reg, srv := newRegistry(t)
	reg.json("/api/v1/crates/gamma/owners", `{"users":[
		{"id":1,"login":"u1","kind":"user"},
		{"id":7,"login":"github:acme:core","kind":"team"}
	]}`)
	reg.status("/api/v1/teams/7/members", http.StatusForbidden)

	set, err := testClient(t, srv.URL).OwnersOf(context.Background(), "gamma")

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v, want APIError", err)
	}
	if apiErr.Team != "acme/core" || apiErr.Crate != "gamma" {
		t.Errorf("APIError = %+v", apiErr)
	}
	if apiErr.FailureKind() != publishers.FailureTeamExpansion {
		t.Errorf("FailureKind = %s", apiErr.FailureKind())
	}
	if got := ids(set); !reflect.DeepEqual(got, []string{"user:1", "team:7"}) {
		t.Errorf("partial owners = %v, want the user and the unexpanded team", got)
	}
}

func TestOwnersOfErrors(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		kind     APIErrorKind
		failure  publishers.FailureKind
		attempts int
	}{
		{"not found", http.StatusNotFound, NotFound, publishers.FailureNotFound, 1},
		{"forbidden", http.StatusForbidden, ClientError, publishers.FailureClient, 1},
		{"server error", http.StatusInternalServerError, Transient, publishers.FailureNetwork, 3},
		{"rate limited", http.StatusTooManyRequests, Transient, publishers.FailureNetwork, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg, srv := newRegistry(t)
			reg.status("/api/v1/crates/ghost/owners", tt.status)

			set, err := testClient(t, srv.URL, WithBreakerThreshold(0)).OwnersOf(context.Background(), "ghost")
			if set != nil {
				t.Errorf("set = %v, want nil", set)
			}
			var apiErr *APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("error = %v, want APIError", err)
			}
			if apiErr.Kind != tt.kind {
				t.Errorf("Kind = %s, want %s", apiErr.Kind, tt.kind)
			}
			if apiErr.FailureKind() != tt.failure {
				t.Errorf("FailureKind = %s, want %s", apiErr.FailureKind(), tt.failure)
			}
			if got := reg.count("/api/v1/crates/ghost/owners"); got != tt.attempts {
				t.Errorf("requests = %d, want %d", got, tt.attempts)
			}
		})
	}
}

func TestOwnersOfInvalidName(t *testing.T) {
	reg, srv := newRegistry(t)
	_, err := testClient(t, srv.URL).OwnersOf(context.Background(), "../etc/passwd")

	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Kind != ClientError {
		t.Errorf("error = %v, want ClientError", err)
	}
	if len(reg.hits) != 0 {
		t.Error("invalid names should not reach the network")
	}
}

func TestTeamMembersMemoized(t *testing.T) {
	reg, srv := newRegistry(t)
	reg.json("/api/v1/teams/7/members", `{"users":[{"id":3,"login":"u3","kind":"user"}]}`)

	c := testClient(t, srv.URL)
	team := publishers.Team{ID: 7, Org: "acme", Name: "core"}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			members, err := c.TeamMembers(context.Background(), team)
			if err != nil || len(members) != 1 || members[0].Login != "u3" {
				t.Errorf("TeamMembers = %v, %v", members, err)
			}
		}()
	}
	wg.Wait()

	if _, err := c.TeamMembers(context.Background(), team); err != nil {
		t.Fatal(err)
	}
	if got := reg.count("/api/v1/teams/7/members"); got != 1 {
		t.Errorf("members requests = %d, want 1", got)
	}
}

func TestOwnersOfUsesCache(t *testing.T) {
	reg, srv := newRegistry(t)
	reg.json("/api/v1/crates/serde/owners", `{"users":[{"id":1,"login":"u1","kind":"user"}]}`)

	fc, err := cache.NewFileCache(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	opts := []Option{WithBaseURL(srv.URL), WithPolicy(httputil.NoDelayPolicy())}

	for i := 0; i < 2; i++ {
		// A new client per iteration: only the shared cache survives.
		c := NewClient(fc, time.Hour, opts...)
		set, err := c.OwnersOf(context.Background(), "serde")
		if err != nil || set.Len() != 1 {
			t.Fatalf("OwnersOf = %v, %v", set, err)
		}
	}
	if got := reg.count("/api/v1/crates/serde/owners"); got != 1 {
		t.Errorf("requests = %d, want 1", got)
	}
}

func TestOwnerTeamLogin(t *testing.T) {
	tests := []struct {
		login string
		want  string
	}{
		{"github:rust-lang:libs", "rust-lang/libs"},
		{"plain", "plain"},
	}
	for _, tt := range tests {
		if got := (owner{ID: 1, Login: tt.login}).team().DisplayName(); got != tt.want {
			t.Errorf("team(%q) = %q, want %q", tt.login, got, tt.want)
		}
	}
}

func TestResolverWithClient(t *testing.T) {
	reg, srv := newRegistry(t)
	reg.json("/api/v1/crates/serde/owners", `{"users":[{"id":1,"login":"u1","kind":"user"}]}`)

	r := publishers.NewResolver(nil, testClient(t, srv.URL, WithBreakerThreshold(0)))
	report := r.Resolve(context.Background(), []publishers.Package{{Name: "ghost"}, {Name: "serde"}})

	if f := report.Entries[0].Failure; f == nil || f.Kind != publishers.FailureNotFound {
		t.Errorf("ghost failure = %v, want not_found", f)
	}
	if e := report.Entries[1]; !e.Resolved() || e.Source != publishers.SourceAPI || e.Publishers.Len() != 1 {
		t.Errorf("serde = %+v", e)
	}
}
