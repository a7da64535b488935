package crates

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"

	"github.com/matzehuels/supplychain/pkg/buildinfo"
	"github.com/matzehuels/supplychain/pkg/cache"
	apperrors "github.com/matzehuels/supplychain/pkg/errors"
	"github.com/matzehuels/supplychain/pkg/httputil"
	"github.com/matzehuels/supplychain/pkg/integrations"
	"github.com/matzehuels/supplychain/pkg/publishers"
)

// DefaultBaseURL is the crates.io web API root.
const DefaultBaseURL = "https://crates.io"

// Client queries crates.io for crate owners and team membership.
//
// All methods are safe for concurrent use by multiple goroutines. Requests
// from every goroutine share one rate limiter (see [httputil.Policy]).
type Client struct {
	*integrations.Client
	baseURL string
	keyer   cache.Keyer
	logger  *log.Logger

	// members memoizes team membership for the lifetime of the client, and
	// inflight collapses concurrent expansions of the same team.
	members  *gocache.Cache
	inflight singleflight.Group
}

var _ publishers.LiveSource = (*Client)(nil)

type config struct {
	baseURL    string
	userAgent  string
	policy     httputil.Policy
	httpClient *http.Client
	keyer      cache.Keyer
	logger     *log.Logger
	breaker    int
}

// Option configures a Client.
type Option func(*config)

// WithBaseURL points the client at another API root, such as a mirror or a
// test server.
func WithBaseURL(u string) Option {
	return func(c *config) {
		if u != "" {
			c.baseURL = strings.TrimSuffix(u, "/")
		}
	}
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *config) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

// WithPolicy sets retry and pacing. Tests use [httputil.NoDelayPolicy].
func WithPolicy(p httputil.Policy) Option {
	return func(c *config) { c.policy = p }
}

// WithHTTPClient replaces the HTTP client, for example to set a timeout.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *config) { c.httpClient = hc }
}

// WithKeyer sets how cache keys are built.
func WithKeyer(k cache.Keyer) Option {
	return func(c *config) {
		if k != nil {
			c.keyer = k
		}
	}
}

// WithLogger sets the logger for request diagnostics.
func WithLogger(l *log.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithBreakerThreshold sets the circuit breaker threshold; zero disables it.
func WithBreakerThreshold(n int) Option {
	return func(c *config) { c.breaker = n }
}

// NewClient creates a crates.io client. Responses are cached in backend for
// cacheTTL; pass [cache.NewNullCache] to disable caching.
func NewClient(backend cache.Cache, cacheTTL time.Duration, opts ...Option) *Client {
	cfg := config{
		baseURL:   DefaultBaseURL,
		userAgent: buildinfo.UserAgent(),
		policy:    httputil.DefaultPolicy(),
		keyer:     cache.NewDefaultKeyer(),
		logger:    log.New(io.Discard),
		breaker:   integrations.DefaultBreakerThreshold,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	headers := map[string]string{
		"User-Agent": cfg.userAgent,
		"Accept":     "application/json",
	}
	return &Client{
		Client: integrations.NewClient(backend, "crates:", cacheTTL, headers,
			integrations.WithPolicy(cfg.policy),
			integrations.WithHTTPClient(cfg.httpClient),
			integrations.WithBreakerThreshold(cfg.breaker),
		),
		baseURL: cfg.baseURL,
		keyer:   cfg.keyer,
		logger:  cfg.logger,
		members: gocache.New(gocache.NoExpiration, 0),
	}
}

// OwnersOf returns the publishers of a crate. Teams are replaced by their
// members, using inline membership when the response carries it and a
// follow-up request otherwise.
//
// If a team cannot be expanded, the team stays in the set as a team account
// and the set is returned together with an [*APIError] naming the team.
// Any other failure returns a nil set and an [*APIError].
func (c *Client) OwnersOf(ctx context.Context, name string) (*publishers.Set, error) {
	if err := apperrors.ValidatePackageName(name); err != nil {
		return nil, &APIError{Kind: ClientError, Crate: name, Err: err}
	}

	var resp ownersResponse
	endpoint := fmt.Sprintf("%s/api/v1/crates/%s/owners", c.baseURL, url.PathEscape(name))
	err := c.Cached(ctx, c.keyer.OwnersKey(c.baseURL, name), false, &resp, func() error {
		return c.Get(ctx, endpoint, &resp)
	})
	if err != nil {
		return nil, &APIError{Kind: classify(err), Crate: name, Err: err}
	}

	set := &publishers.Set{}
	var pending []publishers.Team
	for _, o := range resp.Users {
		switch o.Kind {
		case "team":
			team := o.team()
			if o.Members != nil {
				for _, m := range o.Members {
					set.Add(m.user())
				}
				continue
			}
			set.Add(team)
			pending = append(pending, team)
		default:
			set.Add(o.user())
		}
	}

	var firstErr error
	for _, team := range pending {
		members, err := c.TeamMembers(ctx, team)
		if err != nil {
			c.logger.Debug("team expansion failed", "crate", name, "team", team.DisplayName(), "err", err)
			var apiErr *APIError
			if firstErr == nil && errors.As(err, &apiErr) {
				firstErr = &APIError{Kind: apiErr.Kind, Crate: name, Team: apiErr.Team, Err: apiErr.Err}
			}
			continue
		}
		set.ExpandTeam(team, members)
	}
	return set, firstErr
}

// TeamMembers returns the user accounts of a team. Results are memoized for
// the lifetime of the client, and concurrent calls for the same team share
// one request.
func (c *Client) TeamMembers(ctx context.Context, team publishers.Team) ([]publishers.User, error) {
	key := strconv.FormatInt(team.ID, 10)
	if v, ok := c.members.Get(key); ok {
		return v.([]publishers.User), nil
	}

	v, err, _ := c.inflight.Do(key, func() (any, error) {
		var resp membersResponse
		endpoint := fmt.Sprintf("%s/api/v1/teams/%d/members", c.baseURL, team.ID)
		err := c.Cached(ctx, c.keyer.TeamMembersKey(c.baseURL, team.ID), false, &resp, func() error {
			return c.Get(ctx, endpoint, &resp)
		})
		if err != nil {
			return nil, err
		}
		users := make([]publishers.User, 0, len(resp.Users))
		for _, u := range resp.Users {
			users = append(users, u.user())
		}
		c.members.Set(key, users, gocache.NoExpiration)
		return users, nil
	})
	if err != nil {
		return nil, &APIError{Kind: classify(err), Team: team.DisplayName(), Err: err}
	}
	return v.([]publishers.User), nil
}

type ownersResponse struct {
	Users []owner `json:"users"`
}

type membersResponse struct {
	Users []owner `json:"users"`
}

// owner is an entry of the owners and members endpoints. Members is nil
// unless the registry inlined the team's membership.
type owner struct {
	ID      int64   `json:"id"`
	Login   string  `json:"login"`
	Kind    string  `json:"kind"`
	Name    string  `json:"name"`
	URL     string  `json:"url"`
	Members []owner `json:"members"`
}

func (o owner) user() publishers.User {
	return publishers.User{ID: o.ID, Login: o.Login, Name: o.Name}
}

// team decodes a team login of the form "github:org:team".
func (o owner) team() publishers.Team {
	t := publishers.Team{ID: o.ID, Name: o.Login}
	parts := strings.Split(o.Login, ":")
	if len(parts) == 3 {
		t.Org, t.Name = parts[1], parts[2]
	}
	return t
}
