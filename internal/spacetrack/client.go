// Package spacetrack fetches element sets from the space-track.org catalog.
package spacetrack

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/signalsfoundry/mount-tracker/internal/logging"
	"github.com/signalsfoundry/mount-tracker/internal/observability"
	"github.com/signalsfoundry/mount-tracker/timectrl"
	"github.com/signalsfoundry/mount-tracker/tle"
)

const (
	// DefaultBaseURL is the public catalog endpoint.
	DefaultBaseURL = "https://www.space-track.org"

	loginPath  = "/ajaxauth/login"
	queryPath  = "/basicspacedata/query/class/tle_latest/NORAD_CAT_ID/%s/format/3le/limit/1"
	maxBodyLen = 64 << 10
)

var (
	// ErrMissingCredentials is returned when identity or password is empty.
	ErrMissingCredentials = errors.New("spacetrack: missing credentials")
	// ErrUnexpectedStatus wraps a non-2xx catalog response.
	ErrUnexpectedStatus = errors.New("spacetrack: unexpected status")
)

// Config carries catalog connection settings.
type Config struct {
	BaseURL  string
	Identity string
	Password string
	Timeout  time.Duration
}

// DefaultConfig returns the public endpoint with a 30s request timeout.
func DefaultConfig() Config {
	return Config{BaseURL: DefaultBaseURL, Timeout: 30 * time.Second}
}

// ApplyDefaults returns c with empty fields replaced by defaults.
func (c Config) ApplyDefaults() Config {
	d := DefaultConfig()
	if c.BaseURL == "" {
		c.BaseURL = d.BaseURL
	}
	if c.Timeout <= 0 {
		c.Timeout = d.Timeout
	}
	return c
}

// ConfigFromEnv reads SPACETRACK_IDENTITY, SPACETRACK_PASSWORD and
// SPACETRACK_BASE_URL on top of the defaults.
func ConfigFromEnv() Config {
	cfg := DefaultConfig()
	cfg.Identity = os.Getenv("SPACETRACK_IDENTITY")
	cfg.Password = os.Getenv("SPACETRACK_PASSWORD")
	if base := os.Getenv("SPACETRACK_BASE_URL"); base != "" {
		cfg.BaseURL = base
	}
	return cfg
}

// Client implements tle.Catalog. Each fetch is a single login request that
// carries the query, so no session cookie is kept between calls.
type Client struct {
	cfg   Config
	http  *http.Client
	clock timectrl.Clock
	log   logging.Logger
}

var _ tle.Catalog = (*Client)(nil)

// NewClient validates cfg and builds a client. httpClient may be nil.
func NewClient(cfg Config, httpClient *http.Client, log logging.Logger) (*Client, error) {
	cfg = cfg.ApplyDefaults()
	if cfg.Identity == "" || cfg.Password == "" {
		return nil, ErrMissingCredentials
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("spacetrack: invalid base url: %w", err)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{
		cfg:   cfg,
		http:  httpClient,
		clock: timectrl.SystemClock{},
		log:   logging.OrNoop(log),
	}, nil
}

// WithClock returns a copy of the client stamping records with clock.
func (c *Client) WithClock(clock timectrl.Clock) *Client {
	cp := *c
	cp.clock = clock
	return &cp
}

// Fetch requests the latest element set for catalogID.
func (c *Client) Fetch(ctx context.Context, catalogID string) (*tle.Record, error) {
	ctx, span := observability.StartSpan(ctx, "spacetrack.fetch", attribute.String("tle.catalog_id", catalogID))
	defer span.End()

	rec, err := c.fetch(ctx, catalogID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.log.Warn(ctx, "catalog fetch failed", logging.String("catalog_id", catalogID), logging.Err(err))
		return nil, err
	}
	c.log.Debug(ctx, "catalog fetch ok", logging.String("catalog_id", catalogID), logging.String("name", rec.Name))
	return rec, nil
}

func (c *Client) fetch(ctx context.Context, catalogID string) (*tle.Record, error) {
	catalogID = strings.TrimSpace(catalogID)
	if catalogID == "" {
		return nil, fmt.Errorf("%w: empty catalog id", tle.ErrNotFound)
	}
	base := strings.TrimRight(c.cfg.BaseURL, "/")
	form := url.Values{
		"identity": {c.cfg.Identity},
		"password": {c.cfg.Password},
		"query":    {base + fmt.Sprintf(queryPath, url.PathEscape(catalogID))},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+loginPath, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyLen))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)
	}

	recs, err := tle.ParseThreeLine(strings.NewReader(string(body)), c.clock.Now())
	if err != nil {
		return nil, err
	}
	for _, r := range recs {
		if r.MatchID(catalogID) {
			return r, nil
		}
	}
	return nil, fmt.Errorf("%w: %s not in catalog response", tle.ErrNotFound, catalogID)
}
