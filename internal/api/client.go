package api

import (
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/singleflight"

	"github.com/greysana/kitchen-display-system/internal/auth"
	"github.com/greysana/kitchen-display-system/internal/model"
)

// DefaultStagesTTL is how long fetched stage definitions are reused.
const DefaultStagesTTL = 30 * time.Second

// Client provides access to the order backend.
type Client struct {
	baseURL    string
	creds      *auth.Credentials
	httpClient *http.Client
	logger     *slog.Logger
	clock      clockwork.Clock
	location   *time.Location

	maxRetries   int
	retryBackoff time.Duration

	stagesTTL     time.Duration
	stagesMu      sync.Mutex
	stagesCache   []model.StageDef
	stagesFetched time.Time
	stagesGroup   singleflight.Group
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// NewClient creates a new REST API client. creds may be nil.
func NewClient(baseURL string, creds *auth.Credentials, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		creds:   creds,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger:       slog.Default(),
		clock:        clockwork.NewRealClock(),
		location:     time.Local,
		maxRetries:   3,
		retryBackoff: time.Second,
		stagesTTL:    DefaultStagesTTL,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// WithRetries sets the retry configuration.
func WithRetries(max int, backoff time.Duration) ClientOption {
	return func(c *Client) {
		c.maxRetries = max
		c.retryBackoff = backoff
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithStagesTTL sets how long stage definitions are cached. Zero disables
// the cache.
func WithStagesTTL(d time.Duration) ClientOption {
	return func(c *Client) {
		c.stagesTTL = d
	}
}

// WithClock sets the clock used for the stage cache and retry waits.
func WithClock(clock clockwork.Clock) ClientOption {
	return func(c *Client) {
		c.clock = clock
	}
}

// WithLocation sets the timezone naive backend timestamps are read in.
func WithLocation(loc *time.Location) ClientOption {
	return func(c *Client) {
		if loc != nil {
			c.location = loc
		}
	}
}
