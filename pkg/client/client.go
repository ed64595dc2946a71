// Package client talks to the taskdeck backend. It is the network boundary of
// the session subsystem: every transport or HTTP outcome is translated into a
// classified *Error, raw transport errors never escape as-is.
package client

import (
	"net/http"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/darmiel/taskdeck/internal/buildinfo"
)

const (
	LoginRoute         = "/login"
	SignupRoute        = "/signup"
	LogoutRoute        = "/logout"
	StatusRoute        = "/status"
	RefreshRoute       = "/refresh"
	CheckUsernameRoute = "/check-username"
	CheckEmailRoute    = "/check-email"
)

const CorrelationIDHeader = "X-Correlation-ID"

type Client struct {
	baseURL    string
	httpClient *http.Client
	userAgent  string
	logger     zerolog.Logger
}

type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
// No request timeout is applied unless the given client has one.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

func WithUserAgent(ua string) Option {
	return func(c *Client) {
		c.userAgent = ua
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{},
		userAgent:  buildinfo.UserAgent(),
		logger:     log.With().Str("component", "client").Logger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) BaseURL() string {
	return c.baseURL
}
