package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/rs/xid"
)

// errorResponse is the error body returned by the backend.
type errorResponse struct {
	Error         string `json:"error"`
	Message       string `json:"message"`
	CorrelationID string `json:"correlation_id"`
}

type urlBuilder struct {
	base  string
	path  string
	query url.Values
}

func (c *Client) url() *urlBuilder {
	return &urlBuilder{base: c.baseURL, query: url.Values{}}
}

func (u *urlBuilder) setPath(path string) *urlBuilder {
	u.path = path
	return u
}

func (u *urlBuilder) addQueryParam(key string, value any) *urlBuilder {
	u.query.Add(key, fmt.Sprint(value))
	return u
}

func (u *urlBuilder) build() string {
	s := u.base + u.path
	if len(u.query) > 0 {
		s += "?" + u.query.Encode()
	}
	return s
}

func (c *Client) get(ctx context.Context, url, authorization string, result any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return &Error{Kind: KindUnknown, Err: fmt.Errorf("creating request: %w", err)}
	}
	return c.do(req, authorization, result)
}

func (c *Client) post(ctx context.Context, url, authorization string, payload, result any) error {
	var body io.Reader
	if payload != nil {
		bodyBytes, err := json.Marshal(payload)
		if err != nil {
			return &Error{Kind: KindUnknown, Err: fmt.Errorf("marshaling payload: %w", err)}
		}
		body = bytes.NewReader(bodyBytes)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return &Error{Kind: KindUnknown, Err: fmt.Errorf("creating request: %w", err)}
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.do(req, authorization, result)
}

// do sends req and decodes a 2xx body into result (if non-nil).
// Every failure is returned as *Error.
func (c *Client) do(req *http.Request, authorization string, result any) error {
	correlationID := xid.New().String()
	req.Header.Set(CorrelationIDHeader, correlationID)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}

	l := c.logger.With().
		Str("correlation_id", correlationID).
		Str("method", req.Method).
		Str("path", req.URL.Path).
		Logger()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		l.Debug().Err(err).Msg("request failed")
		return &Error{
			Kind:          KindUnreachable,
			CorrelationID: correlationID,
			Err:           fmt.Errorf("connection failed: %w", err),
		}
	}
	defer func(body io.ReadCloser) {
		_ = body.Close()
	}(resp.Body)

	if id := resp.Header.Get(CorrelationIDHeader); id != "" {
		correlationID = id
	}
	l.Debug().Int("status", resp.StatusCode).Msg("request.done")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return parseErrorResponse(resp, correlationID)
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return &Error{
				Kind:          KindMalformedResponse,
				StatusCode:    resp.StatusCode,
				CorrelationID: correlationID,
				Err:           fmt.Errorf("decoding response: %w", err),
			}
		}
	}
	return nil
}

func parseErrorResponse(resp *http.Response, correlationID string) error {
	e := &Error{
		Kind:          kindForStatus(resp.StatusCode),
		StatusCode:    resp.StatusCode,
		CorrelationID: correlationID,
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		e.Err = fmt.Errorf("reading error body: %w", err)
		return e
	}

	var errResp errorResponse
	if json.Unmarshal(body, &errResp) == nil {
		switch {
		case errResp.Error != "":
			e.Message = errResp.Error
		case errResp.Message != "":
			e.Message = errResp.Message
		}
		if errResp.CorrelationID != "" {
			e.CorrelationID = errResp.CorrelationID
		}
	}
	return e
}
