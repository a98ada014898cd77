package capability

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"

	"github.com/sirupsen/logrus"
)

// #region errors

// UnavailableError marks a capability call that failed for a reason worth
// retrying: timeout, connection refused, or a 5xx from the backend.
type UnavailableError struct {
	Op     string
	Status int
	Err    error
}

func (e *UnavailableError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: backend returned %d", e.Op, e.Status)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

// Transient reports that the failure may clear on retry.
func (e *UnavailableError) Transient() bool { return true }

// #endregion errors

// #region client-struct

// Client calls the course platform's search and generation services over
// HTTP JSON. The zero timeout on the embedded http.Client is intentional;
// deadlines come from the caller's context.
type Client struct {
	searchBase   string
	generateBase string
	http         *http.Client
	log          *logrus.Entry
}

// NewClient builds a capability client for the given service base URLs.
func NewClient(searchBase, generateBase string, log *logrus.Entry) *Client {
	return &Client{
		searchBase:   searchBase,
		generateBase: generateBase,
		http:         &http.Client{},
		log:          log,
	}
}

// NewClientWithHTTP injects a custom http.Client. Used by tests.
func NewClientWithHTTP(searchBase, generateBase string, hc *http.Client, log *logrus.Entry) *Client {
	c := NewClient(searchBase, generateBase, log)
	c.http = hc
	return c
}

// #endregion client-struct

// #region search

type searchRequest struct {
	Query    string `json:"query"`
	CourseID string `json:"course_id"`
	TopK     int    `json:"top_k"`
}

type searchResponse struct {
	Results []SearchResult `json:"results"`
}

// Search queries the semantic search service scoped to a course.
func (c *Client) Search(ctx context.Context, query, courseScope string, k int) ([]SearchResult, error) {
	var resp searchResponse
	err := c.postJSON(ctx, "search", c.searchBase+"/api/v1/retrieve",
		searchRequest{Query: query, CourseID: courseScope, TopK: k}, &resp)
	if err != nil {
		return nil, err
	}
	return resp.Results, nil
}

// #endregion search

// #region generate

type generateRequest struct {
	Prompt      string  `json:"prompt"`
	Temperature float64 `json:"temperature"`
	MaxTokens   int     `json:"max_tokens"`
}

type generateResponse struct {
	Text string `json:"text"`
}

// Generate sends a prompt to the generation service.
func (c *Client) Generate(ctx context.Context, prompt string, params GenerateParams) (string, error) {
	var resp generateResponse
	err := c.postJSON(ctx, "generate", c.generateBase+"/api/v1/generate",
		generateRequest{Prompt: prompt, Temperature: params.Temperature, MaxTokens: params.MaxTokens}, &resp)
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}

// #endregion generate

// #region post-json

func (c *Client) postJSON(ctx context.Context, op, url string, in, out interface{}) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("%s: marshal request: %w", op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%s: build request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if isTimeout(err) || errors.Is(err, context.DeadlineExceeded) {
			return &UnavailableError{Op: op, Err: err}
		}
		var netErr *net.OpError
		if errors.As(err, &netErr) {
			return &UnavailableError{Op: op, Err: err}
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return &UnavailableError{Op: op, Status: resp.StatusCode}
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: backend returned %d", op, resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &UnavailableError{Op: op, Err: err}
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%s: decode response: %w", op, err)
	}
	return nil
}

func isTimeout(err error) bool {
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}

// #endregion post-json

// #region noop-scope

// ScopeChecker authorizes a course scope before a turn starts. The HTTP
// layer consults it; implementations may call out to the platform.
type ScopeChecker interface {
	Authorized(ctx context.Context, courseScope string) bool
}

// AllowAllScopes is the default course-scope check: authorization is owned
// by the platform's auth layer, so the core accepts any non-empty scope.
type AllowAllScopes struct{}

// Authorized always returns true for a non-empty scope.
func (AllowAllScopes) Authorized(_ context.Context, courseScope string) bool {
	return courseScope != ""
}

// #endregion noop-scope
