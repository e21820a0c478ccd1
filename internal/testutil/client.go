// Package testutil provides testing utilities for handler and integration tests.
package testutil

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
)

// Client is an HTTP client for testing the page and API endpoints.
// Cookies persist across requests, so a Client behaves like one browser session.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	Validator  *OpenAPIValidator
	t          *testing.T
}

// NewClient creates a client that keeps cookies and follows redirects.
func NewClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("create cookie jar: %v", err)
	}
	return &Client{
		BaseURL:    baseURL,
		HTTPClient: &http.Client{Jar: jar},
		t:          t,
	}
}

// WithValidator returns a copy of the client that validates /api/ responses
// against the OpenAPI document.
func (c *Client) WithValidator(v *OpenAPIValidator) *Client {
	clone := *c
	clone.Validator = v
	return &clone
}

// NoRedirects returns a copy of the client that returns redirect responses
// as is. The cookie jar is shared.
func (c *Client) NoRedirects() *Client {
	clone := *c
	hc := *c.HTTPClient
	hc.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}
	clone.HTTPClient = &hc
	return &clone
}

// GET performs a GET request.
func (c *Client) GET(path string) *http.Response {
	c.t.Helper()
	return c.do(http.MethodGet, path, "", nil)
}

// PostJSON performs a POST request with a JSON body.
func (c *Client) PostJSON(path string, body any) *http.Response {
	c.t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		c.t.Fatalf("marshal body: %v", err)
	}
	return c.do(http.MethodPost, path, "application/json", data)
}

// PostForm performs a POST request with a URL-encoded form body.
func (c *Client) PostForm(path string, values url.Values) *http.Response {
	c.t.Helper()
	return c.do(http.MethodPost, path, "application/x-www-form-urlencoded", []byte(values.Encode()))
}

func (c *Client) do(method, path, contentType string, body []byte) *http.Response {
	c.t.Helper()

	req, err := http.NewRequest(method, c.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		c.t.Fatalf("create request: %v", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		c.t.Fatalf("%s %s: %v", method, path, err)
	}

	if c.Validator != nil && strings.HasPrefix(path, "/api/") {
		validationReq, _ := http.NewRequest(method, c.BaseURL+path, bytes.NewReader(body))
		validationReq.Header = req.Header
		c.Validator.ValidateRequest(c.t, validationReq)

		validationReq, _ = http.NewRequest(method, c.BaseURL+path, bytes.NewReader(body))
		validationReq.Header = req.Header
		c.Validator.ValidateResponse(c.t, validationReq, resp)
	}

	return resp
}

// Document parses an HTML response body.
func Document(t *testing.T, resp *http.Response) *goquery.Document {
	t.Helper()
	defer func() { _ = resp.Body.Close() }()

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		t.Fatalf("parse html: %v", err)
	}
	return doc
}

// DecodeJSON decodes response body into v.
func DecodeJSON(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer func() { _ = resp.Body.Close() }()

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

// ReadBody reads and returns response body as string.
func ReadBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return string(body)
}
