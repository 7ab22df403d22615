// Package e2e drives a running registration server through its public HTTP
// API. Point API_BASE_URL at a server whose registration window is already
// open and whose REDIS_URL is set.
package e2e

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// TestContext holds the HTTP client and the last response of a scenario.
type TestContext struct {
	BaseURL string
	Client  *http.Client

	lastStatus  int
	lastHeaders http.Header
	lastBody    []byte
}

func NewTestContext(baseURL string) *TestContext {
	return &TestContext{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Client:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (tc *TestContext) Reset() {
	tc.lastStatus = 0
	tc.lastHeaders = nil
	tc.lastBody = nil
}

// POST sends body as JSON, presenting sourceAddress via X-Forwarded-For. The
// server only honours it when started with the runner's address in
// TRUSTED_PROXY_CIDRS (127.0.0.1/32,::1 for a local run).
func (tc *TestContext) POST(path string, body any, sourceAddress string) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	return tc.do(http.MethodPost, path, bytes.NewReader(payload), map[string]string{
		"Content-Type":    "application/json",
		"X-Forwarded-For": sourceAddress,
	})
}

// POSTForm sends form as application/x-www-form-urlencoded.
func (tc *TestContext) POSTForm(path string, form url.Values, sourceAddress string) error {
	return tc.do(http.MethodPost, path, strings.NewReader(form.Encode()), map[string]string{
		"Content-Type":    "application/x-www-form-urlencoded",
		"X-Forwarded-For": sourceAddress,
	})
}

func (tc *TestContext) GET(path string, headers map[string]string) error {
	return tc.do(http.MethodGet, path, nil, headers)
}

func (tc *TestContext) OPTIONS(path string) error {
	return tc.do(http.MethodOptions, path, nil, nil)
}

func (tc *TestContext) do(method, path string, body io.Reader, headers map[string]string) error {
	req, err := http.NewRequest(method, tc.BaseURL+path, body)
	if err != nil {
		return err
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := tc.Client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	tc.lastBody, err = io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	tc.lastStatus = resp.StatusCode
	tc.lastHeaders = resp.Header
	return nil
}

func (tc *TestContext) GetLastResponseStatus() int {
	return tc.lastStatus
}

func (tc *TestContext) GetLastResponseHeader(name string) string {
	return tc.lastHeaders.Get(name)
}

func (tc *TestContext) GetLastResponseBody() []byte {
	return tc.lastBody
}

// GetResponseField reads a top-level field of the last JSON response.
func (tc *TestContext) GetResponseField(field string) (any, error) {
	var body map[string]any
	if err := json.Unmarshal(tc.lastBody, &body); err != nil {
		return nil, fmt.Errorf("response is not JSON: %w", err)
	}
	v, ok := body[field]
	if !ok {
		return nil, fmt.Errorf("field %q not in response %s", field, tc.lastBody)
	}
	return v, nil
}
