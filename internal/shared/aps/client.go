package aps

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// =============================================================================
// Autodesk Platform Services client (OSS and Model Derivative)
// Token management and the shared request helper live here; buckets,
// objects and derivatives are in their own files.
// =============================================================================

const DefaultBaseURL = "https://developer.api.autodesk.com"

const (
	// ScopeInternal server side work: buckets, objects, translation jobs
	ScopeInternal = "data:read data:write data:create bucket:create bucket:read bucket:delete"
	// ScopeViewer handed to the browser viewer
	ScopeViewer = "viewables:read"
)

// Region values accepted by OSS and Model Derivative
const (
	RegionUS   = "US"
	RegionEMEA = "EMEA"
)

// APIError non-2xx response
type APIError struct {
	StatusCode int
	Method     string
	Path       string
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("aps %s %s: status %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}

// IsStatus reports whether err is an APIError with the given status
func IsStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == status
}

// Token access token as returned to callers
type Token struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

type cachedToken struct {
	value  string
	expire time.Time
}

// Client APS client
type Client struct {
	baseURL      string
	clientID     string
	clientSecret string
	region       string
	httpClient   *http.Client

	mu     sync.RWMutex
	tokens map[string]cachedToken // keyed by scope
}

// NewClient creates an APS client. An empty baseURL means DefaultBaseURL.
func NewClient(baseURL, clientID, clientSecret, region string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if region == "" {
		region = RegionEMEA
	}
	return &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		clientID:     clientID,
		clientSecret: clientSecret,
		region:       region,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		tokens: make(map[string]cachedToken),
	}
}

// Region configured data region
func (c *Client) Region() string {
	return c.region
}

// ViewerToken read-only token for the browser viewer
func (c *Client) ViewerToken(ctx context.Context) (*Token, error) {
	value, expire, err := c.token(ctx, ScopeViewer)
	if err != nil {
		return nil, err
	}
	return &Token{
		AccessToken: value,
		TokenType:   "Bearer",
		ExpiresIn:   int(time.Until(expire).Seconds()),
	}, nil
}

// token two-legged token per scope, cached and refreshed 60s early
func (c *Client) token(ctx context.Context, scope string) (string, time.Time, error) {
	c.mu.RLock()
	if t, ok := c.tokens[scope]; ok && time.Now().Before(t.expire) {
		c.mu.RUnlock()
		return t.value, t.expire, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()

	// another goroutine may have refreshed it meanwhile
	if t, ok := c.tokens[scope]; ok && time.Now().Before(t.expire) {
		return t.value, t.expire, nil
	}

	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("scope", scope)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/authentication/v2/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("build token request: %w", err)
	}
	basic := base64.StdEncoding.EncodeToString([]byte(c.clientID + ":" + c.clientSecret))
	req.Header.Set("Authorization", "Basic "+basic)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("request token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", time.Time{}, &APIError{StatusCode: resp.StatusCode, Method: http.MethodPost, Path: "/authentication/v2/token", Body: string(body)}
	}

	var tok Token
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return "", time.Time{}, fmt.Errorf("decode token: %w", err)
	}
	if tok.AccessToken == "" {
		return "", time.Time{}, errors.New("aps token response without access_token")
	}

	expire := time.Now().Add(time.Duration(tok.ExpiresIn-60) * time.Second)
	c.tokens[scope] = cachedToken{value: tok.AccessToken, expire: expire}
	return tok.AccessToken, expire, nil
}

// doRequest authenticated JSON request. body is marshalled when non-nil,
// result is unmarshalled when non-nil.
func (c *Client) doRequest(ctx context.Context, method, path string, headers map[string]string, body interface{}, result interface{}) error {
	token, _, err := c.token(ctx, ScopeInternal)
	if err != nil {
		return fmt.Errorf("get access token: %w", err)
	}

	var bodyReader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("aps %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{StatusCode: resp.StatusCode, Method: method, Path: path, Body: truncate(string(respBody), 1024)}
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
