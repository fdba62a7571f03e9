package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"
)

// Client executes Admin GraphQL documents against one store.
type Client interface {
	// Query posts the document with variables and decodes the data payload
	// into out. GraphQL-level errors are returned as a *QueryError.
	Query(ctx context.Context, document string, variables map[string]any, out any) error
}

// HTTPClient is the production Client backed by net/http.
type HTTPClient struct {
	endpoint string
	token    string
	http     *http.Client
}

// New creates a client for the configured target store.
func New(cfg Config) *HTTPClient {
	return NewForShop(cfg.ShopDomain, cfg.AccessToken, cfg)
}

// NewForShop creates a client for an arbitrary shop domain with its own token.
// Used for source stores, whose credentials live on the connection record.
func NewForShop(shopDomain, accessToken string, cfg Config) *HTTPClient {
	timeout := cfg.TimeoutSeconds
	if timeout <= 0 {
		timeout = 30
	}
	timeoutDuration := time.Duration(timeout) * time.Second

	version := cfg.APIVersion
	if version == "" {
		version = "2024-10"
	}

	domain := strings.TrimPrefix(shopDomain, "https://")
	domain = strings.TrimPrefix(domain, "http://")
	domain = strings.TrimSuffix(domain, "/")

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   timeoutDuration,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   timeoutDuration,
		ExpectContinueTimeout: 1 * time.Second,
		ResponseHeaderTimeout: timeoutDuration,
	}

	return &HTTPClient{
		endpoint: fmt.Sprintf("https://%s/admin/api/%s/graphql.json", domain, version),
		token:    accessToken,
		http: &http.Client{
			Transport: transport,
			Timeout:   timeoutDuration,
		},
	}
}

type graphqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type graphqlResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []GraphQLError  `json:"errors"`
}

// Query implements Client.
func (c *HTTPClient) Query(ctx context.Context, document string, variables map[string]any, out any) error {
	body, err := json.Marshal(graphqlRequest{Query: document, Variables: variables})
	if err != nil {
		return fmt.Errorf("failed to encode graphql request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build graphql request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Shopify-Access-Token", c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("graphql request failed: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read graphql response: %w", err)
	}

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return &QueryError{
			StatusCode: resp.StatusCode,
			Errors:     []GraphQLError{{Message: fmt.Sprintf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(payload)))}},
		}
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return &QueryError{
			StatusCode: resp.StatusCode,
			Errors:     []GraphQLError{{Message: "throttled", Extensions: ErrorExtensions{Code: CodeThrottled}}},
		}
	}
	if resp.StatusCode >= 500 {
		return &QueryError{
			StatusCode: resp.StatusCode,
			Errors:     []GraphQLError{{Message: fmt.Sprintf("HTTP %d from remote API", resp.StatusCode)}},
		}
	}

	var parsed graphqlResponse
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return fmt.Errorf("failed to decode graphql response: %w", err)
	}

	if len(parsed.Errors) > 0 {
		return &QueryError{StatusCode: resp.StatusCode, Errors: parsed.Errors}
	}

	if out != nil && len(parsed.Data) > 0 {
		if err := json.Unmarshal(parsed.Data, out); err != nil {
			return fmt.Errorf("failed to decode graphql data: %w", err)
		}
	}

	return nil
}
