package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"term-translation-system/utils"
)

// SPARQLValue is one bound value in a result row.
type SPARQLValue struct {
	Type     string `json:"type"`
	Value    string `json:"value"`
	Lang     string `json:"xml:lang,omitempty"`
	Datatype string `json:"datatype,omitempty"`
}

// SPARQLResult is the application/sparql-results+json envelope.
type SPARQLResult struct {
	Head struct {
		Vars []string `json:"vars"`
	} `json:"head"`
	Results struct {
		Bindings []map[string]SPARQLValue `json:"bindings"`
	} `json:"results"`
}

// SPARQLClient submits SELECT queries to an HTTP endpoint. Transient
// upstream errors (the NERC endpoint is fond of 502s) are retried with
// exponential backoff before giving up.
type SPARQLClient struct {
	HTTPClient *http.Client
	MaxRetries int
	BaseDelay  time.Duration
}

func NewSPARQLClient() *SPARQLClient {
	return &SPARQLClient{
		HTTPClient: utils.HTTPClient,
		MaxRetries: 3,
		BaseDelay:  time.Second,
	}
}

// Select runs one query and decodes the tabular bindings.
func (c *SPARQLClient) Select(ctx context.Context, endpoint, query string) (*SPARQLResult, error) {
	var lastErr error
	for attempt := 0; attempt < c.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := c.BaseDelay * (1 << (attempt - 1))
			log.Printf("[SPARQL] ⚠️ Attempt %d failed (%v) — retrying in %s", attempt, lastErr, delay)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		result, retryable, err := c.selectOnce(ctx, endpoint, query)
		if err == nil {
			return result, nil
		}
		lastErr = err
		if !retryable {
			return nil, err
		}
	}
	return nil, fmt.Errorf("SPARQL query failed after %d attempts: %w", c.MaxRetries, lastErr)
}

func (c *SPARQLClient) selectOnce(ctx context.Context, endpoint, query string) (*SPARQLResult, bool, error) {
	form := url.Values{}
	form.Set("query", query)

	req, err := http.NewRequestWithContext(ctx, "POST", endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, false, fmt.Errorf("failed to create SPARQL request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/sparql-results+json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, true, fmt.Errorf("SPARQL request to %s failed: %w", endpoint, err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		retryable := resp.StatusCode >= 500
		return nil, retryable, fmt.Errorf("SPARQL endpoint returned %d: %s", resp.StatusCode, string(body))
	}

	var result SPARQLResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, false, fmt.Errorf("failed to decode SPARQL response: %w", err)
	}
	return &result, false, nil
}
