// Package embedding provides an HTTP client for OpenAI-compatible
// embeddings endpoints, used by the semantic similarity scorer.
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"fuzzy-reconciliation-service/pkg/errors"
	"fuzzy-reconciliation-service/pkg/logger"
)

const maxResponseBytes = 4 << 20

// Config contains embeddings provider configuration.
type Config struct {
	// Endpoint is the base URL; requests go to {Endpoint}/embeddings.
	Endpoint string
	Model    string
	APIKey   string
	Timeout  time.Duration
}

// Client calls the embeddings endpoint and memoizes vectors per input text
// for the life of the process.
type Client struct {
	endpoint string
	model    string
	apiKey   string
	http     *http.Client
	logger   logger.Logger

	mu   sync.RWMutex
	memo map[string][]float64
}

// NewClient creates a new embeddings client. A client with no endpoint is
// valid but never Ready.
func NewClient(cfg Config, log logger.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		endpoint: strings.TrimSuffix(cfg.Endpoint, "/"),
		model:    cfg.Model,
		apiKey:   cfg.APIKey,
		http:     &http.Client{Timeout: timeout},
		logger:   logger.OrGlobal(log).WithComponent("embedding"),
		memo:     make(map[string][]float64),
	}
}

// Ready reports whether an endpoint is configured.
func (c *Client) Ready() bool {
	return c != nil && c.endpoint != ""
}

// Embed returns the embedding vector for text.
func (c *Client) Embed(ctx context.Context, text string) ([]float64, error) {
	c.mu.RLock()
	vec, ok := c.memo[text]
	c.mu.RUnlock()
	if ok {
		return vec, nil
	}

	if !c.Ready() {
		return nil, errors.ConfigurationError(errors.CodeMissingConfig, "embedding.endpoint", "", nil)
	}

	vec, err := c.fetch(ctx, text)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.memo[text] = vec
	c.mu.Unlock()
	return vec, nil
}

func (c *Client) fetch(ctx context.Context, text string) ([]float64, error) {
	body, err := json.Marshal(embedRequest{Model: c.model, Input: text})
	if err != nil {
		return nil, errors.InternalError(errors.CodeUnexpectedError, "marshal embedding request", err)
	}

	url := c.endpoint + "/embeddings"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, errors.NetworkError(errors.CodeConnectionFailed, url, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, errors.NetworkError(errors.CodeTimeout, url, err)
		}
		return nil, errors.NetworkError(errors.CodeConnectionFailed, url, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, errors.NetworkError(errors.CodeConnectionFailed, url, err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, errors.NetworkError(errors.CodeServiceUnavailable, url,
			fmt.Errorf("status %d", resp.StatusCode)).WithContext("status", resp.StatusCode)
	}

	var parsed embedResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, errors.NetworkError(errors.CodeServiceUnavailable, url, err)
	}
	if len(parsed.Data) == 0 || len(parsed.Data[0].Embedding) == 0 {
		return nil, errors.NetworkError(errors.CodeServiceUnavailable, url, fmt.Errorf("no embeddings in response"))
	}

	c.logger.WithFields(logger.Fields{
		"model":      c.model,
		"dimensions": len(parsed.Data[0].Embedding),
		"latency":    time.Since(start).String(),
	}).Debug("Embedding fetched")

	return parsed.Data[0].Embedding, nil
}

type embedRequest struct {
	Model string `json:"model,omitempty"`
	Input string `json:"input"`
}

type embedResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
}
