package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/xhad/mindvault/internal/models"
	"github.com/xhad/mindvault/pkg/content"
)

// Client talks to the Mind Vault HTTP API with a session token.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// APIError is a non-2xx answer from the server.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server returned %d", e.Status)
	}
	return fmt.Sprintf("%s (%d)", e.Message, e.Status)
}

type Answer struct {
	Result  string               `json:"result"`
	Content []models.ContentItem `json:"content"`
}

func New(baseURL, token string, timeout time.Duration) *Client {
	if timeout == 0 {
		timeout = 90 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: timeout},
	}
}

// Ask runs a semantic search over the caller's vault.
func (c *Client) Ask(ctx context.Context, question string) (Answer, error) {
	var out Answer
	err := c.do(ctx, http.MethodPost, "/api/v1/search", map[string]string{"search": question}, &out)
	return out, err
}

func (c *Client) AddContent(ctx context.Context, req content.CreateRequest) (models.ContentItem, error) {
	var out struct {
		Content models.ContentItem `json:"content"`
	}
	err := c.do(ctx, http.MethodPost, "/api/v1/content", req, &out)
	return out.Content, err
}

func (c *Client) ListContent(ctx context.Context, kind string) ([]models.ContentItem, error) {
	path := "/api/v1/content"
	if kind != "" {
		path += "?kind=" + url.QueryEscape(kind)
	}
	var out struct {
		Content []models.ContentItem `json:"content"`
	}
	err := c.do(ctx, http.MethodGet, path, nil, &out)
	return out.Content, err
}

func (c *Client) DeleteContent(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/v1/content/"+url.PathEscape(id), nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode}
		var payload struct {
			Error   string `json:"error"`
			Message string `json:"message"`
		}
		if json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&payload) == nil {
			apiErr.Code = payload.Error
			apiErr.Message = payload.Message
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
