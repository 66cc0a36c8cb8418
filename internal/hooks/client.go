package hooks

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

const (
	defaultServerURL = "http://127.0.0.1:37778"
	defaultTimeout   = 5 * time.Second
)

// Client talks to the recall server.
type Client struct {
	http      *http.Client
	serverURL string
}

// NewClient creates a hook HTTP client. It honours RECALL_URL and falls back
// to http://127.0.0.1:37778. A timeout <= 0 uses 5s.
func NewClient(timeout time.Duration) *Client {
	url := os.Getenv("RECALL_URL")
	if url == "" {
		url = defaultServerURL
	}
	return NewClientURL(url, timeout)
}

// NewClientURL creates a client for an explicit server URL.
func NewClientURL(url string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		http:      &http.Client{Timeout: timeout},
		serverURL: strings.TrimRight(url, "/"),
	}
}

// Post sends v as a JSON body and returns the response body. A nil v sends
// no body.
func (c *Client) Post(path string, v any) ([]byte, error) {
	var body io.Reader
	if v != nil {
		data, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", path, err)
		}
		body = bytes.NewReader(data)
	}

	resp, err := c.http.Post(c.serverURL+path, "application/json", body)
	if err != nil {
		return nil, fmt.Errorf("POST %s: %w", path, err)
	}
	return readBody(resp, "POST", path)
}

// Get sends a GET request and returns the response body.
func (c *Client) Get(path string) ([]byte, error) {
	resp, err := c.http.Get(c.serverURL + path)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", path, err)
	}
	return readBody(resp, "GET", path)
}

func readBody(resp *http.Response, method, path string) ([]byte, error) {
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response %s: %w", path, err)
	}
	if resp.StatusCode >= 400 {
		return data, fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, bytes.TrimSpace(data))
	}
	return data, nil
}

// Healthy checks if the server is reachable.
func (c *Client) Healthy() bool {
	resp, err := c.http.Get(c.serverURL + "/api/health")
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}
