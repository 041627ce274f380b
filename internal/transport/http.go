package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
)

// HTTPTransport performs the exchange as a single POST to a sync server:
// Send posts the local envelope and buffers the server's reconciled
// envelope, which the following Receive returns.
type HTTPTransport struct {
	client *http.Client
	url    string
	token  string
	resp   []byte
	ready  bool
}

// NewHTTP creates a transport posting to the server's sync endpoint.
// token is the bearer token obtained from login.
func NewHTTP(client *http.Client, baseURL, token string) *HTTPTransport {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPTransport{client: client, url: baseURL + "/api/sync", token: token}
}

// Send posts the sealed payload and buffers the response for Receive.
func (t *HTTPTransport) Send(ctx context.Context, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("%w: build request: %v", ErrTransport, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if t.token != "" {
		req.Header.Set("Authorization", "Bearer "+t.token)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: read response: %v", ErrTransport, err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: server returned %s", ErrTransport, resp.Status)
	}

	t.resp = body
	t.ready = true
	return nil
}

// Receive returns the envelope buffered by the preceding Send.
func (t *HTTPTransport) Receive(context.Context) ([]byte, error) {
	if !t.ready {
		return nil, fmt.Errorf("%w: no pending response; Send must precede Receive", ErrTransport)
	}
	t.ready = false
	return t.resp, nil
}
