package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

const (
	apiRegister = "/api/register"
	apiLogin    = "/api/login"
	apiSalt     = "/api/sync/salt"
)

// API calls the server's account endpoints.
type API struct {
	client  *http.Client
	baseURL string
}

// NewAPI returns an API rooted at baseURL. A nil client falls back to
// http.DefaultClient.
func NewAPI(client *http.Client, baseURL string) *API {
	if client == nil {
		client = http.DefaultClient
	}
	return &API{client: client, baseURL: baseURL}
}

type credentials struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

// Register creates a server account.
func (a *API) Register(ctx context.Context, login, password string) error {
	resp, err := a.post(ctx, apiRegister, credentials{Login: login, Password: password})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusCreated:
		return nil
	case http.StatusConflict:
		return fmt.Errorf("login %q is already taken", login)
	default:
		return fmt.Errorf("register: unexpected status %s", resp.Status)
	}
}

// Login exchanges account credentials for a session token.
func (a *API) Login(ctx context.Context, login, password string) (string, error) {
	resp, err := a.post(ctx, apiLogin, credentials{Login: login, Password: password})
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("login: unexpected status %s", resp.Status)
	}

	var out struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&out); err != nil {
		return "", fmt.Errorf("login: decode response: %w", err)
	}
	if out.Token == "" {
		return "", fmt.Errorf("login: empty token in response")
	}
	return out.Token, nil
}

// Salt fetches the server replica's credential salt. Every replica must
// derive its key from this one salt or the shared credential produces
// keys that cannot open each other's envelopes.
func (a *API) Salt(ctx context.Context, token string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+apiSalt, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", apiSalt, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("salt: unexpected status %s", resp.Status)
	}

	var out struct {
		Salt []byte `json:"salt"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&out); err != nil {
		return nil, fmt.Errorf("salt: decode response: %w", err)
	}
	if len(out.Salt) == 0 {
		return nil, fmt.Errorf("salt: empty salt in response")
	}
	return out.Salt, nil
}

func (a *API) post(ctx context.Context, path string, body any) (*http.Response, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", path, err)
	}
	return resp, nil
}
