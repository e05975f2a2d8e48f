package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dmitrijs2005/greenmission/internal/client/models"
	"github.com/dmitrijs2005/greenmission/internal/common"
)

const maxResponseBody = 1 << 20

type HTTPClient struct {
	baseURL string
	http    *http.Client
}

var _ API = (*HTTPClient)(nil)

// NewHTTPClient returns a client for the API rooted at baseURL,
// e.g. "http://localhost:8080/api".
func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

func (c *HTTPClient) Exchange(ctx context.Context, idToken string) (*ExchangeResult, error) {
	var res ExchangeResult
	body := map[string]string{"id_token": idToken}
	if err := c.do(ctx, http.MethodPost, "/auth/login", "", body, &res); err != nil {
		return nil, err
	}
	if res.Token == "" || res.User == nil {
		return nil, fmt.Errorf("%w: incomplete login response", ErrServer)
	}
	return &res, nil
}

// LoginNGO signs an NGO in with its email and password.
func (c *HTTPClient) LoginNGO(ctx context.Context, email, password string) (*ExchangeResult, error) {
	body := map[string]string{"email": email, "password": password}
	return c.credential(ctx, "/auth/ngo/login", body)
}

// RegisterNGO creates an NGO account and returns its first credential.
func (c *HTTPClient) RegisterNGO(ctx context.Context, name, email, password string) (*ExchangeResult, error) {
	body := map[string]string{"name": name, "email": email, "password": password}
	return c.credential(ctx, "/auth/ngo/register", body)
}

func (c *HTTPClient) credential(ctx context.Context, path string, body any) (*ExchangeResult, error) {
	var res ExchangeResult
	if err := c.do(ctx, http.MethodPost, path, "", body, &res); err != nil {
		return nil, err
	}
	if res.Token == "" || res.User == nil {
		return nil, fmt.Errorf("%w: incomplete login response", ErrServer)
	}
	return &res, nil
}

func (c *HTTPClient) Me(ctx context.Context, token string) (*models.Profile, error) {
	var p models.Profile
	if err := c.do(ctx, http.MethodGet, "/me", token, nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *HTTPClient) PatchProfile(ctx context.Context, token string, patch ProfilePatch) (*models.Profile, error) {
	var p models.Profile
	if err := c.do(ctx, http.MethodPatch, "/me", token, patch, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *HTTPClient) Logout(ctx context.Context, token string) error {
	return c.do(ctx, http.MethodPost, "/logout", token, nil, nil)
}

func (c *HTTPClient) AvatarUploadURL(ctx context.Context, token, contentType string) (*AvatarUpload, error) {
	var u AvatarUpload
	body := map[string]string{"content_type": contentType}
	if err := c.do(ctx, http.MethodPost, "/me/avatar", token, body, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

func (c *HTTPClient) do(ctx context.Context, method, path, token string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build %s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set(common.AuthorizationHeader, common.BearerPrefix+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return fmt.Errorf("%w: read body: %v", ErrUnavailable, err)
	}

	var env envelope
	decodeErr := json.Unmarshal(raw, &env)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{StatusCode: resp.StatusCode, Message: env.Message}
	}
	if decodeErr != nil {
		return fmt.Errorf("%w: decode %s %s: %v", ErrServer, method, path, decodeErr)
	}
	if !env.Success {
		return &APIError{StatusCode: resp.StatusCode, Message: env.Message}
	}
	if out == nil || len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("%w: decode data: %v", ErrServer, err)
	}
	return nil
}
