package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/volantvm/mavproxy/internal/mavproxy/endpoint"
	"github.com/volantvm/mavproxy/internal/mavproxy/eventbus"
	"github.com/volantvm/mavproxy/internal/mavproxy/httpapi"
	"github.com/volantvm/mavproxy/internal/mavproxy/manager"
)

// Client wraps REST access to the mavproxyd API.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
}

// New creates a client with the provided base URL (e.g. http://127.0.0.1:6040).
func New(rawURL string) (*Client, error) {
	if rawURL == "" {
		rawURL = "http://127.0.0.1:6040"
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("client: parse url: %w", err)
	}
	return &Client{
		baseURL: parsed,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}, nil
}

type (
	RouterInfo      = manager.RouterInfo
	Status          = manager.Status
	RouterEvent     = eventbus.RouterEvent
	CommandResponse = httpapi.CommandResponse
)

func (c *Client) ListRouters(ctx context.Context) ([]RouterInfo, error) {
	var out []RouterInfo
	return out, c.call(ctx, http.MethodGet, "/api/v1/routers", nil, &out)
}

func (c *Client) SetPreferredRouter(ctx context.Context, name string) error {
	return c.call(ctx, http.MethodPut, "/api/v1/routers/preferred", httpapi.PreferredRequest{Name: name}, nil)
}

func (c *Client) ListEndpoints(ctx context.Context) ([]endpoint.Endpoint, error) {
	var out []endpoint.Endpoint
	return out, c.call(ctx, http.MethodGet, "/api/v1/endpoints", nil, &out)
}

func (c *Client) AddEndpoint(ctx context.Context, e endpoint.Endpoint) (*endpoint.Endpoint, error) {
	var out endpoint.Endpoint
	if err := c.call(ctx, http.MethodPost, "/api/v1/endpoints", e, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) RemoveEndpoint(ctx context.Context, name string) error {
	return c.call(ctx, http.MethodDelete, "/api/v1/endpoints/"+url.PathEscape(name), nil, nil)
}

func (c *Client) GetMaster(ctx context.Context) (*endpoint.Endpoint, error) {
	var out endpoint.Endpoint
	if err := c.call(ctx, http.MethodGet, "/api/v1/master", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) SetMaster(ctx context.Context, e endpoint.Endpoint) (*endpoint.Endpoint, error) {
	var out endpoint.Endpoint
	if err := c.call(ctx, http.MethodPut, "/api/v1/master", e, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Status(ctx context.Context) (*Status, error) {
	var out Status
	if err := c.call(ctx, http.MethodGet, "/api/v1/router/status", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Command(ctx context.Context) (*CommandResponse, error) {
	var out CommandResponse
	if err := c.call(ctx, http.MethodGet, "/api/v1/router/command", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Control posts start, stop or restart to the router.
func (c *Client) Control(ctx context.Context, action string) (*Status, error) {
	switch action {
	case "start", "stop", "restart":
	default:
		return nil, fmt.Errorf("client: unknown router action %q", action)
	}
	var out Status
	if err := c.call(ctx, http.MethodPost, "/api/v1/router/"+action, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// WatchEvents streams router events and invokes handler for each until the
// context is cancelled or the server closes the connection.
func (c *Client) WatchEvents(ctx context.Context, handler func(RouterEvent)) error {
	wsURL := *c.baseURL.ResolveReference(&url.URL{Path: "/api/v1/events"})
	switch wsURL.Scheme {
	case "https":
		wsURL.Scheme = "wss"
	default:
		wsURL.Scheme = "ws"
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL.String(), nil)
	if err != nil {
		return fmt.Errorf("client: watch events: %w", err)
	}
	defer conn.Close()

	go func() {
		<-ctx.Done()
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		_ = conn.Close()
	}()

	for {
		var evt RouterEvent
		if err := conn.ReadJSON(&evt); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("client: event stream error: %w", err)
		}
		if handler != nil {
			handler(evt)
		}
	}
}

func (c *Client) call(ctx context.Context, method, path string, body, out any) error {
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	resolved := c.baseURL.ResolveReference(&url.URL{Path: path})
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, fmt.Errorf("client: encode body: %w", err)
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, resolved.String(), &buf)
	if err != nil {
		return nil, fmt.Errorf("client: new request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// APIError carries a non-2xx response.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("client: http %d", e.Status)
	}
	return fmt.Sprintf("client: http %d: %s", e.Status, e.Message)
}

// IsStatus reports whether err is an APIError with the given status.
func IsStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == status
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("client: do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var apiErr map[string]any
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err != nil {
			return &APIError{Status: resp.StatusCode}
		}
		msg, _ := apiErr["error"].(string)
		return &APIError{Status: resp.StatusCode, Message: strings.TrimSpace(msg)}
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("client: decode response: %w", err)
	}
	return nil
}
