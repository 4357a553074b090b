package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"proxy-fleet/pkg/model"
)

// Client talks to the engine's external controller over HTTP. The secret, if
// set, is sent as a bearer token on every request.
type Client struct {
	base   string
	secret string
	hc     *http.Client
}

func NewClient(baseURL, secret string) *Client {
	return &Client{
		base:   strings.TrimRight(baseURL, "/"),
		secret: secret,
		hc:     &http.Client{},
	}
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, payload, out interface{}) error {
	u := c.base + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	var body *bytes.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	} else {
		body = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.secret != "" {
		req.Header.Set("Authorization", "Bearer "+c.secret)
	}
	resp, err := c.hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("engine: %s %s: unexpected status %d", method, path, resp.StatusCode)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func delayQuery(testURL string, timeoutMs int) url.Values {
	q := url.Values{}
	q.Set("url", testURL)
	q.Set("timeout", strconv.Itoa(timeoutMs))
	return q
}

// Proxies fetches the full proxy map, groups included.
func (c *Client) Proxies(ctx context.Context) (map[string]model.ProxyNode, error) {
	var resp struct {
		Proxies map[string]model.ProxyNode `json:"proxies"`
	}
	if err := c.do(ctx, http.MethodGet, "/proxies", nil, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Proxies, nil
}

// Providers fetches the proxy provider map.
func (c *Client) Providers(ctx context.Context) (map[string]model.ProxyProvider, error) {
	var resp struct {
		Providers map[string]model.ProxyProvider `json:"providers"`
	}
	if err := c.do(ctx, http.MethodGet, "/providers/proxies", nil, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Providers, nil
}

// TestNodeDelay runs a single-node delay test. Provider-supplied nodes go
// through the provider health-check route, config-owned nodes through the
// plain delay route; both return the measured delay in milliseconds.
func (c *Client) TestNodeDelay(ctx context.Context, node, provider, testURL string, timeoutMs int) (int, error) {
	path := "/proxies/" + url.PathEscape(node) + "/delay"
	if provider != "" {
		path = "/providers/proxies/" + url.PathEscape(provider) + "/" + url.PathEscape(node) + "/healthcheck"
	}
	var resp struct {
		Delay int `json:"delay"`
	}
	if err := c.do(ctx, http.MethodGet, path, delayQuery(testURL, timeoutMs), nil, &resp); err != nil {
		return 0, err
	}
	return resp.Delay, nil
}

// TestGroupDelay asks the engine to test every member of a group; member
// results land in the proxy histories and are picked up by the next refresh.
func (c *Client) TestGroupDelay(ctx context.Context, group, testURL string, timeoutMs int) error {
	return c.do(ctx, http.MethodGet, "/group/"+url.PathEscape(group)+"/delay", delayQuery(testURL, timeoutMs), nil, nil)
}

// UpdateProvider triggers a provider refetch on the engine side.
func (c *Client) UpdateProvider(ctx context.Context, name string) error {
	return c.do(ctx, http.MethodPut, "/providers/proxies/"+url.PathEscape(name), nil, nil, nil)
}

// HealthCheckProvider triggers a health check across a provider's nodes.
func (c *Client) HealthCheckProvider(ctx context.Context, name string) error {
	return c.do(ctx, http.MethodGet, "/providers/proxies/"+url.PathEscape(name)+"/healthcheck", nil, nil, nil)
}

// SelectGroupMember switches the selected member of a selector group.
func (c *Client) SelectGroupMember(ctx context.Context, group, node string) error {
	return c.do(ctx, http.MethodPut, "/proxies/"+url.PathEscape(group), nil, map[string]string{"name": node}, nil)
}

// Connections fetches the live connection list.
func (c *Client) Connections(ctx context.Context) (model.ConnectionsSnapshot, error) {
	var out model.ConnectionsSnapshot
	err := c.do(ctx, http.MethodGet, "/connections", nil, nil, &out)
	return out, err
}

// CloseConnection closes one tracked connection by id.
func (c *Client) CloseConnection(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/connections/"+url.PathEscape(id), nil, nil, nil)
}
