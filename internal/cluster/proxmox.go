package cluster

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/powerfold/powerfold/internal/config"
	"github.com/powerfold/powerfold/internal/flow"
	"github.com/powerfold/powerfold/internal/logging"
)

// ProxmoxClient implements Gateway against the Proxmox VE REST API using
// API-token authentication over a single cluster endpoint.
type ProxmoxClient struct {
	baseURL    string
	authHeader string
	httpClient *http.Client
	logger     *logging.Logger
}

// NewProxmoxClient creates a Gateway for the configured cluster endpoint
func NewProxmoxClient(cfg config.ClusterConfig, logger *logging.Logger) *ProxmoxClient {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.InsecureTLS {
		// Private management network; certificates are typically self-signed.
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	return &ProxmoxClient{
		baseURL:    strings.TrimRight(cfg.APIURL, "/"),
		authHeader: fmt.Sprintf("PVEAPIToken=%s=%s", cfg.TokenID, cfg.TokenSecret),
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   cfg.HTTPTimeout,
		},
		logger: logger,
	}
}

// nodeStatus mirrors the /nodes listing entries
type nodeStatus struct {
	Node   string `json:"node"`
	Status string `json:"status"`
}

// guestStatus mirrors the per-node /qemu and /lxc listing entries.
// Proxmox reports vmid as a number for qemu and a string for lxc, so it is
// decoded leniently.
type guestStatus struct {
	VMID   json.Number `json:"vmid"`
	Name   string      `json:"name"`
	Status string      `json:"status"`
}

// resourceStatus mirrors the /cluster/resources entries
type resourceStatus struct {
	Type   string `json:"type"`
	Status string `json:"status"`
}

// cephStatus mirrors the health portion of /cluster/ceph/status
type cephStatus struct {
	Health struct {
		Status string `json:"status"`
	} `json:"health"`
}

func (c *ProxmoxClient) ListNodes(ctx context.Context) ([]Node, error) {
	var raw []nodeStatus
	if err := c.get(ctx, "/nodes", &raw); err != nil {
		return nil, err
	}

	nodes := make([]Node, 0, len(raw))
	for _, n := range raw {
		nodes = append(nodes, Node{Name: n.Node, Online: n.Status == "online"})
	}
	return nodes, nil
}

func (c *ProxmoxClient) ListGuests(ctx context.Context, node string, kind GuestKind) ([]Guest, error) {
	var raw []guestStatus
	path := fmt.Sprintf("/nodes/%s/%s", url.PathEscape(node), kind)
	if err := c.get(ctx, path, &raw); err != nil {
		return nil, err
	}

	guests := make([]Guest, 0, len(raw))
	for _, g := range raw {
		id, err := g.VMID.Int64()
		if err != nil {
			return nil, flow.WrapError(flow.KindGatewayUnavailable,
				fmt.Sprintf("malformed vmid %q on node %s", g.VMID, node), err)
		}
		guests = append(guests, Guest{
			ID:      int(id),
			Name:    g.Name,
			Kind:    kind,
			Node:    node,
			Running: g.Status == "running",
		})
	}
	return guests, nil
}

func (c *ProxmoxClient) CountRunningGuests(ctx context.Context) (int, error) {
	var raw []resourceStatus
	if err := c.get(ctx, "/cluster/resources?type=vm", &raw); err != nil {
		return 0, err
	}

	count := 0
	for _, r := range raw {
		if r.Status == "running" {
			count++
		}
	}
	return count, nil
}

func (c *ProxmoxClient) StartGuest(ctx context.Context, node string, kind GuestKind, id int) error {
	path := fmt.Sprintf("/nodes/%s/%s/%d/status/start", url.PathEscape(node), kind, id)
	return c.post(ctx, path, nil)
}

func (c *ProxmoxClient) StopGuest(ctx context.Context, node string, kind GuestKind, id int) error {
	path := fmt.Sprintf("/nodes/%s/%s/%d/status/stop", url.PathEscape(node), kind, id)
	return c.post(ctx, path, nil)
}

func (c *ProxmoxClient) StartAll(ctx context.Context, node string) error {
	return c.post(ctx, fmt.Sprintf("/nodes/%s/startall", url.PathEscape(node)), nil)
}

func (c *ProxmoxClient) ShutdownNode(ctx context.Context, node string) error {
	path := fmt.Sprintf("/nodes/%s/status", url.PathEscape(node))
	return c.post(ctx, path, url.Values{"command": {"shutdown"}})
}

func (c *ProxmoxClient) SetHealingFlags(ctx context.Context, suppress bool) error {
	value := "0"
	if suppress {
		value = "1"
	}

	var failed []string
	for _, flag := range HealingFlags {
		path := fmt.Sprintf("/cluster/ceph/flags/%s", flag)
		if err := c.put(ctx, path, url.Values{"value": {value}}); err != nil {
			c.logger.Error("Failed to toggle healing flag",
				"flag", flag, "suppress", suppress, "error", err)
			failed = append(failed, flag)
		}
	}

	if len(failed) > 0 {
		return flow.NewErrorWithDetails(flow.KindHealingFlagFailure,
			fmt.Sprintf("failed to toggle healing flags: %s", strings.Join(failed, ", ")),
			map[string]interface{}{"flags": failed, "suppress": suppress})
	}
	return nil
}

func (c *ProxmoxClient) HealthOK(ctx context.Context) (bool, error) {
	var raw cephStatus
	if err := c.get(ctx, "/cluster/ceph/status", &raw); err != nil {
		return false, err
	}
	return raw.Health.Status == "HEALTH_OK", nil
}

// get issues a GET and decodes the {"data": ...} envelope into out
func (c *ProxmoxClient) get(ctx context.Context, path string, out interface{}) error {
	return c.do(ctx, http.MethodGet, path, nil, out)
}

// post issues a POST with optional form values
func (c *ProxmoxClient) post(ctx context.Context, path string, form url.Values) error {
	return c.do(ctx, http.MethodPost, path, form, nil)
}

// put issues a PUT with optional form values
func (c *ProxmoxClient) put(ctx context.Context, path string, form url.Values) error {
	return c.do(ctx, http.MethodPut, path, form, nil)
}

func (c *ProxmoxClient) do(ctx context.Context, method, path string, form url.Values, out interface{}) error {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return flow.WrapError(flow.KindGatewayUnavailable, "building cluster API request", err)
	}
	req.Header.Set("Authorization", c.authHeader)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return flow.WrapError(flow.KindGatewayUnavailable,
			fmt.Sprintf("cluster API %s %s", method, path), err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return flow.NewErrorWithDetails(flow.KindGatewayUnavailable,
			fmt.Sprintf("cluster API %s %s returned %s", method, path, resp.Status),
			map[string]interface{}{"status": resp.StatusCode})
	}

	if out == nil {
		// Drain so the connection can be reused
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return flow.WrapError(flow.KindGatewayUnavailable,
			fmt.Sprintf("decoding cluster API %s response", path), err)
	}

	if err := json.Unmarshal(envelope.Data, out); err != nil {
		return flow.WrapError(flow.KindGatewayUnavailable,
			fmt.Sprintf("decoding cluster API %s payload", path), err)
	}
	return nil
}
