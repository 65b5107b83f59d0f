package proxmox

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Options tunes how a Client reaches the cluster
type Options struct {
	// Name labels log lines and metrics, defaults to the server
	Name string
	// Port of the API, defaults to 8006
	Port int
	// VerifySSL enables TLS certificate verification
	VerifySSL bool
	// Timeout per request, defaults to 30s
	Timeout time.Duration
	// BaseURL overrides https://{server}:{port}/api2/json
	BaseURL string
	// HTTPClient overrides the client built from VerifySSL and Timeout
	HTTPClient *http.Client
	Metrics    *Metrics
}

// Client talks to the Proxmox REST API with ticket authentication
type Client struct {
	transport *httpTransport
	session   *SessionManager
	metrics   *Metrics
	name      string
}

// NewClient creates an API client. Credentials are validated before any
// network activity.
func NewClient(creds Credentials, opts Options) (*Client, error) {
	if err := creds.Validate(); err != nil {
		return nil, err
	}

	port := opts.Port
	if port == 0 {
		port = DefaultPort
	}
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = fmt.Sprintf("https://%s:%d/api2/json", creds.Server, port)
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout == 0 {
			timeout = 30 * time.Second
		}
		// Self-signed certificates are the norm on PVE hosts
		transport := &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: !opts.VerifySSL},
		}
		httpClient = &http.Client{
			Timeout:   timeout,
			Transport: transport,
		}
	}

	name := opts.Name
	if name == "" {
		name = creds.Server
	}

	t := &httpTransport{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  httpClient,
	}

	return &Client{
		transport: t,
		session:   newSessionManager(creds, t, opts.Metrics, name),
		metrics:   opts.Metrics,
		name:      name,
	}, nil
}

// Session returns the client's session manager
func (c *Client) Session() *SessionManager {
	return c.session
}

// ConfirmConnection forces an authentication round trip
func (c *Client) ConfirmConnection(ctx context.Context) error {
	return c.session.ConfirmConnection(ctx)
}

// ListNodes retrieves the cluster's node listing
func (c *Client) ListNodes(ctx context.Context) ([]NodeEntry, error) {
	const path = "/nodes"

	headers, err := c.session.Headers(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := c.transport.get(ctx, path, headers)
	if err != nil {
		return nil, &CollectionError{Path: path, Err: err}
	}
	if !resp.OK() {
		c.dropSessionOnUnauthorized(resp)
		return nil, &CollectionError{Path: path, StatusCode: resp.StatusCode, Body: string(resp.Body)}
	}

	var nodes []NodeEntry
	if err := decodeData(resp.Body, &nodes); err != nil {
		return nil, &CollectionError{Path: path, StatusCode: resp.StatusCode, Err: err}
	}
	return nodes, nil
}

// ListGuests retrieves the QEMU or LXC listing of one node
func (c *Client) ListGuests(ctx context.Context, node string, kind GuestKind) ([]GuestEntry, error) {
	path := fmt.Sprintf("/nodes/%s/%s", url.PathEscape(node), kind)

	headers, err := c.session.Headers(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := c.transport.get(ctx, path, headers)
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		err := &statusError{Path: path, StatusCode: resp.StatusCode, Body: string(resp.Body)}
		if c.dropSessionOnUnauthorized(resp) {
			// A rejected ticket fails the whole poll; the next one logs in again
			return nil, &AuthenticationError{StatusCode: resp.StatusCode, Body: string(resp.Body), Err: err}
		}
		return nil, err
	}

	var guests []GuestEntry
	if err := decodeData(resp.Body, &guests); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return guests, nil
}

// dropSessionOnUnauthorized forgets an expired ticket so the next poll
// authenticates from scratch. It reports whether the ticket was rejected.
func (c *Client) dropSessionOnUnauthorized(resp *response) bool {
	if resp.StatusCode != http.StatusUnauthorized {
		return false
	}
	log.Printf("Ticket for %s rejected, session dropped", c.name)
	c.session.Invalidate()
	return true
}

// response is a fully read HTTP answer
type response struct {
	StatusCode int
	Body       []byte
}

// OK reports a 2xx status
func (r *response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// httpTransport performs requests relative to the API base URL
type httpTransport struct {
	baseURL string
	client  *http.Client
}

func (t *httpTransport) postForm(ctx context.Context, path string, form url.Values) (*response, error) {
	header := make(http.Header)
	header.Set("Content-Type", "application/x-www-form-urlencoded")
	return t.do(ctx, http.MethodPost, path, strings.NewReader(form.Encode()), header)
}

func (t *httpTransport) get(ctx context.Context, path string, header http.Header) (*response, error) {
	return t.do(ctx, http.MethodGet, path, nil, header)
}

func (t *httpTransport) do(ctx context.Context, method, path string, body io.Reader, header http.Header) (*response, error) {
	req, err := http.NewRequestWithContext(ctx, method, t.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for key, values := range header {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	return &response{StatusCode: resp.StatusCode, Body: data}, nil
}
