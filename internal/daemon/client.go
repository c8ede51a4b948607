package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"sync/atomic"
	"time"
)

// Client connects to the daemon for index/search/status operations.
type Client struct {
	socketPath string
	timeout    time.Duration
	requestID  atomic.Uint64
}

// NewClient creates a new daemon client.
func NewClient(cfg Config) *Client {
	return &Client{
		socketPath: cfg.SocketPath,
		timeout:    cfg.Timeout,
	}
}

// Connect establishes a connection to the daemon.
func (c *Client) Connect() (net.Conn, error) {
	conn, err := net.DialTimeout("unix", c.socketPath, c.timeout)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to daemon: %w", err)
	}
	return conn, nil
}

// IsRunning checks if the daemon is accepting connections.
func (c *Client) IsRunning() bool {
	conn, err := c.Connect()
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

// Ping checks if the daemon is responsive.
func (c *Client) Ping(ctx context.Context) error {
	conn, err := c.dialWithDeadline(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	req := Request{JSONRPC: "2.0", Method: MethodPing, ID: c.nextID()}
	if err := c.send(conn, req); err != nil {
		return err
	}
	resp, err := c.receive(conn)
	if err != nil {
		return err
	}
	if resp.Error != nil {
		return fmt.Errorf("ping failed: %s", resp.Error.Message)
	}
	return nil
}

// Index sends an index request to the daemon.
func (c *Client) Index(ctx context.Context, params IndexParams) (*IndexResult, error) {
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}

	conn, err := c.dialWithDeadline(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	req := Request{JSONRPC: "2.0", Method: MethodIndex, Params: params, ID: c.nextID()}
	if err := c.send(conn, req); err != nil {
		return nil, err
	}
	resp, err := c.receive(conn)
	if err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("index failed: %s (code: %d)", resp.Error.Message, resp.Error.Code)
	}

	var result IndexResult
	if err := remarshal(resp.Result, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Search sends a search request to the daemon.
func (c *Client) Search(ctx context.Context, params SearchParams) ([]SearchResult, error) {
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}

	conn, err := c.dialWithDeadline(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	req := Request{JSONRPC: "2.0", Method: MethodSearch, Params: params, ID: c.nextID()}
	if err := c.send(conn, req); err != nil {
		return nil, err
	}
	resp, err := c.receive(conn)
	if err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("search failed: %s (code: %d)", resp.Error.Message, resp.Error.Code)
	}

	var results []SearchResult
	if err := remarshal(resp.Result, &results); err != nil {
		return nil, err
	}
	return results, nil
}

// Status retrieves daemon status.
func (c *Client) Status(ctx context.Context) (*StatusResult, error) {
	conn, err := c.dialWithDeadline(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	req := Request{JSONRPC: "2.0", Method: MethodStatus, ID: c.nextID()}
	if err := c.send(conn, req); err != nil {
		return nil, err
	}
	resp, err := c.receive(conn)
	if err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("status failed: %s", resp.Error.Message)
	}

	var status StatusResult
	if err := remarshal(resp.Result, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

func (c *Client) dialWithDeadline(ctx context.Context) (net.Conn, error) {
	conn, err := c.Connect()
	if err != nil {
		return nil, err
	}

	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetDeadline(deadline); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to set deadline: %w", err)
	}
	return conn, nil
}

func (c *Client) send(conn net.Conn, req Request) error {
	if err := json.NewEncoder(conn).Encode(req); err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	return nil
}

func (c *Client) receive(conn net.Conn) (*Response, error) {
	var resp Response
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		return nil, fmt.Errorf("failed to receive response: %w", err)
	}
	return &resp, nil
}

func (c *Client) nextID() string {
	id := c.requestID.Add(1)
	return fmt.Sprintf("req-%d", id)
}

// remarshal round-trips v through JSON to decode an `any`-typed RPC
// result field into a concrete struct.
func remarshal(v any, out any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode result: %w", err)
	}
	return nil
}
