package rpc

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"
)

// ErrClientBroken is returned by Call after a transport failure has left
// the connection's request/response stream out of sync. The client must
// be closed and redialed.
var ErrClientBroken = errors.New("rpc: connection broken, redial required")

// Client is a lightweight JSON-over-TCP RPC client. Calls on one client
// are serialised over a single connection; dial one client per goroutine
// for concurrent call streams.
type Client struct {
	conn    net.Conn
	encoder *json.Encoder
	decoder *json.Decoder
	timeout time.Duration
	mu      sync.Mutex
	nextID  int64
	broken  bool
}

// Dial connects to an RPC server at the given address.
func Dial(addr string) (*Client, error) {
	return DialTimeout(addr, 0)
}

// DialTimeout connects to an RPC server at the given address and applies
// timeout both to the dial and to every subsequent Call. Zero disables
// deadlines.
func DialTimeout(addr string, timeout time.Duration) (*Client, error) {
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", addr, err)
	}
	return &Client{
		conn:    conn,
		encoder: json.NewEncoder(conn),
		decoder: json.NewDecoder(conn),
		timeout: timeout,
	}, nil
}

// Call invokes the named RPC method with params and decodes the response
// into result. Call is safe for concurrent use. A transport or framing
// failure marks the client broken: the in-flight response can no longer
// be matched to its request, so every later Call fails with
// ErrClientBroken until the caller redials.
func (c *Client) Call(method string, params any, result any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.broken {
		return ErrClientBroken
	}

	raw, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("marshaling params: %w", err)
	}

	c.nextID++
	req := Request{
		Method: method,
		ID:     strconv.FormatInt(c.nextID, 10),
		Params: raw,
	}

	if c.timeout > 0 {
		if err := c.conn.SetDeadline(time.Now().Add(c.timeout)); err != nil {
			return fmt.Errorf("setting deadline: %w", err)
		}
	}

	if err := c.encoder.Encode(req); err != nil {
		c.broken = true
		return fmt.Errorf("sending request: %w", err)
	}

	var resp Response
	if err := c.decoder.Decode(&resp); err != nil {
		c.broken = true
		return fmt.Errorf("reading response: %w", err)
	}
	if resp.ID != req.ID {
		c.broken = true
		return fmt.Errorf("response id %q does not match request id %q", resp.ID, req.ID)
	}

	if resp.Error != "" {
		return fmt.Errorf("rpc error: %s", resp.Error)
	}

	if result != nil {
		data, err := json.Marshal(resp.Data)
		if err != nil {
			return fmt.Errorf("marshaling response data: %w", err)
		}
		if err := json.Unmarshal(data, result); err != nil {
			return fmt.Errorf("unmarshaling into result: %w", err)
		}
	}

	return nil
}

// Close closes the underlying TCP connection.
func (c *Client) Close() error {
	return c.conn.Close()
}
