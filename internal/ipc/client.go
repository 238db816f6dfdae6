package ipc

import (
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"time"
)

const dialTimeout = 2 * time.Second

// Client provides RPC access to the daemon.
type Client struct {
	conn   net.Conn
	client *rpc.Client
}

// Dial connects to the IPC server at the given socket path.
func Dial(path string) (*Client, error) {
	conn, err := net.DialTimeout("unix", path, dialTimeout)
	if err != nil {
		return nil, err
	}
	rpcClient := rpc.NewClientWithCodec(jsonrpc.NewClientCodec(conn))
	return &Client{conn: conn, client: rpcClient}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	if c.client != nil {
		_ = c.client.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

func (c *Client) call(method string, req, resp any) error {
	return c.client.Call(ServiceName+"."+method, req, resp)
}

// Status retrieves the daemon status.
func (c *Client) Status() (*StatusResponse, error) {
	var resp StatusResponse
	if err := c.call("Status", StatusRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Enable starts supervising the companion.
func (c *Client) Enable() (*EnableResponse, error) {
	var resp EnableResponse
	if err := c.call("Enable", EnableRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Disable stops supervision and releases every subscription.
func (c *Client) Disable() (*DisableResponse, error) {
	var resp DisableResponse
	if err := c.call("Disable", DisableRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Notify forwards a shell notification. Pass a nil stack to keep the current
// modal stack snapshot.
func (c *Client) Notify(kind string, stack []string) (*NotifyResponse, error) {
	var resp NotifyResponse
	if err := c.call("Notify", NotifyRequest{Kind: kind, Stack: stack}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// NextCommand waits up to wait for the next shell instruction.
func (c *Client) NextCommand(wait time.Duration) (*NextCommandResponse, error) {
	var resp NextCommandResponse
	req := NextCommandRequest{WaitMillis: int(wait / time.Millisecond)}
	if wait < 0 {
		req.WaitMillis = -1
	}
	if err := c.call("NextCommand", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// History returns up to limit recorded events, newest first.
func (c *Client) History(limit int) (*HistoryResponse, error) {
	var resp HistoryResponse
	if err := c.call("History", HistoryRequest{Limit: limit}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// LogTail returns log lines from the daemon.
func (c *Client) LogTail(req LogTailRequest) (*LogTailResponse, error) {
	var resp LogTailResponse
	if err := c.call("LogTail", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// TestNotification asks the daemon to send a test alert.
func (c *Client) TestNotification() (*TestNotificationResponse, error) {
	var resp TestNotificationResponse
	if err := c.call("TestNotification", TestNotificationRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Shutdown asks the daemon process to exit.
func (c *Client) Shutdown() (*ShutdownResponse, error) {
	var resp ShutdownResponse
	if err := c.call("Shutdown", ShutdownRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
