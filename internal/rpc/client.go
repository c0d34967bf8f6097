package rpc

import (
	"context"
	"fmt"
	"time"

	"github.com/cozy-creator/summarize-server/pkg/tcpclient"

	"github.com/google/uuid"
)

// RemoteError is a non-OK response.
type RemoteError struct {
	Code    string
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("rpc %s: %s", e.Code, e.Message)
}

type Client struct {
	tcp *tcpclient.TCPClient
}

func NewClient(address string, timeout time.Duration, poolSize int, opts ...tcpclient.TCPClientOption) *Client {
	return &Client{tcp: tcpclient.NewTCPClient(address, timeout, poolSize, opts...)}
}

func (c *Client) call(ctx context.Context, req Request) (*Response, error) {
	req.ID = uuid.NewString()
	if d, ok := ctx.Deadline(); ok {
		req.TimeoutMs = time.Until(d).Milliseconds()
	}

	var resp Response
	if err := c.tcp.Call(ctx, &req, &resp); err != nil {
		return nil, err
	}
	if resp.Code != CodeOK {
		return &resp, &RemoteError{Code: resp.Code, Message: resp.Error}
	}
	return &resp, nil
}

func (c *Client) Ping(ctx context.Context) error {
	_, err := c.call(ctx, Request{Method: MethodPing})
	return err
}

// Health returns whether the model is loaded. An unready server is not an error.
func (c *Client) Health(ctx context.Context) (bool, error) {
	resp, err := c.call(ctx, Request{Method: MethodHealth})
	if resp != nil && resp.Code == CodeUnavailable {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return resp.ModelLoaded, nil
}

func (c *Client) Summarize(ctx context.Context, caption string) (string, error) {
	resp, err := c.call(ctx, Request{Method: MethodSummarize, Caption: caption})
	if err != nil {
		return "", err
	}
	return resp.Summary, nil
}

func (c *Client) Close() error {
	return c.tcp.Close()
}
