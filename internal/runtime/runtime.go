// Package runtime talks to the tensor runtime process that owns model weights
// and executes encoder/decoder forward passes.
package runtime

import (
	"context"
	"fmt"
	"time"

	"github.com/cozy-creator/summarize-server/internal/config"
	"github.com/cozy-creator/summarize-server/pkg/tcpclient"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Inference is the per-request surface used by the decoding loop.
type Inference interface {
	Encode(ctx context.Context, req EncodeRequest) (string, error)
	Step(ctx context.Context, req StepRequest) ([][]Candidate, error)
	Release(ctx context.Context, handle, session string) error
}

// Backend is the full runtime surface: placement, lifecycle and training.
type Backend interface {
	Inference
	Ping(ctx context.Context) error
	Devices(ctx context.Context) ([]Device, error)
	Load(ctx context.Context, req LoadRequest) (*ModelInfo, error)
	Unload(ctx context.Context, handle string) error
	Train(ctx context.Context, req TrainRequest) (*TrainResult, error)
	Close() error
}

type Client struct {
	tcp    *tcpclient.TCPClient
	logger *zap.Logger
}

var _ Backend = (*Client)(nil)

func NewClient(cfg *config.RuntimeConfig, logger *zap.Logger) *Client {
	address := config.DefaultRuntimeAddress
	timeout := time.Duration(config.DefaultRuntimeTimeout) * time.Second
	poolSize := config.DefaultRuntimePoolSize
	if cfg != nil {
		if cfg.Address != "" {
			address = cfg.Address
		}
		if cfg.Timeout > 0 {
			timeout = time.Duration(cfg.Timeout) * time.Second
		}
		if cfg.PoolSize > 0 {
			poolSize = cfg.PoolSize
		}
	}

	return &Client{
		tcp:    tcpclient.NewTCPClient(address, timeout, poolSize, tcpclient.WithLogger(logger)),
		logger: logger,
	}
}

func (c *Client) call(ctx context.Context, req request) (*response, error) {
	req.ID = uuid.NewString()

	var resp response
	if err := c.tcp.Call(ctx, req, &resp); err != nil {
		return nil, fmt.Errorf("%w: %s %s: %w", ErrUnavailable, req.Op, c.tcp.Address(), err)
	}

	if !resp.OK {
		return nil, &RemoteError{Op: req.Op, Code: resp.Code, Message: resp.Error}
	}

	return &resp, nil
}

func (c *Client) Ping(ctx context.Context) error {
	_, err := c.call(ctx, request{Op: OpPing})
	return err
}

func (c *Client) Devices(ctx context.Context) ([]Device, error) {
	resp, err := c.call(ctx, request{Op: OpDevices})
	if err != nil {
		return nil, err
	}
	return resp.Devices, nil
}

func (c *Client) Load(ctx context.Context, req LoadRequest) (*ModelInfo, error) {
	resp, err := c.call(ctx, request{Op: OpLoad, Load: &req})
	if err != nil {
		return nil, err
	}
	if resp.Model == nil || resp.Model.Handle == "" {
		return nil, &RemoteError{Op: OpLoad, Message: "response carried no model handle"}
	}

	c.logger.Info("Runtime loaded model",
		zap.String("handle", resp.Model.Handle),
		zap.String("device", resp.Model.Device),
		zap.Bool("reentrant", resp.Model.Reentrant),
	)
	return resp.Model, nil
}

func (c *Client) Unload(ctx context.Context, handle string) error {
	_, err := c.call(ctx, request{Op: OpUnload, Handle: handle})
	return err
}

func (c *Client) Encode(ctx context.Context, req EncodeRequest) (string, error) {
	resp, err := c.call(ctx, request{Op: OpEncode, Handle: req.Handle, Encode: &req})
	if err != nil {
		return "", err
	}
	if resp.Session == "" {
		return "", &RemoteError{Op: OpEncode, Message: "response carried no session"}
	}
	return resp.Session, nil
}

func (c *Client) Step(ctx context.Context, req StepRequest) ([][]Candidate, error) {
	resp, err := c.call(ctx, request{Op: OpStep, Handle: req.Handle, Session: req.Session, Step: &req})
	if err != nil {
		return nil, err
	}
	if len(resp.Candidates) != len(req.Prefixes) {
		return nil, &RemoteError{
			Op:      OpStep,
			Code:    CodeInvalidInput,
			Message: fmt.Sprintf("expected candidates for %d prefixes, got %d", len(req.Prefixes), len(resp.Candidates)),
		}
	}
	return resp.Candidates, nil
}

func (c *Client) Release(ctx context.Context, handle, session string) error {
	_, err := c.call(ctx, request{Op: OpRelease, Handle: handle, Session: session})
	return err
}

func (c *Client) Train(ctx context.Context, req TrainRequest) (*TrainResult, error) {
	resp, err := c.call(ctx, request{Op: OpTrain, Train: &req})
	if err != nil {
		return nil, err
	}
	if resp.Train == nil {
		return nil, &RemoteError{Op: OpTrain, Message: "response carried no training result"}
	}
	return resp.Train, nil
}

func (c *Client) Close() error {
	return c.tcp.Close()
}
