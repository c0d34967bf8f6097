package tcpclient

import (
	"bufio"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/cozy-creator/summarize-server/pkg/wire"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

var (
	ErrConnectionClosed = errors.New("connection is closed")
	ErrTimeout          = errors.New("operation timed out")
)

// slot holds one pooled connection. A nil conn is dialed on first use.
type slot struct {
	conn   net.Conn
	reader *bufio.Reader
}

type TCPClient struct {
	address    string
	timeout    time.Duration
	maxRetries uint64
	slots      chan *slot
	tlsConfig  *tls.Config
	dialer     func(ctx context.Context) (net.Conn, error)
	logger     *zap.Logger
	mu         sync.Mutex
	closed     bool
}

type TCPClientOption func(*TCPClient)

func WithTLS(config *tls.Config) TCPClientOption {
	return func(c *TCPClient) {
		c.tlsConfig = config
	}
}

func WithLogger(logger *zap.Logger) TCPClientOption {
	return func(c *TCPClient) {
		c.logger = logger
	}
}

func WithMaxRetries(n uint64) TCPClientOption {
	return func(c *TCPClient) {
		c.maxRetries = n
	}
}

// NewTCPClient creates a lazily dialed pool of poolSize connections. Each
// connection carries one request/response exchange at a time.
func NewTCPClient(address string, timeout time.Duration, poolSize int, opts ...TCPClientOption) *TCPClient {
	if poolSize <= 0 {
		poolSize = 1
	}

	client := &TCPClient{
		address:    address,
		timeout:    timeout,
		maxRetries: 3,
		slots:      make(chan *slot, poolSize),
		logger:     zap.NewNop(),
	}

	for _, opt := range opts {
		opt(client)
	}

	for i := 0; i < poolSize; i++ {
		client.slots <- &slot{}
	}

	return client
}

func (c *TCPClient) Address() string {
	return c.address
}

func (c *TCPClient) dial(ctx context.Context) (net.Conn, error) {
	if c.dialer != nil {
		return c.dialer(ctx)
	}

	dialer := &net.Dialer{Timeout: c.timeout}
	if c.tlsConfig != nil {
		td := &tls.Dialer{NetDialer: dialer, Config: c.tlsConfig}
		return td.DialContext(ctx, "tcp", c.address)
	}
	return dialer.DialContext(ctx, "tcp", c.address)
}

// dialWithRetry is the only retried step: nothing has been sent yet.
func (c *TCPClient) dialWithRetry(ctx context.Context) (net.Conn, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxInterval = 2 * time.Second

	attempt := 0
	var conn net.Conn
	err := backoff.Retry(func() error {
		attempt++
		var err error
		conn, err = c.dial(ctx)
		if err != nil {
			c.logger.Warn("Failed to dial, retrying", zap.String("address", c.address), zap.Error(err), zap.Int("attempt", attempt))
		}
		return err
	}, backoff.WithContext(backoff.WithMaxRetries(b, c.maxRetries), ctx))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", c.address, err)
	}

	return conn, nil
}

func (c *TCPClient) acquire(ctx context.Context) (*slot, error) {
	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	select {
	case s, ok := <-c.slots:
		if !ok {
			return nil, ErrConnectionClosed
		}
		return s, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, ErrTimeout
	}
}

func (c *TCPClient) release(s *slot) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		if s.conn != nil {
			s.conn.Close()
		}
		return
	}
	c.slots <- s
}

// Call writes req as a single frame and decodes the reply frame into resp.
// A connection that fails mid-exchange is discarded and redialed on next use.
func (c *TCPClient) Call(ctx context.Context, req, resp any) error {
	s, err := c.acquire(ctx)
	if err != nil {
		return err
	}
	defer c.release(s)

	if s.conn == nil {
		conn, err := c.dialWithRetry(ctx)
		if err != nil {
			return err
		}
		s.conn = conn
		s.reader = bufio.NewReader(conn)
	}

	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if c.timeout <= 0 {
		deadline, _ = ctx.Deadline()
	}
	s.conn.SetDeadline(deadline)

	conn := s.conn
	stop := context.AfterFunc(ctx, func() {
		conn.SetDeadline(time.Now())
	})
	defer stop()

	if err := c.exchange(s, req, resp); err != nil {
		s.conn.Close()
		s.conn, s.reader = nil, nil

		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return fmt.Errorf("%w: %w", ErrTimeout, err)
		}
		return err
	}

	return nil
}

func (c *TCPClient) exchange(s *slot, req, resp any) error {
	if err := wire.WriteFrame(s.conn, req); err != nil {
		return fmt.Errorf("failed to send data: %w", err)
	}
	if err := wire.ReadFrame(s.reader, resp); err != nil {
		return fmt.Errorf("failed to receive data: %w", err)
	}
	return nil
}

func (c *TCPClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	for {
		select {
		case s := <-c.slots:
			if s.conn != nil {
				if err := s.conn.Close(); err != nil {
					c.logger.Error("Failed to close connection", zap.Error(err))
				}
			}
		default:
			close(c.slots)
			return nil
		}
	}
}
