package rpc

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/cozy-creator/summarize-server/internal/health"
	"github.com/cozy-creator/summarize-server/internal/summarizer"
	"github.com/cozy-creator/summarize-server/pkg/wire"

	"github.com/gammazero/workerpool"
	"go.uber.org/zap"
)

var ErrServerClosed = errors.New("rpc: server closed")

type Summarizer interface {
	Summarize(ctx context.Context, req summarizer.SummarizationRequest) (*summarizer.SummarizationResult, error)
}

type HealthReporter interface {
	Report() health.Report
}

type Server struct {
	summarizer Summarizer
	health     HealthReporter
	pool       *workerpool.WorkerPool
	logger     *zap.Logger

	mu       sync.Mutex
	listener net.Listener
	conns    map[net.Conn]struct{}
	closing  bool
	wg       sync.WaitGroup
	ctx      context.Context
	cancel   context.CancelFunc
}

func NewServer(s Summarizer, h HealthReporter, workers int, logger *zap.Logger) *Server {
	if workers <= 0 {
		workers = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		summarizer: s,
		health:     h,
		pool:       workerpool.New(workers),
		logger:     logger,
		conns:      make(map[net.Conn]struct{}),
		ctx:        ctx,
		cancel:     cancel,
	}
}

func (s *Server) ListenAndServe(addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return s.Serve(l)
}

// Serve accepts connections until Stop is called.
func (s *Server) Serve(l net.Listener) error {
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		l.Close()
		return ErrServerClosed
	}
	s.listener = l
	s.mu.Unlock()

	s.logger.Info("RPC server listening", zap.String("addr", l.Addr().String()))

	for {
		conn, err := l.Accept()
		if err != nil {
			s.mu.Lock()
			closing := s.closing
			s.mu.Unlock()
			if closing {
				return nil
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				time.Sleep(50 * time.Millisecond)
				continue
			}
			return err
		}

		if !s.track(conn) {
			conn.Close()
			return nil
		}
		go s.serveConn(conn)
	}
}

func (s *Server) track(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return false
	}
	s.conns[conn] = struct{}{}
	s.wg.Add(1)
	return true
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
	s.wg.Done()
}

// serveConn handles one request at a time per connection. Work runs on the
// shared pool so at most workers requests execute concurrently.
func (s *Server) serveConn(conn net.Conn) {
	defer s.untrack(conn)
	defer conn.Close()

	reader := bufio.NewReader(conn)
	for {
		var req Request
		if err := wire.ReadFrame(reader, &req); err != nil {
			if !errors.Is(err, io.EOF) && !s.isClosing() {
				s.logger.Debug("Closing rpc connection", zap.String("remote", conn.RemoteAddr().String()), zap.Error(err))
			}
			return
		}

		var resp Response
		s.pool.SubmitWait(func() {
			resp = s.handle(req)
		})

		if err := wire.WriteFrame(conn, &resp); err != nil {
			s.logger.Warn("Failed to write rpc response", zap.Error(err))
			return
		}
		if s.isClosing() {
			return
		}
	}
}

func (s *Server) isClosing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closing
}

// handle answers one request. A panic below it becomes CodeInternal so the
// pool worker and every other connection keep running.
func (s *Server) handle(req Request) (resp Response) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Recovered from panic in rpc handler",
				zap.String("method", string(req.Method)),
				zap.Any("panic", r),
				zap.Stack("stack"),
			)
			resp = Response{ID: req.ID, Code: CodeInternal, Error: fmt.Sprintf("internal error: %v", r)}
		}
	}()

	resp = Response{ID: req.ID, Code: CodeOK}

	switch req.Method {
	case MethodPing:
		return resp
	case MethodHealth:
		report := s.health.Report()
		resp.ModelLoaded = report.Ready
		resp.State = string(report.State)
		if !report.Ready {
			resp.Code = CodeUnavailable
			resp.Error = "Model not loaded"
		}
		return resp
	case MethodSummarize:
		ctx := s.ctx
		if req.TimeoutMs > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, time.Duration(req.TimeoutMs)*time.Millisecond)
			defer cancel()
		}

		result, err := s.summarizer.Summarize(ctx, summarizer.SummarizationRequest{
			Caption:   req.Caption,
			Transport: TransportRPC,
			RequestID: req.ID,
		})
		if err != nil {
			resp.Code, resp.Error = errorCode(err)
			return resp
		}
		resp.Summary = result.Summary
		resp.ModelLoaded = true
		return resp
	default:
		resp.Code = CodeUnimplemented
		resp.Error = fmt.Sprintf("unknown method %q", req.Method)
		return resp
	}
}

func errorCode(err error) (string, string) {
	switch {
	case errors.Is(err, summarizer.ErrServiceUnavailable):
		return CodeUnavailable, "Model not loaded"
	case errors.Is(err, context.DeadlineExceeded):
		return CodeDeadlineExceeded, err.Error()
	default:
		return CodeInternal, err.Error()
	}
}

// Stop stops accepting connections and waits for in-flight requests. When
// ctx expires first, remaining connections are closed and work is cancelled.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		return nil
	}
	s.closing = true
	if s.listener != nil {
		s.listener.Close()
	}
	// unblock connections idle in ReadFrame
	for conn := range s.conns {
		conn.SetReadDeadline(time.Now())
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-ctx.Done():
		err = ctx.Err()
		s.cancel()
		s.mu.Lock()
		for conn := range s.conns {
			conn.Close()
		}
		s.mu.Unlock()
		<-done
	}

	s.cancel()
	s.pool.StopWait()
	return err
}
