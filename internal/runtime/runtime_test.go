package runtime

import (
	"bufio"
	"context"
	"net"
	"testing"
	"time"

	"github.com/cozy-creator/summarize-server/internal/config"
	"github.com/cozy-creator/summarize-server/pkg/wire"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// serveRuntime runs a minimal runtime speaking the wire protocol.
func serveRuntime(t *testing.T, handle func(request) response) *Client {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func(conn net.Conn) {
				defer conn.Close()
				r := bufio.NewReader(conn)
				for {
					var req request
					if err := wire.ReadFrame(r, &req); err != nil {
						return
					}
					if err := wire.WriteFrame(conn, handle(req)); err != nil {
						return
					}
				}
			}(conn)
		}
	}()

	client := NewClient(&config.RuntimeConfig{Address: ln.Addr().String(), Timeout: 2, PoolSize: 2}, zap.NewNop())
	t.Cleanup(func() { client.Close() })
	return client
}

func TestClientDevicesAndLoad(t *testing.T) {
	var got LoadRequest
	client := serveRuntime(t, func(req request) response {
		switch req.Op {
		case OpDevices:
			return response{OK: true, Devices: []Device{{Kind: DeviceCPU, Available: true}, {Kind: DeviceCUDA, Index: 0, Available: true}}}
		case OpLoad:
			got = *req.Load
			return response{OK: true, Model: &ModelInfo{Handle: "m-1", Device: req.Load.Device, Reentrant: true}}
		}
		return response{Error: "unexpected op"}
	})

	ctx := context.Background()
	devices, err := client.Devices(ctx)
	require.NoError(t, err)
	require.Len(t, devices, 2)
	assert.Equal(t, "cuda:0", devices[1].String())
	assert.True(t, devices[1].IsAccelerator())
	assert.Equal(t, "cpu", devices[0].String())

	info, err := client.Load(ctx, LoadRequest{ArtifactDir: "/models/t5", Device: "cuda:0", InferenceOnly: true})
	require.NoError(t, err)
	assert.Equal(t, "m-1", info.Handle)
	assert.True(t, info.Reentrant)
	assert.True(t, got.InferenceOnly)
	assert.Equal(t, "/models/t5", got.ArtifactDir)
}

func TestClientMapsRemoteErrorCodes(t *testing.T) {
	client := serveRuntime(t, func(req request) response {
		return response{Code: CodeOutOfMemory, Error: "CUDA out of memory"}
	})

	_, err := client.Load(context.Background(), LoadRequest{ArtifactDir: "/models/t5"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrOutOfMemory)

	var remote *RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, OpLoad, remote.Op)
	assert.Contains(t, remote.Error(), "CUDA out of memory")
}

func TestClientStepValidatesShape(t *testing.T) {
	client := serveRuntime(t, func(req request) response {
		switch req.Op {
		case OpEncode:
			return response{OK: true, Session: "s-1"}
		case OpStep:
			return response{OK: true, Candidates: [][]Candidate{{{Token: 5, LogProb: -0.1}}}}
		}
		return response{OK: true}
	})

	ctx := context.Background()
	session, err := client.Encode(ctx, EncodeRequest{Handle: "m-1", InputIDs: []int{4, 1}})
	require.NoError(t, err)
	assert.Equal(t, "s-1", session)

	cands, err := client.Step(ctx, StepRequest{Handle: "m-1", Session: session, Prefixes: [][]int{{0}}, TopK: 8})
	require.NoError(t, err)
	assert.Equal(t, 5, cands[0][0].Token)

	_, err = client.Step(ctx, StepRequest{Handle: "m-1", Session: session, Prefixes: [][]int{{0}, {0}}, TopK: 8})
	assert.ErrorIs(t, err, ErrInvalidInput)

	assert.NoError(t, client.Release(ctx, "m-1", session))
}

func TestClientUnavailableRuntime(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()

	client := NewClient(&config.RuntimeConfig{Address: addr, Timeout: 1, PoolSize: 1}, zap.NewNop())
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	err = client.Ping(ctx)
	assert.ErrorIs(t, err, ErrUnavailable)
}
