package wire

import (
	"bytes"
	"encoding/binary"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Op     string  `msgpack:"op"`
	Tokens []int   `msgpack:"tokens"`
	Score  float64 `msgpack:"score"`
}

func TestFramesAreReadBackInOrder(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, sample{Op: "encode", Tokens: []int{1, 2, 3}}))
	require.NoError(t, WriteFrame(&buf, sample{Op: "step", Score: -0.5}))

	var first, second sample
	require.NoError(t, ReadFrame(&buf, &first))
	require.NoError(t, ReadFrame(&buf, &second))

	assert.Equal(t, "encode", first.Op)
	assert.Equal(t, []int{1, 2, 3}, first.Tokens)
	assert.Equal(t, "step", second.Op)
	assert.Equal(t, -0.5, second.Score)

	assert.ErrorIs(t, ReadFrame(&buf, &first), io.EOF)
}

func TestReadFrameRejectsOversizedHeader(t *testing.T) {
	var header [4]byte
	binary.BigEndian.PutUint32(header[:], MaxFrameSize+1)

	var v sample
	assert.ErrorIs(t, ReadFrame(bytes.NewReader(header[:]), &v), ErrFrameTooLarge)
}

func TestReadFrameTruncatedBody(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, sample{Op: "ping"}))
	truncated := buf.Bytes()[:buf.Len()-1]

	var v sample
	assert.Error(t, ReadFrame(bytes.NewReader(truncated), &v))
}
