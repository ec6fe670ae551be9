package sampleio

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

type closerBuffer struct {
	*bytes.Reader
}

func (closerBuffer) Close() error { return nil }

func TestFileSourceReadsFullBlocks(t *testing.T) {
	data := bytes.Repeat([]byte{0xAA, 0x55}, 8) // 16 bytes
	src := NewFileSource(closerBuffer{bytes.NewReader(data)}, 4, 0)

	block, err := src.Next(context.Background())
	require.NoError(t, err)
	require.Len(t, block, 4)
	require.Equal(t, data[:4], block)
}

func TestFileSourceReturnsShortFinalBlockThenEOF(t *testing.T) {
	data := []byte{1, 2, 3, 4, 5}
	src := NewFileSource(closerBuffer{bytes.NewReader(data)}, 4, 0)

	first, err := src.Next(context.Background())
	require.NoError(t, err)
	require.Equal(t, []byte{1, 2, 3, 4}, first)

	second, err := src.Next(context.Background())
	require.NoError(t, err)
	require.Equal(t, []byte{5}, second)

	_, err = src.Next(context.Background())
	require.ErrorIs(t, err, io.EOF)
}

func TestFileSourceEmptyInputIsImmediateEOF(t *testing.T) {
	src := NewFileSource(closerBuffer{bytes.NewReader(nil)}, 256, 0)
	_, err := src.Next(context.Background())
	require.ErrorIs(t, err, io.EOF)
}

func TestNewCommandSourceFailsForMissingBinary(t *testing.T) {
	_, err := NewCommandSource(context.Background(), "/nonexistent/definitely-not-a-binary", nil, 1024)
	require.Error(t, err)
}
