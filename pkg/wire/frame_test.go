package wire

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteReadFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, []byte("hello")))

	got, err := ReadFrame(&buf)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), got)
}

func TestReadFrameRejectsOversizeLength(t *testing.T) {
	var buf bytes.Buffer
	oversize := uint32(MaxFrameBytes) + 1
	buf.Write([]byte{byte(oversize >> 24), byte(oversize >> 16), byte(oversize >> 8), byte(oversize)})

	_, err := ReadFrame(&buf)
	assert.ErrorIs(t, err, ErrFrameTooLarge)
}

func TestWriteKindFrameThenReadKindAndFrame(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteKindFrame(&buf, KindResult, []byte(`{"job_id":"x"}`)))

	kind, err := ReadKind(&buf)
	require.NoError(t, err)
	assert.Equal(t, KindResult, kind)

	body, err := ReadFrame(&buf)
	require.NoError(t, err)
	assert.Equal(t, `{"job_id":"x"}`, string(body))
}
