package btczmq

import (
	"testing"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/stretchr/testify/require"
)

// fakeFrameSource feeds a fixed multipart message to the receive loop.
type fakeFrameSource struct {
	frames [][]byte
}

func (f *fakeFrameSource) recvFrame() ([]byte, error) {
	frame := f.frames[0]
	f.frames = f.frames[1:]
	return frame, nil
}

func (f *fakeFrameSource) hasMore() (bool, error) {
	return len(f.frames) > 0, nil
}

// TestRecvRaw checks the happy path of the framing loop.
func TestRecvRaw(t *testing.T) {
	t.Parallel()

	src := &fakeFrameSource{frames: [][]byte{
		[]byte("hashblock"), make([]byte, 32),
		{0x07, 0x00, 0x00, 0x00},
	}}

	raw, err := recvRaw(src)
	require.NoError(t, err)
	require.Equal(t, TopicHashBlock, raw.Topic)
	require.Len(t, raw.Data, 32)
	require.EqualValues(t, 7, raw.Sequence)
	require.Empty(t, src.frames)
}

// TestRecvRawShortMultipart checks that missing frames are reported with
// the number of frames that were present.
func TestRecvRawShortMultipart(t *testing.T) {
	t.Parallel()

	src := &fakeFrameSource{frames: [][]byte{[]byte("hashblock")}}
	_, err := recvRaw(src)
	var mpErr *InvalidMultipartLengthError
	require.ErrorAs(t, err, &mpErr)
	require.Equal(t, 1, mpErr.Count)

	src = &fakeFrameSource{frames: [][]byte{
		[]byte("hashblock"), make([]byte, 32),
	}}
	_, err = recvRaw(src)
	require.ErrorAs(t, err, &mpErr)
	require.Equal(t, 2, mpErr.Count)
}

// TestRecvRawTrailingFrames checks that trailing frames beyond the third are
// drained so the next read starts on a message boundary, and that the total
// observed frame count is reported.
func TestRecvRawTrailingFrames(t *testing.T) {
	t.Parallel()

	src := &fakeFrameSource{frames: [][]byte{
		[]byte("hashblock"), make([]byte, 32),
		{0x00, 0x00, 0x00, 0x00},
		[]byte("garbage"), []byte("more garbage"),
	}}

	_, err := recvRaw(src)
	var mpErr *InvalidMultipartLengthError
	require.ErrorAs(t, err, &mpErr)
	require.Equal(t, 5, mpErr.Count)

	// All frames must have been consumed.
	require.Empty(t, src.frames)
}

// TestRecvRawOversizedTopic checks that a topic frame longer than any known
// topic is rejected with its real length and a bounded capture.
func TestRecvRawOversizedTopic(t *testing.T) {
	t.Parallel()

	longTopic := []byte("hashblock but way too long")
	src := &fakeFrameSource{frames: [][]byte{longTopic}}

	_, err := recvRaw(src)
	var topicErr *UnknownTopicError
	require.ErrorAs(t, err, &topicErr)
	require.Equal(t, len(longTopic), topicErr.Len)
	require.Equal(t, longTopic[:TopicMaxLen], topicErr.Topic)
}

// TestRecvRawOversizedData checks the data frame size cap.
func TestRecvRawOversizedData(t *testing.T) {
	t.Parallel()

	src := &fakeFrameSource{frames: [][]byte{
		[]byte("rawblock"), make([]byte, DataMaxLen+1),
		{0x00, 0x00, 0x00, 0x00},
	}}

	_, err := recvRaw(src)
	var dataErr *InvalidDataLengthError
	require.ErrorAs(t, err, &dataErr)
	require.Equal(t, DataMaxLen+1, dataErr.Len)
}

// TestRecvRawBadSequenceFrame checks the exact-4-byte sequence frame rule.
func TestRecvRawBadSequenceFrame(t *testing.T) {
	t.Parallel()

	src := &fakeFrameSource{frames: [][]byte{
		[]byte("hashblock"), make([]byte, 32), {0x00, 0x00, 0x00},
	}}

	_, err := recvRaw(src)
	var seqErr *InvalidSequenceLengthError
	require.ErrorAs(t, err, &seqErr)
	require.Equal(t, 3, seqErr.Len)
}

// TestRecvMessage checks that the framing loop hands off to the codec.
func TestRecvMessage(t *testing.T) {
	t.Parallel()

	blockHash := *chaincfg.MainNetParams.GenesisHash

	src := &fakeFrameSource{frames: [][]byte{
		[]byte("hashblock"), reverseBytes(blockHash),
		{0x02, 0x00, 0x00, 0x00},
	}}

	msg, err := recvMessage(src)
	require.NoError(t, err)
	require.Equal(t, Message{
		Content:  BlockHash{Hash: blockHash},
		Sequence: 2,
	}, msg)
}
