package btczmq

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/stretchr/testify/require"
)

// TestWaitForHandshakeZeroEndpoints checks that a subscription with no
// endpoints resolves immediately. The stream deliberately has no sockets or
// pollers behind it: touching the monitor channel would panic.
func TestWaitForHandshakeZeroEndpoints(t *testing.T) {
	t.Parallel()

	stream := &MonitorStream{numEndpoints: 0}
	require.NoError(t, stream.WaitForHandshake(context.Background()))
}

// TestHandshakeTracker drives the counting machine through an interleaving
// of handshakes and disconnects across two endpoints.
func TestHandshakeTracker(t *testing.T) {
	t.Parallel()

	tracker := newHandshakeTracker(2)
	require.False(t, tracker.done())

	// Unrelated lifecycle events must not move the counter.
	tracker.observe(EventConnected{FD: 3})
	tracker.observe(EventConnectDelayed{})
	require.False(t, tracker.done())

	tracker.observe(EventHandshakeSucceeded{})
	require.False(t, tracker.done())

	// A disconnect means the reconnect needs a fresh handshake.
	tracker.observe(EventDisconnected{FD: 3})
	require.False(t, tracker.done())

	tracker.observe(EventHandshakeSucceeded{})
	require.False(t, tracker.done())

	tracker.observe(EventHandshakeSucceeded{})
	require.True(t, tracker.done())
}

// TestHandshakeTrackerZero checks the degenerate zero endpoint tracker.
func TestHandshakeTrackerZero(t *testing.T) {
	t.Parallel()

	require.True(t, newHandshakeTracker(0).done())
}

// fakeSocketMessageStream replays a fixed sequence of socket messages.
type fakeSocketMessageStream struct {
	items []SocketMessage
}

func (f *fakeSocketMessageStream) Receive(
	_ context.Context) (SocketMessage, error) {

	if len(f.items) == 0 {
		return nil, errors.New("fake stream exhausted")
	}

	item := f.items[0]
	f.items = f.items[1:]
	return item, nil
}

func (f *fakeSocketMessageStream) Close() error {
	return nil
}

// TestHandshakeStream checks that the checked stream forwards messages,
// discards non-terminal events, yields exactly one disconnect error, and
// reports end-of-stream afterwards.
func TestHandshakeStream(t *testing.T) {
	t.Parallel()

	blockHash := *chaincfg.MainNetParams.GenesisHash
	msg := Message{
		Content:  BlockHash{Hash: blockHash},
		Sequence: 1,
	}

	stream := &HandshakeStream{
		stream: &fakeSocketMessageStream{items: []SocketMessage{
			MonitorMessage{
				Event:     EventConnected{FD: 3},
				SourceURL: "tcp://127.0.0.1:28332",
			},
			msg,
			MonitorMessage{
				Event:     EventConnectRetried{Interval: 250},
				SourceURL: "tcp://127.0.0.1:28332",
			},
			MonitorMessage{
				Event:     EventDisconnected{FD: 3},
				SourceURL: "tcp://127.0.0.1:28332",
			},
			msg,
		}},
	}

	ctx := context.Background()

	// The leading monitor event is discarded, the message comes through.
	received, err := stream.Receive(ctx)
	require.NoError(t, err)
	require.Equal(t, msg, received)

	// The retry event is discarded, the disconnect terminates the stream
	// with its source URL.
	_, err = stream.Receive(ctx)
	var discErr *DisconnectedError
	require.ErrorAs(t, err, &discErr)
	require.Equal(t, "tcp://127.0.0.1:28332", discErr.SourceURL)

	// Terminated for good: the remaining queued message is never
	// delivered.
	_, err = stream.Receive(ctx)
	require.ErrorIs(t, err, io.EOF)
	_, err = stream.Receive(ctx)
	require.ErrorIs(t, err, io.EOF)
}
