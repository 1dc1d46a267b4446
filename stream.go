package btczmq

import (
	"context"
	"fmt"
	"time"

	zmq "github.com/pebbe/zmq4"
)

// streamPollInterval bounds how long a stream Receive call waits on the
// poller before re-checking its context. Progress on the socket itself is
// driven purely by readiness; the interval only controls cancellation
// latency.
const streamPollInterval = 100 * time.Millisecond

// MessageStream is a pull-driven subscription: no goroutine reads the socket
// in the background, progress happens only inside Receive. The per-call
// decode shares the framing loop of the blocking and receiver models.
type MessageStream struct {
	sock   *zmq.Socket
	poller *zmq.Poller
	src    *socketSource
}

// Subscribe subscribes to the given ZMQ endpoints and returns a
// MessageStream to pull notifications from.
func Subscribe(endpoints []string) (*MessageStream, error) {
	sock, err := newSocket(endpoints)
	if err != nil {
		return nil, err
	}

	poller := zmq.NewPoller()
	poller.Add(sock, zmq.POLLIN)

	return &MessageStream{
		sock:   sock,
		poller: poller,
		src:    &socketSource{sock: sock},
	}, nil
}

// Receive blocks until the next notification is available and returns it
// decoded. Per-message decode errors are returned without disturbing the
// subscription; the next Receive call reads the next message. Receive
// returns early with the context's error once ctx is done.
func (s *MessageStream) Receive(ctx context.Context) (Message, error) {
	for {
		if err := ctx.Err(); err != nil {
			return Message{}, err
		}

		polled, err := s.poller.Poll(streamPollInterval)
		if err != nil {
			return Message{}, fmt.Errorf("poll: %w", err)
		}
		if len(polled) == 0 {
			continue
		}

		return recvMessage(s.src)
	}
}

// Close releases the underlying socket. The stream must not be used after
// Close.
func (s *MessageStream) Close() error {
	return s.sock.Close()
}
