package btczmq

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	zmq "github.com/pebbe/zmq4"
)

// MonitorStream is a pull-driven subscription with the socket's lifecycle
// monitor wired in beside the data channel. Receive yields both decoded
// notifications and monitor events; monitor events are checked first so
// lifecycle changes are not starved by a busy data socket.
type MonitorStream struct {
	sock *zmq.Socket
	mon  *zmq.Socket

	src    *socketSource
	monSrc *socketSource

	// poller watches both sockets, monPoller only the monitor channel.
	poller    *zmq.Poller
	monPoller *zmq.Poller

	// numEndpoints is the number of endpoints this subscription was
	// created with, the initial pending count of WaitForHandshake.
	numEndpoints int
}

// SubscribeMonitor subscribes to the given ZMQ endpoints and attaches a
// lifecycle monitor to the subscriber socket.
func SubscribeMonitor(endpoints []string) (*MonitorStream, error) {
	sock, err := newSocket(endpoints)
	if err != nil {
		return nil, err
	}

	mon, err := attachMonitor(sock)
	if err != nil {
		sock.Close()
		return nil, err
	}

	poller := zmq.NewPoller()
	poller.Add(mon, zmq.POLLIN)
	poller.Add(sock, zmq.POLLIN)

	monPoller := zmq.NewPoller()
	monPoller.Add(mon, zmq.POLLIN)

	return &MonitorStream{
		sock:         sock,
		mon:          mon,
		src:          &socketSource{sock: sock},
		monSrc:       &socketSource{sock: mon},
		poller:       poller,
		monPoller:    monPoller,
		numEndpoints: len(endpoints),
	}, nil
}

// Receive blocks until the next notification or monitor event is available.
// Per-message decode errors are returned without disturbing the
// subscription. Receive returns early with the context's error once ctx is
// done.
func (s *MonitorStream) Receive(ctx context.Context) (SocketMessage, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		polled, err := s.poller.Poll(streamPollInterval)
		if err != nil {
			return nil, fmt.Errorf("poll: %w", err)
		}

		for _, p := range polled {
			// The poller was populated monitor first, so a
			// pending event wins over pending data.
			if p.Socket == s.mon {
				return recvMonitorMessage(s.monSrc)
			}

			msg, err := recvMessage(s.src)
			if err != nil {
				return nil, err
			}
			return msg, nil
		}
	}
}

// receiveMonitor blocks until the next monitor event, ignoring the data
// socket entirely.
func (s *MonitorStream) receiveMonitor(
	ctx context.Context) (MonitorMessage, error) {

	for {
		if err := ctx.Err(); err != nil {
			return MonitorMessage{}, err
		}

		polled, err := s.monPoller.Poll(streamPollInterval)
		if err != nil {
			return MonitorMessage{}, fmt.Errorf("poll: %w", err)
		}
		if len(polled) == 0 {
			continue
		}

		return recvMonitorMessage(s.monSrc)
	}
}

// Close releases both the data socket and its monitor channel. The stream
// must not be used after Close.
func (s *MonitorStream) Close() error {
	err := s.mon.Close()
	if serr := s.sock.Close(); err == nil {
		err = serr
	}

	return err
}

// handshakeTracker counts the handshakes still outstanding across the
// endpoints of one subscription. A disconnect re-arms the counter because
// the reconnect needs a fresh handshake.
type handshakeTracker struct {
	pending int
}

func newHandshakeTracker(numEndpoints int) *handshakeTracker {
	return &handshakeTracker{pending: numEndpoints}
}

// observe feeds one monitor event into the tracker. Events other than
// handshake completion and disconnect do not change the count.
func (t *handshakeTracker) observe(event SocketEvent) {
	switch event.(type) {
	case EventHandshakeSucceeded:
		t.pending--
	case EventDisconnected:
		t.pending++
	}
}

// done reports whether every endpoint currently has a completed handshake.
func (t *handshakeTracker) done() bool {
	return t.pending == 0
}

// WaitForHandshake consumes the monitor channel until every endpoint of the
// subscription has completed its protocol handshake, i.e. until the
// subscription is actually live on all of them. With zero endpoints it
// returns immediately without reading the monitor channel.
//
// There is no internal deadline: an endpoint that never completes a
// handshake (e.g. a non-ZMTP peer that accepts the TCP connection) stalls
// this call until ctx is done. Use WaitForHandshakeTimeout or a context
// deadline to bound it.
func (s *MonitorStream) WaitForHandshake(ctx context.Context) error {
	tracker := newHandshakeTracker(s.numEndpoints)
	if tracker.done() {
		return nil
	}

	for {
		mm, err := s.receiveMonitor(ctx)
		if err != nil {
			return err
		}

		log.Debugf("Monitor event from %s: %T", mm.SourceURL, mm.Event)
		tracker.observe(mm.Event)

		if tracker.done() {
			return nil
		}
	}
}

// WaitForHandshakeTimeout is WaitForHandshake bounded by a deadline. It
// returns ErrTimeout if the handshakes did not all complete in time.
func (s *MonitorStream) WaitForHandshakeTimeout(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	err := s.WaitForHandshake(ctx)
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout
	}

	return err
}

// SubscribeWaitHandshake subscribes to the given ZMQ endpoints and blocks
// until the handshake with every endpoint has completed, so that no
// notification published after it returns is missed. The returned
// HandshakeStream yields messages only; see HandshakeStream for its
// disconnect behavior.
func SubscribeWaitHandshake(ctx context.Context,
	endpoints []string) (*HandshakeStream, error) {

	stream, err := SubscribeMonitor(endpoints)
	if err != nil {
		return nil, err
	}

	if err := stream.WaitForHandshake(ctx); err != nil {
		stream.Close()
		return nil, err
	}

	return &HandshakeStream{stream: stream}, nil
}

// SubscribeWaitHandshakeTimeout is SubscribeWaitHandshake bounded by a
// deadline, returning ErrTimeout if the handshakes did not all complete in
// time.
func SubscribeWaitHandshakeTimeout(endpoints []string,
	timeout time.Duration) (*HandshakeStream, error) {

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	stream, err := SubscribeWaitHandshake(ctx, endpoints)
	if errors.Is(err, context.DeadlineExceeded) {
		return nil, ErrTimeout
	}

	return stream, err
}

// socketMessageStream is the part of a monitored subscription the checked
// stream consumes. Tests substitute an in-memory implementation.
type socketMessageStream interface {
	Receive(ctx context.Context) (SocketMessage, error)
	Close() error
}

// HandshakeStream is the post-handshake view of a monitored subscription: it
// forwards decoded notifications transparently and silently discards
// non-terminal monitor events. On the first disconnect it yields exactly one
// *DisconnectedError carrying the source URL and then terminates for good;
// every Receive after that returns io.EOF. The stream is not restartable.
type HandshakeStream struct {
	stream     socketMessageStream
	terminated bool
}

// Receive blocks until the next notification is available and returns it
// decoded. Per-message decode errors are returned in-band like the other
// delivery models and are not terminal.
func (s *HandshakeStream) Receive(ctx context.Context) (Message, error) {
	if s.terminated {
		return Message{}, io.EOF
	}

	for {
		sm, err := s.stream.Receive(ctx)
		if err != nil {
			return Message{}, err
		}

		switch m := sm.(type) {
		case Message:
			return m, nil

		case MonitorMessage:
			if _, ok := m.Event.(EventDisconnected); ok {
				s.terminated = true
				return Message{}, &DisconnectedError{
					SourceURL: m.SourceURL,
				}
			}

			log.Tracef("Discarding monitor event from %s: %T",
				m.SourceURL, m.Event)
		}
	}
}

// Close releases the underlying subscription.
func (s *HandshakeStream) Close() error {
	return s.stream.Close()
}
