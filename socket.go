package btczmq

import (
	"fmt"

	"github.com/lightningnetwork/lnd/fn/v2"
	zmq "github.com/pebbe/zmq4"
)

// newSocket creates a single SUB socket, applies an empty subscription
// filter so every topic is received, and connects it to each of the given
// endpoints. All endpoints are multiplexed onto the one socket: this avoids
// a receive goroutine per endpoint and any fan-in between them, at the cost
// of losing per-endpoint backpressure isolation.
func newSocket(endpoints []string) (*zmq.Socket, error) {
	sock, err := zmq.NewSocket(zmq.SUB)
	if err != nil {
		return nil, fmt.Errorf("unable to create SUB socket: %w", err)
	}

	if err := sock.SetSubscribe(""); err != nil {
		sock.Close()
		return nil, fmt.Errorf("unable to set subscription "+
			"filter: %w", err)
	}

	for _, endpoint := range endpoints {
		if err := sock.Connect(endpoint); err != nil {
			sock.Close()
			return nil, fmt.Errorf("unable to connect to %s: %w",
				endpoint, err)
		}

		log.Debugf("Connected subscriber socket to %s", endpoint)
	}

	return sock, nil
}

// frameSource is the part of the subscriber socket the receive loop reads
// from: one frame at a time, plus the transport's "more frames pending"
// flag. Tests substitute an in-memory implementation.
type frameSource interface {
	// recvFrame receives the next frame of the current multipart
	// message, blocking until one is available.
	recvFrame() ([]byte, error)

	// hasMore reports whether more frames of the current multipart
	// message are pending.
	hasMore() (bool, error)
}

// socketSource adapts a ZMQ socket to the frameSource interface.
type socketSource struct {
	sock *zmq.Socket
}

func (s *socketSource) recvFrame() ([]byte, error) {
	return s.sock.RecvBytes(0)
}

func (s *socketSource) hasMore() (bool, error) {
	return s.sock.GetRcvmore()
}

// recvRaw reads one multipart message off the source and validates it
// against the 3-frame envelope layout.
//
// A message with trailing frames beyond the third is a protocol violation,
// but simply returning would leave the unread frames to be misinterpreted as
// the start of the next message. The trailing frames are therefore drained
// and counted so the socket stays consistent, and the total observed frame
// count is reported in the error.
func recvRaw(src frameSource) (RawMessage, error) {
	topic, err := src.recvFrame()
	if err != nil {
		return RawMessage{}, fmt.Errorf("recv topic frame: %w", err)
	}
	if len(topic) > TopicMaxLen {
		return RawMessage{}, &UnknownTopicError{
			Topic: append([]byte(nil), topic[:TopicMaxLen]...),
			Len:   len(topic),
		}
	}

	more, err := src.hasMore()
	if err != nil {
		return RawMessage{}, err
	}
	if !more {
		return RawMessage{}, &InvalidMultipartLengthError{Count: 1}
	}

	data, err := src.recvFrame()
	if err != nil {
		return RawMessage{}, fmt.Errorf("recv data frame: %w", err)
	}
	if len(data) > DataMaxLen {
		return RawMessage{}, &InvalidDataLengthError{Len: len(data)}
	}

	if more, err = src.hasMore(); err != nil {
		return RawMessage{}, err
	} else if !more {
		return RawMessage{}, &InvalidMultipartLengthError{Count: 2}
	}

	seq, err := src.recvFrame()
	if err != nil {
		return RawMessage{}, fmt.Errorf("recv sequence frame: %w", err)
	}
	if len(seq) != SequenceNumberLen {
		return RawMessage{}, &InvalidSequenceLengthError{Len: len(seq)}
	}

	if more, err = src.hasMore(); err != nil {
		return RawMessage{}, err
	} else if more {
		count := 3
		for {
			if _, err := src.recvFrame(); err != nil {
				return RawMessage{}, fmt.Errorf("drain "+
					"trailing frame: %w", err)
			}
			count++

			if more, err = src.hasMore(); err != nil {
				return RawMessage{}, err
			} else if !more {
				return RawMessage{}, &InvalidMultipartLengthError{
					Count: count,
				}
			}
		}
	}

	return RawMessageFromFrames([][]byte{topic, data, seq})
}

// recvMessage reads and fully decodes one notification from the source.
func recvMessage(src frameSource) (Message, error) {
	raw, err := recvRaw(src)
	if err != nil {
		return Message{}, err
	}

	return ParseMessage(raw)
}

// receiveLoop reads notifications off the source forever and hands each
// decoded message or per-message error to deliver. Decode errors do not tear
// the loop down; recovery is the consumer's decision. The loop exits only
// when deliver returns false.
func receiveLoop(src frameSource, deliver func(fn.Result[Message]) bool) {
	for {
		msg, err := recvMessage(src)

		var res fn.Result[Message]
		if err != nil {
			log.Tracef("Receive loop yielding error: %v", err)
			res = fn.Err[Message](err)
		} else {
			log.Tracef("Received %v", msg)
			res = fn.Ok(msg)
		}

		if !deliver(res) {
			return
		}
	}
}
