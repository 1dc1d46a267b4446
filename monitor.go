package btczmq

import (
	"encoding/binary"
	"fmt"
	"sync/atomic"

	zmq "github.com/pebbe/zmq4"
)

// eventFrameLen is the length of the first frame of a monitor event: a
// uint16 event code followed by a uint32 event data word. The monitor
// channel is in-process only, so both are in native byte order rather than
// wire-normalized.
const eventFrameLen = 6

// HandshakeFailure enumerates the protocol error codes reported with an
// EventHandshakeFailedProtocol event. The values are libzmq's
// ZMQ_PROTOCOL_ERROR_* constants.
type HandshakeFailure uint32

const (
	ZmtpUnspecified                 HandshakeFailure = 0x10000000
	ZmtpUnexpectedCommand           HandshakeFailure = 0x10000001
	ZmtpInvalidSequence             HandshakeFailure = 0x10000002
	ZmtpKeyExchange                 HandshakeFailure = 0x10000003
	ZmtpMalformedCommandUnspecified HandshakeFailure = 0x10000011
	ZmtpMalformedCommandMessage     HandshakeFailure = 0x10000012
	ZmtpMalformedCommandHello       HandshakeFailure = 0x10000013
	ZmtpMalformedCommandInitiate    HandshakeFailure = 0x10000014
	ZmtpMalformedCommandError       HandshakeFailure = 0x10000015
	ZmtpMalformedCommandReady       HandshakeFailure = 0x10000016
	ZmtpMalformedCommandWelcome     HandshakeFailure = 0x10000017
	ZmtpInvalidMetadata             HandshakeFailure = 0x10000018
	ZmtpCryptographic               HandshakeFailure = 0x11000001
	ZmtpMechanismMismatch           HandshakeFailure = 0x11000002
	ZapUnspecified                  HandshakeFailure = 0x20000000
	ZapMalformedReply               HandshakeFailure = 0x20000001
	ZapBadRequestID                 HandshakeFailure = 0x20000002
	ZapBadVersion                   HandshakeFailure = 0x20000003
	ZapInvalidStatusCode            HandshakeFailure = 0x20000004
	ZapInvalidMetadata              HandshakeFailure = 0x20000005
)

// validHandshakeFailure reports whether code is a known protocol error code.
func validHandshakeFailure(code HandshakeFailure) bool {
	switch code {
	case ZmtpUnspecified, ZmtpUnexpectedCommand, ZmtpInvalidSequence,
		ZmtpKeyExchange, ZmtpMalformedCommandUnspecified,
		ZmtpMalformedCommandMessage, ZmtpMalformedCommandHello,
		ZmtpMalformedCommandInitiate, ZmtpMalformedCommandError,
		ZmtpMalformedCommandReady, ZmtpMalformedCommandWelcome,
		ZmtpInvalidMetadata, ZmtpCryptographic,
		ZmtpMechanismMismatch, ZapUnspecified, ZapMalformedReply,
		ZapBadRequestID, ZapBadVersion, ZapInvalidStatusCode,
		ZapInvalidMetadata:

		return true
	}

	return false
}

// SocketEvent is a single lifecycle event reported by the transport for one
// of the connected sockets. The concrete type identifies the event kind; see
// the "SUPPORTED EVENTS" section of the zmq_socket_monitor manual page for
// the original documentation.
type SocketEvent interface {
	socketEvent()
}

// EventConnected reports an established connection. FD is the file
// descriptor of the underlying socket.
type EventConnected struct {
	FD uint32
}

// EventConnectDelayed reports that a connect attempt is in progress.
type EventConnectDelayed struct{}

// EventConnectRetried reports a scheduled reconnect. Interval is the retry
// interval in milliseconds.
type EventConnectRetried struct {
	Interval uint32
}

// EventListening reports a bound and listening socket.
type EventListening struct {
	FD uint32
}

// EventBindFailed reports a failed bind attempt.
type EventBindFailed struct {
	Errno uint32
}

// EventAccepted reports an accepted inbound connection.
type EventAccepted struct {
	FD uint32
}

// EventAcceptFailed reports a failed accept.
type EventAcceptFailed struct {
	Errno uint32
}

// EventClosed reports a closed connection.
type EventClosed struct {
	FD uint32
}

// EventCloseFailed reports a failed close.
type EventCloseFailed struct {
	Errno uint32
}

// EventDisconnected reports a lost session. A reconnect needs a fresh
// handshake.
type EventDisconnected struct {
	FD uint32
}

// EventMonitorStopped reports that monitoring on this socket ended.
type EventMonitorStopped struct{}

// EventHandshakeFailedNoDetail reports a handshake failure without further
// detail.
type EventHandshakeFailedNoDetail struct {
	FD uint32
}

// EventHandshakeSucceeded reports a completed protocol handshake. Only after
// this event is a subscription to the peer actually live.
type EventHandshakeSucceeded struct{}

// EventHandshakeFailedProtocol reports a handshake that failed with a
// protocol error.
type EventHandshakeFailedProtocol struct {
	Failure HandshakeFailure
}

// EventHandshakeFailedAuth reports a handshake that failed authentication.
// ErrorCode is the ZAP status code.
type EventHandshakeFailedAuth struct {
	ErrorCode uint32
}

// EventUnknown is the catch-all for event codes added by transport versions
// newer than this library.
type EventUnknown struct {
	EventType uint16
	Data      uint32
}

func (EventConnected) socketEvent()               {}
func (EventConnectDelayed) socketEvent()          {}
func (EventConnectRetried) socketEvent()          {}
func (EventListening) socketEvent()               {}
func (EventBindFailed) socketEvent()              {}
func (EventAccepted) socketEvent()                {}
func (EventAcceptFailed) socketEvent()            {}
func (EventClosed) socketEvent()                  {}
func (EventCloseFailed) socketEvent()             {}
func (EventDisconnected) socketEvent()            {}
func (EventMonitorStopped) socketEvent()          {}
func (EventHandshakeFailedNoDetail) socketEvent() {}
func (EventHandshakeSucceeded) socketEvent()      {}
func (EventHandshakeFailedProtocol) socketEvent() {}
func (EventHandshakeFailedAuth) socketEvent()     {}
func (EventUnknown) socketEvent()                 {}

// ParseSocketEvent decodes the 6-byte event frame of a monitor message.
// Unrecognized event codes decode to EventUnknown for forward compatibility.
func ParseSocketEvent(frame []byte) (SocketEvent, error) {
	if len(frame) != eventFrameLen {
		return nil, &InvalidEventFrameLengthError{Len: len(frame)}
	}

	eventType := binary.NativeEndian.Uint16(frame[:2])
	data := binary.NativeEndian.Uint32(frame[2:])

	switch zmq.Event(eventType) {
	case zmq.EVENT_CONNECTED:
		return EventConnected{FD: data}, nil
	case zmq.EVENT_CONNECT_DELAYED:
		return EventConnectDelayed{}, nil
	case zmq.EVENT_CONNECT_RETRIED:
		return EventConnectRetried{Interval: data}, nil
	case zmq.EVENT_LISTENING:
		return EventListening{FD: data}, nil
	case zmq.EVENT_BIND_FAILED:
		return EventBindFailed{Errno: data}, nil
	case zmq.EVENT_ACCEPTED:
		return EventAccepted{FD: data}, nil
	case zmq.EVENT_ACCEPT_FAILED:
		return EventAcceptFailed{Errno: data}, nil
	case zmq.EVENT_CLOSED:
		return EventClosed{FD: data}, nil
	case zmq.EVENT_CLOSE_FAILED:
		return EventCloseFailed{Errno: data}, nil
	case zmq.EVENT_DISCONNECTED:
		return EventDisconnected{FD: data}, nil
	case zmq.EVENT_MONITOR_STOPPED:
		return EventMonitorStopped{}, nil
	case zmq.EVENT_HANDSHAKE_FAILED_NO_DETAIL:
		return EventHandshakeFailedNoDetail{FD: data}, nil
	case zmq.EVENT_HANDSHAKE_SUCCEEDED:
		return EventHandshakeSucceeded{}, nil
	case zmq.EVENT_HANDSHAKE_FAILED_PROTOCOL:
		failure := HandshakeFailure(data)
		if !validHandshakeFailure(failure) {
			return nil, &InvalidEventDataError{
				EventType: eventType,
				Data:      data,
			}
		}
		return EventHandshakeFailedProtocol{Failure: failure}, nil
	case zmq.EVENT_HANDSHAKE_FAILED_AUTH:
		return EventHandshakeFailedAuth{ErrorCode: data}, nil
	default:
		return EventUnknown{EventType: eventType, Data: data}, nil
	}
}

// MonitorMessage is a SocketEvent paired with the endpoint URL the transport
// reports it against.
type MonitorMessage struct {
	Event     SocketEvent
	SourceURL string
}

// SocketMessage is either a decoded notification (Message) or a socket
// lifecycle event (MonitorMessage), as yielded by MonitorStream.Receive.
type SocketMessage interface {
	isSocketMessage()
}

func (Message) isSocketMessage()        {}
func (MonitorMessage) isSocketMessage() {}

// recvMonitorMessage reads one 2-frame event off the monitor socket. Like
// the data path, trailing frames are drained and counted so a malformed
// event does not desynchronize the reader.
func recvMonitorMessage(src frameSource) (MonitorMessage, error) {
	eventFrame, err := src.recvFrame()
	if err != nil {
		return MonitorMessage{}, fmt.Errorf("recv event frame: %w", err)
	}

	more, err := src.hasMore()
	if err != nil {
		return MonitorMessage{}, err
	}
	if !more {
		return MonitorMessage{}, &MonitorMultipartLengthError{Count: 1}
	}

	urlFrame, err := src.recvFrame()
	if err != nil {
		return MonitorMessage{}, fmt.Errorf("recv url frame: %w", err)
	}

	if more, err = src.hasMore(); err != nil {
		return MonitorMessage{}, err
	} else if more {
		count := 2
		for {
			if _, err := src.recvFrame(); err != nil {
				return MonitorMessage{}, fmt.Errorf("drain "+
					"trailing frame: %w", err)
			}
			count++

			if more, err = src.hasMore(); err != nil {
				return MonitorMessage{}, err
			} else if !more {
				return MonitorMessage{},
					&MonitorMultipartLengthError{
						Count: count,
					}
			}
		}
	}

	event, err := ParseSocketEvent(eventFrame)
	if err != nil {
		return MonitorMessage{}, err
	}

	// The URL frame is decoded lossily: a hostile peer cannot reach this
	// in-process channel, but there is no reason to fail on it either.
	return MonitorMessage{
		Event:     event,
		SourceURL: string(urlFrame),
	}, nil
}

// monitorCounter disambiguates the inproc monitor endpoints of concurrently
// created subscriptions. libzmq requires a distinct inproc name per
// monitored socket.
var monitorCounter atomic.Uint64

// attachMonitor binds an in-process event channel to the socket and returns
// the PAIR socket reading from it.
func attachMonitor(sock *zmq.Socket) (*zmq.Socket, error) {
	addr := fmt.Sprintf("inproc://btczmq-monitor-%d",
		monitorCounter.Add(1))

	if err := sock.Monitor(addr, zmq.EVENT_ALL); err != nil {
		return nil, fmt.Errorf("unable to attach monitor: %w", err)
	}

	mon, err := zmq.NewSocket(zmq.PAIR)
	if err != nil {
		return nil, fmt.Errorf("unable to create monitor socket: %w",
			err)
	}

	if err := mon.Connect(addr); err != nil {
		mon.Close()
		return nil, fmt.Errorf("unable to connect monitor socket: %w",
			err)
	}

	return mon, nil
}
