package btczmq

import (
	"errors"
	"fmt"
	"unicode/utf8"
)

// ErrTimeout is returned by WaitForHandshakeTimeout when the requested
// endpoints did not all complete their handshake within the deadline.
var ErrTimeout = errors.New("connection timed out")

// InvalidMultipartLengthError is returned when a multipart message read from
// the data socket does not consist of exactly 3 frames. Count holds the
// number of frames actually observed.
type InvalidMultipartLengthError struct {
	Count int
}

// Error returns a human readable description of the framing violation.
func (e *InvalidMultipartLengthError) Error() string {
	return fmt.Sprintf("invalid multipart message length: %d (expected 3)",
		e.Count)
}

// UnknownTopicError is returned when the topic frame of a message does not
// match any of the five topics published by bitcoind. Topic holds the
// offending bytes, truncated to TopicMaxLen if the frame was longer, and Len
// holds the true frame length.
type UnknownTopicError struct {
	Topic []byte
	Len   int
}

// Error returns a human readable description of the unknown topic. The
// captured bytes are rendered as a string when they are valid UTF-8, and as
// hex otherwise.
func (e *UnknownTopicError) Error() string {
	if utf8.Valid(e.Topic) {
		return fmt.Sprintf("unknown topic %q (len %d)", e.Topic, e.Len)
	}
	return fmt.Sprintf("unknown topic %x (len %d, not utf-8)", e.Topic,
		e.Len)
}

// InvalidDataLengthError is returned when the data frame of a message
// exceeds DataMaxLen.
type InvalidDataLengthError struct {
	Len int
}

// Error returns a human readable description of the oversized data frame.
func (e *InvalidDataLengthError) Error() string {
	return fmt.Sprintf("invalid data length: %d (max %d)", e.Len,
		DataMaxLen)
}

// InvalidSequenceLengthError is returned when the sequence number frame of a
// message is not exactly 4 bytes.
type InvalidSequenceLengthError struct {
	Len int
}

// Error returns a human readable description of the malformed sequence
// frame.
func (e *InvalidSequenceLengthError) Error() string {
	return fmt.Sprintf("invalid sequence length: %d (expected %d)", e.Len,
		SequenceNumberLen)
}

// InvalidSequenceMessageLengthError is returned when the payload of a
// "sequence" topic message has a length that does not match any of the known
// sequence message layouts.
type InvalidSequenceMessageLengthError struct {
	Len int
}

// Error returns a human readable description of the malformed payload.
func (e *InvalidSequenceMessageLengthError) Error() string {
	return fmt.Sprintf("invalid message length %d of message type "+
		"'sequence'", e.Len)
}

// InvalidSequenceMessageLabelError is returned when the label byte of a
// "sequence" topic message is not one of 'C', 'D', 'A' or 'R'.
type InvalidSequenceMessageLabelError struct {
	Label byte
}

// Error returns a human readable description of the unknown label.
func (e *InvalidSequenceMessageLabelError) Error() string {
	return fmt.Sprintf("invalid label '%c' (%#02x) of message type "+
		"'sequence'", e.Label, e.Label)
}

// InvalidHashLengthError is returned when the data frame of a hashblock or
// hashtx message is not exactly 32 bytes.
type InvalidHashLengthError struct {
	Len int
}

// Error returns a human readable description of the malformed hash.
func (e *InvalidHashLengthError) Error() string {
	return fmt.Sprintf("invalid hash length: %d (expected %d)", e.Len,
		chainHashLen)
}

// DeserializationError is returned when the consensus decoder rejects the
// payload of a rawblock or rawtx message.
type DeserializationError struct {
	Err error
}

// Error returns a human readable description of the decode failure.
func (e *DeserializationError) Error() string {
	return fmt.Sprintf("bitcoin consensus deserialization error: %v",
		e.Err)
}

// Unwrap returns the underlying consensus decode error.
func (e *DeserializationError) Unwrap() error {
	return e.Err
}

// MonitorMultipartLengthError is returned when a monitor event read from the
// monitor socket does not consist of exactly 2 frames.
type MonitorMultipartLengthError struct {
	Count int
}

// Error returns a human readable description of the framing violation.
func (e *MonitorMultipartLengthError) Error() string {
	return fmt.Sprintf("invalid monitor multipart message length: %d "+
		"(expected 2)", e.Count)
}

// InvalidEventFrameLengthError is returned when the first frame of a monitor
// event is not exactly 6 bytes.
type InvalidEventFrameLengthError struct {
	Len int
}

// Error returns a human readable description of the malformed event frame.
func (e *InvalidEventFrameLengthError) Error() string {
	return fmt.Sprintf("invalid event frame length: %d (expected %d)",
		e.Len, eventFrameLen)
}

// InvalidEventDataError is returned when the data word of a monitor event
// is out of range for its event code, e.g. an unknown protocol failure code
// on a handshake failure event.
type InvalidEventDataError struct {
	EventType uint16
	Data      uint32
}

// Error returns a human readable description of the malformed event.
func (e *InvalidEventDataError) Error() string {
	return fmt.Sprintf("invalid event data %d for event %d", e.Data,
		e.EventType)
}

// DisconnectedError is the terminal error yielded by a HandshakeStream when
// one of its peers disconnects. SourceURL is the endpoint the transport
// reported the disconnect against.
type DisconnectedError struct {
	SourceURL string
}

// Error returns a human readable description of the disconnect.
func (e *DisconnectedError) Error() string {
	return fmt.Sprintf("disconnected from %s", e.SourceURL)
}
