package btczmq

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

const (
	// chainHashLen is the length of a block or transaction hash.
	chainHashLen = chainhash.HashSize

	// DataMaxLen is the maximum accepted length of the data frame of a
	// message. Raw block notifications are the largest messages bitcoind
	// publishes, so the cap is the maximum size of a raw block.
	DataMaxLen = 4_000_000
)

// RawMessage is the validated 3-frame envelope of a notification: a known
// topic, the topic-dependent data frame, and the per-topic sequence number.
// The data frame is kept as raw bytes; ParseMessage decodes it.
type RawMessage struct {
	// Topic is the notification channel this message was published on.
	Topic Topic

	// Data is the contents of the data frame. Depending on the call site
	// this may alias a receive buffer that is reused for the next
	// message, so it must be consumed before the next receive.
	Data []byte

	// Sequence is the per-topic sequence number bitcoind attaches to
	// every message. It starts at 0 and increments once per message
	// published on this topic. It is not a global ordering key.
	Sequence uint32
}

// RawMessageFromFrames validates a multipart message against the 3-frame
// envelope layout and assembles a RawMessage from it.
func RawMessageFromFrames(frames [][]byte) (RawMessage, error) {
	if len(frames) != 3 {
		return RawMessage{}, &InvalidMultipartLengthError{
			Count: len(frames),
		}
	}

	topic, err := TopicFromBytes(frames[0])
	if err != nil {
		return RawMessage{}, err
	}

	if len(frames[2]) != SequenceNumberLen {
		return RawMessage{}, &InvalidSequenceLengthError{
			Len: len(frames[2]),
		}
	}

	return RawMessage{
		Topic:    topic,
		Data:     frames[1],
		Sequence: binary.LittleEndian.Uint32(frames[2]),
	}, nil
}

// Frames serializes the envelope back to the 3 frames of the wire layout.
func (m RawMessage) Frames() [][]byte {
	seq := make([]byte, SequenceNumberLen)
	binary.LittleEndian.PutUint32(seq, m.Sequence)

	return [][]byte{m.Topic.Bytes(), m.Data, seq}
}

// MessageContent is the decoded data frame of a message. The concrete type
// is determined by the topic: BlockHash, Txid, Block, Tx or Sequence.
type MessageContent interface {
	// Topic returns the topic this content kind is published on.
	Topic() Topic

	// SerializeData returns the wire encoding of the content, the exact
	// contents of the data frame.
	SerializeData() []byte

	fmt.Stringer
}

// BlockHash is the content of a "hashblock" message: the hash of a block
// connected to the chain tip.
type BlockHash struct {
	Hash chainhash.Hash
}

// Txid is the content of a "hashtx" message: the hash of a transaction that
// entered the mempool or was included in a block. A transaction can be
// published multiple times, first on mempool entry and again for each block
// that includes it.
type Txid struct {
	Hash chainhash.Hash
}

// Block is the content of a "rawblock" message: a complete block connected
// to the chain tip.
type Block struct {
	Block *wire.MsgBlock
}

// Tx is the content of a "rawtx" message: a complete transaction. Published
// under the same conditions as Txid.
type Tx struct {
	Tx *wire.MsgTx
}

// Sequence is the content of a "sequence" message: a chain tip or mempool
// event.
type Sequence struct {
	Event SequenceMessage
}

// Topic returns TopicHashBlock.
func (c BlockHash) Topic() Topic { return TopicHashBlock }

// Topic returns TopicHashTx.
func (c Txid) Topic() Topic { return TopicHashTx }

// Topic returns TopicRawBlock.
func (c Block) Topic() Topic { return TopicRawBlock }

// Topic returns TopicRawTx.
func (c Tx) Topic() Topic { return TopicRawTx }

// Topic returns TopicSequence.
func (c Sequence) Topic() Topic { return TopicSequence }

// SerializeData returns the hash in the reversed byte order used on the
// wire.
func (c BlockHash) SerializeData() []byte {
	data := make([]byte, chainHashLen)
	copyReversed(data, c.Hash[:])
	return data
}

// SerializeData returns the hash in the reversed byte order used on the
// wire.
func (c Txid) SerializeData() []byte {
	data := make([]byte, chainHashLen)
	copyReversed(data, c.Hash[:])
	return data
}

// SerializeData returns the consensus encoding of the block.
func (c Block) SerializeData() []byte {
	var buf bytes.Buffer
	buf.Grow(c.Block.SerializeSize())

	// Writing to a bytes.Buffer cannot fail.
	_ = c.Block.Serialize(&buf)

	return buf.Bytes()
}

// SerializeData returns the consensus encoding of the transaction.
func (c Tx) SerializeData() []byte {
	var buf bytes.Buffer
	buf.Grow(c.Tx.SerializeSize())
	_ = c.Tx.Serialize(&buf)

	return buf.Bytes()
}

// SerializeData returns the sequence event payload.
func (c Sequence) SerializeData() []byte {
	return c.Event.Serialize()
}

// String returns a human readable rendering of the content.
func (c BlockHash) String() string {
	return fmt.Sprintf("HashBlock(%v)", c.Hash)
}

// String returns a human readable rendering of the content.
func (c Txid) String() string {
	return fmt.Sprintf("HashTx(%v)", c.Hash)
}

// String returns a human readable rendering of the content.
func (c Block) String() string {
	return fmt.Sprintf("Block(%v)", c.Block.BlockHash())
}

// String returns a human readable rendering of the content.
func (c Tx) String() string {
	return fmt.Sprintf("Tx(%v)", c.Tx.TxHash())
}

// String returns a human readable rendering of the content.
func (c Sequence) String() string {
	return fmt.Sprintf("Sequence(%v)", c.Event)
}

// Message is a fully decoded notification: the typed content of the data
// frame plus the per-topic sequence number.
type Message struct {
	Content  MessageContent
	Sequence uint32
}

// Topic returns the topic the message was published on.
func (m Message) Topic() Topic {
	return m.Content.Topic()
}

// RawMessage re-serializes the message content back into the envelope form.
func (m Message) RawMessage() RawMessage {
	return RawMessage{
		Topic:    m.Topic(),
		Data:     m.Content.SerializeData(),
		Sequence: m.Sequence,
	}
}

// Frames serializes the message to the 3 frames of the wire layout.
func (m Message) Frames() [][]byte {
	return m.RawMessage().Frames()
}

// String returns a human readable rendering of the message.
func (m Message) String() string {
	return fmt.Sprintf("%v, sequence=%d", m.Content, m.Sequence)
}

// ParseMessage decodes the data frame of a validated envelope into typed
// content.
func ParseMessage(raw RawMessage) (Message, error) {
	content, err := parseContent(raw.Topic, raw.Data)
	if err != nil {
		return Message{}, err
	}

	return Message{Content: content, Sequence: raw.Sequence}, nil
}

// MessageFromFrames decodes a full multipart message. It validates the
// 3-frame envelope and then decodes the data frame according to the topic.
func MessageFromFrames(frames [][]byte) (Message, error) {
	raw, err := RawMessageFromFrames(frames)
	if err != nil {
		return Message{}, err
	}

	return ParseMessage(raw)
}

// parseContent decodes a data frame according to its topic.
func parseContent(topic Topic, data []byte) (MessageContent, error) {
	switch topic {
	case TopicHashBlock, TopicHashTx:
		if len(data) != chainHashLen {
			return nil, &InvalidHashLengthError{Len: len(data)}
		}

		hash := reversedHash(data)
		if topic == TopicHashBlock {
			return BlockHash{Hash: hash}, nil
		}
		return Txid{Hash: hash}, nil

	case TopicRawBlock:
		block := &wire.MsgBlock{}
		if err := block.Deserialize(bytes.NewReader(data)); err != nil {
			return nil, &DeserializationError{Err: err}
		}
		return Block{Block: block}, nil

	case TopicRawTx:
		tx := &wire.MsgTx{}
		if err := tx.Deserialize(bytes.NewReader(data)); err != nil {
			return nil, &DeserializationError{Err: err}
		}
		return Tx{Tx: tx}, nil

	case TopicSequence:
		event, err := ParseSequenceMessage(data)
		if err != nil {
			return nil, err
		}
		return Sequence{Event: event}, nil

	default:
		// Unreachable: only the five known topics construct.
		return nil, fmt.Errorf("unhandled topic %d", topic)
	}
}

// reversedHash interprets a 32-byte wire slice as a hash. Hashes are
// published in reversed byte order relative to chainhash's internal order,
// so the bytes are flipped on the way in. The caller checks the length.
func reversedHash(data []byte) chainhash.Hash {
	var hash chainhash.Hash
	copyReversed(hash[:], data)
	return hash
}

// copyReversed copies src into dst back to front. Both slices must be the
// same length.
func copyReversed(dst, src []byte) {
	for i, b := range src {
		dst[len(dst)-1-i] = b
	}
}
