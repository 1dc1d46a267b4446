package btczmq

import (
	"encoding/binary"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

const (
	// sequenceMsgBaseLen is the payload length of a block connect or
	// disconnect event: a 32-byte hash followed by the label byte.
	sequenceMsgBaseLen = chainHashLen + 1

	// sequenceMsgMempoolLen is the payload length of a mempool event:
	// the base layout followed by the 8-byte mempool sequence.
	sequenceMsgMempoolLen = sequenceMsgBaseLen + 8
)

// Sequence message labels as bitcoind encodes them at payload byte 32.
const (
	labelBlockConnect      = 'C'
	labelBlockDisconnect   = 'D'
	labelMempoolAcceptance = 'A'
	labelMempoolRemoval    = 'R'
)

// SequenceMessage describes a single chain tip or mempool event published on
// the "sequence" topic. The concrete type is one of BlockConnect,
// BlockDisconnect, MempoolAcceptance or MempoolRemoval.
type SequenceMessage interface {
	// Label returns the single character label bitcoind uses to tag this
	// event kind on the wire.
	Label() byte

	// RawLength returns the length of the serialized payload, either 33
	// or 41 bytes depending on the event kind.
	RawLength() int

	// Serialize returns the wire payload of this event, the exact
	// contents of the data frame of a "sequence" message.
	Serialize() []byte

	fmt.Stringer
}

// BlockConnect signals that a block was connected to the chain tip.
type BlockConnect struct {
	BlockHash chainhash.Hash
}

// BlockDisconnect signals that a block was disconnected from the chain tip
// during a reorganization.
type BlockDisconnect struct {
	BlockHash chainhash.Hash
}

// MempoolAcceptance signals that a transaction was accepted into the
// mempool. MempoolSequence is bitcoind's global mempool operation counter;
// it is not reset across reconnects.
type MempoolAcceptance struct {
	Txid            chainhash.Hash
	MempoolSequence uint64
}

// MempoolRemoval signals that a transaction was removed from the mempool
// for a reason other than inclusion in a block. Transactions removed solely
// because they were mined still increment the mempool sequence counter but
// do not produce this event.
type MempoolRemoval struct {
	Txid            chainhash.Hash
	MempoolSequence uint64
}

// Label returns 'C'.
func (m BlockConnect) Label() byte { return labelBlockConnect }

// Label returns 'D'.
func (m BlockDisconnect) Label() byte { return labelBlockDisconnect }

// Label returns 'A'.
func (m MempoolAcceptance) Label() byte { return labelMempoolAcceptance }

// Label returns 'R'.
func (m MempoolRemoval) Label() byte { return labelMempoolRemoval }

// RawLength returns 33.
func (m BlockConnect) RawLength() int { return sequenceMsgBaseLen }

// RawLength returns 33.
func (m BlockDisconnect) RawLength() int { return sequenceMsgBaseLen }

// RawLength returns 41.
func (m MempoolAcceptance) RawLength() int { return sequenceMsgMempoolLen }

// RawLength returns 41.
func (m MempoolRemoval) RawLength() int { return sequenceMsgMempoolLen }

// Serialize returns the 33-byte wire payload of the event.
func (m BlockConnect) Serialize() []byte {
	return serializeSequenceBase(&m.BlockHash, m.Label())
}

// Serialize returns the 33-byte wire payload of the event.
func (m BlockDisconnect) Serialize() []byte {
	return serializeSequenceBase(&m.BlockHash, m.Label())
}

// Serialize returns the 41-byte wire payload of the event.
func (m MempoolAcceptance) Serialize() []byte {
	return serializeSequenceMempool(&m.Txid, m.Label(), m.MempoolSequence)
}

// Serialize returns the 41-byte wire payload of the event.
func (m MempoolRemoval) Serialize() []byte {
	return serializeSequenceMempool(&m.Txid, m.Label(), m.MempoolSequence)
}

// String returns a human readable rendering of the event.
func (m BlockConnect) String() string {
	return fmt.Sprintf("BlockConnect(%v)", m.BlockHash)
}

// String returns a human readable rendering of the event.
func (m BlockDisconnect) String() string {
	return fmt.Sprintf("BlockDisconnect(%v)", m.BlockHash)
}

// String returns a human readable rendering of the event.
func (m MempoolAcceptance) String() string {
	return fmt.Sprintf("MempoolAcceptance(%v, mempool_sequence=%d)",
		m.Txid, m.MempoolSequence)
}

// String returns a human readable rendering of the event.
func (m MempoolRemoval) String() string {
	return fmt.Sprintf("MempoolRemoval(%v, mempool_sequence=%d)",
		m.Txid, m.MempoolSequence)
}

// ParseSequenceMessage decodes the data frame of a "sequence" topic message.
//
// The payload layout is a 32-byte hash in reversed byte order, a one
// character label, and, for the mempool labels only, a little-endian uint64
// mempool sequence number.
func ParseSequenceMessage(data []byte) (SequenceMessage, error) {
	if len(data) < sequenceMsgBaseLen {
		return nil, &InvalidSequenceMessageLengthError{Len: len(data)}
	}

	label := data[chainHashLen]
	switch label {
	case labelBlockConnect, labelBlockDisconnect:
		if len(data) != sequenceMsgBaseLen {
			return nil, &InvalidSequenceMessageLengthError{
				Len: len(data),
			}
		}

		blockHash := reversedHash(data[:chainHashLen])
		if label == labelBlockConnect {
			return BlockConnect{BlockHash: blockHash}, nil
		}
		return BlockDisconnect{BlockHash: blockHash}, nil

	case labelMempoolAcceptance, labelMempoolRemoval:
		if len(data) != sequenceMsgMempoolLen {
			return nil, &InvalidSequenceMessageLengthError{
				Len: len(data),
			}
		}

		txid := reversedHash(data[:chainHashLen])
		mempoolSeq := binary.LittleEndian.Uint64(
			data[sequenceMsgBaseLen:],
		)
		if label == labelMempoolAcceptance {
			return MempoolAcceptance{
				Txid:            txid,
				MempoolSequence: mempoolSeq,
			}, nil
		}
		return MempoolRemoval{
			Txid:            txid,
			MempoolSequence: mempoolSeq,
		}, nil

	default:
		return nil, &InvalidSequenceMessageLabelError{Label: label}
	}
}

// serializeSequenceBase writes the common hash+label prefix shared by all
// sequence events.
func serializeSequenceBase(hash *chainhash.Hash, label byte) []byte {
	payload := make([]byte, sequenceMsgBaseLen)
	copyReversed(payload[:chainHashLen], hash[:])
	payload[chainHashLen] = label
	return payload
}

// serializeSequenceMempool writes the mempool event layout: hash, label and
// the little-endian mempool sequence counter.
func serializeSequenceMempool(hash *chainhash.Hash, label byte,
	mempoolSeq uint64) []byte {

	payload := make([]byte, sequenceMsgMempoolLen)
	copyReversed(payload[:chainHashLen], hash[:])
	payload[chainHashLen] = label
	binary.LittleEndian.PutUint64(payload[sequenceMsgBaseLen:], mempoolSeq)
	return payload
}
