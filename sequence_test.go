package btczmq

import (
	"testing"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/stretchr/testify/require"
)

// TestSequenceMessageRoundTrip encodes and decodes every sequence event
// variant and checks that the payload length always matches RawLength.
func TestSequenceMessageRoundTrip(t *testing.T) {
	t.Parallel()

	params := &chaincfg.MainNetParams
	blockHash := *params.GenesisHash
	txid := params.GenesisBlock.Transactions[0].TxHash()

	events := []SequenceMessage{
		BlockConnect{BlockHash: blockHash},
		BlockDisconnect{BlockHash: blockHash},
		MempoolAcceptance{Txid: txid, MempoolSequence: 1},
		MempoolRemoval{Txid: txid, MempoolSequence: 0xdeadbeefcafe},
	}

	for _, event := range events {
		payload := event.Serialize()
		require.Len(t, payload, event.RawLength(), "event %v", event)

		decoded, err := ParseSequenceMessage(payload)
		require.NoError(t, err, "event %v", event)
		require.Equal(t, event, decoded)
	}
}

// TestSequenceMessageLengths checks the layout constants directly.
func TestSequenceMessageLengths(t *testing.T) {
	t.Parallel()

	require.Equal(t, 33, BlockConnect{}.RawLength())
	require.Equal(t, 33, BlockDisconnect{}.RawLength())
	require.Equal(t, 41, MempoolAcceptance{}.RawLength())
	require.Equal(t, 41, MempoolRemoval{}.RawLength())
}

// TestSequenceMessageTooShort checks that every payload shorter than the
// base layout is rejected with its exact length.
func TestSequenceMessageTooShort(t *testing.T) {
	t.Parallel()

	for length := 0; length < 33; length++ {
		_, err := ParseSequenceMessage(make([]byte, length))

		var lenErr *InvalidSequenceMessageLengthError
		require.ErrorAs(t, err, &lenErr)
		require.Equal(t, length, lenErr.Len)
	}
}

// TestSequenceMessageLabelScenarios decodes concrete payloads for the block
// connect and mempool acceptance labels.
func TestSequenceMessageLabelScenarios(t *testing.T) {
	t.Parallel()

	params := &chaincfg.MainNetParams
	blockHash := *params.GenesisHash
	txid := params.GenesisBlock.Transactions[0].TxHash()

	// 32 reversed hash bytes followed by 'C'.
	payload := make([]byte, 33)
	copyReversed(payload[:32], blockHash[:])
	payload[32] = 'C'

	event, err := ParseSequenceMessage(payload)
	require.NoError(t, err)
	require.Equal(t, BlockConnect{BlockHash: blockHash}, event)

	// 32 reversed hash bytes, 'A', and a little-endian uint64 of 1.
	payload = make([]byte, 41)
	copyReversed(payload[:32], txid[:])
	payload[32] = 'A'
	payload[33] = 1

	event, err = ParseSequenceMessage(payload)
	require.NoError(t, err)
	require.Equal(t, MempoolAcceptance{
		Txid:            txid,
		MempoolSequence: 1,
	}, event)
}

// TestSequenceMessageBadLabel checks that unknown labels are rejected with
// the label byte.
func TestSequenceMessageBadLabel(t *testing.T) {
	t.Parallel()

	payload := make([]byte, 33)
	payload[32] = 'X'

	_, err := ParseSequenceMessage(payload)

	var labelErr *InvalidSequenceMessageLabelError
	require.ErrorAs(t, err, &labelErr)
	require.Equal(t, byte('X'), labelErr.Label)
}

// TestSequenceMessageLengthLabelMismatch checks that a payload whose length
// does not match its label's layout is rejected.
func TestSequenceMessageLengthLabelMismatch(t *testing.T) {
	t.Parallel()

	// Block connect with a trailing mempool sequence.
	payload := make([]byte, 41)
	payload[32] = 'C'
	_, err := ParseSequenceMessage(payload)
	var lenErr *InvalidSequenceMessageLengthError
	require.ErrorAs(t, err, &lenErr)
	require.Equal(t, 41, lenErr.Len)

	// Mempool removal without one.
	payload = make([]byte, 33)
	payload[32] = 'R'
	_, err = ParseSequenceMessage(payload)
	require.ErrorAs(t, err, &lenErr)
	require.Equal(t, 33, lenErr.Len)
}
