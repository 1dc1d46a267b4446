package btczmq

const (
	// TopicHashBlock is the topic bitcoind publishes block hashes on.
	TopicHashBlock Topic = iota

	// TopicHashTx is the topic bitcoind publishes transaction hashes on.
	TopicHashTx

	// TopicRawBlock is the topic bitcoind publishes serialized blocks on.
	TopicRawBlock

	// TopicRawTx is the topic bitcoind publishes serialized transactions
	// on.
	TopicRawTx

	// TopicSequence is the topic bitcoind publishes chain tip and mempool
	// sequence events on.
	TopicSequence
)

const (
	// TopicMaxLen is the length of the longest known topic string,
	// "hashblock".
	TopicMaxLen = 9

	// SequenceNumberLen is the length of the sequence number frame of a
	// message.
	SequenceNumberLen = 4
)

// Topic identifies one of the five notification channels published by
// bitcoind over ZMQ.
type Topic uint8

// topicStrings maps each topic to its wire string. The indices must match
// the Topic constant values.
var topicStrings = [...]string{
	TopicHashBlock: "hashblock",
	TopicHashTx:    "hashtx",
	TopicRawBlock:  "rawblock",
	TopicRawTx:     "rawtx",
	TopicSequence:  "sequence",
}

// String returns the topic string as bitcoind publishes it.
func (t Topic) String() string {
	return topicStrings[t]
}

// Bytes returns the topic string as bytes, the exact contents of the topic
// frame of a message carrying this topic.
func (t Topic) Bytes() []byte {
	return []byte(topicStrings[t])
}

// TopicFromBytes parses a topic frame. Matching is exact: no prefix or
// suffix tolerance is applied. Unknown topics are reported as an
// *UnknownTopicError carrying the offending bytes, truncated to TopicMaxLen.
func TopicFromBytes(topic []byte) (Topic, error) {
	switch string(topic) {
	case "hashblock":
		return TopicHashBlock, nil
	case "hashtx":
		return TopicHashTx, nil
	case "rawblock":
		return TopicRawBlock, nil
	case "rawtx":
		return TopicRawTx, nil
	case "sequence":
		return TopicSequence, nil
	}

	capture := topic
	if len(capture) > TopicMaxLen {
		capture = capture[:TopicMaxLen]
	}

	// Copy the capture so the error does not alias a receive buffer that
	// is reused for the next message.
	return 0, &UnknownTopicError{
		Topic: append([]byte(nil), capture...),
		Len:   len(topic),
	}
}

// TopicFromString parses a topic string. See TopicFromBytes.
func TopicFromString(topic string) (Topic, error) {
	return TopicFromBytes([]byte(topic))
}
