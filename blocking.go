package btczmq

import (
	"github.com/lightningnetwork/lnd/fn/v2"
)

// ControlFlow is returned by a blocking subscription callback to tell the
// receive loop whether to keep delivering or to stop and hand a final value
// back to the SubscribeBlocking caller.
type ControlFlow[T any] struct {
	stop  bool
	value T
}

// Continue instructs the receive loop to keep delivering.
func Continue[T any]() ControlFlow[T] {
	return ControlFlow[T]{}
}

// Break instructs the receive loop to stop. The given value is returned by
// SubscribeBlocking.
func Break[T any](value T) ControlFlow[T] {
	return ControlFlow[T]{stop: true, value: value}
}

// SubscribeBlocking subscribes to the given ZMQ endpoints and runs the
// receive loop on the calling goroutine. Every decoded notification and
// every per-message decode error is handed to the callback; whether a decode
// error is fatal is the callback's decision. The call returns once the
// callback returns Break, carrying the break value. It never returns on its
// own.
//
// Errors creating or connecting the socket are returned before the loop
// starts.
func SubscribeBlocking[T any](endpoints []string,
	callback func(fn.Result[Message]) ControlFlow[T]) (T, error) {

	var breakValue T

	sock, err := newSocket(endpoints)
	if err != nil {
		return breakValue, err
	}
	defer sock.Close()

	receiveLoop(&socketSource{sock: sock}, func(msg fn.Result[Message]) bool {
		flow := callback(msg)
		if flow.stop {
			breakValue = flow.value
			return false
		}

		return true
	})

	return breakValue, nil
}
