package btczmq

import (
	"sync"
	"time"

	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/lightningnetwork/lnd/queue"
	zmq "github.com/pebbe/zmq4"
)

const (
	// defaultQueueSize is the initial capacity of the receiver's
	// notification queue. The queue grows without bound beyond this, so
	// a slow consumer costs memory rather than blocking the receive
	// loop.
	defaultQueueSize = 20

	// receiverPollInterval is how often the receiver goroutine comes up
	// for air to check whether it has been stopped.
	receiverPollInterval = 100 * time.Millisecond
)

// Receiver delivers decoded notifications from a dedicated background
// goroutine through an unbounded FIFO queue.
type Receiver struct {
	ntfnQueue *queue.ConcurrentQueue

	quit    chan struct{}
	stopped sync.Once
	wg      sync.WaitGroup
}

// SubscribeReceiver subscribes to the given ZMQ endpoints and spawns a
// goroutine that reads the socket forever, pushing each decoded
// fn.Result[Message] onto the queue behind Updates. It returns immediately
// after the socket is connected.
//
// The goroutine exits only when Stop is called; there is no other
// termination condition.
func SubscribeReceiver(endpoints []string) (*Receiver, error) {
	sock, err := newSocket(endpoints)
	if err != nil {
		return nil, err
	}

	poller := zmq.NewPoller()
	poller.Add(sock, zmq.POLLIN)

	r := &Receiver{
		ntfnQueue: queue.NewConcurrentQueue(defaultQueueSize),
		quit:      make(chan struct{}),
	}
	r.ntfnQueue.Start()

	r.wg.Add(1)
	go r.receiveHandler(sock, poller)

	return r, nil
}

// receiveHandler is the receiver's main event loop. It owns the socket and
// closes it on the way out.
//
// NOTE: This MUST be run as a goroutine.
func (r *Receiver) receiveHandler(sock *zmq.Socket, poller *zmq.Poller) {
	defer r.wg.Done()
	defer sock.Close()
	defer r.ntfnQueue.Stop()

	src := &socketSource{sock: sock}

	for {
		select {
		case <-r.quit:
			return
		default:
		}

		// Wait for readability with a bounded timeout so the quit
		// signal above is observed even on an idle socket.
		polled, err := poller.Poll(receiverPollInterval)
		if err != nil {
			log.Errorf("Receiver poll failed: %v", err)
			r.push(fn.Err[Message](err))
			continue
		}
		if len(polled) == 0 {
			continue
		}

		msg, err := recvMessage(src)
		if err != nil {
			r.push(fn.Err[Message](err))
			continue
		}

		r.push(fn.Ok(msg))
	}
}

// push enqueues one result for the consumer.
func (r *Receiver) push(res fn.Result[Message]) {
	select {
	case r.ntfnQueue.ChanIn() <- res:
	case <-r.quit:
	}
}

// Updates returns the channel the receiver delivers on. Every element is an
// fn.Result[Message]: decode errors are delivered in-band exactly like
// messages. No further updates are delivered after Stop.
func (r *Receiver) Updates() <-chan interface{} {
	return r.ntfnQueue.ChanOut()
}

// Stop tears down the background goroutine and closes the socket. It is safe
// to call more than once.
func (r *Receiver) Stop() {
	r.stopped.Do(func() {
		close(r.quit)
	})
	r.wg.Wait()
}
