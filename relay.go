package chesslink

import (
	"context"
	"net"
	"sync"

	"github.com/pkg/errors"
)

// Relay pairs connecting clients two at a time into matches and forwards
// every move message from one side of a match to the other, unchanged. It
// never parses moves and never validates them; legality is the clients'
// rules engines' business. Each client has exactly one peer.
type Relay struct {
	logger   Logger
	linkOpts []Option

	mu      sync.Mutex
	waiting *pendingClient
}

// pendingClient is a connected client parked until an opponent arrives.
type pendingClient struct {
	link *Link
	peer chan *Link
}

// NewRelay creates a relay. The link options are applied to every client
// connection it accepts.
func NewRelay(logger Logger, linkOpts ...Option) *Relay {
	if logger == nil {
		logger = defaultLogger()
	}
	return &Relay{
		logger:   logger,
		linkOpts: linkOpts,
	}
}

// Handle runs one client connection: wrap it in a transport worker, wait
// for an opponent, then forward this client's moves to the opponent until
// either side disconnects. When that happens both links are torn down so
// the surviving client observes the loss instead of a silent stall.
func (r *Relay) Handle(conn *net.TCPConn) {
	opts := append([]Option{LoggerOption(r.logger)}, r.linkOpts...)
	link := NewLink(conn, opts...)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runDone := make(chan struct{})
	go func() {
		defer close(runDone)
		_ = link.Run(ctx)
	}()

	peer, ok := r.match(link, runDone)
	if !ok {
		// Client disconnected while waiting for an opponent.
		link.Close()
		return
	}
	r.logger.Info("match wired", "client", link.Addr(), "peer", peer.Addr())

	r.forward(ctx, link, peer)

	// One side is gone; take the other down with it.
	_ = peer.Close()
	_ = link.Close()
	<-runDone
}

// match pairs the client with a waiting opponent, or parks it until one
// arrives. Returns false if the client's link dies first.
func (r *Relay) match(link *Link, runDone <-chan struct{}) (*Link, bool) {
	r.mu.Lock()
	if w := r.waiting; w != nil {
		r.waiting = nil
		r.mu.Unlock()
		w.peer <- link
		return w.link, true
	}

	me := &pendingClient{link: link, peer: make(chan *Link, 1)}
	r.waiting = me
	r.mu.Unlock()
	r.logger.Info("client waiting for opponent", "client", link.Addr())

	select {
	case peer := <-me.peer:
		return peer, true
	case <-runDone:
		r.mu.Lock()
		stillWaiting := r.waiting == me
		if stillWaiting {
			r.waiting = nil
		}
		r.mu.Unlock()
		if stillWaiting {
			return nil, false
		}
		// An opponent claimed us in the same instant the link died; accept
		// the match and let the forward loop surface the dead link.
		return <-me.peer, true
	}
}

// forward shovels move messages from one link to the other until the
// source dies or the destination goes away. An unsendable message that is
// not a dead link (saturated peer, oversized relayed frame) is dropped,
// matching the best-effort delivery of the transport worker itself.
func (r *Relay) forward(ctx context.Context, from, to *Link) {
	for {
		msg, err := from.Recv(ctx)
		if err != nil {
			return
		}
		if err := to.Send(msg); err != nil {
			if errors.Is(err, ErrLinkClosed) {
				return
			}
			r.logger.Warn("dropping relayed message", "from", from.Addr(), "error", err)
		}
	}
}
