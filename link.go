package chesslink

import (
	"bufio"
	"context"
	"net"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// Errors returned by link operations.
var (
	// ErrLinkClosed is returned when sending on or receiving from a link
	// whose transport worker has terminated. For the sending side this is
	// fatal to the match: there is no reconnection, the caller decides
	// whether to exit or to keep running without remote updates.
	ErrLinkClosed = errors.New("link closed")
	// ErrBufferFull is returned when the outbound queue cannot accept
	// another message without blocking.
	ErrBufferFull = errors.New("outbound buffer full")
)

// Default configuration values.
const (
	// defaultBufferSize is the default capacity of the inbound and
	// outbound queues. Moves are small and alternate between players,
	// so the queues never grow deep in practice.
	defaultBufferSize = 16
	// defaultWriteTimeout bounds a single frame write so a wedged peer
	// cannot stall the write loop forever.
	defaultWriteTimeout = 10 * time.Second
)

// Link is the transport worker for one peer connection. It owns the TCP
// socket for its entire lifetime and bridges it to two single-producer/
// single-consumer queues: an outbox drained onto the wire and an inbox
// filled from it. The application side never touches the socket; it only
// calls Send and TryRecv.
type Link struct {
	rawConn *net.TCPConn
	reader  *bufio.Reader
	logger  Logger

	opts options

	outbox chan []byte
	inbox  chan string

	closed atomic.Bool
	cancel context.CancelFunc
}

// NewLink wraps an established TCP connection in a transport worker.
// The worker does nothing until Run is called.
func NewLink(conn *net.TCPConn, opt ...Option) *Link {
	var opts options
	for _, o := range opt {
		o(&opts)
	}
	checkOptions(&opts)

	return &Link{
		rawConn: conn,
		reader:  bufio.NewReaderSize(conn, FrameSize),
		logger:  opts.logger,
		opts:    opts,
		outbox:  make(chan []byte, opts.bufferSize),
		inbox:   make(chan string, opts.bufferSize),
	}
}

// Run drives the link's read and write loops until the connection fails,
// the context is canceled or Close is called. It blocks, so callers start
// it on its own goroutine. When Run returns the inbox has been closed, so
// the application observes the disconnection through TryRecv after any
// already-decoded messages have been drained.
//
// Connection loss is terminal: Run never reconnects.
func (l *Link) Run(ctx context.Context) error {
	l.logger.Info("link up", "addr", l.Addr())
	l.logger.Debug("link options", "addr", l.Addr(),
		"buffer_size", l.opts.bufferSize,
		"write_timeout", l.opts.writeTimeout)

	ctx, l.cancel = context.WithCancel(ctx)
	group, child := errgroup.WithContext(ctx)

	group.Go(func() error {
		return l.readLoop(child)
	})

	group.Go(func() error {
		return l.writeLoop(child)
	})

	// There is no read deadline (an idle opponent is normal), so a
	// cancellation must unblock a read in progress by expiring it.
	group.Go(func() error {
		<-child.Done()
		_ = l.rawConn.SetReadDeadline(time.Now())
		return nil
	})

	err := group.Wait()
	l.closeConn()
	close(l.inbox)

	if err != nil && !errors.Is(err, context.Canceled) {
		l.logger.Info("link down with error", "addr", l.Addr(), "error", err)
	} else {
		l.logger.Info("link down", "addr", l.Addr())
	}

	return err
}

// Close terminates the link. It cancels the worker loops and closes the
// underlying TCP connection. Safe to call multiple times.
func (l *Link) Close() error {
	if l.closed.Swap(true) {
		return nil // already closed
	}
	if l.cancel != nil {
		l.cancel()
	}
	return l.rawConn.Close()
}

// IsClosed returns true if the link has been closed.
func (l *Link) IsClosed() bool {
	return l.closed.Load()
}

// Addr returns the remote address of the connection.
func (l *Link) Addr() net.Addr {
	return l.rawConn.RemoteAddr()
}

// Send enqueues one move message for delivery to the peer. It never blocks:
// the caller is the UI thread and a slow peer must not stall it.
//
// Returns:
//   - nil: message was queued (delivery is best-effort, see writeLoop)
//   - ErrLinkClosed: the transport worker has terminated
//   - ErrBufferFull: the outbox is saturated, message was NOT queued
//   - encoding error: the message violates the frame size precondition
func (l *Link) Send(msg string) error {
	if l.closed.Load() {
		return ErrLinkClosed
	}

	data, err := l.opts.codec.Encode(msg)
	if err != nil {
		return err
	}

	select {
	case l.outbox <- data:
		return nil
	default:
		return ErrBufferFull
	}
}

// TryRecv pops one inbound move message without blocking.
//
// Returns:
//   - (msg, true, nil): a message was waiting
//   - ("", false, nil): nothing inbound this cycle
//   - ("", false, ErrLinkClosed): the transport worker has terminated and
//     the inbox is drained; no further messages will ever arrive
func (l *Link) TryRecv() (string, bool, error) {
	select {
	case msg, ok := <-l.inbox:
		if !ok {
			return "", false, ErrLinkClosed
		}
		return msg, true, nil
	default:
		return "", false, nil
	}
}

// Recv blocks until an inbound message arrives, the link terminates or the
// context is canceled. The relay uses this; interactive clients poll with
// TryRecv from their logic tick instead.
func (l *Link) Recv(ctx context.Context) (string, error) {
	select {
	case msg, ok := <-l.inbox:
		if !ok {
			return "", ErrLinkClosed
		}
		return msg, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// readLoop decodes frames off the socket and forwards them to the inbox.
// A malformed frame is fatal to that frame only: the stream stays aligned
// on FrameSize boundaries, so the loop drops it and keeps reading unless
// the error callback says otherwise. Any other read error is connection
// loss and terminates the worker.
func (l *Link) readLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			msg, err := l.opts.codec.Decode(l.reader)
			if err != nil {
				var perr *ProtocolError
				if errors.As(err, &perr) {
					if l.opts.onError(err) == Continue {
						l.logger.Warn("dropping malformed frame", "addr", l.Addr(), "error", err)
						continue
					}
					return err
				}
				l.logger.Debug("read error", "addr", l.Addr(), "error", err)
				return err
			}

			select {
			case l.inbox <- msg:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

// writeLoop drains the outbox onto the wire in enqueue order, one frame
// write per message.
func (l *Link) writeLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case data := <-l.outbox:
			if err := l.write(data); err != nil {
				return err
			}
		}
	}
}

// write puts one frame on the wire with a deadline. Delivery is
// best-effort: the local rules engine has already advanced, so by default
// a failed write drops that single message rather than kill the match.
func (l *Link) write(data []byte) error {
	_ = l.rawConn.SetWriteDeadline(time.Now().Add(l.opts.writeTimeout))

	_, err := l.rawConn.Write(data)

	if err != nil {
		if l.opts.onError(err) == Disconnect {
			return err
		}
		l.logger.Warn("dropping undeliverable message", "addr", l.Addr(), "error", err)
	}

	return nil
}

// closeConn marks the link as closed and closes the underlying TCP connection.
func (l *Link) closeConn() {
	l.closed.Store(true)
	l.rawConn.Close()
}
