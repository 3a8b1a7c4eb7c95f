package chesslink

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"testing"
	"time"
)

// createTestTCPPair creates a connected pair of TCP connections for testing
func createTestTCPPair(t *testing.T) (*net.TCPConn, *net.TCPConn) {
	t.Helper()

	listener, err := net.ListenTCP("tcp", &net.TCPAddr{IP: net.ParseIP("127.0.0.1"), Port: 0})
	if err != nil {
		t.Fatalf("failed to create listener: %v", err)
	}
	defer listener.Close()

	clientChan := make(chan *net.TCPConn, 1)
	errChan := make(chan error, 1)
	go func() {
		conn, err := net.DialTCP("tcp", nil, listener.Addr().(*net.TCPAddr))
		if err != nil {
			errChan <- err
			return
		}
		clientChan <- conn
	}()

	serverConn, err := listener.AcceptTCP()
	if err != nil {
		t.Fatalf("failed to accept: %v", err)
	}

	select {
	case clientConn := <-clientChan:
		return serverConn, clientConn
	case err := <-errChan:
		serverConn.Close()
		t.Fatalf("client dial failed: %v", err)
		return nil, nil
	case <-time.After(5 * time.Second):
		serverConn.Close()
		t.Fatal("timeout waiting for client connection")
		return nil, nil
	}
}

// writeFrame pushes one padded frame onto the raw peer side of a link.
func writeFrame(t *testing.T, conn *net.TCPConn, msg string) {
	t.Helper()

	data, err := FrameCodec{}.Encode(msg)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	if _, err := conn.Write(data); err != nil {
		t.Fatalf("raw write failed: %v", err)
	}
}

// readFrame reads one padded frame from the raw peer side of a link.
func readFrame(t *testing.T, conn *net.TCPConn) string {
	t.Helper()

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	msg, err := FrameCodec{}.Decode(conn)
	if err != nil {
		t.Fatalf("raw read failed: %v", err)
	}
	return msg
}

// waitRecv polls TryRecv until a message arrives or the deadline passes.
func waitRecv(t *testing.T, link *Link) string {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		msg, ok, err := link.TryRecv()
		if err != nil {
			t.Fatalf("TryRecv failed: %v", err)
		}
		if ok {
			return msg
		}
		time.Sleep(time.Millisecond * 10)
	}
	t.Fatal("timeout waiting for inbound message")
	return ""
}

func TestNewLink_Defaults(t *testing.T) {
	serverConn, clientConn := createTestTCPPair(t)
	defer serverConn.Close()
	defer clientConn.Close()

	link := NewLink(serverConn)

	if link.rawConn != serverConn {
		t.Error("rawConn not set correctly")
	}
	if cap(link.outbox) != defaultBufferSize {
		t.Errorf("outbox capacity = %d, want %d", cap(link.outbox), defaultBufferSize)
	}
	if cap(link.inbox) != defaultBufferSize {
		t.Errorf("inbox capacity = %d, want %d", cap(link.inbox), defaultBufferSize)
	}
	if link.opts.writeTimeout != defaultWriteTimeout {
		t.Errorf("writeTimeout = %v, want %v", link.opts.writeTimeout, defaultWriteTimeout)
	}
	if link.opts.codec == nil {
		t.Error("codec should default to FrameCodec")
	}
}

func TestLink_Send_QueuesMessage(t *testing.T) {
	serverConn, clientConn := createTestTCPPair(t)
	defer serverConn.Close()
	defer clientConn.Close()

	link := NewLink(serverConn, BufferSizeOption(1))

	if err := link.Send("e2 e4"); err != nil {
		t.Errorf("Send failed: %v", err)
	}
}

func TestLink_Send_BufferFull(t *testing.T) {
	serverConn, clientConn := createTestTCPPair(t)
	defer serverConn.Close()
	defer clientConn.Close()

	link := NewLink(serverConn, BufferSizeOption(1))

	if err := link.Send("e2 e4"); err != nil {
		t.Fatalf("first Send failed: %v", err)
	}

	// The worker is not running, so the second enqueue must fail fast
	// instead of blocking the caller.
	if err := link.Send("d2 d4"); !errors.Is(err, ErrBufferFull) {
		t.Errorf("expected ErrBufferFull, got %v", err)
	}
}

func TestLink_Send_MessageTooLong(t *testing.T) {
	serverConn, clientConn := createTestTCPPair(t)
	defer serverConn.Close()
	defer clientConn.Close()

	link := NewLink(serverConn)

	err := link.Send(strings.Repeat("x", FrameSize))
	if !errors.Is(err, ErrMessageTooLong) {
		t.Errorf("expected ErrMessageTooLong, got %v", err)
	}
}

func TestLink_Send_AfterClose(t *testing.T) {
	serverConn, clientConn := createTestTCPPair(t)
	defer clientConn.Close()

	link := NewLink(serverConn)
	if err := link.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if err := link.Send("e2 e4"); !errors.Is(err, ErrLinkClosed) {
		t.Errorf("expected ErrLinkClosed, got %v", err)
	}
	if !link.IsClosed() {
		t.Error("expected IsClosed to return true after Close")
	}
}

func TestLink_TryRecv_Empty(t *testing.T) {
	serverConn, clientConn := createTestTCPPair(t)
	defer serverConn.Close()
	defer clientConn.Close()

	link := NewLink(serverConn)

	msg, ok, err := link.TryRecv()
	if err != nil {
		t.Errorf("TryRecv failed: %v", err)
	}
	if ok || msg != "" {
		t.Errorf("expected empty result, got %q", msg)
	}
}

func TestLink_Run_DeliversInbound(t *testing.T) {
	serverConn, clientConn := createTestTCPPair(t)
	defer clientConn.Close()

	link := NewLink(serverConn)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- link.Run(ctx)
	}()

	writeFrame(t, clientConn, "e2 e4")

	if got := waitRecv(t, link); got != "e2 e4" {
		t.Errorf("received = %q, want %q", got, "e2 e4")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for Run to complete")
	}
}

func TestLink_Run_WritesOutboundInOrder(t *testing.T) {
	serverConn, clientConn := createTestTCPPair(t)
	defer clientConn.Close()

	link := NewLink(serverConn)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- link.Run(ctx)
	}()

	if err := link.Send("d2 d4"); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if err := link.Send("g1 f3"); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	// Exactly one frame per message, in enqueue order.
	if got := readFrame(t, clientConn); got != "d2 d4" {
		t.Errorf("first frame = %q, want %q", got, "d2 d4")
	}
	if got := readFrame(t, clientConn); got != "g1 f3" {
		t.Errorf("second frame = %q, want %q", got, "g1 f3")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for Run to complete")
	}
}

func TestLink_Run_PeerDisconnect(t *testing.T) {
	serverConn, clientConn := createTestTCPPair(t)

	link := NewLink(serverConn)

	done := make(chan error, 1)
	go func() {
		done <- link.Run(context.Background())
	}()

	// Peer reset terminates the worker within one read.
	clientConn.Close()

	select {
	case err := <-done:
		if err == nil {
			t.Error("expected connection error from Run")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for Run to complete")
	}

	// After termination the application side observes disconnection.
	if _, _, err := link.TryRecv(); !errors.Is(err, ErrLinkClosed) {
		t.Errorf("expected ErrLinkClosed from TryRecv, got %v", err)
	}
	if err := link.Send("a7 a5"); !errors.Is(err, ErrLinkClosed) {
		t.Errorf("expected ErrLinkClosed from Send, got %v", err)
	}
}

func TestLink_Run_DrainsInboxBeforeClose(t *testing.T) {
	serverConn, clientConn := createTestTCPPair(t)

	link := NewLink(serverConn)

	done := make(chan error, 1)
	go func() {
		done <- link.Run(context.Background())
	}()

	writeFrame(t, clientConn, "e2 e4")
	clientConn.Close()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for Run to complete")
	}

	// The message read before the disconnect must still be delivered.
	msg, ok, err := link.TryRecv()
	if err != nil || !ok {
		t.Fatalf("TryRecv = (%q, %v, %v), want buffered message", msg, ok, err)
	}
	if msg != "e2 e4" {
		t.Errorf("received = %q, want %q", msg, "e2 e4")
	}

	if _, _, err := link.TryRecv(); !errors.Is(err, ErrLinkClosed) {
		t.Errorf("expected ErrLinkClosed after drain, got %v", err)
	}
}

func TestLink_Run_MalformedFrameDropped(t *testing.T) {
	serverConn, clientConn := createTestTCPPair(t)
	defer clientConn.Close()

	link := NewLink(serverConn)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- link.Run(ctx)
	}()

	// A frame with invalid UTF-8 is dropped; the connection survives and
	// the next frame comes through.
	bad := make([]byte, FrameSize)
	bad[0] = 0xff
	bad[1] = 0xfe
	if _, err := clientConn.Write(bad); err != nil {
		t.Fatalf("raw write failed: %v", err)
	}
	writeFrame(t, clientConn, "g8 f6")

	if got := waitRecv(t, link); got != "g8 f6" {
		t.Errorf("received = %q, want %q", got, "g8 f6")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for Run to complete")
	}
}

func TestLink_Run_MalformedFrameDisconnects(t *testing.T) {
	serverConn, clientConn := createTestTCPPair(t)
	defer clientConn.Close()

	link := NewLink(serverConn, OnErrorOption(func(err error) ErrorAction {
		return Disconnect
	}))

	done := make(chan error, 1)
	go func() {
		done <- link.Run(context.Background())
	}()

	bad := make([]byte, FrameSize)
	bad[0] = 0xff
	if _, err := clientConn.Write(bad); err != nil {
		t.Fatalf("raw write failed: %v", err)
	}

	select {
	case err := <-done:
		if !errors.Is(err, ErrInvalidEncoding) {
			t.Errorf("expected ErrInvalidEncoding, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for Run to complete")
	}
}

func TestLink_Run_ContextCanceled(t *testing.T) {
	serverConn, clientConn := createTestTCPPair(t)
	defer serverConn.Close()
	defer clientConn.Close()

	link := NewLink(serverConn)

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- link.Run(ctx)
	}()

	cancel()

	select {
	case err := <-done:
		// The read loop may be blocked on the socket when the context is
		// canceled; Run unblocks it by expiring the read deadline, so
		// either the cancellation or the induced read error surfaces.
		if err == nil {
			t.Error("expected error from canceled Run")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for Run to complete")
	}
}

func TestLink_Recv_Blocking(t *testing.T) {
	serverConn, clientConn := createTestTCPPair(t)
	defer clientConn.Close()

	link := NewLink(serverConn)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- link.Run(ctx)
	}()

	recvDone := make(chan string, 1)
	go func() {
		msg, err := link.Recv(context.Background())
		if err != nil {
			recvDone <- "error: " + err.Error()
			return
		}
		recvDone <- msg
	}()

	writeFrame(t, clientConn, "b1 c3")

	select {
	case got := <-recvDone:
		if got != "b1 c3" {
			t.Errorf("Recv = %q, want %q", got, "b1 c3")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for Recv")
	}
}

func TestLink_Recv_ContextCanceled(t *testing.T) {
	serverConn, clientConn := createTestTCPPair(t)
	defer serverConn.Close()
	defer clientConn.Close()

	link := NewLink(serverConn)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := link.Recv(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestLink_Close_Idempotent(t *testing.T) {
	serverConn, clientConn := createTestTCPPair(t)
	defer clientConn.Close()

	link := NewLink(serverConn)

	if err := link.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
	if err := link.Close(); err != nil {
		t.Errorf("second Close failed: %v", err)
	}
}

// blockedCodec stalls Decode until the reader fails, to exercise shutdown
// while the read loop is mid-read.
type blockedCodec struct{}

func (blockedCodec) Decode(r io.Reader) (string, error) {
	buf := make([]byte, 1)
	if _, err := r.Read(buf); err != nil {
		return "", err
	}
	return "", &ProtocolError{Cause: ErrInvalidEncoding}
}

func (blockedCodec) Encode(msg string) ([]byte, error) {
	return []byte(msg), nil
}

func TestLink_CustomCodec(t *testing.T) {
	serverConn, clientConn := createTestTCPPair(t)
	defer serverConn.Close()
	defer clientConn.Close()

	link := NewLink(serverConn, CodecOption(blockedCodec{}))
	if _, ok := link.opts.codec.(blockedCodec); !ok {
		t.Error("codec option not applied")
	}
}
