package chesslink

import (
	"time"
)

// ErrorAction defines what the transport worker does after a recoverable
// error (a malformed frame or a failed frame write).
type ErrorAction int

const (
	// Disconnect terminates the worker when the error occurs.
	Disconnect ErrorAction = iota
	// Continue drops the affected frame or message and keeps the
	// connection alive. This is the default: losing a single move is
	// preferable to killing the match.
	Continue
)

// options holds the configuration for a link.
type options struct {
	codec  Codec
	logger Logger

	// onError is consulted for recoverable errors only; connection-level
	// read failures always terminate the worker.
	onError func(error) ErrorAction

	bufferSize   int           // capacity of the inbox and outbox queues
	writeTimeout time.Duration // deadline for a single frame write
}

// Option is a function that configures link options.
type Option func(*options)

// checkOptions fills in defaults for anything left unset.
func checkOptions(opts *options) {
	if opts.bufferSize <= 0 {
		opts.bufferSize = defaultBufferSize
	}

	if opts.writeTimeout <= 0 {
		opts.writeTimeout = defaultWriteTimeout
	}

	if opts.codec == nil {
		opts.codec = FrameCodec{}
	}

	if opts.onError == nil {
		opts.onError = func(err error) ErrorAction { return Continue }
	}

	if opts.logger == nil {
		opts.logger = defaultLogger()
	}
}

// CodecOption returns an Option that sets the wire codec.
// The default is FrameCodec.
func CodecOption(codec Codec) Option {
	return func(o *options) {
		o.codec = codec
	}
}

// BufferSizeOption returns an Option that sets the capacity of the inbound
// and outbound queues.
func BufferSizeOption(size int) Option {
	return func(o *options) {
		o.bufferSize = size
	}
}

// WriteTimeoutOption returns an Option that sets the per-frame write
// deadline. There is no read deadline: a chess opponent thinking for an
// hour is not an error.
func WriteTimeoutOption(timeout time.Duration) Option {
	return func(o *options) {
		o.writeTimeout = timeout
	}
}

// OnErrorOption returns an Option that sets the recoverable-error callback.
// Return Disconnect to terminate the worker, or Continue to drop the
// affected frame and keep going.
func OnErrorOption(cb func(error) ErrorAction) Option {
	return func(o *options) {
		o.onError = cb
	}
}

// LoggerOption returns an Option that sets the logger.
// If not set, the default slog logger will be used.
func LoggerOption(logger Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}
