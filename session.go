package chesslink

import (
	"github.com/pkg/errors"
)

// Engine is the rules engine a Session drives. It is an external
// collaborator: the session feeds it square tokens ("e2") and trusts it
// for legality and game state. Both peers keep their engines in lock-step
// purely by relaying the same move sequence.
type Engine interface {
	// MakeMove applies one move given as two square tokens.
	MakeMove(from, to string) error
	// PossibleMoves returns the legal destination tokens from a square.
	// ok is false when the square has no moveable piece (empty, or not
	// the side to move).
	PossibleMoves(from string) ([]string, bool)
}

// Peer is the slice of a Link the session uses: enqueue one outbound move,
// poll for one inbound move. Both operations are attempt-and-return, so
// the UI thread is never stalled by the network.
type Peer interface {
	Send(msg string) error
	TryRecv() (string, bool, error)
}

// Session is the application worker. It is the single owner and the only
// mutator of the local rules engine: remote moves arriving off the link
// and local moves arriving from the input layer both funnel through it on
// the UI thread, one logic tick at a time. No other synchronization exists
// or is needed.
type Session struct {
	engine Engine
	peer   Peer
	logger Logger

	selected   *Square
	highlights []Square
	degraded   bool
}

// NewSession creates a session around an engine and a peer link.
// A nil logger falls back to the slog default.
func NewSession(engine Engine, peer Peer, logger Logger) *Session {
	if logger == nil {
		logger = defaultLogger()
	}
	return &Session{
		engine: engine,
		peer:   peer,
		logger: logger,
	}
}

// Update runs one logic tick: a single non-blocking check of the inbound
// queue, applying a remote move to the local engine if one arrived.
//
// A dead link does not crash the session; it goes degraded and simply
// stops receiving remote updates. A malformed inbound message is dropped
// with a log line. A remote move the local engine rejects is returned as
// an error: the two boards have diverged and the match cannot continue.
func (s *Session) Update() error {
	msg, ok, err := s.peer.TryRecv()
	if err != nil {
		if !s.degraded {
			s.logger.Warn("lost connection to peer, no further remote moves")
			s.degraded = true
		}
		return nil
	}
	if !ok {
		return nil
	}

	m, err := ParseMove(msg)
	if err != nil {
		s.logger.Warn("dropping malformed move message", "msg", msg, "error", err)
		return nil
	}

	if err := s.engine.MakeMove(m.From.String(), m.To.String()); err != nil {
		return errors.Wrapf(err, "remote move %q rejected by engine", msg)
	}
	s.logger.Info("applied remote move", "move", msg)

	// The board changed under the current selection.
	s.refreshHighlights()
	return nil
}

// Click handles one board click, already translated from pixels to a
// square by the input layer. Clicking the selection clears it; clicking a
// highlighted destination finalizes the move; anything else moves the
// selection.
//
// Finalizing a move applies it to the local engine first and then enqueues
// it for the peer. A failed enqueue is fatal to the match and is returned
// for the caller to act on; the session itself keeps its state consistent.
func (s *Session) Click(sq Square) error {
	if !sq.Valid() {
		return errors.Errorf("click out of range: rank=%d file=%d", sq.Rank, sq.File)
	}

	if s.selected == nil {
		s.selectSquare(sq)
		return nil
	}

	sel := *s.selected
	switch {
	case sel == sq:
		s.clearSelection()

	case s.isHighlighted(sq):
		m := Move{From: sel, To: sq}
		// Local apply before sending: the destination came from the
		// engine's own legal-move list, so a rejection here means the
		// engine contract is broken.
		if err := s.engine.MakeMove(m.From.String(), m.To.String()); err != nil {
			s.clearSelection()
			return errors.Wrapf(err, "local move %q rejected by engine", m)
		}
		s.clearSelection()
		if err := s.peer.Send(m.String()); err != nil {
			s.degraded = true
			return errors.Wrapf(err, "cannot relay move %q to peer", m)
		}
		s.logger.Info("sent move", "move", m.String())

	default:
		s.selectSquare(sq)
	}
	return nil
}

// Selected returns the currently selected square, if any.
func (s *Session) Selected() (Square, bool) {
	if s.selected == nil {
		return Square{}, false
	}
	return *s.selected, true
}

// Highlights returns the legal destinations of the current selection.
// The slice is owned by the session and valid until the next Click or
// Update.
func (s *Session) Highlights() []Square {
	return s.highlights
}

// Degraded reports whether the link to the peer has died. The session
// keeps working locally but no moves are exchanged anymore.
func (s *Session) Degraded() bool {
	return s.degraded
}

func (s *Session) selectSquare(sq Square) {
	s.selected = &sq
	s.highlights = s.legalDestinations(sq)
}

func (s *Session) clearSelection() {
	s.selected = nil
	s.highlights = nil
}

func (s *Session) refreshHighlights() {
	if s.selected != nil {
		s.highlights = s.legalDestinations(*s.selected)
	}
}

func (s *Session) isHighlighted(sq Square) bool {
	for _, h := range s.highlights {
		if h == sq {
			return true
		}
	}
	return false
}

// legalDestinations asks the engine for the moves from sq and parses the
// returned tokens. Tokens the engine produces that do not parse are
// skipped with a log line rather than trusted.
func (s *Session) legalDestinations(sq Square) []Square {
	toks, ok := s.engine.PossibleMoves(sq.String())
	if !ok {
		return nil
	}
	out := make([]Square, 0, len(toks))
	for _, tok := range toks {
		dst, err := ParseSquare(tok)
		if err != nil {
			s.logger.Warn("skipping bad destination token from engine", "token", tok, "error", err)
			continue
		}
		out = append(out, dst)
	}
	return out
}
