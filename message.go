// Package chesslink keeps two chess clients in lock-step over TCP.
// It provides the fixed-size frame codec, the transport worker that owns
// the connection, the session that owns the local rules-engine state, and
// a relay server that pairs two clients into a match.
//
// The rules engine itself is an external collaborator; the package only
// relays validated move notation between peers.
package chesslink

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// Move messages use two-token algebraic square notation, e.g. "e2 e4".
// Files map a..h to 0..7 and ranks map 1..8 to 0..7. The same mapping is
// used on the encode and decode paths on both ends of the connection.

// Square is a board position. Rank and File are both in [0,7].
type Square struct {
	Rank int
	File int
}

// Valid reports whether the square lies on the board.
func (s Square) Valid() bool {
	return s.Rank >= 0 && s.Rank <= 7 && s.File >= 0 && s.File <= 7
}

// String encodes the square as a two-character token, e.g. "e2".
// Encoding an off-board square panics; callers construct squares from
// ParseSquare or from board indices that are in range by construction.
func (s Square) String() string {
	if !s.Valid() {
		panic(fmt.Sprintf("chesslink: square out of range: rank=%d file=%d", s.Rank, s.File))
	}
	return string([]byte{byte('a' + s.File), byte('1' + s.Rank)})
}

// ParseSquare decodes a two-character square token.
func ParseSquare(tok string) (Square, error) {
	if len(tok) != 2 {
		return Square{}, errors.Errorf("invalid square token %q", tok)
	}
	file := int(tok[0]) - 'a'
	rank := int(tok[1]) - '1'
	sq := Square{Rank: rank, File: file}
	if !sq.Valid() {
		return Square{}, errors.Errorf("square token %q out of range", tok)
	}
	return sq, nil
}

// Move is one half-move, from one square to another.
type Move struct {
	From Square
	To   Square
}

// String encodes the move as a wire message, e.g. "e2 e4".
func (m Move) String() string {
	return m.From.String() + " " + m.To.String()
}

// ParseMove decodes a move message: two square tokens separated by exactly
// one ASCII space, no surrounding data.
func ParseMove(msg string) (Move, error) {
	from, to, ok := strings.Cut(msg, " ")
	if !ok {
		return Move{}, errors.Errorf("move message %q missing separator", msg)
	}
	f, err := ParseSquare(from)
	if err != nil {
		return Move{}, errors.Wrapf(err, "move message %q", msg)
	}
	t, err := ParseSquare(to)
	if err != nil {
		return Move{}, errors.Wrapf(err, "move message %q", msg)
	}
	return Move{From: f, To: t}, nil
}
