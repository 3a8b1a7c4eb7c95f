package main

import (
	"strings"

	"github.com/osveijer/chesslink"
	"github.com/pkg/errors"
)

// freeEngine is a stand-in for a real rules engine: it tracks piece
// positions from the standard starting setup but allows any piece to move
// to any square. It exists so the link can be exercised end to end; a real
// engine plugs into the same chesslink.Engine interface.
type freeEngine struct {
	board   [8][8]rune // [rank][file], 0 = empty
	version int
}

func newFreeEngine() *freeEngine {
	e := &freeEngine{}
	back := []rune("RNBQKBNR")
	for file := 0; file < 8; file++ {
		e.board[0][file] = back[file]
		e.board[1][file] = 'P'
		e.board[6][file] = 'p'
		e.board[7][file] = asciiLower(back[file])
	}
	return e
}

func asciiLower(r rune) rune {
	return r + ('a' - 'A')
}

// MakeMove moves whatever sits on from to to, capturing by overwrite.
func (e *freeEngine) MakeMove(from, to string) error {
	f, err := chesslink.ParseSquare(from)
	if err != nil {
		return err
	}
	t, err := chesslink.ParseSquare(to)
	if err != nil {
		return err
	}
	piece := e.board[f.Rank][f.File]
	if piece == 0 {
		return errors.Errorf("no piece on %s", from)
	}
	e.board[f.Rank][f.File] = 0
	e.board[t.Rank][t.File] = piece
	e.version++
	return nil
}

// PossibleMoves returns every square except the origin when a piece is
// present. No chess rules are applied.
func (e *freeEngine) PossibleMoves(from string) ([]string, bool) {
	f, err := chesslink.ParseSquare(from)
	if err != nil || e.board[f.Rank][f.File] == 0 {
		return nil, false
	}
	out := make([]string, 0, 63)
	for rank := 0; rank < 8; rank++ {
		for file := 0; file < 8; file++ {
			sq := chesslink.Square{Rank: rank, File: file}
			if sq == f {
				continue
			}
			out = append(out, sq.String())
		}
	}
	return out, true
}

// Version increments on every applied move; the UI uses it to know when to
// redraw.
func (e *freeEngine) Version() int {
	return e.version
}

// Render draws the board as text, rank 8 at the top, with the current
// selection marked.
func (e *freeEngine) Render(selected *chesslink.Square) string {
	var b strings.Builder
	for rank := 7; rank >= 0; rank-- {
		b.WriteByte(byte('1' + rank))
		b.WriteByte(' ')
		for file := 0; file < 8; file++ {
			cell := e.board[rank][file]
			if cell == 0 {
				cell = '.'
			}
			if selected != nil && selected.Rank == rank && selected.File == file {
				b.WriteByte('[')
				b.WriteRune(cell)
				b.WriteByte(']')
			} else {
				b.WriteByte(' ')
				b.WriteRune(cell)
				b.WriteByte(' ')
			}
		}
		b.WriteByte('\n')
	}
	b.WriteString("   a  b  c  d  e  f  g  h\n")
	return b.String()
}
