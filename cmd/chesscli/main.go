// chesscli is a headless chess client for exercising a chesslink relay:
// it connects to the server, reads square tokens from stdin and exchanges
// moves with the remote peer. It ships with a rules-free engine, so it is
// a link-debugging tool rather than a playable chess program.
//
// Input is either a single square token ("e2") to select or deselect, or a
// full move ("e2 e4").
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strings"
	"time"

	"github.com/osveijer/chesslink"
)

// updateInterval is the logic-tick cadence: one inbound poll per tick,
// which bounds move-relay latency to roughly this interval.
const updateInterval = 100 * time.Millisecond

func main() {
	serverAddr := flag.String("server", "127.0.0.1:6000", "relay server address")
	verbose := flag.Bool("v", false, "debug logging")
	flag.Parse()

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	if err := run(*serverAddr, logger); err != nil {
		fmt.Fprintln(os.Stderr, "chesscli:", err)
		os.Exit(1)
	}
}

func run(serverAddr string, logger *slog.Logger) error {
	tcpAddr, err := net.ResolveTCPAddr("tcp", serverAddr)
	if err != nil {
		return err
	}
	conn, err := net.DialTCP("tcp", nil, tcpAddr)
	if err != nil {
		return err
	}
	fmt.Println("connected to server at:", serverAddr)

	link := chesslink.NewLink(conn, chesslink.LoggerOption(logger))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		_ = link.Run(ctx)
	}()
	defer link.Close()

	engine := newFreeEngine()
	session := chesslink.NewSession(engine, link, logger)

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- strings.TrimSpace(scanner.Text())
		}
	}()

	fmt.Print(engine.Render(nil))
	lastVersion := engine.Version()
	wasDegraded := false

	ticker := time.NewTicker(updateInterval)
	defer ticker.Stop()

	for {
		select {
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if line == "" {
				continue
			}
			if err := handleInput(session, line); err != nil {
				// A dead link is fatal to the session; bad input is not.
				if session.Degraded() {
					return err
				}
				fmt.Println("?", err)
			}
			if engine.Version() != lastVersion {
				lastVersion = engine.Version()
				fmt.Print(engine.Render(selectedOrNil(session)))
			} else if sel, ok := session.Selected(); ok {
				fmt.Printf("selected %s (%d destinations)\n", sel, len(session.Highlights()))
			}

		case <-ticker.C:
			if err := session.Update(); err != nil {
				return err
			}
			if session.Degraded() && !wasDegraded {
				wasDegraded = true
				fmt.Println("! connection lost, remote moves frozen")
			}
			if engine.Version() != lastVersion {
				lastVersion = engine.Version()
				fmt.Print(engine.Render(selectedOrNil(session)))
			}
		}
	}
}

// handleInput feeds one line of input to the session as board clicks.
func handleInput(session *chesslink.Session, line string) error {
	for _, tok := range strings.Fields(line) {
		sq, err := chesslink.ParseSquare(tok)
		if err != nil {
			return err
		}
		if err := session.Click(sq); err != nil {
			return err
		}
	}
	return nil
}

func selectedOrNil(session *chesslink.Session) *chesslink.Square {
	if sel, ok := session.Selected(); ok {
		return &sel
	}
	return nil
}
