package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/kingrea/portal/internal/game"
)

func handleSolveCommand() bool {
	if len(os.Args) < 2 || os.Args[1] != "solve" {
		return false
	}
	if len(os.Args) != 3 {
		fmt.Fprintln(os.Stderr, "Usage: portal solve XX.OO....")
		os.Exit(2)
	}
	if err := solve(os.Stdout, os.Args[2]); err != nil {
		fmt.Fprintf(os.Stderr, "Solve failed: %v\n", err)
		os.Exit(1)
	}
	os.Exit(0)
	return true
}

// solve prints the engine's move for board and the score of every legal move.
func solve(w io.Writer, board string) error {
	pos, err := game.ParsePosition(board)
	if err != nil {
		return err
	}
	if !pos.Reachable() {
		return errors.New("position is not reachable with X moving first")
	}
	if outcome := pos.Outcome(); outcome.Terminal() {
		fmt.Fprintf(w, "Game over: %s\n", outcome)
		return nil
	}
	side := pos.ToMove()
	move, ok := game.BestMove(pos, side)
	if !ok {
		return errors.New("no legal move")
	}
	fmt.Fprintf(w, "%s to move: cell %d\n", side.Mark(), int(move))
	fmt.Fprintln(w, renderBoard(pos.Apply(move, side)))

	scores := game.NewEngine().Scores(pos, side)
	moves := make([]game.Move, 0, len(scores))
	for m := range scores {
		moves = append(moves, m)
	}
	sort.Slice(moves, func(i, j int) bool { return moves[i] < moves[j] })
	for _, m := range moves {
		fmt.Fprintf(w, "  cell %d: %+d\n", int(m), scores[m])
	}
	return nil
}

func renderBoard(p game.Position) string {
	s := p.String()
	rows := []string{s[0:3], s[3:6], s[6:9]}
	return strings.Join(rows, "\n")
}
