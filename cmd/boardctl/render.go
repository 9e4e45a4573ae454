package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"taskboard/domain"
)

var (
	titleColor = color.New(color.FgCyan, color.Bold)
	listColor  = color.New(color.FgYellow)
	doneColor  = color.New(color.FgGreen)
	dimColor   = color.New(color.Faint)
)

// renderBoard writes the board as one block per list, cards in order.
func renderBoard(w io.Writer, v domain.BoardView) {
	titleColor.Fprintf(w, "%s", v.Title)
	fmt.Fprintf(w, " (%s)\n", v.ID)
	for _, l := range v.Lists {
		listColor.Fprintf(w, "\n%s", l.Title)
		dimColor.Fprintf(w, " [%d]\n", len(l.Cards))
		for _, c := range l.Cards {
			mark := "[ ]"
			if c.Completed {
				mark = doneColor.Sprint("[x]")
			}
			fmt.Fprintf(w, "  %s %s", mark, c.Title)
			dimColor.Fprintf(w, "  %s @%g\n", c.ID, c.Position)
		}
	}
}

func renderActivity(w io.Writer, a domain.Activity) {
	dimColor.Fprintf(w, "%s ", a.CreatedAt.Format("2006-01-02 15:04:05"))
	listColor.Fprintf(w, "%-14s", a.Type)
	who := a.UserName
	if who == "" {
		who = a.UserID
	}
	fmt.Fprintf(w, " %s %s", who, a.Description)
	dimColor.Fprintf(w, " (board %s)\n", a.BoardID)
}

func renderBoards(w io.Writer, boards []domain.Board) {
	if len(boards) == 0 {
		dimColor.Fprintln(w, "no boards")
		return
	}
	for _, b := range boards {
		titleColor.Fprintf(w, "%s", b.Title)
		fmt.Fprintf(w, "  %s  %s\n", b.ID, strings.ToLower(string(b.Visibility)))
	}
}
