package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/neexbeast/tripsync/internal/destination"
	"github.com/neexbeast/tripsync/internal/search"
)

// requestGrace bounds how long interactive mode waits for a final search on exit.
const requestGrace = search.DefaultRequestTimeout + 5*time.Second

func newLogger(debug bool) *slog.Logger {
	level := slog.LevelWarn
	if debug {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func runQuery(ctx context.Context, o *search.Orchestrator, text string, w io.Writer) error {
	if strings.TrimSpace(text) == "" {
		return errors.New("a search text is required")
	}
	o.SetQuery(text)
	if _, err := o.Search(ctx, text); err != nil {
		if msg := o.State().Error; msg != "" {
			return errors.New(msg)
		}
		return err
	}
	writeState(w, o.State())
	return nil
}

// runInteractive feeds every input line to the orchestrator. Lines starting
// with a slash are commands: /select N, /clear, /quit.
func runInteractive(ctx context.Context, o *search.Orchestrator, in io.Reader, w io.Writer) error {
	fmt.Fprintln(w, "Type to search. Commands: /select N, /clear, /quit")

	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		line := scanner.Text()
		switch {
		case line == "/quit":
			return nil
		case line == "/clear":
			o.ClearResults()
			o.ClearError()
		case line == "/select" || strings.HasPrefix(line, "/select "):
			if err := selectResult(o, strings.TrimSpace(strings.TrimPrefix(line, "/select"))); err != nil {
				fmt.Fprintln(w, err)
			}
		default:
			o.SetQuery(line)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading input: %w", err)
	}

	// Input closed: let a pending debounce fire and its request land.
	deadline := time.Now().Add(requestGrace)
	for !o.Idle() && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}
	return nil
}

func selectResult(o *search.Orchestrator, arg string) error {
	if arg == "" {
		o.SelectDestination(nil)
		return nil
	}
	n, err := strconv.Atoi(arg)
	dests := o.State().Destinations
	if err != nil || n < 1 || n > len(dests) {
		return fmt.Errorf("no result %q", arg)
	}
	o.SelectDestination(&dests[n-1])
	return nil
}

// renderer prints settled states, skipping repeats.
type renderer struct {
	mu   sync.Mutex
	w    io.Writer
	last string
}

func newRenderer(w io.Writer) *renderer {
	return &renderer{w: w}
}

func (r *renderer) Render(s search.State) {
	if s.IsLoading {
		return
	}
	var b strings.Builder
	writeState(&b, s)

	r.mu.Lock()
	defer r.mu.Unlock()
	if b.String() == r.last {
		return
	}
	r.last = b.String()
	fmt.Fprint(r.w, r.last)
}

func writeState(w io.Writer, s search.State) {
	switch {
	case s.Error != "":
		fmt.Fprintf(w, "error: %s\n", s.Error)
	case s.ShowPopular:
		fmt.Fprintln(w, "(type at least a couple of letters, or pick a popular destination)")
	case len(s.Destinations) == 0:
		fmt.Fprintf(w, "no destinations for %q\n", strings.TrimSpace(s.Query))
	default:
		fmt.Fprintf(w, "%d results for %q (%s):\n", len(s.Destinations), strings.TrimSpace(s.Query), s.Source)
		for i, d := range s.Destinations {
			fmt.Fprintf(w, "%2d. %s\n", i+1, describe(d))
		}
		if s.HasMore {
			fmt.Fprintln(w, "    ...more available")
		}
	}
	if s.SelectedDestination != nil {
		fmt.Fprintf(w, "selected: %s\n", describe(*s.SelectedDestination))
	}
}

func describe(d destination.Destination) string {
	parts := []string{d.Name}
	if d.Region != "" && d.Region != d.Name {
		parts = append(parts, d.Region)
	}
	if d.Country != "" && d.Country != d.Name {
		parts = append(parts, d.Country)
	}
	return fmt.Sprintf("%s [%s]", strings.Join(parts, ", "), d.Kind)
}
