// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package catalog

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/pdiddy/datfetch/internal/term"
)

// ErrNoInput is returned by Interactive when its input ends before a valid
// selection was made.
var ErrNoInput = errors.New("no selection: input closed")

// Chooser picks one of options and returns its 0-based index.
type Chooser interface {
	Choose(ctx context.Context, prompt string, options []string) (int, error)
}

// ChooserFunc adapts a function to the Chooser interface.
type ChooserFunc func(ctx context.Context, prompt string, options []string) (int, error)

// Choose calls f.
func (f ChooserFunc) Choose(ctx context.Context, prompt string, options []string) (int, error) {
	return f(ctx, prompt, options)
}

// Automatic always picks the same index. It is used for scripted runs.
type Automatic int

// Choose returns the fixed index, or an error when it is out of range.
func (a Automatic) Choose(_ context.Context, prompt string, options []string) (int, error) {
	if int(a) < 0 || int(a) >= len(options) {
		return 0, fmt.Errorf("%s: automatic choice %d out of range (%d options)", prompt, int(a)+1, len(options))
	}
	return int(a), nil
}

// Interactive lists options as a numbered menu and reads a 1-based number
// per line, prompting again after non-numeric or out-of-range input.
// Lines are read on a background goroutine so a waiting prompt still
// notices cancellation.
type Interactive struct {
	in  io.Reader
	out io.Writer

	once  sync.Once
	lines chan inputLine
}

type inputLine struct {
	text string
	err  error
}

// NewInteractive returns a chooser reading from in and writing to out.
func NewInteractive(in io.Reader, out io.Writer) *Interactive {
	return &Interactive{in: in, out: out}
}

func (c *Interactive) readLines() {
	c.lines = make(chan inputLine)
	go func() {
		defer close(c.lines)
		sc := bufio.NewScanner(c.in)
		for sc.Scan() {
			c.lines <- inputLine{text: sc.Text()}
		}
		if err := sc.Err(); err != nil {
			c.lines <- inputLine{err: err}
		}
	}()
}

// Choose blocks until a valid number is entered. It returns ErrNoInput
// when the input is exhausted and ctx.Err() as soon as ctx is done.
func (c *Interactive) Choose(ctx context.Context, prompt string, options []string) (int, error) {
	if len(options) == 0 {
		return 0, fmt.Errorf("%s: nothing to choose from", prompt)
	}
	if c.in == nil {
		return 0, ErrNoInput
	}
	c.once.Do(c.readLines)

	for i, opt := range options {
		fmt.Fprintln(c.out, term.Prompt.Render(fmt.Sprintf("%d: %s", i+1, opt)))
	}

	for {
		fmt.Fprint(c.out, term.Prompt.Render(prompt+": "))

		var line inputLine
		select {
		case <-ctx.Done():
			fmt.Fprintln(c.out)
			return 0, ctx.Err()
		case l, ok := <-c.lines:
			if !ok {
				return 0, ErrNoInput
			}
			line = l
		}
		if line.err != nil {
			return 0, fmt.Errorf("reading selection: %w", line.err)
		}

		n, err := strconv.Atoi(strings.TrimSpace(line.text))
		switch {
		case err != nil:
			fmt.Fprintln(c.out, term.Problem.Render("Invalid number!"))
		case n < 1 || n > len(options):
			fmt.Fprintln(c.out, term.Problem.Render("Input number out of range!"))
		default:
			return n - 1, nil
		}
	}
}
