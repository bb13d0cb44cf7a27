package scenario

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Confirmer gates each scenario group in step mode. Returning false stops the run.
type Confirmer interface {
	Confirm(ctx context.Context, group string, scenarios []string) (bool, error)
}

// PromptConfirmer asks on a terminal: Enter or "y" continues, "n" or "q" stops.
// A cancelled context ends the wait without an answer.
type PromptConfirmer struct {
	in  *bufio.Reader
	out io.Writer

	// pending carries the answer of a read abandoned by cancellation; the
	// next Confirm consumes it instead of starting a second reader.
	pending chan readResult
}

type readResult struct {
	line string
	err  error
}

func NewPromptConfirmer(in io.Reader, out io.Writer) *PromptConfirmer {
	return &PromptConfirmer{in: bufio.NewReader(in), out: out}
}

func (p *PromptConfirmer) Confirm(ctx context.Context, group string, scenarios []string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	fmt.Fprintf(p.out, "Next group %q: %s. Continue? [Y/n] ", group, strings.Join(scenarios, ", "))

	if p.pending == nil {
		ch := make(chan readResult, 1)
		go func() {
			line, err := p.in.ReadString('\n')
			ch <- readResult{line: line, err: err}
		}()
		p.pending = ch
	}

	var res readResult
	select {
	case <-ctx.Done():
		fmt.Fprintln(p.out)
		return false, ctx.Err()
	case res = <-p.pending:
		p.pending = nil
	}

	if res.err != nil && res.line == "" {
		if errors.Is(res.err, io.EOF) {
			return false, nil
		}
		return false, res.err
	}
	switch strings.ToLower(strings.TrimSpace(res.line)) {
	case "", "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}
