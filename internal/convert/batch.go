package convert

import (
	"context"
	"fmt"
	"io"
)

// State is how far a conversion got.
type State int

const (
	StatePending State = iota
	StateLoaded
	StateScaled
	StateRangeComputed
	StateHeaderAssembled
	StateWritten
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateLoaded:
		return "loaded"
	case StateScaled:
		return "scaled"
	case StateRangeComputed:
		return "range computed"
	case StateHeaderAssembled:
		return "header assembled"
	case StateWritten:
		return "written"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Result is the outcome of one input. Err is a *FileError when State is
// StateFailed.
type Result struct {
	Input  string
	Output string
	State  State
	Err    error
}

// Run converts inputs in order. A failing file never stops the batch. The
// context is checked between files; inputs not started when it is done are
// reported as failed.
func (c *Converter) Run(ctx context.Context, inputs []string) []Result {
	results := make([]Result, 0, len(inputs))
	for _, in := range inputs {
		if err := ctx.Err(); err != nil {
			results = append(results, Result{
				Input: in,
				State: StateFailed,
				Err:   &FileError{Path: in, State: StatePending, Err: err},
			})
			continue
		}
		res := c.Convert(in)
		if res.Err != nil {
			c.log.Verbose("%s failed after %s", in, res.Err.(*FileError).State)
		}
		results = append(results, res)
	}
	return results
}

// Failures returns the failed results, in input order.
func Failures(results []Result) []Result {
	var out []Result
	for _, r := range results {
		if r.State == StateFailed {
			out = append(out, r)
		}
	}
	return out
}

// Report prints one "input: message" line per failure and returns how many
// were printed.
func Report(w io.Writer, results []Result) int {
	failed := Failures(results)
	for _, r := range failed {
		fmt.Fprintln(w, r.Err)
	}
	return len(failed)
}
