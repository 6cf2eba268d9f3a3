package ui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/DennySORA/Remove-Background/pkg/report"
	"github.com/DennySORA/Remove-Background/pkg/types"
)

// BatchFunc runs one batch and reports progress through the callback
type BatchFunc func(ctx context.Context, job types.JobConfiguration, paths []string, progress func(types.ProgressEvent)) (types.BatchResult, error)

// Progress returns a callback printing one line per finished image
func Progress(w io.Writer) func(types.ProgressEvent) {
	return func(ev types.ProgressEvent) {
		width := len(fmt.Sprint(ev.Total))
		line := fmt.Sprintf("[%*d/%d] %-7s %s", width, ev.Completed, ev.Total, label(ev.Status), filepath.Base(ev.Path))
		if ev.Reason != "" {
			line += " (" + ev.Reason + ")"
		}
		fmt.Fprintln(w, line)
	}
}

func label(s types.TaskStatus) string {
	switch s {
	case types.StatusSuccess:
		return "ok"
	case types.StatusFailed:
		return "FAILED"
	}
	return string(s)
}

// Banner prints the welcome text
func Banner(w io.Writer, extensions []string) {
	fmt.Fprintln(w, strings.Repeat("=", 48))
	fmt.Fprintln(w, "  Background remover (interactive mode)")
	fmt.Fprintln(w, strings.Repeat("=", 48))
	fmt.Fprintf(w, "Input formats: %s\n", strings.Join(extensions, ", "))
	fmt.Fprintln(w, "Output: PNG with transparency")
	fmt.Fprintln(w, "Type b at any step to go back, q to quit.")
}

// Session repeats prompt, run and summary until the user stops. It returns
// the result of the last batch that ran.
func Session(ctx context.Context, p *Prompter, run BatchFunc) (types.BatchResult, error) {
	var last types.BatchResult
	for {
		job, paths, err := p.Collect()
		if errors.Is(err, ErrQuit) {
			return last, nil
		}
		if err != nil {
			return last, err
		}

		fmt.Fprintf(p.out, "\nProcessing %d images...\n", len(paths))
		result, err := run(ctx, job, paths, Progress(p.out))
		if result.Total > 0 {
			last = result
			fmt.Fprintln(p.out)
			if ferr := report.FormatSummary(p.out, result); ferr != nil {
				return last, ferr
			}
		}
		if err != nil {
			return last, err
		}

		if !p.AskAgain() {
			return last, nil
		}
	}
}
