package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/netmerge/internal/compare"
	"github.com/sells-group/netmerge/internal/review"
)

// errQuit is returned when the reviewer abandons the session.
var errQuit = eris.New("review abandoned")

// reviewer drives a session from node review to output.
type reviewer interface {
	Review(ctx context.Context, s *review.Session) error
}

func newReviewer(assume string, in io.Reader, out io.Writer) (reviewer, error) {
	switch strings.ToLower(assume) {
	case "":
		return newPromptReviewer(in, out), nil
	case "yes", "y":
		return autoReviewer{consolidate: true}, nil
	case "no", "n":
		return autoReviewer{consolidate: false}, nil
	default:
		return nil, eris.Errorf("--assume must be yes or no, got %q", assume)
	}
}

// autoReviewer answers every comparison the same way. Consolidations
// that conflict with an earlier one are rejected.
type autoReviewer struct {
	consolidate bool
}

func (a autoReviewer) Review(ctx context.Context, s *review.Session) error {
	for s.Stage() == review.NodeReview || s.Stage() == review.SpanReview {
		if err := ctx.Err(); err != nil {
			return eris.Wrap(err, "review interrupted")
		}
		stage := s.Stage()
		for range s.Items() {
			applied := false
			if a.consolidate {
				var err error
				if applied, err = s.Consolidate(review.Always(false)); err != nil {
					return err
				}
			}
			if !applied {
				if err := s.Reject(); err != nil {
					return err
				}
			}
			if err := s.Next(); err != nil {
				return err
			}
		}
		zap.L().Info("comparisons answered",
			zap.String("stage", stage.String()),
			zap.Bool("consolidate", a.consolidate),
			zap.Any("counts", s.Counts()),
		)

		advanced, err := s.Finish(ctx, review.Always(true))
		if err != nil {
			return err
		}
		if !advanced {
			return eris.Errorf("review: %s did not finish", stage)
		}
	}
	return nil
}

// promptReviewer reads review commands from a terminal.
type promptReviewer struct {
	in  *bufio.Reader
	out io.Writer
}

func newPromptReviewer(in io.Reader, out io.Writer) *promptReviewer {
	return &promptReviewer{in: bufio.NewReader(in), out: out}
}

const promptHelp = `Commands:
  c  consolidate the current pair
  r  reject the current pair
  n  next pair (also Enter)
  p  previous pair
  l  list all pairs
  f  finish this stage
  q  quit without writing output`

func (p *promptReviewer) readLine(prompt string) (string, error) {
	fmt.Fprint(p.out, prompt) //nolint:errcheck
	line, err := p.in.ReadString('\n')
	if err != nil && (!errors.Is(err, io.EOF) || line == "") {
		if errors.Is(err, io.EOF) {
			return "", eris.Wrap(errQuit, "review: input closed")
		}
		return "", eris.Wrap(err, "review: read input")
	}
	return strings.TrimSpace(line), nil
}

// Confirm asks a yes/no question. Anything but y or yes is a no.
func (p *promptReviewer) Confirm(prompt string) (bool, error) {
	answer, err := p.readLine(prompt + " [y/N] ")
	if err != nil {
		return false, err
	}
	switch strings.ToLower(answer) {
	case "y", "yes":
		return true, nil
	}
	return false, nil
}

func (p *promptReviewer) Review(ctx context.Context, s *review.Session) error {
	fmt.Fprintln(p.out, promptHelp) //nolint:errcheck
	for s.Stage() != review.Output {
		if err := ctx.Err(); err != nil {
			return eris.Wrap(err, "review interrupted")
		}
		p.show(s)

		cmd, err := p.readLine("> ")
		if err != nil {
			return err
		}
		switch strings.ToLower(cmd) {
		case "c", "consolidate":
			var applied bool
			if applied, err = s.Consolidate(p); err == nil && !applied {
				fmt.Fprintln(p.out, "Not consolidated.") //nolint:errcheck
			}
		case "r", "reject":
			err = s.Reject()
		case "", "n", "next":
			err = s.Next()
		case "p", "prev":
			err = s.Prev()
		case "l", "list":
			p.list(s)
		case "f", "finish":
			_, err = s.Finish(ctx, p)
		case "q", "quit":
			return errQuit
		case "h", "help", "?":
			fmt.Fprintln(p.out, promptHelp) //nolint:errcheck
		default:
			fmt.Fprintf(p.out, "Unknown command %q, type h for help.\n", cmd) //nolint:errcheck
		}

		if errors.Is(err, review.ErrNoComparison) || errors.Is(err, review.ErrReviewIncomplete) {
			fmt.Fprintln(p.out, err.Error()) //nolint:errcheck
			continue
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (p *promptReviewer) show(s *review.Session) {
	counts := s.Counts()
	fmt.Fprintf(p.out, "\n[%s] %d pending, %d consolidated, %d rejected\n", //nolint:errcheck
		s.Stage(), counts.Pending, counts.Consolidated, counts.Rejected)

	it, err := s.Current()
	if err != nil {
		fmt.Fprintln(p.out, "Nothing to review here. Type f to finish.") //nolint:errcheck
		return
	}
	c := it.Comparison
	fmt.Fprintf(p.out, "Pair %d of %d (%s), confidence %.1f\n", //nolint:errcheck
		s.Index()+1, len(s.Items()), it.Status, c.Confidence)
	fmt.Fprintf(p.out, "  A: %s (%s)\n  B: %s (%s)\n", c.A.Name(), c.A.ID, c.B.Name(), c.B.ID) //nolint:errcheck
	if c.DistanceKM > 0 {
		fmt.Fprintf(p.out, "  %.2f km apart\n", c.DistanceKM) //nolint:errcheck
	}
	writeScores(p.out, c)
}

func (p *promptReviewer) list(s *review.Session) {
	w := tabwriter.NewWriter(p.out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "#\tA\tB\tCONFIDENCE\tSTATUS")
	for i, it := range s.Items() {
		marker := " "
		if i == s.Index() {
			marker = ">"
		}
		_, _ = fmt.Fprintf(w, "%s%d\t%s\t%s\t%.1f\t%s\n",
			marker, i+1, it.Comparison.A.Name(), it.Comparison.B.Name(), it.Comparison.Confidence, it.Status)
	}
	_ = w.Flush()
}

// writeScores prints the field scores of c in field table order, marking
// the similar fields.
func writeScores(out io.Writer, c *compare.Comparison) {
	similar := make(map[string]bool)
	for _, f := range c.HighScoringFields() {
		similar[f] = true
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	for _, f := range compare.FieldsFor(c.Kind()) {
		score, ok := c.Scores[f.Name]
		if !ok {
			continue
		}
		mark := ""
		if similar[f.Name] {
			mark = "*"
		}
		_, _ = fmt.Fprintf(w, "    %s\t%.2f\t%s\n", f.Name, score, mark)
	}
	_ = w.Flush()
}
