package approval

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/fatih/color"
)

// InteractiveReviewer walks pending requests in the terminal as an
// alternative to editing vault files. Decisions go through the store's
// Transition, the same path the poller uses.
type InteractiveReviewer struct {
	store        Store
	in           *bufio.Reader
	out          io.Writer
	colorEnabled bool
	now          func() time.Time
}

// NewInteractiveReviewer creates a reviewer reading choices from in and
// printing to out.
func NewInteractiveReviewer(store Store, in io.Reader, out io.Writer, colorEnabled bool) *InteractiveReviewer {
	return &InteractiveReviewer{
		store:        store,
		in:           bufio.NewReader(in),
		out:          out,
		colorEnabled: colorEnabled,
		now:          time.Now,
	}
}

// Review walks every pending request, prompting for a decision on each.
// Requests already decided in the vault are skipped so they stay the
// poller's to process.
func (r *InteractiveReviewer) Review(ctx context.Context) error {
	pending, err := r.store.ListPending(ctx)
	if err != nil {
		return fmt.Errorf("list pending requests: %w", err)
	}
	if len(pending) == 0 {
		fmt.Fprintln(r.out, "No requests awaiting review.")
		return nil
	}

	for i, req := range pending {
		if req.Status != StatusPending {
			fmt.Fprintf(r.out, "Skipping %s: already decided in the vault (%s)\n", req.ID, req.Status)
			continue
		}
		r.display(req, i+1, len(pending))

		decision, reason, err := r.prompt()
		if err != nil {
			return err
		}

		switch decision {
		case "approve":
			if _, err := r.store.Transition(ctx, req.ID, StatusApproved, ""); err != nil {
				fmt.Fprintf(r.out, "%s\n", r.colorize(fmt.Sprintf("Could not approve %s: %v", req.ID, err), color.FgRed))
				continue
			}
			fmt.Fprintf(r.out, "%s\n", r.colorize("Approved. The next poll cycle will execute it.", color.FgGreen))
		case "reject":
			if _, err := r.store.Transition(ctx, req.ID, StatusRejected, reason); err != nil {
				fmt.Fprintf(r.out, "%s\n", r.colorize(fmt.Sprintf("Could not reject %s: %v", req.ID, err), color.FgRed))
				continue
			}
			fmt.Fprintf(r.out, "%s\n", r.colorize("Rejected.", color.FgYellow))
		case "skip":
			fmt.Fprintln(r.out, "Left pending.")
		case "quit":
			return nil
		}
	}
	return nil
}

func (r *InteractiveReviewer) display(req *Request, index, total int) {
	separator := strings.Repeat("=", 72)

	fmt.Fprintln(r.out)
	fmt.Fprintln(r.out, r.colorize(separator, color.FgCyan))
	fmt.Fprintln(r.out, r.colorize(fmt.Sprintf("Request %d/%d: %s", index, total, req.ID), color.FgYellow, color.Bold))
	fmt.Fprintln(r.out, r.colorize(separator, color.FgCyan))

	fmt.Fprintf(r.out, "Action:     %s\n", req.ActionType)
	fmt.Fprintf(r.out, "Risk score: %s\n", r.riskColor(req.RiskScore))
	fmt.Fprintf(r.out, "Created:    %s\n", req.CreatedAt.Format(time.RFC3339))
	if !req.ExpiresAt.IsZero() {
		remaining := req.ExpiresAt.Sub(r.now()).Round(time.Minute)
		fmt.Fprintf(r.out, "Expires:    %s (%s left)\n", req.ExpiresAt.Format(time.RFC3339), remaining)
	}

	keys := make([]string, 0, len(req.Details))
	for k := range req.Details {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	fmt.Fprintln(r.out, "Details:")
	for _, k := range keys {
		fmt.Fprintf(r.out, "  %s: %v\n", k, req.Details[k])
	}
	fmt.Fprintln(r.out)
}

func (r *InteractiveReviewer) prompt() (decision, reason string, err error) {
	for {
		fmt.Fprint(r.out, r.colorize("[a]pprove / [r]eject / [s]kip / [q]uit: ", color.FgCyan))
		input, err := r.in.ReadString('\n')
		if err != nil {
			return "", "", fmt.Errorf("read choice: %w", err)
		}

		switch strings.TrimSpace(strings.ToLower(input)) {
		case "a", "approve":
			return "approve", "", nil
		case "r", "reject":
			fmt.Fprint(r.out, "Reason (optional): ")
			line, err := r.in.ReadString('\n')
			if err != nil {
				return "", "", fmt.Errorf("read reason: %w", err)
			}
			return "reject", strings.TrimSpace(line), nil
		case "s", "skip", "":
			return "skip", "", nil
		case "q", "quit":
			return "quit", "", nil
		default:
			fmt.Fprintln(r.out, r.colorize("Invalid choice. Enter a, r, s, or q.", color.FgRed))
		}
	}
}

func (r *InteractiveReviewer) riskColor(score int) string {
	text := fmt.Sprintf("%d/100", score)
	switch {
	case score >= 80:
		return r.colorize(text, color.FgRed, color.Bold)
	case score >= 40:
		return r.colorize(text, color.FgYellow)
	default:
		return r.colorize(text, color.FgGreen)
	}
}

func (r *InteractiveReviewer) colorize(text string, attributes ...color.Attribute) string {
	if !r.colorEnabled {
		return text
	}
	return color.New(attributes...).Sprint(text)
}
