package main

import (
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/kimhsiao/fieldsync/internal/sync/conflictlog"
	"github.com/kimhsiao/fieldsync/internal/uuid"
)

var conflictsExample = `
  fieldsync conflicts --escalated
  fieldsync conflicts review 3f9c2a1b --reviewer dana --notes "confirmed with site lead"`

func newConflictsCmd(opts *rootOptions) *cobra.Command {
	var escalated bool
	var limit int

	cmd := &cobra.Command{
		Use:     "conflicts",
		Short:   "List logged conflict decisions",
		Example: conflictsExample,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(opts)
			if err != nil {
				return err
			}
			defer a.Close()

			var entries []conflictlog.Entry
			if escalated {
				entries, err = a.conflicts.Unreviewed()
			} else {
				entries, err = a.conflicts.Recent(0)
			}
			if err != nil {
				return err
			}
			if limit > 0 && len(entries) > limit {
				entries = entries[:limit]
			}

			p := printer{w: cmd.OutOrStdout()}
			if len(entries) == 0 {
				p.success("No conflicts")
				return nil
			}
			for _, e := range entries {
				printEntry(p, e)
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.BoolVar(&escalated, "escalated", false, "only show escalations awaiting review")
	f.IntVar(&limit, "limit", 20, "maximum entries to show, 0 for all")

	cmd.AddCommand(newConflictReviewCmd(opts))
	return cmd
}

func printEntry(p printer, e conflictlog.Entry) {
	fields := make([]string, 0, len(e.Resolutions))
	for _, r := range e.Resolutions {
		fields = append(fields, r.FieldName)
	}
	line := "%s %s %s (%s) %s"
	args := []interface{}{
		uuid.Short(e.ID), e.TableName, uuid.Short(e.LocalRecordID),
		strings.Join(fields, ", "), humanize.Time(e.TimestampTime()),
	}

	switch {
	case e.Review != nil:
		p.plain(line+" reviewed by %s", append(args, e.Review.ReviewedBy)...)
	case e.Escalated():
		p.warn(line+" needs review: %s", append(args, strings.Join(e.Escalations, ", "))...)
	default:
		p.info(line, args...)
	}
}

func newConflictReviewCmd(opts *rootOptions) *cobra.Command {
	var reviewer, notes string

	cmd := &cobra.Command{
		Use:   "review <id>",
		Short: "Mark a conflict as reviewed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(opts)
			if err != nil {
				return err
			}
			defer a.Close()

			id, err := resolveConflictID(a.conflicts, args[0])
			if err != nil {
				return err
			}
			if err := a.conflicts.MarkReviewed(id, reviewer, notes); err != nil {
				return err
			}
			printer{w: cmd.OutOrStdout()}.success("Conflict %s reviewed by %s", uuid.Short(id), reviewer)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&reviewer, "reviewer", "", "who reviewed the decision")
	f.StringVar(&notes, "notes", "", "review notes")
	_ = cmd.MarkFlagRequired("reviewer")
	return cmd
}

// resolveConflictID expands the short ids the listing prints.
func resolveConflictID(l *conflictlog.Log, prefix string) (string, error) {
	entries, err := l.Recent(0)
	if err != nil {
		return "", err
	}
	var match string
	for _, e := range entries {
		if !strings.HasPrefix(e.ID, prefix) {
			continue
		}
		if match != "" {
			return "", errors.Errorf("conflict id %q is ambiguous", prefix)
		}
		match = e.ID
	}
	if match == "" {
		return "", errors.Errorf("conflict %q not found", prefix)
	}
	return match, nil
}
