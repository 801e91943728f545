package main

import (
	"sort"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/kimhsiao/fieldsync/internal/models"
	"github.com/kimhsiao/fieldsync/internal/sync/queue"
	"github.com/kimhsiao/fieldsync/internal/uuid"
)

func newQueueCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect the retry queue",
	}
	cmd.AddCommand(
		newQueueStatsCmd(opts),
		newQueueBlockingCmd(opts),
		newQueuePruneCmd(opts),
	)
	return cmd
}

func newQueueStatsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show queue counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(opts)
			if err != nil {
				return err
			}
			defer a.Close()

			s, err := a.queue.Stats()
			if err != nil {
				return err
			}

			p := printer{w: cmd.OutOrStdout()}
			p.field("total", s.Total)
			p.field("waiting", s.Waiting)
			p.field("blocked", s.Blocked)
			if s.OldestActiveAge > 0 {
				p.field("oldest", humanize.Time(time.Now().Add(-s.OldestActiveAge)))
			}
			for _, state := range []models.QueueState{
				models.QueuePending, models.QueueInProgress, models.QueueFailed, models.QueueAbandoned,
			} {
				if n := s.ByState[state]; n > 0 {
					p.field(string(state), n)
				}
			}

			tables := make([]string, 0, len(s.ByTable))
			for t := range s.ByTable {
				tables = append(tables, t)
			}
			sort.Strings(tables)
			for _, t := range tables {
				p.field(t, s.ByTable[t])
			}
			return nil
		},
	}
}

func newQueueBlockingCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "blocking",
		Short: "List changes that retrying will not fix",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(opts)
			if err != nil {
				return err
			}
			defer a.Close()

			items, err := a.queue.BlockingIssues()
			if err != nil {
				return err
			}

			p := printer{w: cmd.OutOrStdout()}
			if len(items) == 0 {
				p.success("No blocking issues")
				return nil
			}
			for _, item := range items {
				p.errorf("%s %s [%s] %s", item.TableName, uuid.Short(item.RecordID), item.ErrorCategory, item.LastError)
			}
			return nil
		},
	}
}

func newQueuePruneCmd(opts *rootOptions) *cobra.Command {
	var olderThan time.Duration

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Drop finished queue items",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(opts)
			if err != nil {
				return err
			}
			defer a.Close()

			n, err := a.queue.Prune(olderThan)
			if err != nil {
				return err
			}
			printer{w: cmd.OutOrStdout()}.success("Pruned %d items", n)
			return nil
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", queue.DefaultPruneAge, "minimum age of items to drop")
	return cmd
}
