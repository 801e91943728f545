package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	apperrors "github.com/kimhsiao/fieldsync/internal/errors"
	"github.com/kimhsiao/fieldsync/internal/logging"
	syncpkg "github.com/kimhsiao/fieldsync/internal/sync"
	"github.com/kimhsiao/fieldsync/internal/sync/scheduler"
)

var syncExample = `
  fieldsync sync
  fieldsync sync --cellular`

func newSyncCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "sync",
		Aliases: []string{"s"},
		Short:   "Run one sync cycle",
		Example: syncExample,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(opts)
			if err != nil {
				return err
			}
			defer a.Close()
			if err := a.requireRemote(); err != nil {
				return err
			}

			p := printer{w: cmd.OutOrStdout()}
			result, err := a.engine.Sync(commandContext(cmd))
			if apperrors.Is(err, apperrors.ErrSyncOffline) {
				p.warn("Device is offline, nothing synced")
				return nil
			}
			if err != nil {
				return err
			}
			printResult(p, result)
			return nil
		},
	}
}

func printResult(p printer, r *syncpkg.SyncResult) {
	p.success("Synced in %s", r.Duration.Round(time.Millisecond))
	p.field("pushed", r.Pushed)
	p.field("pulled", r.Pulled)
	p.field("conflicts", r.Conflicts)
	if r.Escalated > 0 {
		p.warn("%d conflicts need review", r.Escalated)
	}
	p.field("queued", r.Enqueued)
	p.field("retried", r.RetriedOK)
	if r.RetriedFailed+r.Abandoned > 0 {
		p.warn("%d changes failed again, see 'fieldsync queue blocking'", r.RetriedFailed+r.Abandoned)
	}
	p.field("photos up", r.PhotosUploaded)
	p.field("photos down", r.PhotosDownloaded)
}

func newStatusCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show sync status",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(opts)
			if err != nil {
				return err
			}
			defer a.Close()

			s, err := a.engine.Status(commandContext(cmd))
			if err != nil {
				return err
			}

			p := printer{w: cmd.OutOrStdout()}
			switch s.State {
			case syncpkg.SyncStatusError:
				p.errorf("Last sync failed: %s", s.LastError)
			case syncpkg.SyncStatusOffline:
				p.warn("Offline")
			default:
				p.info("State: %s", s.State)
			}
			last := "never"
			if s.LastSyncAt != nil {
				last = humanize.Time(*s.LastSyncAt)
			}
			p.field("last sync", last)
			p.field("pending", s.PendingCount)
			p.field("conflicts", s.ConflictCount)
			p.field("queue waiting", s.QueueWaiting)
			p.field("queue blocked", s.QueueBlocked)
			return nil
		},
	}
}

func newDiagnosticsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "diagnostics",
		Short: "Print a support snapshot as JSON",
		Long:  "Print a support snapshot as JSON. It holds ids, counts and error text, never work order content.",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(opts)
			if err != nil {
				return err
			}
			defer a.Close()

			out, err := a.engine.ExportDiagnostics(commandContext(cmd))
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(append(out, '\n'))
			return err
		},
	}
}

func newDaemonCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "daemon",
		Short: "Sync in the background on the configured schedule",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(opts)
			if err != nil {
				return err
			}
			defer a.Close()
			if err := a.requireRemote(); err != nil {
				return err
			}

			s, err := scheduler.NewScheduler(a.engine, a.network, scheduler.SchedulerConfig{
				SyncSchedule:     a.cfg.Sync.Interval,
				QuickLogSchedule: a.cfg.Sync.QuickLogCheck,
			}, nil)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := s.Start(ctx); err != nil {
				return err
			}
			s.TriggerSync()

			p := printer{w: cmd.OutOrStdout()}
			p.info("Syncing %s, press Ctrl+C to stop", a.cfg.Sync.Interval)
			<-ctx.Done()

			s.Stop()
			logging.Info("Daemon stopped", nil)
			p.success("Stopped")
			return nil
		},
	}
}

// commandContext returns the command's context, falling back to Background
// when the command runs outside Execute.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
