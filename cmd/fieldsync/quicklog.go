package main

import (
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	syncpkg "github.com/kimhsiao/fieldsync/internal/sync"
	"github.com/kimhsiao/fieldsync/internal/uuid"
)

var quickLogExample = `
  fieldsync quicklog --asset 6c1e... --title "Belt squeal on conveyor 2" --user tech-a`

func newQuickLogCmd(opts *rootOptions) *cobra.Command {
	var assetID, title, user string

	cmd := &cobra.Command{
		Use:     "quicklog",
		Short:   "Record a completed quick log for later enrichment",
		Example: quickLogExample,
		RunE: func(cmd *cobra.Command, args []string) error {
			if title == "" {
				return errors.New("--title is required")
			}

			a, err := openApp(opts)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := commandContext(cmd)
			wo, err := a.store.CreateQuickLog(ctx, a.cfg.SiteID, assetID, title, user)
			if err != nil {
				return err
			}

			p := printer{w: cmd.OutOrStdout()}
			p.success("Quick log %s recorded", uuid.Short(wo.ID))

			n, err := a.engine.CheckQuickLogBacklog(ctx)
			if err != nil {
				return err
			}
			if n > syncpkg.QuickLogBacklogThreshold {
				p.warn("%d quick logs await enrichment, a supervisor has been alerted", n)
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&assetID, "asset", "", "asset id")
	f.StringVar(&title, "title", "", "what was done")
	f.StringVar(&user, "user", "", "technician who did the work")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
