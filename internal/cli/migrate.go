package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/iliyamo/slotswap/internal/database"
)

// NewMigrateCommand applies pending schema migrations.
func NewMigrateCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), opts, func(ctx context.Context, e *env) error {
				applied, err := database.Migrate(ctx, e.db.DB, e.dialect)
				if err != nil {
					return WrapExitError(ExitCommandError, "migrate", err)
				}
				version, err := database.Version(ctx, e.db.DB, e.dialect)
				if err != nil {
					return WrapExitError(ExitCommandError, "read schema version", err)
				}
				p := printer{format: opts.Format, w: cmd.OutOrStdout()}
				if opts.Format == "json" {
					return p.json(map[string]any{"applied": applied, "version": version})
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "applied %d migration(s); schema version %d\n", len(applied), version)
				return err
			})
		},
	}
}
