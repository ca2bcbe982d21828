// Package cli implements swapctl, an operator tool that runs migrations and
// drives the negotiation engine directly against a database.
package cli

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Driver string // sqlite | mysql
	DB     string // SQLite file path
	As     string // acting user id
	Format string // text | json
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:           "swapctl",
		Short:         "Operate a slot swap database",
		Long:          "Run migrations, create users, and create, trade and swap event slots from the command line.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.Driver, "driver", "sqlite", "database driver (sqlite|mysql); mysql reads DB_* from the environment")
	cmd.PersistentFlags().StringVar(&opts.DB, "db", "slotswap.db", "SQLite database file")
	cmd.PersistentFlags().StringVar(&opts.As, "as", "", "user id to act as")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(NewMigrateCommand(opts))
	cmd.AddCommand(NewUserCommand(opts))
	cmd.AddCommand(NewSlotCommand(opts))
	cmd.AddCommand(NewSwapCommand(opts))
	return cmd
}
