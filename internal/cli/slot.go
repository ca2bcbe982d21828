package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/iliyamo/slotswap/internal/model"
	"github.com/iliyamo/slotswap/internal/swap"
)

// NewSlotCommand groups slot commands. All of them act as --as.
func NewSlotCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{Use: "slot", Short: "Create, list and trade event slots"}
	cmd.AddCommand(
		newSlotCreateCommand(opts),
		newSlotListCommand(opts),
		newSlotMarketCommand(opts),
		newSlotStatusCommand(opts),
		newSlotDeleteCommand(opts),
	)
	return cmd
}

var slotHeader = []string{"ID", "OWNER", "TITLE", "START", "END", "STATUS"}

func slotRow(s model.EventSlot) []string {
	return []string{s.ID, s.OwnerID, s.Title, stamp(s.StartTime), stamp(s.EndTime), s.TradeStatus.String()}
}

func newSlotCreateCommand(opts *RootOptions) *cobra.Command {
	var title, start, end string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a BUSY slot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			uid, err := acting(opts)
			if err != nil {
				return err
			}
			startT, err := time.Parse(time.RFC3339, start)
			if err != nil {
				return WrapExitError(ExitCommandError, "--start must be RFC 3339", err)
			}
			endT, err := time.Parse(time.RFC3339, end)
			if err != nil {
				return WrapExitError(ExitCommandError, "--end must be RFC 3339", err)
			}
			return withEnv(cmd.Context(), opts, func(ctx context.Context, e *env) error {
				s, err := e.engine.CreateSlot(ctx, swap.CreateSlotInput{OwnerID: uid, Title: title, StartTime: startT, EndTime: endT})
				if err != nil {
					return WrapExitError(ExitFailure, "create slot", err)
				}
				return printer{format: opts.Format, w: cmd.OutOrStdout()}.emit(s, slotHeader, [][]string{slotRow(s)})
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "slot title")
	cmd.Flags().StringVar(&start, "start", "", "start time (RFC 3339)")
	cmd.Flags().StringVar(&end, "end", "", "end time (RFC 3339)")
	_ = cmd.MarkFlagRequired("title")
	_ = cmd.MarkFlagRequired("start")
	_ = cmd.MarkFlagRequired("end")
	return cmd
}

func newSlotListCommand(opts *RootOptions) *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List your slots",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			uid, err := acting(opts)
			if err != nil {
				return err
			}
			filter := model.TradeStatusUnspecified
			if status != "" {
				if filter, err = model.ParseTradeStatus(status); err != nil {
					return WrapExitError(ExitCommandError, "--status", err)
				}
			}
			return withEnv(cmd.Context(), opts, func(ctx context.Context, e *env) error {
				slots, err := e.engine.ListByOwner(ctx, uid, filter)
				if err != nil {
					return WrapExitError(ExitFailure, "list slots", err)
				}
				rows := make([][]string, 0, len(slots))
				for _, s := range slots {
					rows = append(rows, slotRow(s))
				}
				return printer{format: opts.Format, w: cmd.OutOrStdout()}.emit(slots, slotHeader, rows)
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "only slots in this status")
	return cmd
}

func newSlotMarketCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "market",
		Short: "List other users' TRADABLE slots",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), opts, func(ctx context.Context, e *env) error {
				slots, err := e.engine.ListTradable(ctx, opts.As)
				if err != nil {
					return WrapExitError(ExitFailure, "list marketplace", err)
				}
				rows := make([][]string, 0, len(slots))
				for _, s := range slots {
					rows = append(rows, append(slotRow(s.EventSlot), s.OwnerName))
				}
				return printer{format: opts.Format, w: cmd.OutOrStdout()}.emit(slots, append(slotHeader, "OWNER NAME"), rows)
			})
		},
	}
}

func newSlotStatusCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status <slot-id> <BUSY|TRADABLE>",
		Short: "Toggle a slot between BUSY and TRADABLE",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			uid, err := acting(opts)
			if err != nil {
				return err
			}
			target, err := model.ParseTradeStatus(args[1])
			if err != nil {
				return WrapExitError(ExitCommandError, "status", err)
			}
			return withEnv(cmd.Context(), opts, func(ctx context.Context, e *env) error {
				s, err := e.engine.SetTradeStatus(ctx, swap.SetTradeStatusInput{SlotID: args[0], CallerID: uid, Target: target})
				if err != nil {
					return WrapExitError(ExitFailure, "set trade status", err)
				}
				return printer{format: opts.Format, w: cmd.OutOrStdout()}.emit(s, slotHeader, [][]string{slotRow(s)})
			})
		},
	}
}

func newSlotDeleteCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <slot-id>",
		Short: "Delete one of your slots",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			uid, err := acting(opts)
			if err != nil {
				return err
			}
			return withEnv(cmd.Context(), opts, func(ctx context.Context, e *env) error {
				if err := e.engine.DeleteSlot(ctx, args[0], uid); err != nil {
					return WrapExitError(ExitFailure, "delete slot", err)
				}
				_, err := fmt.Fprintln(cmd.OutOrStdout(), "deleted", args[0])
				return err
			})
		},
	}
}
