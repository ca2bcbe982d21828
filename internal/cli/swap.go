package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/iliyamo/slotswap/internal/model"
	"github.com/iliyamo/slotswap/internal/swap"
)

// NewSwapCommand groups swap request commands. All of them act as --as.
func NewSwapCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{Use: "swap", Short: "Propose and resolve slot swaps"}
	cmd.AddCommand(
		newSwapProposeCommand(opts),
		newSwapResolveCommand(opts, "accept", "Accept a request you received"),
		newSwapResolveCommand(opts, "reject", "Reject a request you sent or received"),
		newSwapListCommand(opts, "incoming", "Requests you received"),
		newSwapListCommand(opts, "outgoing", "Requests you sent"),
		newSwapDeleteCommand(opts),
	)
	return cmd
}

var requestHeader = []string{"ID", "REQUESTER", "RECEIVER", "OFFERED", "WANTED", "STATUS"}

func requestRow(r model.SwapRequest) []string {
	return []string{r.ID, r.RequesterID, r.ReceiverID, r.RequesterSlotID, r.ReceiverSlotID, r.Status.String()}
}

func newSwapProposeCommand(opts *RootOptions) *cobra.Command {
	var mine, theirs, receiver string
	cmd := &cobra.Command{
		Use:   "propose",
		Short: "Offer one of your slots for someone else's",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			uid, err := acting(opts)
			if err != nil {
				return err
			}
			return withEnv(cmd.Context(), opts, func(ctx context.Context, e *env) error {
				r, err := e.engine.ProposeSwap(ctx, swap.ProposeInput{
					RequesterID: uid, RequesterSlotID: mine, ReceiverSlotID: theirs, ReceiverID: receiver,
				})
				if err != nil {
					return WrapExitError(ExitFailure, "propose swap", err)
				}
				return printer{format: opts.Format, w: cmd.OutOrStdout()}.emit(r, requestHeader, [][]string{requestRow(r)})
			})
		},
	}
	cmd.Flags().StringVar(&mine, "mine", "", "your slot id")
	cmd.Flags().StringVar(&theirs, "theirs", "", "the wanted slot id")
	cmd.Flags().StringVar(&receiver, "receiver", "", "expected owner of the wanted slot")
	_ = cmd.MarkFlagRequired("mine")
	_ = cmd.MarkFlagRequired("theirs")
	return cmd
}

func newSwapResolveCommand(opts *RootOptions, verb, short string) *cobra.Command {
	return &cobra.Command{
		Use:   verb + " <request-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			uid, err := acting(opts)
			if err != nil {
				return err
			}
			return withEnv(cmd.Context(), opts, func(ctx context.Context, e *env) error {
				op := e.engine.AcceptSwap
				if verb == "reject" {
					op = e.engine.RejectSwap
				}
				r, err := op(ctx, args[0], uid)
				if err != nil {
					return WrapExitError(ExitFailure, verb+" swap", err)
				}
				return printer{format: opts.Format, w: cmd.OutOrStdout()}.emit(r, requestHeader, [][]string{requestRow(r)})
			})
		},
	}
}

func newSwapListCommand(opts *RootOptions, which, short string) *cobra.Command {
	return &cobra.Command{
		Use:   which,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			uid, err := acting(opts)
			if err != nil {
				return err
			}
			return withEnv(cmd.Context(), opts, func(ctx context.Context, e *env) error {
				list := e.engine.IncomingFor
				if which == "outgoing" {
					list = e.engine.OutgoingFor
				}
				views, err := list(ctx, uid)
				if err != nil {
					return WrapExitError(ExitFailure, "list "+which, err)
				}
				rows := make([][]string, 0, len(views))
				for _, v := range views {
					rows = append(rows, requestRow(v.SwapRequest))
				}
				return printer{format: opts.Format, w: cmd.OutOrStdout()}.emit(views, requestHeader, rows)
			})
		},
	}
}

func newSwapDeleteCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <request-id>",
		Short: "Delete an accepted or rejected request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			uid, err := acting(opts)
			if err != nil {
				return err
			}
			return withEnv(cmd.Context(), opts, func(ctx context.Context, e *env) error {
				if err := e.engine.RemoveRequest(ctx, args[0], uid); err != nil {
					return WrapExitError(ExitFailure, "delete request", err)
				}
				_, err := fmt.Fprintln(cmd.OutOrStdout(), "deleted", args[0])
				return err
			})
		},
	}
}
