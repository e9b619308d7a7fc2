package commands

import (
	"fmt"
	"net/url"
	"time"

	"github.com/ArkLabsHQ/intentd/internal/interface/web/types"
	"github.com/spf13/cobra"
)

func swapCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "swap",
		Short: "Manage cross-chain swaps",
	}
	cmd.AddCommand(swapInitiateCmd(), swapListCmd(), swapGetCmd(), swapAbortCmd())
	return cmd
}

func swapInitiateCmd() *cobra.Command {
	var (
		req     types.InitiateSwapRequest
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "initiate",
		Short: "Offer a swap to a peer",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if timeout <= 0 {
				return fmt.Errorf("timeout must be positive")
			}
			req.TimeoutAt = time.Now().Add(timeout).Unix()
			return client.post(cmd, "/v1/swaps", req)
		},
	}
	cmd.Flags().StringVar(&req.Responder, "peer", "", "network id of the counterparty")
	cmd.Flags().StringVar(&req.From, "from", "", "asset sent by the counterparty, CODE[:ISSUER]@CHAIN")
	cmd.Flags().StringVar(&req.To, "to", "", "asset sent in exchange, CODE[:ISSUER]@CHAIN")
	cmd.Flags().Uint64Var(&req.Amount, "amount", 0, "amount of the from asset")
	cmd.Flags().Uint64Var(&req.CounterAmount, "counter-amount", 0, "amount of the to asset")
	cmd.Flags().Uint32Var(&req.SlippageBps, "slippage-bps", 0, "accepted slippage on the counter amount")
	cmd.Flags().DurationVar(&timeout, "timeout", 2*time.Hour, "time left before the counterparty lock times out")
	cmd.Flags().Uint32Var(&req.TimeoutHeight, "timeout-height", 0, "optional block height timeout")
	for _, name := range []string{"peer", "from", "to", "amount", "counter-amount"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}

func swapListCmd() *cobra.Command {
	var pending bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List swaps, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/v1/swaps"
			if pending {
				path += "?pending=true"
			}
			return client.get(cmd, path)
		},
	}
	cmd.Flags().BoolVar(&pending, "pending", false, "only list swaps not settled yet")
	return cmd
}

func swapGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <swap-id>",
		Short: "Show a swap",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return client.get(cmd, "/v1/swaps/"+url.PathEscape(args[0]))
		},
	}
}

func swapAbortCmd() *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "abort <swap-id>",
		Short: "Abort a swap, locked funds are reclaimed at timeout",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return client.post(
				cmd, "/v1/swaps/"+url.PathEscape(args[0])+"/abort", types.AbortSwapRequest{Reason: reason},
			)
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "reason reported to the counterparty")
	return cmd
}

func proofCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "proof <swap-id>",
		Short: "Show the execution proof of a completed swap",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return client.get(cmd, "/v1/proofs/"+url.PathEscape(args[0]))
		},
	}
}
