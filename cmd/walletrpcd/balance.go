package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	walletgrpc "github.com/blockberries/walletrpc/grpc"
)

func newBalanceCmd(a *app) *cobra.Command {
	var requestID string
	cmd := &cobra.Command{
		Use:   "balance <pubkey>",
		Short: "Query a running walletrpcd for the balance of a public key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.balance(cmd, args[0], requestID)
		},
	}
	cmd.Flags().StringVar(&requestID, "request-id", "", "request id sent with the call")
	return cmd
}

func (a *app) balance(cmd *cobra.Command, pubkey, requestID string) error {
	client, err := walletgrpc.Dial(a.cfg.RPC.Address,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return err
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), a.cfg.Node.RequestTimeout)
	defer cancel()
	if requestID != "" {
		ctx = walletgrpc.WithRequestID(ctx, requestID)
	}

	resp, err := client.GetBalance(ctx, pubkey)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "balance: %d nicks\n", resp.Balance)
	fmt.Fprintf(out, "nocks:   %s\n", resp.Nocks)
	fmt.Fprintf(out, "notes:   %d\n", resp.Notes)
	fmt.Fprintf(out, "at:      %s\n", resp.QueriedAt.ToTime().UTC().Format("2006-01-02T15:04:05Z07:00"))
	return nil
}
