package commands

import (
	"encoding/base64"
	"fmt"
	"os"
	"strings"

	"github.com/ArkLabsHQ/intentd/internal/interface/web/types"
	"github.com/spf13/cobra"
)

func payCmd() *cobra.Command {
	var (
		txFile string
		meta   []string
	)
	cmd := &cobra.Command{
		Use:   "pay <peer> <chain>",
		Short: "Ask a peer to submit a signed payment transaction",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			tx, err := readTx(txFile)
			if err != nil {
				return err
			}
			metadata := make(map[string]string, len(meta))
			for _, kv := range meta {
				k, v, ok := strings.Cut(kv, "=")
				if !ok {
					return fmt.Errorf("invalid metadata %q, expected key=value", kv)
				}
				metadata[k] = v
			}
			return client.post(cmd, "/v1/intents/payment", types.PaymentRequest{
				Peer:       args[0],
				Chain:      args[1],
				TxEnvelope: tx,
				Metadata:   metadata,
			})
		},
	}
	cmd.Flags().StringVar(&txFile, "tx", "", "file with the signed transaction, base64 or raw")
	cmd.Flags().StringArrayVar(&meta, "meta", nil, "metadata as key=value, repeatable")
	_ = cmd.MarkFlagRequired("tx")
	return cmd
}

func trustlineCmd() *cobra.Command {
	var (
		txFile     string
		limit      uint64
		authorized bool
	)
	cmd := &cobra.Command{
		Use:   "trustline <peer> <asset>",
		Short: "Ask a peer to submit a signed trustline update",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			tx, err := readTx(txFile)
			if err != nil {
				return err
			}
			return client.post(cmd, "/v1/intents/trustline", types.TrustlineRequest{
				Peer:       args[0],
				Asset:      args[1],
				Limit:      limit,
				Authorized: authorized,
				TxEnvelope: tx,
			})
		},
	}
	cmd.Flags().StringVar(&txFile, "tx", "", "file with the signed transaction, base64 or raw")
	cmd.Flags().Uint64Var(&limit, "limit", 0, "trustline limit")
	cmd.Flags().BoolVar(&authorized, "authorized", true, "whether the trustline is authorized")
	_ = cmd.MarkFlagRequired("tx")
	return cmd
}

// readTx returns the base64 encoding of the transaction in path, which
// holds either base64 text or the raw bytes.
func readTx(path string) (string, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(string(buf))
	if _, err := base64.StdEncoding.DecodeString(text); err == nil && text != "" {
		return text, nil
	}
	return base64.StdEncoding.EncodeToString(buf), nil
}
