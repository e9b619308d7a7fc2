package commands

import (
	"encoding/hex"
	"fmt"
	"net/url"
	"time"

	"github.com/ArkLabsHQ/intentd/internal/core/domain"
	"github.com/ArkLabsHQ/intentd/internal/core/identity"
	"github.com/ArkLabsHQ/intentd/internal/interface/web/types"
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/spf13/cobra"
)

func identityCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "identity",
		Short: "Link peers to their ledger accounts",
	}
	cmd.AddCommand(identityLinkCmd(), identityGetCmd(), identitySignCmd())
	return cmd
}

func identityLinkCmd() *cobra.Command {
	var req types.LinkIdentityRequest
	cmd := &cobra.Command{
		Use:   "link",
		Short: "Record a peer account, proven by the signature of the link statement",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return client.post(cmd, "/v1/identities", req)
		},
	}
	cmd.Flags().StringVar(&req.NetworkId, "peer", "", "network id of the peer")
	cmd.Flags().StringVar(&req.Chain, "chain", "", "ledger chain of the account")
	cmd.Flags().StringVar(&req.Account, "account", "", "ledger account")
	cmd.Flags().Int64Var(&req.IssuedAt, "issued-at", 0, "unix time the statement was signed at")
	cmd.Flags().StringVar(&req.Signature, "signature", "", "hex signature of the link statement")
	for _, name := range []string{"peer", "chain", "account", "issued-at", "signature"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}

func identityGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <network-id>",
		Short: "List the accounts linked to a peer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return client.get(cmd, "/v1/identities/"+url.PathEscape(args[0]))
		},
	}
}

// identitySignCmd signs a link statement offline, with the key controlling
// the account.
func identitySignCmd() *cobra.Command {
	var (
		networkId, chain, account, scheme, key string
	)
	cmd := &cobra.Command{
		Use:   "sign",
		Short: "Sign the statement linking a network id to an account you control",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			issuedAt := time.Now().Unix()
			statement := domain.LinkStatement(networkId, chain, account, issuedAt)

			var (
				sig []byte
				err error
			)
			switch scheme {
			case identity.SchemeStellar:
				sig, err = identity.SignStellar(key, statement)
			case identity.SchemeSchnorr:
				buf, decodeErr := hex.DecodeString(key)
				if decodeErr != nil {
					return fmt.Errorf("invalid schnorr key, must be hex encoded")
				}
				priv, _ := btcec.PrivKeyFromBytes(buf)
				sig, err = identity.SignSchnorr(priv, statement)
			default:
				return fmt.Errorf("unknown scheme %s", scheme)
			}
			if err != nil {
				return err
			}
			return printJSON(cmd, types.LinkIdentityRequest{
				NetworkId: networkId,
				Chain:     chain,
				Account:   account,
				IssuedAt:  issuedAt,
				Signature: hex.EncodeToString(sig),
			})
		},
	}
	cmd.Flags().StringVar(&networkId, "peer", "", "network id to link")
	cmd.Flags().StringVar(&chain, "chain", "", "ledger chain of the account")
	cmd.Flags().StringVar(&account, "account", "", "ledger account")
	cmd.Flags().StringVar(&scheme, "scheme", identity.SchemeStellar, "account scheme, stellar or schnorr")
	cmd.Flags().StringVar(&key, "key", "", "account secret: stellar seed or hex schnorr private key")
	for _, name := range []string{"peer", "chain", "account", "key"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}
