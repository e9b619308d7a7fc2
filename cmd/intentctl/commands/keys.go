package commands

import (
	"github.com/ArkLabsHQ/intentd/internal/core/application"
	"github.com/spf13/cobra"
)

type keysInfo struct {
	Mnemonic       string `json:"mnemonic,omitempty"`
	NetworkId      string `json:"networkId"`
	StellarAccount string `json:"stellarAccount"`
}

func keysCmd() *cobra.Command {
	var mnemonic string
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Derive the node keys from a mnemonic, or generate a new one",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			info := keysInfo{}
			if mnemonic == "" {
				var err error
				if mnemonic, err = application.NewMnemonic(); err != nil {
					return err
				}
				info.Mnemonic = mnemonic
			}
			signer, err := application.SignerFromMnemonic(mnemonic)
			if err != nil {
				return err
			}
			kp, err := application.StellarKeyFromMnemonic(mnemonic, 0)
			if err != nil {
				return err
			}
			info.NetworkId = signer.NetworkId()
			info.StellarAccount = kp.Address()
			return printJSON(cmd, info)
		},
	}
	cmd.Flags().StringVar(&mnemonic, "mnemonic", "", "existing mnemonic, a new one is generated when empty")
	return cmd
}
