package cmd

import (
	"io"

	"github.com/luxfi/erc20-processor/pkg/application"
	"github.com/luxfi/erc20-processor/pkg/core"
	"github.com/luxfi/erc20-processor/pkg/keys"
	"github.com/spf13/cobra"
)

// NewGenerateKeyCmd creates the generate-key command
func NewGenerateKeyCmd(app *application.Processor) *cobra.Command {
	var (
		count       int
		mnemonic    string
		newMnemonic bool
	)

	cmd := &cobra.Command{
		Use:   "generate-key",
		Short: "Generate accounts and print them in .env format",
		Long: `Generate accounts and print them in .env format on stdout.

Keys are random unless a BIP39 mnemonic is given, in which case they are
derived along m/44'/60'/0'/0/i.

Examples:
  erc20_processor generate-key -n 7 > .env
  erc20_processor generate-key -n 3 --mnemonic "word1 word2 ... word12"
  erc20_processor generate-key -n 3 --new-mnemonic`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if mnemonic != "" && newMnemonic {
				return core.ErrInvalidConfig("--mnemonic and --new-mnemonic are mutually exclusive")
			}

			gen := keys.NewGenerator()
			emitted := ""
			if newMnemonic {
				m, err := keys.NewMnemonic()
				if err != nil {
					return err
				}
				mnemonic, emitted = m, m
			}
			if mnemonic != "" {
				var err error
				if gen, err = keys.NewMnemonicGenerator(mnemonic); err != nil {
					return err
				}
			}

			accounts, err := gen.Generate(count)
			if err != nil {
				return err
			}
			out, err := keys.EncodeEnv(accounts, emitted)
			if err != nil {
				return err
			}

			app.Log.Info("Generated accounts", "count", len(accounts), "derived", mnemonic != "")
			_, err = io.WriteString(app.Stdout, out)
			return err
		},
	}

	cmd.Flags().IntVarP(&count, "num", "n", 1, "Number of accounts to generate")
	cmd.Flags().StringVar(&mnemonic, "mnemonic", "", "Derive keys from this BIP39 mnemonic")
	cmd.Flags().BoolVar(&newMnemonic, "new-mnemonic", false, "Create a new mnemonic, derive keys from it and print it as MNEMONIC")

	return cmd
}
