package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/macropower/dotup/pkg/secret"
)

func NewSecretCmd(_ *RootArgs) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "secret",
		Short: "Manage encrypted dotfile sources",
		Long: `Encrypt dotfile sources with age. Sealed files carry a .age suffix and
decrypt during deployment using the local identity.`,
	}

	cmd.AddCommand(
		NewSecretInitCmd(),
		NewSecretSealCmd(),
		NewSecretOpenCmd(),
	)

	return cmd
}

func NewSecretInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Generate the age identity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			k := secret.NewKeeper()

			recipient, err := k.Init()
			if err != nil {
				return fmt.Errorf("generate identity: %w", err)
			}

			w := cmd.OutOrStdout()

			mustN(fmt.Fprintf(w, "identity written to %s\n", k.Path()))
			mustN(fmt.Fprintf(w, "recipient: %s\n", recipient))
			mustN(fmt.Fprintln(w, "back up the identity file, sealed entries cannot be recovered without it"))

			return nil
		},
	}
}

func NewSecretSealCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seal <file>",
		Short: "Encrypt a dotfile source",
		Long: `Encrypt a file against the local identity, writing the armored ciphertext
next to it with a .age suffix. The plaintext is left in place.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, cmdArgs []string) error {
			k := secret.NewKeeper()

			sealed, err := k.Seal(cmdArgs[0])
			if err != nil {
				return fmt.Errorf("seal %q: %w", cmdArgs[0], err)
			}

			w := cmd.OutOrStdout()

			mustN(fmt.Fprintln(w, sealed))
			mustN(fmt.Fprintf(w, "remove or ignore the plaintext %s before committing\n", cmdArgs[0]))

			return nil
		},
	}
}

func NewSecretOpenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "open <file>",
		Short: "Decrypt a sealed file",
		Long: `Decrypt a sealed file next to itself, dropping the .age suffix. Files
without the suffix decrypt to stdout.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, cmdArgs []string) error {
			k := secret.NewKeeper()

			data, err := k.Unseal(cmdArgs[0])
			if err != nil {
				return fmt.Errorf("open %q: %w", cmdArgs[0], err)
			}

			target := strings.TrimSuffix(cmdArgs[0], secret.Suffix)
			if target == cmdArgs[0] {
				mustN(cmd.OutOrStdout().Write(data))

				return nil
			}

			err = os.WriteFile(target, data, 0o600)
			if err != nil {
				return fmt.Errorf("write %q: %w", target, err)
			}

			mustN(fmt.Fprintln(cmd.OutOrStdout(), target))

			return nil
		},
	}
}
