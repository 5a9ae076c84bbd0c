// AngelaMos | 2026
// keys_cmd.go

package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/carterperez-dev/gatepass/internal/auth"
	"github.com/carterperez-dev/gatepass/internal/config"
	"github.com/carterperez-dev/gatepass/internal/core"
)

func newKeysCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Manage the ES256 key pair for API client tokens",
	}

	var privatePath, publicPath string
	generate := &cobra.Command{
		Use:   "generate",
		Short: "Write a new key pair",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			for _, p := range []string{privatePath, publicPath} {
				if err := os.MkdirAll(filepath.Dir(p), 0o700); err != nil {
					return fmt.Errorf("create key directory: %w", err)
				}
			}

			if err := auth.GenerateKeyPair(privatePath, publicPath); err != nil {
				return err
			}

			return g.emit(cmd.OutOrStdout(),
				map[string]string{"private_key": privatePath, "public_key": publicPath},
				"wrote "+privatePath+" and "+publicPath,
			)
		},
	}
	generate.Flags().StringVar(&privatePath, "private", "keys/private.pem", "private key output path")
	generate.Flags().StringVar(&publicPath, "public", "keys/public.pem", "public key output path")

	cmd.AddCommand(generate)
	return cmd
}

func newClientTokenCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "client-token",
		Short: "Mint bearer tokens for API clients",
	}

	var (
		subject string
		scopes  []string
		ttl     time.Duration
	)
	issue := &cobra.Command{
		Use:   "issue",
		Short: "Sign a client token with the configured private key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadSigning(g.configPath)
			if err != nil {
				return err
			}

			signer, err := auth.LoadSigner(cfg.JWT)
			if err != nil {
				return err
			}

			token, err := signer.CreateClientToken(subject, scopes, ttl)
			if err != nil {
				return err
			}

			return g.emit(cmd.OutOrStdout(),
				map[string]any{
					"subject": subject,
					"scopes":  scopes,
					"key_id":  signer.KeyID(),
					"token":   token,
				},
				token,
			)
		},
	}
	issue.Flags().StringVar(&subject, "subject", "", "client name, e.g. chat-bot")
	issue.Flags().StringSliceVar(&scopes, "scope", []string{auth.ScopeBot}, "scopes to grant (bot, ops)")
	issue.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (default jwt.client_token_expire)")
	_ = issue.MarkFlagRequired("subject") //nolint:errcheck // flag defined above

	cmd.AddCommand(issue)
	return cmd
}

func newSecretCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "secret",
		Short: "Generate random secrets",
	}

	var length int
	generate := &cobra.Command{
		Use:   "generate",
		Short: "Print a URL-safe random secret, e.g. for TICKET_MASTER_SECRET",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if length < 16 {
				return fmt.Errorf("--bytes must be at least 16: %w", core.ErrInvalidInput)
			}
			secret, err := core.GenerateSecret(length)
			if err != nil {
				return err
			}
			return g.emit(cmd.OutOrStdout(), map[string]string{"secret": secret}, secret)
		},
	}
	generate.Flags().IntVar(&length, "bytes", 32, "random bytes before encoding")

	cmd.AddCommand(generate)
	return cmd
}
