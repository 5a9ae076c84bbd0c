// AngelaMos | 2026
// token_cmd.go

package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/carterperez-dev/gatepass/internal/ticket"
)

type claimsOutput struct {
	Token       string       `json:"token"`
	PrincipalID string       `json:"principal_id"`
	Class       ticket.Class `json:"ticket_class"`
}

func newTokenCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint and check credential tokens",
	}

	var class string
	mint := &cobra.Command{
		Use:   "mint <principal-id>",
		Short: "Print the credential token for a principal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			codec, cfg, err := g.codec()
			if err != nil {
				return err
			}
			if class == "" {
				class = cfg.Tickets.IssueClass
			}

			token, err := codec.Mint(args[0], ticket.Class(class))
			if err != nil {
				return err
			}

			return g.emit(cmd.OutOrStdout(),
				claimsOutput{Token: token, PrincipalID: args[0], Class: ticket.Class(class)},
				token,
			)
		},
	}
	mint.Flags().StringVar(&class, "class", "", "ticket class (default tickets.issue_class)")

	verify := &cobra.Command{
		Use:   "verify <token>",
		Short: "Check a token against the configured classes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			codec, _, err := g.codec()
			if err != nil {
				return err
			}
			return printClaims(g, cmd, codec, args[0])
		},
	}

	cmd.AddCommand(mint, verify)
	return cmd
}

func newQRCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "qr",
		Short: "Render and read credential images",
	}

	var (
		output string
		tag    string
		class  string
	)
	encode := &cobra.Command{
		Use:   "encode <principal-id>",
		Short: "Write the credential image for a principal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			channel, codec, cfg, err := g.channel()
			if err != nil {
				return err
			}
			if class == "" {
				class = cfg.Tickets.IssueClass
			}

			token, err := codec.Mint(args[0], ticket.Class(class))
			if err != nil {
				return err
			}

			png, err := channel.Encode(token, tag)
			if err != nil {
				return err
			}

			if err := os.WriteFile(output, png, 0o600); err != nil {
				return fmt.Errorf("write %s: %w", output, err)
			}

			return g.emit(cmd.OutOrStdout(),
				map[string]any{"path": output, "bytes": len(png), "token": token},
				fmt.Sprintf("wrote %s (%d bytes)", output, len(png)),
			)
		},
	}
	encode.Flags().StringVarP(&output, "output", "o", "credential.png", "output PNG path")
	encode.Flags().StringVar(&tag, "tag", "", "display tag printed under the code")
	encode.Flags().StringVar(&class, "class", "", "ticket class (default tickets.issue_class)")

	decode := &cobra.Command{
		Use:   "decode <image>",
		Short: "Read the token from a photo or rendered credential",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			channel, codec, _, err := g.channel()
			if err != nil {
				return err
			}

			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read %s: %w", args[0], err)
			}

			token, err := channel.Decode(data)
			if err != nil {
				return err
			}

			return printClaims(g, cmd, codec, token)
		},
	}

	cmd.AddCommand(encode, decode)
	return cmd
}

func printClaims(g *globals, cmd *cobra.Command, codec *ticket.Codec, token string) error {
	claims, err := codec.Verify(token)
	if err != nil {
		return err
	}

	return g.emit(cmd.OutOrStdout(),
		claimsOutput{Token: token, PrincipalID: claims.PrincipalID, Class: claims.Class},
		fmt.Sprintf("valid: principal %s, class %s", claims.PrincipalID, claims.Class),
	)
}
