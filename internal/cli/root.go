// AngelaMos | 2026
// root.go

package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/carterperez-dev/gatepass/internal/config"
	"github.com/carterperez-dev/gatepass/internal/core"
	"github.com/carterperez-dev/gatepass/internal/credential"
	"github.com/carterperez-dev/gatepass/internal/ticket"
)

// Execute runs gatectl and returns the process exit code.
func Execute() int {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

type globals struct {
	configPath string
	jsonOutput bool
}

func newRootCmd() *cobra.Command {
	g := &globals{}

	root := &cobra.Command{
		Use:           "gatectl",
		Short:         "Operator tooling for the gatepass credential service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVarP(&g.configPath, "config", "c", "", "path to config file (env only when empty)")
	root.PersistentFlags().BoolVar(&g.jsonOutput, "json", false, "print JSON instead of text")

	root.AddCommand(
		newMigrateCmd(g),
		newKeysCmd(g),
		newClientTokenCmd(g),
		newAdminCmd(g),
		newTokenCmd(g),
		newQRCmd(g),
		newStatsCmd(g),
		newSecretCmd(g),
	)

	return root
}

func (g *globals) tooling() (*config.Config, error) {
	return config.LoadTooling(g.configPath)
}

// openStore connects to the configured database and runs pending
// migrations so every command sees the current schema.
func (g *globals) openStore(ctx context.Context) (*core.Database, *config.Config, error) {
	cfg, err := g.tooling()
	if err != nil {
		return nil, nil, err
	}

	db, err := core.NewDatabase(ctx, cfg.Database)
	if err != nil {
		return nil, nil, err
	}

	if err := core.Migrate(db); err != nil {
		_ = db.Close() //nolint:errcheck // cleanup on migrate failure
		return nil, nil, err
	}

	return db, cfg, nil
}

func (g *globals) codec() (*ticket.Codec, *config.Config, error) {
	cfg, err := g.tooling()
	if err != nil {
		return nil, nil, err
	}

	codec, err := ticket.FromConfig(cfg.Tickets)
	if err != nil {
		return nil, nil, err
	}

	return codec, cfg, nil
}

func (g *globals) channel() (*credential.Channel, *ticket.Codec, *config.Config, error) {
	codec, cfg, err := g.codec()
	if err != nil {
		return nil, nil, nil, err
	}
	return credential.New(cfg.Credential), codec, cfg, nil
}

// emit prints v as JSON under --json, otherwise the text form.
func (g *globals) emit(w io.Writer, v any, text string) error {
	if g.jsonOutput {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	_, err := fmt.Fprintln(w, text)
	return err
}
