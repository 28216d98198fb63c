// Package cli implements the receipt-desk command line.
package cli

import (
	"fmt"
	"os"

	"github.com/davecgh/go-spew/spew"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/eshaffer321/receipt-desk/internal/infrastructure/config"
)

type rootOptions struct {
	configPath string
	verbose    bool
}

// loadConfig reads the config file, falling back to the environment.
func (o *rootOptions) loadConfig() (*config.Config, error) {
	// .env may supply ${VARS} referenced from config.yaml
	_ = godotenv.Load()

	var cfg *config.Config
	if o.configPath != "" {
		loaded, err := config.Load(o.configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	} else {
		cfg = config.LoadOrEnv()
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if o.verbose {
		spew.Fdump(os.Stderr, cfg.Services, cfg.Sessions.Backend)
	}
	return cfg, nil
}

func (o *rootOptions) app() (*App, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, err
	}
	return NewApp(cfg, o.verbose)
}

// NewRootCommand builds the receipt-desk command tree.
func NewRootCommand() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "receipt-desk",
		Short:         "Receipt review desk for delivery partner orders",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "Path to config.yaml (default: ./config.yaml or environment)")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Verbose output")

	root.AddCommand(
		newServeCommand(opts),
		newProcessCommand(opts),
		newCustomersCommand(opts),
		newSessionsCommand(opts),
		newAuditCommand(opts),
	)
	return root
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
