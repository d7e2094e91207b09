// cmd/root.go
package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/axpilot/axpilot/internal/config"
	"github.com/axpilot/axpilot/internal/observability"
)

var (
	cfgFile   string
	loadedCfg *config.Config
)

// NewRootCommand builds the root command tree. A fresh instance per
// invocation keeps flag state from leaking between runs.
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "axpilot",
		Short:   "axpilot drives a browser from high-level action plans.",
		Version: Version,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				observability.InitializeLogger(config.LoggerConfig{
					Level: "info", Format: "console", ServiceName: "axpilot",
				})
				return fmt.Errorf("failed to load config: %w", err)
			}
			loadedCfg = cfg

			observability.InitializeLogger(cfg.Logger)
			observability.GetLogger().Info("Starting axpilot.", zap.String("version", Version))
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is $HOME/.axpilot/config.yaml)")
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)
	rootCmd.AddCommand(newRunCommand())
	return rootCmd
}

// Execute runs the root command under the given context.
func Execute(ctx context.Context) error {
	defer observability.Sync()

	rootCmd := NewRootCommand()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		observability.GetLogger().Error("Command execution failed.", zap.Error(err))
		return err
	}
	return nil
}
