// cmd/edgedash/cmd/root.go
package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/balaji-balu/margo-edgedash/internal/config"
	"github.com/balaji-balu/margo-edgedash/internal/logger"
)

const serviceName = "edgedash"

var version = "v0.1.0"

type rootOptions struct {
	configFile string
	verbose    bool
	viper      *viper.Viper
}

func (o *rootOptions) load() (*config.Config, error) {
	cfg, err := config.Load(o.viper, o.configFile)
	if err != nil {
		return nil, err
	}
	if o.verbose {
		cfg.LogEnv = "development"
	}
	return cfg, nil
}

func (o *rootOptions) logger(cfg *config.Config) (*logger.Logger, error) {
	return logger.New(cfg.LogEnv, serviceName, cfg.LogFile)
}

// NewRootCmd builds the edgedash command tree.
func NewRootCmd() *cobra.Command {
	o := &rootOptions{viper: config.NewViper()}

	root := &cobra.Command{
		Use:   "edgedash",
		Short: "Per-edge Grafana dashboard provisioning",
		Long: `edgedash makes sure every edge site has a tenant-scoped Mimir datasource
and a dashboard inside a shared Grafana folder. Runs are idempotent: existing
resources are reused, never duplicated.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&o.configFile, "config", "c", "", "Path to configuration file (env vars override it)")
	root.PersistentFlags().BoolVarP(&o.verbose, "verbose", "v", false, "Enable verbose output")

	root.AddCommand(newPublishCmd(o), newTopologyCmd(o), newRenderCmd(o))
	return root
}

// Execute runs the CLI and returns the process exit code.
func Execute(ctx context.Context) int {
	if err := NewRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}
