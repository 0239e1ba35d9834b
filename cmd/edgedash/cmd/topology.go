// cmd/edgedash/cmd/topology.go
package cmd

import (
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/balaji-balu/margo-edgedash/pkg/model"
)

func newTopologyCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "topology",
		Short: "Print the edge to tenant mapping resolved from EDGE and TENANT",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := o.load()
			if err != nil {
				return err
			}
			if err := cfg.ValidateTopology(); err != nil {
				return err
			}
			topo, err := cfg.Topology()
			if err != nil {
				return err
			}

			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(struct {
				Edges []model.EdgeTenant `yaml:"edges"`
			}{topo.Pairs()}); err != nil {
				return err
			}
			return enc.Close()
		},
	}
}
