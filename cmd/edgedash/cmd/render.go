// cmd/edgedash/cmd/render.go
package cmd

import (
	"github.com/spf13/cobra"

	"github.com/balaji-balu/margo-edgedash/internal/naming"
	"github.com/balaji-balu/margo-edgedash/internal/render"
	"github.com/balaji-balu/margo-edgedash/internal/templatesource"
)

func newRenderCmd(o *rootOptions) *cobra.Command {
	var edge, datasourceUID string
	cmd := &cobra.Command{
		Use:   "render",
		Short: "Render the dashboard template for one edge without contacting Grafana",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := o.load()
			if err != nil {
				return err
			}
			text, err := templatesource.Load(cmd.Context(), cfg.TemplatePath, templatesource.Credentials{
				Username: cfg.ORASUsername,
				Password: cfg.ORASPassword,
			})
			if err != nil {
				return err
			}
			dash, err := render.Render(text, edge, datasourceUID, naming.SafeIdentifier(edge))
			if err != nil {
				return err
			}
			data, err := dash.MarshalIndent()
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
	cmd.Flags().StringVar(&edge, "edge", "", "Edge id to render for")
	cmd.Flags().StringVar(&datasourceUID, "datasource-uid", "", "Datasource uid to bind every panel to")
	_ = cmd.MarkFlagRequired("edge")
	_ = cmd.MarkFlagRequired("datasource-uid")
	return cmd
}
