// cmd/edgedash/cmd/publish.go
package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/balaji-balu/margo-edgedash/internal/config"
	"github.com/balaji-balu/margo-edgedash/internal/grafana"
	"github.com/balaji-balu/margo-edgedash/internal/metrics"
	"github.com/balaji-balu/margo-edgedash/internal/orchestrator"
	"github.com/balaji-balu/margo-edgedash/internal/reconcile"
	"github.com/balaji-balu/margo-edgedash/internal/telemetry"
	"github.com/balaji-balu/margo-edgedash/internal/templatesource"
)

func newPublishCmd(o *rootOptions) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Provision the folder, datasources and dashboards for every edge",
		RunE: func(cmd *cobra.Command, _ []string) error {
			switch format {
			case orchestrator.FormatText, orchestrator.FormatJSON, orchestrator.FormatYAML:
			default:
				return fmt.Errorf("unknown report format %q (text, json, yaml)", format)
			}
			cfg, err := o.load()
			if err != nil {
				return err
			}
			return runPublish(cmd.Context(), o, cfg, format, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&format, "report-format", orchestrator.FormatText, "Report format: text, json or yaml")
	return cmd
}

func runPublish(ctx context.Context, o *rootOptions, cfg *config.Config, format string, out io.Writer) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	certs, err := cfg.ReadCertificates()
	if err != nil {
		return err
	}

	lg, err := o.logger(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer lg.Sync()
	log := lg.Zap()

	shutdown, err := telemetry.InitTracer(ctx, serviceName, cfg.TraceExporter)
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			log.Warn("Tracer shutdown failed", zap.Error(err))
		}
	}()

	client, err := grafana.New(cfg.GrafanaURL, cfg.GrafanaToken,
		grafana.WithTimeout(cfg.Timeout),
		grafana.WithInsecureSkipVerify(cfg.InsecureSkipVerify),
		grafana.WithUserAgent(serviceName+"/"+version),
	)
	if err != nil {
		return err
	}

	runID := uuid.NewString()
	m := metrics.New()
	rec := reconcile.New(client, reconcile.DatasourceSettings{
		Prefix:       cfg.DatasourcePrefix,
		URL:          cfg.MimirURL,
		TenantHeader: cfg.TenantHeader,
		CACert:       certs.CACert,
		ClientCert:   certs.ClientCert,
		ClientKey:    certs.ClientKey,
	}, reconcile.NewRunState(runID), log, m)

	creds := templatesource.Credentials{Username: cfg.ORASUsername, Password: cfg.ORASPassword}
	orch := orchestrator.New(orchestrator.Settings{
		Edges:            cfg.Edges(),
		TenantSpec:       cfg.Tenant,
		FolderTitle:      cfg.FolderTitle,
		DatasourcePrefix: cfg.DatasourcePrefix,
	}, rec, func(ctx context.Context) (string, error) {
		return templatesource.Load(ctx, cfg.TemplatePath, creds)
	}, log, m)

	log.Info("Starting publish run",
		zap.String("run_id", runID),
		zap.String("grafana", cfg.GrafanaURL),
		zap.String("folder", cfg.FolderTitle),
		zap.String("template", cfg.TemplatePath))

	report, runErr := orch.Run(ctx)

	if cfg.MetricsTextfile != "" {
		if err := m.WriteTextfile(cfg.MetricsTextfile); err != nil {
			log.Warn("Failed to write metrics textfile", zap.String("path", cfg.MetricsTextfile), zap.Error(err))
		}
	}
	if runErr != nil {
		return runErr
	}
	if err := report.Write(out, format); err != nil {
		return err
	}
	return report.Err()
}
