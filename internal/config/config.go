// Package config builds the run configuration from the environment, an
// optional YAML file and command line flags.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/balaji-balu/margo-edgedash/internal/topology"
	"github.com/balaji-balu/margo-edgedash/pkg/model"
)

// Keys; the environment variable is the upper-cased key.
const (
	KeyGrafanaURL         = "grafana_url"
	KeyGrafanaToken       = "grafana_token"
	KeyEdge               = "edge"
	KeyTenant             = "tenant"
	KeyFolderTitle        = "folder_title"
	KeyTemplatePath       = "template_path"
	KeyDatasourcePrefix   = "datasource_prefix"
	KeyMimirURL           = "mimir_url"
	KeyTenantHeader       = "tenant_header"
	KeyCACertPath         = "ca_cert_path"
	KeyClientCertPath     = "client_cert_path"
	KeyClientKeyPath      = "client_key_path"
	KeyTimeout            = "grafana_timeout"
	KeyInsecureSkipVerify = "grafana_insecure_skip_verify"
	KeyLogEnv             = "log_env"
	KeyLogFile            = "log_file"
	KeyMetricsTextfile    = "metrics_textfile"
	KeyTraceExporter      = "trace_exporter"
	KeyORASUsername       = "oras_username"
	KeyORASPassword       = "oras_password"
)

var keys = []string{
	KeyGrafanaURL, KeyGrafanaToken, KeyEdge, KeyTenant, KeyFolderTitle,
	KeyTemplatePath, KeyDatasourcePrefix, KeyMimirURL, KeyTenantHeader,
	KeyCACertPath, KeyClientCertPath, KeyClientKeyPath, KeyTimeout,
	KeyInsecureSkipVerify, KeyLogEnv, KeyLogFile, KeyMetricsTextfile,
	KeyTraceExporter, KeyORASUsername, KeyORASPassword,
}

type Config struct {
	GrafanaURL   string `mapstructure:"grafana_url"`
	GrafanaToken string `mapstructure:"grafana_token"`

	Edge   string `mapstructure:"edge"`
	Tenant string `mapstructure:"tenant"`

	FolderTitle      string `mapstructure:"folder_title"`
	TemplatePath     string `mapstructure:"template_path"`
	DatasourcePrefix string `mapstructure:"datasource_prefix"`
	MimirURL         string `mapstructure:"mimir_url"`
	TenantHeader     string `mapstructure:"tenant_header"`

	CACertPath     string `mapstructure:"ca_cert_path"`
	ClientCertPath string `mapstructure:"client_cert_path"`
	ClientKeyPath  string `mapstructure:"client_key_path"`

	Timeout            time.Duration `mapstructure:"grafana_timeout"`
	InsecureSkipVerify bool          `mapstructure:"grafana_insecure_skip_verify"`

	LogEnv          string `mapstructure:"log_env"`
	LogFile         string `mapstructure:"log_file"`
	MetricsTextfile string `mapstructure:"metrics_textfile"`
	TraceExporter   string `mapstructure:"trace_exporter"`

	ORASUsername string `mapstructure:"oras_username"`
	ORASPassword string `mapstructure:"oras_password"`
}

// NewViper returns a viper instance with defaults set and every key bound
// to its environment variable.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetDefault(KeyFolderTitle, "Edges")
	v.SetDefault(KeyTemplatePath, "central/grafana/dashboards/edge-template.json")
	v.SetDefault(KeyDatasourcePrefix, "Mimir - ")
	v.SetDefault(KeyMimirURL, "https://mimir:9009/prometheus")
	v.SetDefault(KeyTenantHeader, "X-Scope-OrgID")
	v.SetDefault(KeyTimeout, 30*time.Second)
	v.SetDefault(KeyInsecureSkipVerify, false)
	v.SetDefault(KeyLogEnv, "production")
	v.SetDefault(KeyTraceExporter, "none")

	for _, k := range keys {
		_ = v.BindEnv(k, strings.ToUpper(k))
	}
	return v
}

// Load reads configFile, if given, and decodes all settings.
func Load(v *viper.Viper, configFile string) (*Config, error) {
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}

// Edges returns the configured edges in order.
func (c *Config) Edges() []model.EdgeID {
	return topology.SplitEdges(c.Edge)
}

// Topology parses EDGE and TENANT.
func (c *Config) Topology() (*model.Topology, error) {
	return topology.Parse(c.Edges(), c.Tenant)
}

// ValidateTopology checks the settings needed to resolve edges offline.
func (c *Config) ValidateTopology() error {
	if strings.TrimSpace(c.Edge) == "" {
		return model.NewConfigError("EDGE", "required (e.g. EDGE=edge-d or EDGE=edge-a,edge-b,edge-c)")
	}
	if strings.TrimSpace(c.Tenant) == "" {
		return model.NewConfigError("TENANT", "required (e.g. TENANT=p4 or TENANT=edge-a:p1,edge-b:p2)")
	}
	_, err := c.Topology()
	return err
}

// Validate checks everything a publish run needs.
func (c *Config) Validate() error {
	if err := validateURL("GRAFANA_URL", c.GrafanaURL); err != nil {
		return err
	}
	if strings.TrimSpace(c.GrafanaToken) == "" {
		return model.NewConfigError("GRAFANA_TOKEN", "required")
	}
	if err := c.ValidateTopology(); err != nil {
		return err
	}
	if strings.TrimSpace(c.FolderTitle) == "" {
		return model.NewConfigError("FOLDER_TITLE", "must not be empty")
	}
	if strings.TrimSpace(c.TemplatePath) == "" {
		return model.NewConfigError("TEMPLATE_PATH", "must not be empty")
	}
	if err := validateURL("MIMIR_URL", c.MimirURL); err != nil {
		return err
	}
	if strings.TrimSpace(c.TenantHeader) == "" {
		return model.NewConfigError("TENANT_HEADER", "must not be empty")
	}
	if c.Timeout < 0 {
		return model.NewConfigError("GRAFANA_TIMEOUT", "must not be negative, got %s", c.Timeout)
	}
	if (c.ClientCertPath == "") != (c.ClientKeyPath == "") {
		return model.NewConfigError("CLIENT_CERT_PATH", "CLIENT_CERT_PATH and CLIENT_KEY_PATH must be set together")
	}
	switch c.TraceExporter {
	case "", "none", "stdout", "otlp":
	default:
		return model.NewConfigError("TRACE_EXPORTER", "unknown exporter %q (none, stdout, otlp)", c.TraceExporter)
	}
	return nil
}

func validateURL(field, raw string) error {
	if strings.TrimSpace(raw) == "" {
		return model.NewConfigError(field, "required")
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return model.NewConfigError(field, "%q is not an absolute url", raw)
	}
	return nil
}

// Certificates holds the PEM material pushed into each datasource.
type Certificates struct {
	CACert     string
	ClientCert string
	ClientKey  string
}

// ReadCertificates reads the optional PEM files.
func (c *Config) ReadCertificates() (Certificates, error) {
	var certs Certificates
	for _, f := range []struct {
		field string
		path  string
		dst   *string
	}{
		{"CA_CERT_PATH", c.CACertPath, &certs.CACert},
		{"CLIENT_CERT_PATH", c.ClientCertPath, &certs.ClientCert},
		{"CLIENT_KEY_PATH", c.ClientKeyPath, &certs.ClientKey},
	} {
		if f.path == "" {
			continue
		}
		data, err := os.ReadFile(f.path)
		if err != nil {
			return Certificates{}, model.NewConfigError(f.field, "%v", err)
		}
		*f.dst = string(data)
	}
	return certs, nil
}
