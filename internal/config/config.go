// Package config loads the controller's environment-driven configuration,
// binding everything through viper into a typed struct rather than
// scattering os.Getenv calls.
package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the process-wide configuration, assembled once at startup.
type Config struct {
	// WebsocketURL is the upstream event relay the Webhook Transport dials.
	WebsocketURL string `mapstructure:"websocket_url"`

	// ClientSecret is the bearer credential presented on the webhook transport.
	ClientSecret string `mapstructure:"client_secret"`

	// GithubPATs is the comma-separated list of source-forge credentials,
	// one per client in the Source API Client Pool.
	GithubPATs []string `mapstructure:"github_pats"`

	// DatabasePath is the filesystem path of the embedded SQLite store.
	DatabasePath string `mapstructure:"database_path"`

	// EnableK8sController gates the DeployConfig Controller task. When false,
	// only webhook ingestion and the ambient HTTP server run.
	EnableK8sController bool `mapstructure:"enable_k8s_controller"`

	// ControllerName is stamped into the managed-by label and field manager
	// name used for server-side-apply.
	ControllerName string `mapstructure:"controller_name"`

	// ReconcileRequeue is the safety-net requeue interval for DeployConfig
	// reconciles.
	ReconcileRequeue time.Duration `mapstructure:"reconcile_requeue"`

	// ControllerWorkers is the number of concurrent reconcile workers the
	// DeployConfig Controller runs.
	ControllerWorkers int `mapstructure:"controller_workers"`

	// HTTPAddr is the listen address for the ambient health/metrics server.
	HTTPAddr string `mapstructure:"http_addr"`

	Log Log `mapstructure:"log"`
}

// Log mirrors the Level, Format and Output fields of pkg/logger.Config so
// config.Load can feed them directly; the file-rotation fields are not set.
type Log struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// Load binds environment variables into a Config. WEBSOCKET_URL,
// CLIENT_SECRET, GITHUB_PATS, DATABASE_PATH and ENABLE_K8S_CONTROLLER are
// bound verbatim; everything else has a CICD_-prefixed env var and a sane
// default.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.BindEnv("websocket_url", "WEBSOCKET_URL")
	v.BindEnv("client_secret", "CLIENT_SECRET")
	v.BindEnv("github_pats", "GITHUB_PATS")
	v.BindEnv("database_path", "DATABASE_PATH")
	v.BindEnv("enable_k8s_controller", "ENABLE_K8S_CONTROLLER")
	v.BindEnv("controller_name", "CICD_CONTROLLER_NAME")
	v.BindEnv("reconcile_requeue", "CICD_RECONCILE_REQUEUE")
	v.BindEnv("controller_workers", "CICD_CONTROLLER_WORKERS")
	v.BindEnv("http_addr", "CICD_HTTP_ADDR")
	v.BindEnv("log.level", "CICD_LOG_LEVEL")
	v.BindEnv("log.format", "CICD_LOG_FORMAT")
	v.BindEnv("log.output", "CICD_LOG_OUTPUT")

	v.SetDefault("database_path", "cicd.db")
	v.SetDefault("controller_name", "cicd-controller")
	v.SetDefault("reconcile_requeue", 5*time.Second)
	v.SetDefault("controller_workers", 2)
	v.SetDefault("http_addr", ":8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.output", "stdout")

	cfg := &Config{}
	cfg.WebsocketURL = v.GetString("websocket_url")
	cfg.ClientSecret = v.GetString("client_secret")
	cfg.GithubPATs = splitNonEmpty(v.GetString("github_pats"), ",")
	cfg.DatabasePath = v.GetString("database_path")
	cfg.EnableK8sController = v.GetBool("enable_k8s_controller")
	cfg.ControllerName = v.GetString("controller_name")
	cfg.ReconcileRequeue = v.GetDuration("reconcile_requeue")
	cfg.ControllerWorkers = v.GetInt("controller_workers")
	cfg.HTTPAddr = v.GetString("http_addr")
	cfg.Log = Log{
		Level:  v.GetString("log.level"),
		Format: v.GetString("log.format"),
		Output: v.GetString("log.output"),
	}

	return cfg, nil
}

func splitNonEmpty(s, sep string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, sep) {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
