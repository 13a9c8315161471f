package testsupport

import (
	"path/filepath"
	"testing"

	"docflow/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.APIBind = "127.0.0.1:0"

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithSLAPolicy overrides one stage's thresholds on the test config.
func WithSLAPolicy(stage string, policy config.SLAPolicy) ConfigOption {
	return func(b *configBuilder) {
		if b.cfg.SLA == nil {
			b.cfg.SLA = make(map[string]config.SLAPolicy)
		}
		b.cfg.SLA[stage] = policy
	}
}

// WithDirectory seeds the static worker directory on the test config.
func WithDirectory(entries ...config.DirectoryEntry) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Directory = entries
	}
}

// WithWebhookURL points the escalation webhook channel at the given URL.
func WithWebhookURL(url string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Notifications.WebhookURL = url
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}
