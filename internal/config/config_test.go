package config_test

import (
	"testing"

	"github.com/jonesrussell/thoth-discovery/internal/config"
	"github.com/stretchr/testify/require"
)

func validConfig() *config.Config {
	return &config.Config{
		Environment: "development",
		Scheduler: config.SchedulerConfig{
			PollIntervalSeconds: 60,
			WorkerPoolSize:      4,
		},
		Discovery: config.DiscoveryConfig{
			DefaultRelevanceThreshold: 0.7,
		},
		Browser: config.BrowserConfig{
			MaxConcurrentContexts: 5,
		},
		Elasticsearch: config.ElasticsearchConfig{
			Addresses: []string{"https://localhost:9200"},
		},
		SourcesDir: "./sources",
	}
}

func TestConfig_Validate_Valid(t *testing.T) {
	t.Parallel()
	require.NoError(t, validConfig().Validate())
}

func TestConfig_Validate_RejectsOutOfRangeThreshold(t *testing.T) {
	t.Parallel()
	cfg := validConfig()
	cfg.Discovery.DefaultRelevanceThreshold = 1.5
	require.Error(t, cfg.Validate())
}

func TestConfig_Validate_RequiresPollInterval(t *testing.T) {
	t.Parallel()
	cfg := validConfig()
	cfg.Scheduler.PollIntervalSeconds = 0
	require.Error(t, cfg.Validate())
}

func TestConfig_Validate_RequiresSourcesDir(t *testing.T) {
	t.Parallel()
	cfg := validConfig()
	cfg.SourcesDir = ""
	require.Error(t, cfg.Validate())
}

func TestConfig_PollInterval(t *testing.T) {
	t.Parallel()
	cfg := validConfig()
	require.Equal(t, int64(60), cfg.PollInterval().Milliseconds()/1000)
}
