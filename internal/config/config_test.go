package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Veraticus/saffron/internal/common"
	"github.com/Veraticus/saffron/internal/engine"
	"github.com/Veraticus/saffron/internal/learning"
	"github.com/Veraticus/saffron/internal/llm"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "sk-env")

	cfg, err := Load(viper.New())
	require.NoError(t, err)

	assert.Equal(t, engine.DefaultConfig(), cfg.Engine)
	assert.Equal(t, learning.DefaultConfig(), cfg.Learning)
	assert.Equal(t, llm.ProviderAnthropic, cfg.LLM.Provider)
	assert.Equal(t, "sk-env", cfg.LLM.APIKey)
	assert.Equal(t, 24*time.Hour, cfg.LLM.CacheTTL)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.True(t, strings.HasSuffix(cfg.Database.Path, filepath.Join("saffron", "saffron.db")))
	assert.False(t, strings.HasPrefix(cfg.Database.Path, "~"))
	assert.True(t, cfg.LLMEnabled())
	assert.True(t, cfg.Embeddings.Enabled)
	assert.Len(t, cfg.SignalOptions(), 1)
}

func TestEmbeddingsDisabled(t *testing.T) {
	v := viper.New()
	v.Set("embeddings.enabled", false)
	v.Set("embeddings.threshold", 5.0)

	cfg, err := Load(v)
	require.NoError(t, err)
	assert.Empty(t, cfg.SignalOptions())
}

func TestLoadFromYAML(t *testing.T) {
	v := viper.New()
	v.SetConfigType("yaml")
	require.NoError(t, v.ReadConfig(strings.NewReader(`
database:
  path: /tmp/test.db
logging:
  level: debug
  format: json
engine:
  hybrid_threshold: 0.8
  concurrency: 8
  llm_timeout: 10s
  oscillation_threshold: 4
llm:
  provider: OpenAI
  api_key: sk-file
  model: gpt-4o-mini
guardrail:
  processors: [stripe, adyen]
learning:
  canary_sample_size: 50
`)))

	cfg, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/test.db", cfg.Database.Path)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.InDelta(t, 0.8, cfg.Engine.HybridThreshold, 1e-9)
	assert.Equal(t, 8, cfg.Engine.Concurrency)
	assert.Equal(t, 10*time.Second, cfg.Engine.LLMTimeout)
	assert.Equal(t, llm.ProviderOpenAI, cfg.LLM.Provider)
	assert.Equal(t, "sk-file", cfg.LLM.APIKey)
	assert.Equal(t, "gpt-4o-mini", cfg.LLM.Model)
	assert.Equal(t, []string{"stripe", "adyen"}, cfg.Guardrail.Processors)
	assert.Equal(t, 50, cfg.Learning.CanarySampleSize)
	assert.Equal(t, 4, cfg.Learning.OscillationThreshold)
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		key     string
		value   any
		wantErr error
	}{
		{"engine.hybrid_threshold", 0.3, common.ErrInvalidConfig},
		{"engine.concurrency", 0, common.ErrInvalidConfig},
		{"logging.level", "verbose", common.ErrInvalidConfig},
		{"logging.format", "xml", common.ErrInvalidConfig},
		{"llm.provider", "cohere", common.ErrInvalidConfig},
		{"llm.temperature", 1.5, common.ErrInvalidConfig},
		{"guardrail.max_corrected_confidence", 0.0, common.ErrInvalidConfig},
		{"learning.accuracy_threshold", 2.0, common.ErrInvalidConfig},
		{"embeddings.threshold", 1.2, common.ErrInvalidConfig},
		{"database.path", "", common.ErrMissingConfig},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			v := viper.New()
			v.Set(tt.key, tt.value)

			cfg, err := Load(v)
			require.ErrorIs(t, err, tt.wantErr)
			assert.Nil(t, cfg)
		})
	}
}

func TestLoadProviderNone(t *testing.T) {
	v := viper.New()
	v.Set("llm.provider", "none")

	cfg, err := Load(v)
	require.NoError(t, err)
	assert.False(t, cfg.LLMEnabled())
	assert.Empty(t, cfg.LLM.APIKey)
}

func TestProviderKeyFromEnv(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "a-key")
	t.Setenv("OPENAI_API_KEY", "o-key")

	assert.Equal(t, "a-key", providerKeyFromEnv(llm.ProviderAnthropic))
	assert.Equal(t, "o-key", providerKeyFromEnv(llm.ProviderOpenAI))
	assert.Empty(t, providerKeyFromEnv(ProviderNone))
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)
	t.Setenv("SAFFRON_TEST_DIR", "/srv/data")

	tests := []struct {
		name string
		path string
		want string
	}{
		{"empty", "", ""},
		{"home only", "~", home},
		{"home relative", "~/db/saffron.db", filepath.Join(home, "db", "saffron.db")},
		{"env var", "$SAFFRON_TEST_DIR/saffron.db", "/srv/data/saffron.db"},
		{"absolute", "/var/lib/saffron.db", "/var/lib/saffron.db"},
		{"tilde in middle", "/tmp/~/x", "/tmp/~/x"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExpandPath(tt.path))
		})
	}
}
