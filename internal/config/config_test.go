package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/banktalk/internal/common"
)

func TestLoad_Defaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load(viper.New())
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "console", cfg.Logging.Format)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, 30*time.Second, cfg.NLP.Timeout)
	assert.Equal(t, 120, cfg.NLP.RequestsPerMinute)
	assert.Equal(t, SourceSandbox, cfg.Data.Source)
	assert.Equal(t, 30*time.Minute, cfg.Transfer.SessionMaxAge)
	assert.Equal(t, "1", cfg.User.ID)
	assert.NotContains(t, cfg.Database.Path, "~")
}

func TestLoad_ConfigFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
logging:
  level: debug
  format: json
nlp:
  base_url: https://nlp.example.com
  timeout: 5s
data:
  source: remote
  base_url: https://bank.example.com
user:
  id: "42"
`), 0o600))

	v := viper.New()
	v.SetConfigFile(path)
	require.NoError(t, v.ReadInConfig())

	cfg, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, "https://nlp.example.com", cfg.NLP.BaseURL)
	assert.Equal(t, 5*time.Second, cfg.NLP.Timeout)
	assert.Equal(t, SourceRemote, cfg.Data.Source)
	assert.Equal(t, "https://bank.example.com", cfg.Data.BaseURL)
	assert.Equal(t, "42", cfg.User.ID)
}

func TestLoad_Invalid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		want error
		set  map[string]any
		name string
	}{
		{name: "bad level", set: map[string]any{"logging.level": "loud"}, want: common.ErrInvalidConfig},
		{name: "bad format", set: map[string]any{"logging.format": "xml"}, want: common.ErrInvalidConfig},
		{name: "bad nlp url", set: map[string]any{"nlp.base_url": "ftp://nlp"}, want: common.ErrInvalidConfig},
		{name: "zero timeout", set: map[string]any{"nlp.timeout": "0s"}, want: common.ErrInvalidConfig},
		{name: "unknown source", set: map[string]any{"data.source": "mainframe"}, want: common.ErrInvalidConfig},
		{name: "remote without url", set: map[string]any{"data.source": "remote", "data.base_url": ""}, want: common.ErrMissingConfig},
		{name: "no user", set: map[string]any{"user.id": " "}, want: common.ErrMissingConfig},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			v := viper.New()
			for k, val := range tt.set {
				v.Set(k, val)
			}
			_, err := Load(v)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestLoad_DirectEnvFallback(t *testing.T) {
	t.Setenv("NLP_BASE_URL", "http://nlp.internal:9000")

	cfg, err := Load(viper.New())
	require.NoError(t, err)
	assert.Equal(t, "http://nlp.internal:9000", cfg.NLP.BaseURL)

	v := viper.New()
	v.Set("nlp.base_url", "http://explicit:8000")
	cfg, err = Load(v)
	require.NoError(t, err)
	assert.Equal(t, "http://explicit:8000", cfg.NLP.BaseURL, "explicit keys win over direct env")
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)
	t.Setenv("BANKTALK_TEST_DIR", "/srv/data")

	tests := []struct {
		in   string
		want string
	}{
		{in: "", want: ""},
		{in: "~", want: home},
		{in: "~/db.sqlite", want: filepath.Join(home, "db.sqlite")},
		{in: "$BANKTALK_TEST_DIR/db.sqlite", want: "/srv/data/db.sqlite"},
		{in: "/abs/path", want: "/abs/path"},
		{in: "/abs//data/../db", want: "/abs/db"},
		{in: "~other/db", want: "~other/db"},
		{in: ":memory:", want: ":memory:"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ExpandPath(tt.in), tt.in)
	}
}
