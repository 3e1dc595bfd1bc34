package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/banktalk/internal/model"
	"github.com/Veraticus/banktalk/internal/resolver"
	"github.com/Veraticus/banktalk/internal/rules"
	"github.com/Veraticus/banktalk/internal/service"
)

type replayClassifier struct{}

func (replayClassifier) ProcessText(_ context.Context, _, text string) (*model.ClassificationResponse, error) {
	switch text {
	case "balance please":
		return &model.ClassificationResponse{ModuleCode: model.ModuleAccounts, SubmoduleCode: "ACC_BALANCE", RawText: text}, nil
	case "gibberish":
		return &model.ClassificationResponse{Error: "could not classify", RawText: text}, nil
	}
	return nil, errors.New("backend unavailable")
}

func (replayClassifier) ProcessSmartText(context.Context, service.SmartRequest) (*model.ClassificationResponse, error) {
	return nil, errors.New("not used")
}

func (replayClassifier) CompleteAction(context.Context, service.CompletionRequest) (*model.ClassificationResponse, error) {
	return nil, errors.New("not used")
}

func subcommand(cmd *cobra.Command, name string) *cobra.Command {
	for _, sub := range cmd.Commands() {
		if sub.Name() == name {
			return sub
		}
	}
	return nil
}

func TestRootCommands(t *testing.T) {
	for _, name := range []string{"serve", "chat", "resolve", "rules", "replay", "sandbox", "version"} {
		assert.NotNil(t, subcommand(rootCmd, name), "missing %s command", name)
	}
	assert.NotNil(t, subcommand(rulesCmd(), "list"))
	assert.NotNil(t, subcommand(rulesCmd(), "show"))
	assert.NotNil(t, subcommand(rulesCmd(), "validate"))
	assert.NotNil(t, subcommand(sandboxCmd(), "migrate"))
	assert.NotNil(t, subcommand(sandboxCmd(), "seed"))

	flag := replayCmd().Flag("concurrency")
	require.NotNil(t, flag)
	assert.Equal(t, "4", flag.DefValue)
	assert.NotNil(t, serveCmd().Flag("addr"))
}

func TestVersionCmd(t *testing.T) {
	var out bytes.Buffer
	cmd := versionCmd()
	cmd.SetOut(&out)
	require.NoError(t, cmd.Execute())
	assert.Equal(t, "banktalk dev\n", out.String())
}

func TestParseOverrides(t *testing.T) {
	t.Parallel()

	tests := []struct {
		want    map[string]any
		name    string
		wantErr string
		pairs   []string
	}{
		{name: "none"},
		{
			name:  "typed values",
			pairs: []string{"title=My accounts", "showBalances=true", "limit=5", `tabs=["a","b"]`},
			want: map[string]any{
				"title":        "My accounts",
				"showBalances": true,
				"limit":        float64(5),
				"tabs":         []any{"a", "b"},
			},
		},
		{
			name:  "empty value",
			pairs: []string{"title="},
			want:  map[string]any{"title": ""},
		},
		{name: "missing equals", pairs: []string{"title"}, wantErr: "expected key=value"},
		{name: "missing key", pairs: []string{"=x"}, wantErr: "expected key=value"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := parseOverrides(tt.pairs)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseUtterances(t *testing.T) {
	t.Parallel()
	data := []byte("# accounts\nbalance please\n\n   show my cards  \n# end\n")
	assert.Equal(t, []string{"balance please", "show my cards"}, parseUtterances(data))
	assert.Empty(t, parseUtterances(nil))
}

func TestReplay(t *testing.T) {
	t.Parallel()

	res := resolver.New(rules.Default())
	utterances := []string{"balance please", "gibberish", "balance please", "timeout"}

	var (
		done int
		mu   sync.Mutex
	)
	results := replay(context.Background(), replayClassifier{}, res, "1", utterances, 2, func() {
		mu.Lock()
		done++
		mu.Unlock()
	})

	require.Len(t, results, 4)
	assert.Equal(t, 4, done)
	for i, text := range utterances {
		assert.Equal(t, text, results[i].text)
	}
	assert.Equal(t, model.ComponentName("AccountsModule"), results[0].resolution.Component)
	assert.Equal(t, model.ComponentError, results[1].resolution.Component)
	require.Error(t, results[3].err)

	summary := formatReplaySummary(results)
	assert.Contains(t, summary, "Replayed 4 utterances")
	assert.Contains(t, summary, "AccountsModule")
	assert.Contains(t, summary, "(classification failed)")

	details := formatReplayDetails(results)
	assert.Contains(t, details, "ACC/ACC_BALANCE")
	assert.Contains(t, details, "error: backend unavailable")
}

func TestReplay_Canceled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	results := replay(ctx, replayClassifier{}, resolver.New(rules.Default()), "1",
		[]string{"balance please", "balance please"}, 1, func() {})

	for _, r := range results {
		assert.ErrorIs(t, r.err, context.Canceled)
	}
}

func TestResolveCmd(t *testing.T) {
	var out bytes.Buffer
	cmd := resolveCmd()
	cmd.SetIn(strings.NewReader(`{"moduleCode":"ACC","submoduleCode":"ACC_BALANCE","entities":{}}`))
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"-", "--json", "--set", "title=Balances"})

	require.NoError(t, cmd.ExecuteContext(context.Background()))
	assert.Contains(t, out.String(), "AccountsModule")
	assert.Contains(t, out.String(), "Balances")
}

func TestResolveCmd_InvalidJSON(t *testing.T) {
	cmd := resolveCmd()
	cmd.SetIn(strings.NewReader(`{not json`))
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"-"})

	err := cmd.ExecuteContext(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid classification response")
}

func TestRulesValidateCmd(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	valid := filepath.Join(dir, "valid.yaml")
	require.NoError(t, os.WriteFile(valid, []byte(`version: "7"
modules:
  ACC:
    ACC_BALANCE:
      action: READ
      strategies:
        default:
          component: AccountsModule
`), 0o600))
	invalid := filepath.Join(dir, "invalid.yaml")
	require.NoError(t, os.WriteFile(invalid, []byte(`modules:
  ACC:
    ACC_BALANCE:
      action: READ
      strategies:
        complete:
          component: AccountsModule
`), 0o600))

	var out bytes.Buffer
	cmd := rulesValidateCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{valid})
	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "version 7, 1 submodules")

	out.Reset()
	cmd = rulesValidateCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{invalid})
	err := cmd.Execute()
	require.ErrorIs(t, err, rules.ErrInvalidTable)
	assert.Contains(t, out.String(), "no default strategy")
}

func TestReadInput(t *testing.T) {
	t.Parallel()

	data, err := readInput(strings.NewReader("from stdin"), "-")
	require.NoError(t, err)
	assert.Equal(t, "from stdin", string(data))

	_, err = readInput(nil, filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
}
