package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestInitConclaveDirCreatesStructure(t *testing.T) {
	dir := t.TempDir()
	if err := InitConclaveDir(dir); err != nil {
		t.Fatalf("init: %v", err)
	}
	for _, rel := range []string{"logs", "conversations", "prompts"} {
		info, err := os.Stat(filepath.Join(dir, ConclaveDir, rel))
		if err != nil || !info.IsDir() {
			t.Fatalf("expected directory %s: %v", rel, err)
		}
	}
	for _, rel := range []string{"config.yaml", "prompts/ranking.tmpl", "prompts/synthesis.tmpl"} {
		if _, err := os.Stat(filepath.Join(dir, ConclaveDir, rel)); err != nil {
			t.Fatalf("expected file %s: %v", rel, err)
		}
	}
}

func TestInitConclaveDirPreservesExistingConfig(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, ConclaveDir), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	path := filepath.Join(dir, ConclaveDir, "config.yaml")
	if err := os.WriteFile(path, []byte("version: 1\n"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := InitConclaveDir(dir); err != nil {
		t.Fatalf("init: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != "version: 1\n" {
		t.Fatalf("init overwrote an existing config: %q", data)
	}
}

func TestNewConfigDefaultsWhenFileAbsent(t *testing.T) {
	cfg, err := NewConfig(t.TempDir())
	if err != nil {
		t.Fatalf("new config: %v", err)
	}
	if len(cfg.Council()) != 4 {
		t.Fatalf("expected the 4 default council members, got %d", len(cfg.Council()))
	}
	if cfg.Chairman() != "gemini" {
		t.Fatalf("unexpected default chairman %q", cfg.Chairman())
	}
	if cfg.DefaultTimeout() != 120*time.Second {
		t.Fatalf("unexpected default timeout %v", cfg.DefaultTimeout())
	}
	if len(cfg.LabelAlphabet()) != 8 {
		t.Fatalf("expected 8 default labels, got %v", cfg.LabelAlphabet())
	}
	if cfg.SelfRanking() != SelfRankingCounted {
		t.Fatalf("unexpected default self-ranking %q", cfg.SelfRanking())
	}
}

func writeProjectConfig(t *testing.T, dir, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Join(dir, ConclaveDir), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, ConclaveDir, "config.yaml"), []byte(content), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestNewConfigParsesProjectFile(t *testing.T) {
	dir := t.TempDir()
	writeProjectConfig(t, dir, `
version: 1
council:
  - id: alpha
    model: alpha-model
    base_url: https://alpha.example/v1/
    api_key_env: ALPHA_KEY
    timeout_seconds: 30
  - id: beta
    model: beta-model
    base_url: https://beta.example/v1
chairman: beta
labels: [L1, L2, L3]
self_ranking: Discounted
`)
	cfg, err := NewConfig(dir)
	if err != nil {
		t.Fatalf("new config: %v", err)
	}
	if got := cfg.CouncilIDs(); len(got) != 2 || got[0] != "alpha" || got[1] != "beta" {
		t.Fatalf("unexpected council ids %v", got)
	}
	// Trailing slashes are stripped so URL joins stay predictable.
	if cfg.Council()[0].BaseURL != "https://alpha.example/v1" {
		t.Fatalf("base url not normalized: %q", cfg.Council()[0].BaseURL)
	}
	if cfg.Chairman() != "beta" {
		t.Fatalf("unexpected chairman %q", cfg.Chairman())
	}
	timeouts := cfg.Timeouts()
	if timeouts["alpha"] != 30*time.Second {
		t.Fatalf("per-backend timeout not read: %v", timeouts)
	}
	if _, ok := timeouts["beta"]; ok {
		t.Fatalf("beta declared no override: %v", timeouts)
	}
	if cfg.DefaultTimeout() != 120*time.Second {
		t.Fatalf("default timeout should backfill: %v", cfg.DefaultTimeout())
	}
	if cfg.SelfRanking() != SelfRankingDiscounted {
		t.Fatalf("self_ranking should normalize case: %q", cfg.SelfRanking())
	}
}

func TestNewConfigValidation(t *testing.T) {
	cases := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "chairman outside council",
			yaml: "version: 1\ncouncil:\n  - {id: a, model: m, base_url: u}\nchairman: ghost\n",
			want: "not a council member",
		},
		{
			name: "duplicate ids",
			yaml: "version: 1\ncouncil:\n  - {id: a, model: m, base_url: u}\n  - {id: a, model: m, base_url: u}\n",
			want: "duplicate id",
		},
		{
			name: "alphabet smaller than council",
			yaml: "version: 1\ncouncil:\n  - {id: a, model: m, base_url: u}\n  - {id: b, model: m, base_url: u}\nchairman: a\nlabels: [only-one]\n",
			want: "label alphabet",
		},
		{
			name: "unknown self_ranking",
			yaml: "version: 1\ncouncil:\n  - {id: a, model: m, base_url: u}\nchairman: a\nself_ranking: sometimes\n",
			want: "self_ranking",
		},
		{
			name: "member missing model",
			yaml: "version: 1\ncouncil:\n  - {id: a, base_url: u}\nchairman: a\n",
			want: "model is required",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			dir := t.TempDir()
			writeProjectConfig(t, dir, tc.yaml)
			_, err := NewConfig(dir)
			if err == nil {
				t.Fatalf("expected error containing %q", tc.want)
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}

func TestNewConfigFirstMemberChairsByDefault(t *testing.T) {
	dir := t.TempDir()
	writeProjectConfig(t, dir, "version: 1\ncouncil:\n  - {id: solo, model: m, base_url: u}\n")
	cfg, err := NewConfig(dir)
	if err != nil {
		t.Fatalf("new config: %v", err)
	}
	if cfg.Chairman() != "solo" {
		t.Fatalf("expected first member to chair, got %q", cfg.Chairman())
	}
}
