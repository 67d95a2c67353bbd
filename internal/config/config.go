// internal/config/config.go
//
// This package handles configuration and the .conclave directory structure.
// Every project that uses conclave gets a .conclave/ folder created in its root.

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// ConclaveDir is the name of the directory we create in each project.
	ConclaveDir = ".conclave"

	defaultTimeoutSeconds = 120
	defaultServerPort     = 8787
)

// SelfRankingPolicy controls how a backend's vote for its own response is
// treated during aggregation.
type SelfRankingPolicy string

const (
	// SelfRankingCounted scores a ranker's own label like any other.
	SelfRankingCounted SelfRankingPolicy = "counted"
	// SelfRankingDiscounted strips a ranker's own label from its ballot
	// before scoring, so self-preference contributes nothing.
	SelfRankingDiscounted SelfRankingPolicy = "discounted"
)

const defaultProjectConfigYAML = `# conclave project configuration
version: 1

# Council members. Each entry is one model endpoint that answers, ranks, and
# may chair the final synthesis. api_key_env names the environment variable
# holding the bearer token for that endpoint.
council:
  - id: gpt
    model: openai/gpt-5.1
    base_url: https://openrouter.ai/api/v1
    api_key_env: OPENROUTER_API_KEY
  - id: claude
    model: anthropic/claude-sonnet-4.5
    base_url: https://openrouter.ai/api/v1
    api_key_env: OPENROUTER_API_KEY
  - id: gemini
    model: google/gemini-3-pro-preview
    base_url: https://openrouter.ai/api/v1
    api_key_env: OPENROUTER_API_KEY
  - id: grok
    model: x-ai/grok-4
    base_url: https://openrouter.ai/api/v1
    api_key_env: OPENROUTER_API_KEY

# Backend that writes the final synthesized answer.
chairman: gemini

# Per-call timeout in seconds. Individual council entries may override it
# with their own timeout_seconds.
default_timeout_seconds: 120

# Label alphabet used to anonymize responses during cross-ranking. Must hold
# at least as many tokens as there are council members.
labels:
  - Response A
  - Response B
  - Response C
  - Response D
  - Response E
  - Response F
  - Response G
  - Response H

# How a backend's vote for its own response is treated: counted | discounted.
self_ranking: counted

server:
  enabled: false
  host: 127.0.0.1
  port: 8787
`

// BackendRef declares one council member inside .conclave/config.yaml.
type BackendRef struct {
	ID             string `yaml:"id"`
	Model          string `yaml:"model"`
	BaseURL        string `yaml:"base_url"`
	APIKeyEnv      string `yaml:"api_key_env,omitempty"`
	TimeoutSeconds int    `yaml:"timeout_seconds,omitempty"`
}

// ServerConfig captures the HTTP API preferences.
type ServerConfig struct {
	Enabled *bool  `yaml:"enabled,omitempty"`
	Host    string `yaml:"host,omitempty"`
	Port    int    `yaml:"port,omitempty"`
}

// ProjectConfig models .conclave/config.yaml.
type ProjectConfig struct {
	Version               int               `yaml:"version"`
	Council               []BackendRef      `yaml:"council"`
	Chairman              string            `yaml:"chairman"`
	DefaultTimeoutSeconds int               `yaml:"default_timeout_seconds,omitempty"`
	Labels                []string          `yaml:"labels,omitempty"`
	SelfRanking           SelfRankingPolicy `yaml:"self_ranking,omitempty"`
	Server                ServerConfig      `yaml:"server,omitempty"`
}

// Config holds the runtime configuration for conclave.
type Config struct {
	// ProjectDir is the directory where the user ran `conclave` from.
	ProjectDir string

	// ConclaveProjectDir is ProjectDir/.conclave.
	ConclaveProjectDir string

	Project ProjectConfig
}

// InitConclaveDir creates the .conclave directory structure in the given
// project directory. This is called on every startup.
//
// Structure created:
// .conclave/
// ├── logs/           <- Engine and deliberation logs
// ├── conversations/  <- Persisted conversations with their turns
// └── prompts/        <- Ranking and synthesis prompt templates
func InitConclaveDir(projectDir string) error {
	conclaveDir := filepath.Join(projectDir, ConclaveDir)

	dirs := []string{
		filepath.Join(conclaveDir, "logs"),
		filepath.Join(conclaveDir, "conversations"),
		filepath.Join(conclaveDir, "prompts"),
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}

	if err := ensureFile(filepath.Join(conclaveDir, "config.yaml"), defaultProjectConfigYAML); err != nil {
		return err
	}
	if err := ensureFile(filepath.Join(conclaveDir, "prompts", "ranking.tmpl"), DefaultRankingTemplate); err != nil {
		return err
	}
	if err := ensureFile(filepath.Join(conclaveDir, "prompts", "synthesis.tmpl"), DefaultSynthesisTemplate); err != nil {
		return err
	}
	return nil
}

// NewConfig creates a Config populated from .conclave/config.yaml, falling
// back to defaults when the file is absent.
func NewConfig(projectDir string) (*Config, error) {
	cfg := &Config{
		ProjectDir:         projectDir,
		ConclaveProjectDir: filepath.Join(projectDir, ConclaveDir),
		Project:            defaultProjectConfig(),
	}
	if err := cfg.loadProjectConfig(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LogsDir returns the path to the logs directory.
func (c *Config) LogsDir() string {
	return filepath.Join(c.ConclaveProjectDir, "logs")
}

// ConversationsDir returns the directory holding persisted conversations.
func (c *Config) ConversationsDir() string {
	return filepath.Join(c.ConclaveProjectDir, "conversations")
}

// PromptsDir returns the directory holding prompt templates.
func (c *Config) PromptsDir() string {
	return filepath.Join(c.ConclaveProjectDir, "prompts")
}

// ProjectConfigPath returns the on-disk location for the project config file.
func (c *Config) ProjectConfigPath() string {
	return filepath.Join(c.ConclaveProjectDir, "config.yaml")
}

// Council returns the configured council members in declaration order.
func (c *Config) Council() []BackendRef {
	return c.Project.Council
}

// CouncilIDs returns the council member ids in declaration order.
func (c *Config) CouncilIDs() []string {
	ids := make([]string, len(c.Project.Council))
	for i, ref := range c.Project.Council {
		ids[i] = ref.ID
	}
	return ids
}

// Chairman returns the id of the backend that synthesizes the final answer.
func (c *Config) Chairman() string {
	return c.Project.Chairman
}

// DefaultTimeout returns the per-call timeout applied when a council member
// declares no override.
func (c *Config) DefaultTimeout() time.Duration {
	return time.Duration(c.Project.DefaultTimeoutSeconds) * time.Second
}

// Timeouts returns the per-backend timeout overrides.
func (c *Config) Timeouts() map[string]time.Duration {
	out := make(map[string]time.Duration)
	for _, ref := range c.Project.Council {
		if ref.TimeoutSeconds > 0 {
			out[ref.ID] = time.Duration(ref.TimeoutSeconds) * time.Second
		}
	}
	return out
}

// LabelAlphabet returns the ordered anonymization label tokens.
func (c *Config) LabelAlphabet() []string {
	return c.Project.Labels
}

// SelfRanking returns the configured self-ranking policy.
func (c *Config) SelfRanking() SelfRankingPolicy {
	return c.Project.SelfRanking
}

func (c *Config) loadProjectConfig() error {
	path := c.ProjectConfigPath()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("config: read %s: %w", path, err)
	}

	var parsed ProjectConfig
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}

	parsed.applyDefaults()
	parsed.normalize()
	if err := parsed.validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	c.Project = parsed
	return nil
}

func defaultProjectConfig() ProjectConfig {
	var parsed ProjectConfig
	// The embedded default yaml is the single source of truth for defaults.
	if err := yaml.Unmarshal([]byte(defaultProjectConfigYAML), &parsed); err != nil {
		panic(fmt.Sprintf("config: default yaml is invalid: %v", err))
	}
	parsed.applyDefaults()
	parsed.normalize()
	return parsed
}

func (pc *ProjectConfig) applyDefaults() {
	if pc.Version == 0 {
		pc.Version = 1
	}
	if pc.DefaultTimeoutSeconds <= 0 {
		pc.DefaultTimeoutSeconds = defaultTimeoutSeconds
	}
	if len(pc.Labels) == 0 {
		pc.Labels = defaultLabels()
	}
	if pc.SelfRanking == "" {
		pc.SelfRanking = SelfRankingCounted
	}
	if pc.Server.Port == 0 {
		pc.Server.Port = defaultServerPort
	}
}

func (pc *ProjectConfig) normalize() {
	for i := range pc.Council {
		pc.Council[i].normalize()
	}
	pc.Chairman = strings.TrimSpace(pc.Chairman)
	if pc.Chairman == "" && len(pc.Council) > 0 {
		pc.Chairman = pc.Council[0].ID
	}
	labels := make([]string, 0, len(pc.Labels))
	for _, label := range pc.Labels {
		if trimmed := strings.TrimSpace(label); trimmed != "" {
			labels = append(labels, trimmed)
		}
	}
	pc.Labels = labels
	pc.SelfRanking = SelfRankingPolicy(strings.ToLower(strings.TrimSpace(string(pc.SelfRanking))))
	pc.Server.Host = strings.TrimSpace(pc.Server.Host)
}

func (pc *ProjectConfig) validate() error {
	if pc.Version < 1 {
		return fmt.Errorf("config version must be >= 1")
	}
	if len(pc.Council) == 0 {
		return fmt.Errorf("at least one council member is required")
	}
	seen := map[string]bool{}
	for i := range pc.Council {
		if err := pc.Council[i].validate(); err != nil {
			return fmt.Errorf("council[%d]: %w", i, err)
		}
		if seen[pc.Council[i].ID] {
			return fmt.Errorf("council[%d]: duplicate id %q", i, pc.Council[i].ID)
		}
		seen[pc.Council[i].ID] = true
	}
	if !seen[pc.Chairman] {
		return fmt.Errorf("chairman %q is not a council member", pc.Chairman)
	}
	if len(pc.Labels) < len(pc.Council) {
		return fmt.Errorf("label alphabet has %d tokens for %d council members", len(pc.Labels), len(pc.Council))
	}
	labelSeen := map[string]bool{}
	for _, label := range pc.Labels {
		if labelSeen[label] {
			return fmt.Errorf("duplicate label %q", label)
		}
		labelSeen[label] = true
	}
	switch pc.SelfRanking {
	case SelfRankingCounted, SelfRankingDiscounted:
	default:
		return fmt.Errorf("self_ranking must be %q or %q", SelfRankingCounted, SelfRankingDiscounted)
	}
	return nil
}

func (ref *BackendRef) normalize() {
	ref.ID = strings.TrimSpace(ref.ID)
	ref.Model = strings.TrimSpace(ref.Model)
	ref.BaseURL = strings.TrimRight(strings.TrimSpace(ref.BaseURL), "/")
	ref.APIKeyEnv = strings.TrimSpace(ref.APIKeyEnv)
}

func (ref BackendRef) validate() error {
	if ref.ID == "" {
		return fmt.Errorf("id is required")
	}
	if ref.Model == "" {
		return fmt.Errorf("model is required for %s", ref.ID)
	}
	if ref.BaseURL == "" {
		return fmt.Errorf("base_url is required for %s", ref.ID)
	}
	if ref.TimeoutSeconds < 0 {
		return fmt.Errorf("timeout_seconds must be >= 0 for %s", ref.ID)
	}
	return nil
}

func defaultLabels() []string {
	labels := make([]string, 0, 8)
	for ch := 'A'; ch <= 'H'; ch++ {
		labels = append(labels, "Response "+string(ch))
	}
	return labels
}

func ensureFile(path, content string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return os.WriteFile(path, []byte(content), 0644)
}
