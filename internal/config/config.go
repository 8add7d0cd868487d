// internal/config/config.go
//
// This package handles configuration and the .portal directory structure.
// Every directory the portal runs from gets a .portal/ folder in its root.

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

const (
	// PortalDir is the name of the directory we create in each project
	PortalDir = ".portal"

	// MemoryStorage keeps all state in process when used as storage.path.
	MemoryStorage = ":memory:"

	defaultDBFile   = "portal.db"
	defaultLogLevel = "info"
)

// Tie-break policies for the portal match.
const (
	TieBreakFirst  = "first"
	TieBreakRandom = "random"
)

// DefaultStages is the classic flow order.
var DefaultStages = []string{"coin-rush", "missions", "portal-match"}

const defaultProjectConfigYAML = `# portal configuration
version: 1

player:
  name: Traveller

# Stages run in this order. Known stages: coin-rush, missions, portal-match.
flow:
  stages:
    - coin-rush
    - missions
    - portal-match

taprush:
  duration: 12s
  tick: 50ms
  targets: 18

match:
  finish_delay: 1.5s
  # first: lowest cell wins ties, random: any equally good cell
  tie_break: first

artifact:
  # Optional image embedded on the certificate, relative to this directory.
  asset_path: assets/token.png

logging:
  level: info

# Leave missions empty to use the built-in set.
missions: []
`

// PlayerConfig names the person going through the portal.
type PlayerConfig struct {
	Name string `yaml:"name"`
}

// FlowConfig orders the stages.
type FlowConfig struct {
	Stages []string `yaml:"stages"`
}

// TapRushConfig tunes the tap challenge.
type TapRushConfig struct {
	Duration    time.Duration `yaml:"duration"`
	Tick        time.Duration `yaml:"tick"`
	Targets     int           `yaml:"targets"`
	FieldWidth  int           `yaml:"field_width,omitempty"`
	FieldHeight int           `yaml:"field_height,omitempty"`
}

// ChoiceConfig is one mission option.
type ChoiceConfig struct {
	Label  string `yaml:"label"`
	Reward int    `yaml:"reward"`
}

// MissionConfig is one branching choice-point.
type MissionConfig struct {
	ID      string         `yaml:"id"`
	Title   string         `yaml:"title"`
	Body    string         `yaml:"body"`
	Choices []ChoiceConfig `yaml:"choices"`
}

// MatchConfig tunes the portal match.
type MatchConfig struct {
	FinishDelay time.Duration `yaml:"finish_delay"`
	TieBreak    string        `yaml:"tie_break"`
}

// ArtifactConfig controls the certificate.
type ArtifactConfig struct {
	AssetPath string `yaml:"asset_path"`
	Title     string `yaml:"title,omitempty"`
	Message   string `yaml:"message,omitempty"`
}

// StorageConfig selects the database file.
type StorageConfig struct {
	Path string `yaml:"path,omitempty"`
}

// LoggingConfig sets the structured log level.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// ProjectConfig models .portal/config.yaml.
type ProjectConfig struct {
	Version  int             `yaml:"version"`
	Player   PlayerConfig    `yaml:"player"`
	Flow     FlowConfig      `yaml:"flow"`
	TapRush  TapRushConfig   `yaml:"taprush"`
	Missions []MissionConfig `yaml:"missions"`
	Match    MatchConfig     `yaml:"match"`
	Artifact ArtifactConfig  `yaml:"artifact"`
	Storage  StorageConfig   `yaml:"storage"`
	Logging  LoggingConfig   `yaml:"logging"`
}

// EnvConfig holds overrides read from the environment.
type EnvConfig struct {
	PlayerName   string   `env:"PORTAL_PLAYER_NAME"`
	DBPath       string   `env:"PORTAL_DB_PATH"`
	LogLevel     string   `env:"PORTAL_LOG_LEVEL"`
	Stages       []string `env:"PORTAL_STAGES" envSeparator:","`
	OTLPEndpoint string   `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OTLPInsecure bool     `env:"OTEL_EXPORTER_OTLP_INSECURE" envDefault:"true"`
}

// Config holds the runtime configuration for the portal.
type Config struct {
	// ProjectDir is the directory where the user ran `portal` from
	ProjectDir string

	// PortalProjectDir is ProjectDir/.portal
	PortalProjectDir string

	Project ProjectConfig
	Env     EnvConfig
}

// InitPortalDir creates the .portal directory structure in the given project directory.
//
// Structure created:
// .portal/
// ├── logs/        <- journey log and structured log
// ├── state/       <- sqlite database
// ├── artifacts/   <- exported certificate
// └── assets/      <- optional certificate token image
func InitPortalDir(projectDir string) error {
	portalDir := filepath.Join(projectDir, PortalDir)
	for _, dir := range []string{"logs", "state", "artifacts", "assets"} {
		if err := os.MkdirAll(filepath.Join(portalDir, dir), 0o755); err != nil {
			return err
		}
	}
	return ensureProjectConfig(filepath.Join(portalDir, "config.yaml"))
}

// NewConfig loads .portal/config.yaml (if present) and applies environment
// overrides on top.
func NewConfig(projectDir string) (*Config, error) {
	cfg := &Config{
		ProjectDir:       projectDir,
		PortalProjectDir: filepath.Join(projectDir, PortalDir),
		Project:          defaultProjectConfig(),
	}
	if err := cfg.loadProjectConfig(); err != nil {
		return nil, err
	}
	if err := env.Parse(&cfg.Env); err != nil {
		return nil, fmt.Errorf("config: parse env: %w", err)
	}
	cfg.applyEnv()
	return cfg, nil
}

// LogsDir returns the path to the logs directory
func (c *Config) LogsDir() string {
	return filepath.Join(c.PortalProjectDir, "logs")
}

// StateDir returns the path to the state directory
func (c *Config) StateDir() string {
	return filepath.Join(c.PortalProjectDir, "state")
}

// ArtifactsDir returns where the certificate copy is exported
func (c *Config) ArtifactsDir() string {
	return filepath.Join(c.PortalProjectDir, "artifacts")
}

// ProjectConfigPath returns the on-disk location for the project config file.
func (c *Config) ProjectConfigPath() string {
	return filepath.Join(c.PortalProjectDir, "config.yaml")
}

// DatabasePath returns the sqlite file, or "" for in-memory storage.
func (c *Config) DatabasePath() string {
	path := c.Project.Storage.Path
	if path == MemoryStorage {
		return ""
	}
	if path == "" {
		return filepath.Join(c.StateDir(), defaultDBFile)
	}
	return path
}

// PlayerName returns the name printed on the certificate.
func (c *Config) PlayerName() string {
	return c.Project.Player.Name
}

// StageIDs returns the configured stage order.
func (c *Config) StageIDs() []string {
	return append([]string(nil), c.Project.Flow.Stages...)
}

// LogLevel returns the structured log level.
func (c *Config) LogLevel() string {
	return c.Project.Logging.Level
}

// AssetPath returns the resolved certificate token path.
func (c *Config) AssetPath() string {
	return c.Project.Artifact.AssetPath
}

// RandomTieBreak reports whether the match picks randomly among equal moves.
func (c *Config) RandomTieBreak() bool {
	return c.Project.Match.TieBreak == TieBreakRandom
}

// TelemetryEndpoint returns the OTLP endpoint, or "" when telemetry is off.
func (c *Config) TelemetryEndpoint() string {
	return strings.TrimSpace(c.Env.OTLPEndpoint)
}

func (c *Config) loadProjectConfig() error {
	path := c.ProjectConfigPath()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			c.Project.normalize(c.PortalProjectDir)
			return nil
		}
		return fmt.Errorf("config: read %s: %w", path, err)
	}

	var parsed ProjectConfig
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}

	parsed.applyDefaults()
	parsed.normalize(c.PortalProjectDir)
	if err := parsed.validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	c.Project = parsed
	return nil
}

func (c *Config) applyEnv() {
	if name := strings.TrimSpace(c.Env.PlayerName); name != "" {
		c.Project.Player.Name = name
	}
	if db := strings.TrimSpace(c.Env.DBPath); db != "" {
		c.Project.Storage.Path = db
	}
	if lvl := normalizeLevel(c.Env.LogLevel); lvl != "" && validLevel(lvl) {
		c.Project.Logging.Level = lvl
	}
	if stages := trimAll(c.Env.Stages); len(stages) > 0 {
		c.Project.Flow.Stages = stages
	}
}

func defaultProjectConfig() ProjectConfig {
	pc := ProjectConfig{}
	pc.applyDefaults()
	return pc
}

func (pc *ProjectConfig) applyDefaults() {
	if pc.Version == 0 {
		pc.Version = 1
	}
	if strings.TrimSpace(pc.Player.Name) == "" {
		pc.Player.Name = "Traveller"
	}
	if len(pc.Flow.Stages) == 0 {
		pc.Flow.Stages = append([]string(nil), DefaultStages...)
	}
	if pc.TapRush.Duration == 0 {
		pc.TapRush.Duration = 12 * time.Second
	}
	if pc.TapRush.Tick == 0 {
		pc.TapRush.Tick = 50 * time.Millisecond
	}
	if pc.TapRush.Targets == 0 {
		pc.TapRush.Targets = 18
	}
	if pc.Match.FinishDelay == 0 {
		pc.Match.FinishDelay = 1500 * time.Millisecond
	}
	if pc.Match.TieBreak == "" {
		pc.Match.TieBreak = TieBreakFirst
	}
	if pc.Logging.Level == "" {
		pc.Logging.Level = defaultLogLevel
	}
}

func (pc *ProjectConfig) normalize(base string) {
	pc.Player.Name = strings.TrimSpace(pc.Player.Name)
	pc.Flow.Stages = trimAll(pc.Flow.Stages)
	for i := range pc.Missions {
		m := &pc.Missions[i]
		m.ID = strings.TrimSpace(m.ID)
		m.Title = strings.TrimSpace(m.Title)
		m.Body = strings.TrimSpace(m.Body)
		for j := range m.Choices {
			m.Choices[j].Label = strings.TrimSpace(m.Choices[j].Label)
		}
	}
	pc.Match.TieBreak = strings.ToLower(strings.TrimSpace(pc.Match.TieBreak))
	pc.Artifact.AssetPath = resolvePath(base, pc.Artifact.AssetPath)
	if pc.Storage.Path != MemoryStorage {
		pc.Storage.Path = resolvePath(base, pc.Storage.Path)
	}
	pc.Logging.Level = normalizeLevel(pc.Logging.Level)
}

func (pc *ProjectConfig) validate() error {
	if pc.Version < 1 {
		return fmt.Errorf("config version must be >= 1")
	}
	if len(pc.Flow.Stages) == 0 {
		return fmt.Errorf("flow.stages needs at least one stage")
	}
	if pc.TapRush.Duration < 0 || pc.TapRush.Tick < 0 || pc.TapRush.Targets < 0 {
		return fmt.Errorf("taprush values cannot be negative")
	}
	if pc.TapRush.FieldWidth < 0 || pc.TapRush.FieldHeight < 0 {
		return fmt.Errorf("taprush field size cannot be negative")
	}
	for i, m := range pc.Missions {
		if err := m.validate(); err != nil {
			return fmt.Errorf("missions[%d]: %w", i, err)
		}
	}
	switch pc.Match.TieBreak {
	case TieBreakFirst, TieBreakRandom:
	default:
		return fmt.Errorf("match.tie_break must be 'first' or 'random'")
	}
	if pc.Match.FinishDelay < 0 {
		return fmt.Errorf("match.finish_delay cannot be negative")
	}
	if !validLevel(pc.Logging.Level) {
		return fmt.Errorf("logging.level must be debug, info, warn or error")
	}
	return nil
}

func (m MissionConfig) validate() error {
	if m.Title == "" {
		return fmt.Errorf("title is required")
	}
	if len(m.Choices) == 0 {
		return fmt.Errorf("at least one choice is required")
	}
	for j, c := range m.Choices {
		if c.Label == "" {
			return fmt.Errorf("choices[%d]: label is required", j)
		}
		if c.Reward < 0 {
			return fmt.Errorf("choices[%d]: reward cannot be negative", j)
		}
	}
	return nil
}

func normalizeLevel(value string) string {
	v := strings.ToLower(strings.TrimSpace(value))
	if v == "warning" {
		return "warn"
	}
	return v
}

func validLevel(level string) bool {
	switch level {
	case "debug", "info", "warn", "error":
		return true
	}
	return false
}

func trimAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func resolvePath(base, candidate string) string {
	trimmed := strings.TrimSpace(candidate)
	if trimmed == "" {
		return ""
	}
	if filepath.IsAbs(trimmed) {
		return filepath.Clean(trimmed)
	}
	return filepath.Clean(filepath.Join(base, trimmed))
}

func ensureProjectConfig(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return os.WriteFile(path, []byte(defaultProjectConfigYAML), 0o644)
}
