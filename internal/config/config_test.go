package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func newTestConfig(t *testing.T) *Config {
	t.Helper()
	projectDir := t.TempDir()
	portalDir := filepath.Join(projectDir, PortalDir)
	if err := os.MkdirAll(portalDir, 0o755); err != nil {
		t.Fatal(err)
	}
	return &Config{ProjectDir: projectDir, PortalProjectDir: portalDir, Project: defaultProjectConfig()}
}

func writeConfig(t *testing.T, c *Config, body string) {
	t.Helper()
	if err := os.WriteFile(c.ProjectConfigPath(), []byte(strings.TrimSpace(body)), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadProjectConfigDefaultsWhenMissing(t *testing.T) {
	c := newTestConfig(t)
	if err := c.loadProjectConfig(); err != nil {
		t.Fatalf("loadProjectConfig returned error: %v", err)
	}
	if c.Project.Version != 1 {
		t.Fatalf("expected default version == 1, got %d", c.Project.Version)
	}
	if got := strings.Join(c.StageIDs(), ","); got != "coin-rush,missions,portal-match" {
		t.Fatalf("unexpected default stages %q", got)
	}
	if c.DatabasePath() != filepath.Join(c.StateDir(), "portal.db") {
		t.Fatalf("unexpected database path %s", c.DatabasePath())
	}
	if c.RandomTieBreak() {
		t.Fatalf("tie break should default to first")
	}
}

func TestLoadProjectConfigParsesYaml(t *testing.T) {
	c := newTestConfig(t)
	writeConfig(t, c, `
version: 1
player:
  name: "  Mira "
flow:
  stages: [missions, portal-match]
taprush:
  duration: 5s
  tick: 20ms
  targets: 6
missions:
  - id: oath
    title: The Oath
    body: Swear it.
    choices:
      - label: I swear
        reward: 4
match:
  finish_delay: 250ms
  tie_break: Random
artifact:
  asset_path: assets/me.png
  title: Friendship Pass
storage:
  path: ":memory:"
logging:
  level: WARNING
`)
	if err := c.loadProjectConfig(); err != nil {
		t.Fatalf("loadProjectConfig returned error: %v", err)
	}
	if c.PlayerName() != "Mira" {
		t.Fatalf("player name not trimmed: %q", c.PlayerName())
	}
	if got := strings.Join(c.StageIDs(), ","); got != "missions,portal-match" {
		t.Fatalf("wrong stages %q", got)
	}
	if c.Project.TapRush.Duration != 5*time.Second || c.Project.TapRush.Tick != 20*time.Millisecond {
		t.Fatalf("durations not parsed: %+v", c.Project.TapRush)
	}
	if len(c.Project.Missions) != 1 || c.Project.Missions[0].Choices[0].Reward != 4 {
		t.Fatalf("missions not parsed: %+v", c.Project.Missions)
	}
	if !c.RandomTieBreak() || c.Project.Match.FinishDelay != 250*time.Millisecond {
		t.Fatalf("match config not parsed: %+v", c.Project.Match)
	}
	if !strings.HasPrefix(c.AssetPath(), c.PortalProjectDir) {
		t.Fatalf("expected asset path resolved under .portal, got %s", c.AssetPath())
	}
	if c.DatabasePath() != "" {
		t.Fatalf("memory storage should have no database path, got %s", c.DatabasePath())
	}
	if c.LogLevel() != "warn" {
		t.Fatalf("expected warn level, got %s", c.LogLevel())
	}
}

func TestLoadProjectConfigValidation(t *testing.T) {
	cases := map[string]string{
		"negative reward": `
missions:
  - title: Greedy
    choices:
      - label: take
        reward: -1
`,
		"bad tie break": `
match:
  tie_break: coin-flip
`,
		"bad level": `
logging:
  level: loud
`,
		"no choices": `
missions:
  - title: Empty
`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			c := newTestConfig(t)
			writeConfig(t, c, body)
			if err := c.loadProjectConfig(); err == nil {
				t.Fatalf("expected validation error but got none")
			}
		})
	}
}

func TestNewConfigAppliesEnvOverrides(t *testing.T) {
	projectDir := t.TempDir()
	if err := InitPortalDir(projectDir); err != nil {
		t.Fatalf("InitPortalDir: %v", err)
	}
	t.Setenv("PORTAL_PLAYER_NAME", "Env Player")
	t.Setenv("PORTAL_DB_PATH", filepath.Join(projectDir, "elsewhere.db"))
	t.Setenv("PORTAL_LOG_LEVEL", "debug")
	t.Setenv("PORTAL_STAGES", "portal-match, coin-rush")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4318")

	c, err := NewConfig(projectDir)
	if err != nil {
		t.Fatalf("NewConfig: %v", err)
	}
	if c.PlayerName() != "Env Player" {
		t.Fatalf("env player name ignored: %q", c.PlayerName())
	}
	if c.DatabasePath() != filepath.Join(projectDir, "elsewhere.db") {
		t.Fatalf("env db path ignored: %s", c.DatabasePath())
	}
	if c.LogLevel() != "debug" {
		t.Fatalf("env log level ignored: %s", c.LogLevel())
	}
	if got := strings.Join(c.StageIDs(), ","); got != "portal-match,coin-rush" {
		t.Fatalf("env stages ignored: %q", got)
	}
	if c.TelemetryEndpoint() != "localhost:4318" {
		t.Fatalf("otlp endpoint ignored: %q", c.TelemetryEndpoint())
	}
}

func TestInitPortalDirWritesDefaultConfigOnce(t *testing.T) {
	projectDir := t.TempDir()
	if err := InitPortalDir(projectDir); err != nil {
		t.Fatalf("InitPortalDir: %v", err)
	}
	for _, dir := range []string{"logs", "state", "artifacts", "assets"} {
		if info, err := os.Stat(filepath.Join(projectDir, PortalDir, dir)); err != nil || !info.IsDir() {
			t.Fatalf("expected %s dir: %v", dir, err)
		}
	}
	path := filepath.Join(projectDir, PortalDir, "config.yaml")
	if err := os.WriteFile(path, []byte("version: 2\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := InitPortalDir(projectDir); err != nil {
		t.Fatalf("second InitPortalDir: %v", err)
	}
	data, _ := os.ReadFile(path)
	if string(data) != "version: 2\n" {
		t.Fatalf("existing config was overwritten: %q", data)
	}

	c, err := NewConfig(projectDir)
	if err != nil {
		t.Fatalf("NewConfig: %v", err)
	}
	if c.Project.Version != 2 {
		t.Fatalf("expected version 2, got %d", c.Project.Version)
	}
}

func TestDefaultConfigYAMLIsValid(t *testing.T) {
	c := newTestConfig(t)
	writeConfig(t, c, defaultProjectConfigYAML)
	if err := c.loadProjectConfig(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if c.Project.Match.FinishDelay != 1500*time.Millisecond {
		t.Fatalf("unexpected finish delay %s", c.Project.Match.FinishDelay)
	}
}
