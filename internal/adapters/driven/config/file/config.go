// Package file loads the harvest configuration from a TOML file.
package file

import (
	"errors"
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

const (
	// DefaultOutputDir receives CSV output and checkpoint documents.
	DefaultOutputDir = "output"

	// DefaultSink selects the record sink backend.
	DefaultSink = "csv"

	// DefaultRosterPath is where the roster lives unless configured.
	DefaultRosterPath = "config/roster.json"

	// DefaultJiraWorkers bounds the ticket-comment project fan-out.
	DefaultJiraWorkers = 20
)

// Config is the full harvest configuration.
type Config struct {
	// OutputDir receives CSV files and checkpoint documents.
	OutputDir string `toml:"output_dir"`

	// DataDir holds the SQLite database when the sqlite sink is selected.
	DataDir string `toml:"data_dir"`

	// Sink is "csv" or "sqlite".
	Sink string `toml:"sink"`

	// Roster is the path to the tracked-member roster JSON.
	Roster string `toml:"roster"`

	GitHub GitHub `toml:"github"`
	Jira   Jira   `toml:"jira"`
	Forum  Forum  `toml:"forum"`
}

// GitHub configures the GitHub harvests.
type GitHub struct {
	Token string   `toml:"token"`
	Repos []string `toml:"repos"`
}

// Jira configures the Jira harvests.
type Jira struct {
	BaseURL string `toml:"base_url"`
	User    string `toml:"user"`
	Token   string `toml:"token"`

	// Workers bounds the concurrent projects of a ticket-comment harvest.
	Workers int `toml:"workers"`
}

// Forum configures the Discourse harvests.
type Forum struct {
	BaseURL string `toml:"base_url"`
	APIKey  string `toml:"api_key"`
}

// Load reads and validates the configuration, applying defaults for
// anything unset.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg := &Config{}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.OutputDir == "" {
		c.OutputDir = DefaultOutputDir
	}
	if c.Sink == "" {
		c.Sink = DefaultSink
	}
	if c.Roster == "" {
		c.Roster = DefaultRosterPath
	}
	if c.Jira.Workers <= 0 {
		c.Jira.Workers = DefaultJiraWorkers
	}
}

func (c *Config) validate() error {
	if c.Sink != "csv" && c.Sink != "sqlite" {
		return fmt.Errorf("unknown sink %q (want csv or sqlite)", c.Sink)
	}
	return nil
}

// RequireGitHub checks the settings a GitHub harvest needs.
func (c *Config) RequireGitHub() error {
	if c.GitHub.Token == "" {
		return errors.New("github.token is not set")
	}
	if len(c.GitHub.Repos) == 0 {
		return errors.New("github.repos is empty")
	}
	return nil
}

// RequireJira checks the settings a Jira harvest needs.
func (c *Config) RequireJira() error {
	if c.Jira.BaseURL == "" {
		return errors.New("jira.base_url is not set")
	}
	if c.Jira.User == "" || c.Jira.Token == "" {
		return errors.New("jira.user and jira.token must be set")
	}
	return nil
}

// RequireForum checks the settings a forum harvest needs.
func (c *Config) RequireForum() error {
	if c.Forum.BaseURL == "" {
		return errors.New("forum.base_url is not set")
	}
	if c.Forum.APIKey == "" {
		return errors.New("forum.api_key is not set")
	}
	return nil
}
