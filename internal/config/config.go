// Package config reads and writes mailledger.yaml.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
	_ "time/tzdata" // zone database for hosts without one

	"gopkg.in/yaml.v3"

	"github.com/cleared-dev/mailledger/internal/mail"
)

// FileName is the config file created by init.
const FileName = "mailledger.yaml"

// Mail source kinds.
const (
	SourceDir  = "dir"
	SourceIMAP = "imap"
)

// Config represents mailledger.yaml. Relative paths are resolved against
// the directory holding the file.
type Config struct {
	Ledger   LedgerConfig `yaml:"ledger"`
	Timezone string       `yaml:"timezone"`
	Mail     MailConfig   `yaml:"mail"`
	Git      GitConfig    `yaml:"git"`

	dir string
}

// LedgerConfig locates the data files.
type LedgerConfig struct {
	DataDir        string `yaml:"data_dir"`
	LedgerFile     string `yaml:"ledger_file"`
	CategoriesFile string `yaml:"categories_file"`
}

// MailConfig selects and configures the mail source.
type MailConfig struct {
	Source      string        `yaml:"source"` // "dir" or "imap"
	Dir         string        `yaml:"dir,omitempty"`
	Host        string        `yaml:"host,omitempty"`
	Port        int           `yaml:"port,omitempty"`
	Username    string        `yaml:"username,omitempty"`
	PasswordEnv string        `yaml:"password_env,omitempty"` // name of the env var holding the password
	Folder      string        `yaml:"folder,omitempty"`
	Timeout     time.Duration `yaml:"timeout,omitempty"`
}

// GitConfig controls git integration.
type GitConfig struct {
	AutoCommit  bool   `yaml:"auto_commit"`
	AuthorName  string `yaml:"author_name"`
	AuthorEmail string `yaml:"author_email"`
}

// Load reads a mailledger.yaml file from disk.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	abs, err := filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("resolving config dir: %w", err)
	}
	cfg.dir = abs
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return &cfg, nil
}

// Save writes a Config to a YAML file.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// Default returns a Config for a new project rooted at dir.
func Default(dir string) *Config {
	return &Config{
		Ledger: LedgerConfig{
			DataDir:        "data",
			LedgerFile:     "ledger.csv",
			CategoriesFile: "categories.csv",
		},
		Timezone: "America/Costa_Rica",
		Mail: MailConfig{
			Source:  SourceDir,
			Dir:     "inbox",
			Folder:  "INBOX",
			Port:    993,
			Timeout: 30 * time.Second,
		},
		Git: GitConfig{
			AutoCommit:  true,
			AuthorName:  "mailledger",
			AuthorEmail: "mailledger@localhost",
		},
		dir: dir,
	}
}

// Validate checks required settings.
func (c *Config) Validate() error {
	var errs []error
	if c.Ledger.DataDir == "" {
		errs = append(errs, errors.New("ledger.data_dir is required"))
	}
	if c.Ledger.LedgerFile == "" {
		errs = append(errs, errors.New("ledger.ledger_file is required"))
	}
	if _, err := c.Location(); err != nil {
		errs = append(errs, err)
	}
	switch c.Mail.Source {
	case SourceDir:
		if c.Mail.Dir == "" {
			errs = append(errs, errors.New("mail.dir is required for the dir source"))
		}
	case SourceIMAP:
		if c.Mail.Host == "" || c.Mail.Username == "" {
			errs = append(errs, errors.New("mail.host and mail.username are required for the imap source"))
		}
		if c.Mail.PasswordEnv == "" {
			errs = append(errs, errors.New("mail.password_env is required for the imap source"))
		}
	default:
		errs = append(errs, fmt.Errorf("mail.source must be %q or %q, got %q", SourceDir, SourceIMAP, c.Mail.Source))
	}
	return errors.Join(errs...)
}

// Dir is the directory the config was loaded from.
func (c *Config) Dir() string { return c.dir }

func (c *Config) resolve(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.dir, p)
}

// DataDir is the absolute data directory (ledger, categories, logs).
func (c *Config) DataDir() string { return c.resolve(c.Ledger.DataDir) }

// LedgerPath is the absolute ledger file path.
func (c *Config) LedgerPath() string {
	return filepath.Join(c.DataDir(), c.Ledger.LedgerFile)
}

// CategoriesPath is the absolute merchant→category mappings path.
func (c *Config) CategoriesPath() string {
	name := c.Ledger.CategoriesFile
	if name == "" {
		name = "categories.csv"
	}
	return filepath.Join(c.DataDir(), name)
}

// MailDir is the absolute directory read by the dir mail source.
func (c *Config) MailDir() string { return c.resolve(c.Mail.Dir) }

// Location is the zone bank emails are written in. Empty means UTC.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("loading timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// IMAPConfig builds the IMAP settings, reading the password from the
// environment variable named by mail.password_env.
func (c *Config) IMAPConfig() (mail.IMAPConfig, error) {
	password, ok := os.LookupEnv(c.Mail.PasswordEnv)
	if !ok || password == "" {
		return mail.IMAPConfig{}, fmt.Errorf("environment variable %s is not set", c.Mail.PasswordEnv)
	}
	return mail.IMAPConfig{
		Host:     c.Mail.Host,
		Port:     c.Mail.Port,
		Username: c.Mail.Username,
		Password: password,
		Folder:   c.Mail.Folder,
		Timeout:  c.Mail.Timeout,
	}, nil
}

// Source builds the configured mail source.
func (c *Config) Source() (mail.Source, error) {
	switch c.Mail.Source {
	case SourceIMAP:
		cfg, err := c.IMAPConfig()
		if err != nil {
			return nil, err
		}
		return mail.NewIMAPSource(cfg), nil
	case SourceDir:
		return mail.NewDirSource(c.MailDir()), nil
	default:
		return nil, fmt.Errorf("unknown mail source %q", c.Mail.Source)
	}
}
