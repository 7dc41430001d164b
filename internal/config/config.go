package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

var (
	ErrMissingLDAPURL    = errors.New("ldap.url is required")
	ErrMissingLDAPBind   = errors.New("ldap.bind_dn and ldap.bind_password are required")
	ErrMissingTokens     = errors.New("dropbox file, management and info tokens are required")
	ErrMissingProjects   = errors.New("sync.projects_file is required")
	ErrMissingExceptions = errors.New("sync.exceptions_file is required")
)

type Config struct {
	LDAP     LDAPConfig     `yaml:"ldap"`
	Dropbox  DropboxConfig  `yaml:"dropbox"`
	Identity IdentityConfig `yaml:"identity"`
	Sync     SyncConfig     `yaml:"sync"`
}

type LDAPConfig struct {
	URL          string        `yaml:"url"`
	BindDN       string        `yaml:"bind_dn"`
	BindPassword string        `yaml:"bind_password"`
	BaseDN       string        `yaml:"base_dn"`
	GroupsDN     string        `yaml:"groups_dn"`
	CAFile       string        `yaml:"ca_file"`
	Timeout      time.Duration `yaml:"timeout"`
}

// DropboxConfig carries one bearer token per operation class, matching the
// permission tiers of the remote API, plus the admin account impersonated
// for per-user sharing calls.
type DropboxConfig struct {
	Host            string `yaml:"host"`
	FileToken       string `yaml:"file_token"`
	ManagementToken string `yaml:"management_token"`
	InfoToken       string `yaml:"info_token"`
	AdminID         string `yaml:"admin_id"`
	CAFile          string `yaml:"ca_file"`
}

type IdentityConfig struct {
	Domains        []string `yaml:"domains"`
	FallbackDomain string   `yaml:"fallback_domain"`
}

type SyncConfig struct {
	GroupSuffix    string `yaml:"group_suffix"`
	Licenses       int    `yaml:"licenses"`
	ProjectsFile   string `yaml:"projects_file"`
	ExceptionsFile string `yaml:"exceptions_file"`
	SendWelcome    bool   `yaml:"send_welcome"`
	AccessGroup    string `yaml:"access_group"`
}

func Load(path string) (*Config, error) {
	cfg := defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// ${VAR} references let tokens live in the cron job's environment
	// instead of on disk.
	expanded := os.ExpandEnv(string(data))

	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func defaults() *Config {
	return &Config{
		LDAP: LDAPConfig{
			Timeout: 30 * time.Second,
		},
		Dropbox: DropboxConfig{
			Host: "https://api.dropboxapi.com",
		},
		Identity: IdentityConfig{
			Domains:        []string{"auckland.ac.nz", "aucklanduni.ac.nz"},
			FallbackDomain: "aucklanduni.ac.nz",
		},
		Sync: SyncConfig{
			GroupSuffix: "eresearch",
			SendWelcome: true,
		},
	}
}

func (c *Config) validate() error {
	if c.LDAP.URL == "" {
		return ErrMissingLDAPURL
	}

	if c.LDAP.BindDN == "" || c.LDAP.BindPassword == "" {
		return ErrMissingLDAPBind
	}

	if c.Dropbox.FileToken == "" || c.Dropbox.ManagementToken == "" || c.Dropbox.InfoToken == "" {
		return ErrMissingTokens
	}

	if c.Sync.ProjectsFile == "" {
		return ErrMissingProjects
	}

	if c.Sync.ExceptionsFile == "" {
		return ErrMissingExceptions
	}

	return nil
}
