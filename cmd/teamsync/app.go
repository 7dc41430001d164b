package main

import (
	"net/http"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/uoa-eresearch/teamsync/internal/config"
	"github.com/uoa-eresearch/teamsync/internal/directory"
	"github.com/uoa-eresearch/teamsync/internal/identity"
	"github.com/uoa-eresearch/teamsync/internal/sync"
	"github.com/uoa-eresearch/teamsync/pkg/clients/dropbox"
	"github.com/uoa-eresearch/teamsync/pkg/utils/tlsconfig"
)

// app holds the wiring shared by every subcommand: configuration, the root
// logger and one remote client per token class.
type app struct {
	cfg    *config.Config
	logger hclog.Logger
	suite  *dropbox.Suite
}

func newApp(configPath string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	logger := hclog.New(&hclog.LoggerOptions{
		Name:  "teamsync",
		Level: hclog.Info,
	})

	httpClient := &http.Client{Timeout: 5 * time.Minute}

	if cfg.Dropbox.CAFile != "" {
		tlsCfg, err := tlsconfig.New(tlsconfig.WithCA(cfg.Dropbox.CAFile))
		if err != nil {
			return nil, err
		}

		httpClient.Transport = &http.Transport{TLSClientConfig: tlsCfg}
	}

	withClient := dropbox.WithHTTPClient(httpClient)

	// The remote API scopes tokens by operation class, so each concern gets
	// its own client. Sharing calls run as the admin account.
	suite := &dropbox.Suite{
		File:       dropbox.New(cfg.Dropbox.Host, cfg.Dropbox.FileToken, logger.Named("dropbox.file"), withClient),
		Management: dropbox.New(cfg.Dropbox.Host, cfg.Dropbox.ManagementToken, logger.Named("dropbox.management"), withClient),
		Info:       dropbox.New(cfg.Dropbox.Host, cfg.Dropbox.InfoToken, logger.Named("dropbox.info"), withClient),
		Person: dropbox.New(cfg.Dropbox.Host, cfg.Dropbox.FileToken, logger.Named("dropbox.person"),
			withClient, dropbox.WithAdminID(cfg.Dropbox.AdminID)),
	}

	return &app{cfg: cfg, logger: logger, suite: suite}, nil
}

func (a *app) dialDirectory() (*directory.Client, error) {
	dirCfg := directory.Config{
		URL:          a.cfg.LDAP.URL,
		BindDN:       a.cfg.LDAP.BindDN,
		BindPassword: a.cfg.LDAP.BindPassword,
		BaseDN:       a.cfg.LDAP.BaseDN,
		GroupsDN:     a.cfg.LDAP.GroupsDN,
		Timeout:      a.cfg.LDAP.Timeout,
	}

	if a.cfg.LDAP.CAFile != "" {
		tlsCfg, err := tlsconfig.New(tlsconfig.WithCA(a.cfg.LDAP.CAFile))
		if err != nil {
			return nil, err
		}

		dirCfg.TLS = tlsCfg
	}

	return directory.Dial(dirCfg, a.logger.Named("directory"))
}

func (a *app) loadOverrides() (identity.Overrides, error) {
	return identity.LoadOverrides(a.cfg.Sync.ExceptionsFile, time.Now(), a.logger.Named("overrides"))
}

func (a *app) newEngine(dir sync.DirectoryService, overrides identity.Overrides, dryRun bool) *sync.Engine {
	resolver := identity.NewResolver(
		a.cfg.Identity.Domains,
		a.cfg.Identity.FallbackDomain,
		a.logger.Named("resolver"))

	return sync.NewEngine(sync.Params{
		Directory:   dir,
		Team:        a.suite,
		Resolver:    resolver,
		Overrides:   overrides,
		Logger:      a.logger.Named("engine"),
		GroupSuffix: a.cfg.Sync.GroupSuffix,
		Licenses:    a.cfg.Sync.Licenses,
		SendWelcome: a.cfg.Sync.SendWelcome,
		DryRun:      dryRun,
	})
}
