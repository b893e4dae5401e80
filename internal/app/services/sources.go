package services

import (
	"context"
	"errors"
	"fmt"
	"os"

	"golang.org/x/sync/errgroup"

	"github.com/thushan/llamatap/internal/adapter/registry"
	"github.com/thushan/llamatap/internal/adapter/tlspolicy"
	"github.com/thushan/llamatap/internal/config"
	"github.com/thushan/llamatap/internal/core/domain"
	"github.com/thushan/llamatap/internal/logger"
)

// Sources is what the two configuration files resolve to
type Sources struct {
	Providers domain.ProvidersConfig
	Certs     *tlspolicy.CertTable
}

// LoadSources reads the providers and certs files in parallel. A missing certs file
// is an empty trust table; a missing or broken providers file is an error.
func LoadSources(ctx context.Context, cfg config.ProvidersConfig, log *logger.StyledLogger) (*Sources, error) {
	out := &Sources{Certs: tlspolicy.EmptyTable()}

	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		providers, err := registry.LoadProvidersFile(cfg.ProvidersFile)
		if err != nil {
			return err
		}
		out.Providers = providers
		return nil
	})
	g.Go(func() error {
		table, err := loadCertTable(cfg.CertsFile, log)
		if err != nil {
			return err
		}
		out.Certs = table
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func loadCertTable(path string, log *logger.StyledLogger) (*tlspolicy.CertTable, error) {
	if path == "" {
		return tlspolicy.EmptyTable(), nil
	}
	configs, err := tlspolicy.LoadCertsFile(path)
	if errors.Is(err, os.ErrNotExist) {
		log.Debug("No certs file, every https upstream skips verification", "path", path)
		return tlspolicy.EmptyTable(), nil
	}
	if err != nil {
		return nil, err
	}
	return tlspolicy.BuildCertTable(configs, os.ReadFile, log), nil
}

// SourcesService owns the first load and every later reload of both files
type SourcesService struct {
	registry *registry.Registry
	policy   *tlspolicy.Policy
	logger   *logger.StyledLogger
	config   config.ProvidersConfig
}

func NewSourcesService(cfg config.ProvidersConfig, reg *registry.Registry, policy *tlspolicy.Policy, log *logger.StyledLogger) *SourcesService {
	return &SourcesService{
		config:   cfg,
		registry: reg,
		policy:   policy,
		logger:   log,
	}
}

func (s *SourcesService) Name() string           { return "sources" }
func (s *SourcesService) Dependencies() []string { return nil }

// Start fails when the registry cannot be built, there is nothing to serve without it
func (s *SourcesService) Start(ctx context.Context) error {
	src, err := LoadSources(ctx, s.config, s.logger)
	if err != nil {
		return err
	}
	if err := s.registry.Load(src.Providers); err != nil {
		return fmt.Errorf("failed to build model registry from %s: %w", s.config.ProvidersFile, err)
	}
	s.policy.Swap(src.Certs)
	s.logTrust(src.Certs)
	return nil
}

func (s *SourcesService) Stop(context.Context) error {
	s.policy.Close()
	return nil
}

// ReloadProviders keeps the active table when the file no longer parses
func (s *SourcesService) ReloadProviders() error {
	raw, err := registry.LoadProvidersFile(s.config.ProvidersFile)
	if err != nil {
		return fmt.Errorf("keeping previous model registry: %w", err)
	}
	return s.registry.Reload(raw)
}

func (s *SourcesService) ReloadCerts() error {
	table, err := loadCertTable(s.config.CertsFile, s.logger)
	if err != nil {
		return fmt.Errorf("keeping previous trust table: %w", err)
	}
	s.policy.Swap(table)
	s.logTrust(table)
	return nil
}

func (s *SourcesService) logTrust(table *tlspolicy.CertTable) {
	for _, entry := range table.Entries() {
		s.logger.InfoTrust(entry.Hostname, entry.Pinned(), "cert_path", entry.CertPath)
	}
}
