package services

import (
	"context"

	"github.com/thushan/llamatap/internal/adapter/registry"
	"github.com/thushan/llamatap/internal/config"
	"github.com/thushan/llamatap/internal/logger"
)

// WatcherService reloads providers and certs when their files change on disk
type WatcherService struct {
	sources *SourcesService
	watcher *registry.Watcher
	cancel  context.CancelFunc
	done    chan struct{}
	logger  *logger.StyledLogger
	config  config.ProvidersConfig
}

func NewWatcherService(cfg config.ProvidersConfig, sources *SourcesService, log *logger.StyledLogger) *WatcherService {
	return &WatcherService{
		config:  cfg,
		sources: sources,
		logger:  log,
	}
}

func (s *WatcherService) Name() string           { return "watcher" }
func (s *WatcherService) Dependencies() []string { return []string{"sources"} }

func (s *WatcherService) Start(ctx context.Context) error {
	if !s.config.Watch {
		s.logger.Debug("Config file watching disabled")
		return nil
	}

	w, err := registry.NewWatcher(s.logger, registry.DefaultDebounce)
	if err != nil {
		return err
	}
	if err := w.Add(s.config.ProvidersFile, s.sources.ReloadProviders); err != nil {
		_ = w.Close()
		return err
	}
	if s.config.CertsFile != "" {
		if err := w.Add(s.config.CertsFile, s.sources.ReloadCerts); err != nil {
			_ = w.Close()
			return err
		}
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.watcher, s.cancel, s.done = w, cancel, make(chan struct{})
	go func() {
		defer close(s.done)
		w.Run(runCtx)
	}()

	s.logger.Info("Watching config files for changes", "providers", s.config.ProvidersFile, "certs", s.config.CertsFile)
	return nil
}

func (s *WatcherService) Stop(context.Context) error {
	if s.watcher == nil {
		return nil
	}
	s.cancel()
	err := s.watcher.Close()
	<-s.done
	return err
}
