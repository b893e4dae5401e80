package services

import (
	"context"
	"fmt"

	"github.com/thushan/llamatap/internal/adapter/auditlog"
	"github.com/thushan/llamatap/internal/adapter/extractcache"
	"github.com/thushan/llamatap/internal/adapter/tokens"
	"github.com/thushan/llamatap/internal/core/domain"
	"github.com/thushan/llamatap/internal/logger"
)

// PipelineService owns the asynchronous side of the proxy. Stopping it waits for
// in-flight token counts, then flushes and closes the audit log.
type PipelineService struct {
	counter     *tokens.Counter
	audit       *auditlog.Logger
	extractions *extractcache.Cache[string, domain.Extraction]
	logger      *logger.StyledLogger
}

func NewPipelineService(counter *tokens.Counter, audit *auditlog.Logger, extractions *extractcache.Cache[string, domain.Extraction], log *logger.StyledLogger) *PipelineService {
	return &PipelineService{
		counter:     counter,
		audit:       audit,
		extractions: extractions,
		logger:      log,
	}
}

func (s *PipelineService) Name() string           { return "pipeline" }
func (s *PipelineService) Dependencies() []string { return nil }

func (s *PipelineService) Start(context.Context) error {
	return nil
}

func (s *PipelineService) Stop(ctx context.Context) error {
	drained := make(chan struct{})
	go func() {
		s.counter.Wait()
		close(drained)
	}()

	select {
	case <-drained:
	case <-ctx.Done():
		s.logger.Warn("Token counting still running at shutdown, flushing audit log without it")
	}

	pending := s.audit.Pending()
	err := s.audit.Close()
	s.extractions.Close()
	if err != nil {
		return fmt.Errorf("failed to close audit log: %w", err)
	}
	s.logger.Debug("Audit log closed", "flushed_pending", pending, "lines", s.audit.LinesWritten())
	return nil
}
