package registry

import (
	"sync/atomic"

	"github.com/thushan/llamatap/internal/core/domain"
	"github.com/thushan/llamatap/internal/logger"
)

// Registry owns the active provider table. Readers always see a complete table.
type Registry struct {
	table  atomic.Pointer[Table]
	logger *logger.StyledLogger
}

func New(log *logger.StyledLogger) *Registry {
	return &Registry{logger: log}
}

// Load is the first-ever load, a failure is returned for the caller to treat as fatal
func (r *Registry) Load(raw domain.ProvidersConfig) error {
	table, err := Build(raw)
	if err != nil {
		return err
	}
	r.table.Store(table)
	r.logger.InfoWithCount("Model registry loaded", table.ModelCount(), "providers", len(table.providers))
	return nil
}

// Reload swaps in a new table, leaving the current one active if the new one fails to build
func (r *Registry) Reload(raw domain.ProvidersConfig) error {
	table, err := Build(raw)
	if err != nil {
		r.logger.Error("Model registry reload failed, keeping previous table", "error", err)
		return err
	}
	previous := r.table.Swap(table)
	if previous != nil {
		r.logger.InfoWithCount("Model registry reloaded", table.ModelCount(), "previous_models", previous.ModelCount())
	} else {
		r.logger.InfoWithCount("Model registry loaded", table.ModelCount())
	}
	return nil
}

func (r *Registry) Resolve(identifier string) (*domain.Provider, domain.ModelSpec, error) {
	table := r.table.Load()
	if table == nil {
		return nil, domain.ModelSpec{}, domain.NewUnknownModelError(identifier)
	}
	return table.Lookup(identifier)
}

// Snapshot returns the active table, nil before the first load
func (r *Registry) Snapshot() *Table {
	return r.table.Load()
}

func (r *Registry) Identifiers() []string {
	if table := r.table.Load(); table != nil {
		return table.Identifiers()
	}
	return nil
}
