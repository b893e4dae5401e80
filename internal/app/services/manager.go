package services

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/thushan/llamatap/internal/logger"
)

// ManagedService is one lifecycle unit. Start must not block; long running work
// belongs in a goroutine owned by the service and ended by Stop.
type ManagedService interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Dependencies() []string
}

// ServiceManager starts services so dependencies come first and stops them in
// the reverse order. A failed start stops whatever already started.
type ServiceManager struct {
	services   map[string]ManagedService
	logger     *logger.StyledLogger
	startOrder []string
	mu         sync.RWMutex
}

func NewServiceManager(log *logger.StyledLogger) *ServiceManager {
	return &ServiceManager{
		services: make(map[string]ManagedService),
		logger:   log,
	}
}

func (sm *ServiceManager) Register(service ManagedService) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	name := service.Name()
	if _, exists := sm.services[name]; exists {
		return fmt.Errorf("service %s already registered", name)
	}

	sm.services[name] = service
	sm.logger.Debug("Service registered", "name", name)
	return nil
}

// resolveDependencies is Kahn's algorithm over the dependant -> dependency edges.
// Names are sorted first so the order is stable between runs.
func (sm *ServiceManager) resolveDependencies() ([]string, error) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	names := make([]string, 0, len(sm.services))
	for name := range sm.services {
		names = append(names, name)
	}
	sort.Strings(names)

	inDegree := make(map[string]int, len(names))
	dependants := make(map[string][]string, len(names))
	for _, name := range names {
		deps := sm.services[name].Dependencies()
		inDegree[name] = len(deps)
		for _, dep := range deps {
			if _, exists := sm.services[dep]; !exists {
				return nil, fmt.Errorf("service %s depends on %s, which is not registered", name, dep)
			}
			dependants[dep] = append(dependants[dep], name)
		}
	}

	queue := make([]string, 0, len(names))
	for _, name := range names {
		if inDegree[name] == 0 {
			queue = append(queue, name)
		}
	}

	order := make([]string, 0, len(names))
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		order = append(order, current)

		for _, next := range dependants[current] {
			inDegree[next]--
			if inDegree[next] == 0 {
				queue = append(queue, next)
			}
		}
	}

	if len(order) != len(names) {
		return nil, fmt.Errorf("circular dependency detected")
	}
	return order, nil
}

func (sm *ServiceManager) Start(ctx context.Context) error {
	order, err := sm.resolveDependencies()
	if err != nil {
		return fmt.Errorf("failed to resolve dependencies: %w", err)
	}

	sm.mu.Lock()
	sm.startOrder = order
	sm.mu.Unlock()

	sm.logger.Debug("Starting services", "order", order)

	started := make([]string, 0, len(order))
	for _, name := range order {
		service := sm.services[name]
		if err := service.Start(ctx); err != nil {
			sm.logger.Error("Failed to start service", "name", name, "error", err)
			reverse(started)
			_ = sm.stopServices(ctx, started)
			return fmt.Errorf("failed to start service %s: %w", name, err)
		}
		started = append(started, name)
		sm.logger.Debug("Service started", "name", name)
	}
	return nil
}

func (sm *ServiceManager) Stop(ctx context.Context) error {
	sm.mu.RLock()
	order := make([]string, len(sm.startOrder))
	copy(order, sm.startOrder)
	sm.mu.RUnlock()

	reverse(order)
	sm.logger.Debug("Stopping services", "order", order)
	return sm.stopServices(ctx, order)
}

// stopServices keeps going past failures and returns the first one
func (sm *ServiceManager) stopServices(ctx context.Context, names []string) error {
	var firstErr error
	for _, name := range names {
		service, exists := sm.services[name]
		if !exists {
			continue
		}
		if err := service.Stop(ctx); err != nil {
			sm.logger.Error("Failed to stop service", "name", name, "error", err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		sm.logger.Debug("Service stopped", "name", name)
	}
	return firstErr
}

func (sm *ServiceManager) Get(name string) (ManagedService, bool) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	service, exists := sm.services[name]
	return service, exists
}

func reverse(s []string) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}
