package index

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/arkilian/nanostore/internal/config"
	"github.com/arkilian/nanostore/internal/observability"
)

// ActionType represents the type of index action to perform.
type ActionType string

const (
	ActionCreate ActionType = "CREATE"
	ActionDrop   ActionType = "DROP"
)

// Action is one index change decided by the policy.
type Action struct {
	Type      ActionType
	Attribute string
}

// Policy creates indexes for attribute paths searched often and drops the
// ones searched rarely. It runs only when asked to; the store has no
// background work.
type Policy struct {
	stats           *observability.AttributeStats
	manager         *Manager
	createThreshold int64
	dropThreshold   int64
	maxIndexes      int
	logger          *zap.Logger
	mu              sync.Mutex
}

// NewPolicy creates an index policy.
func NewPolicy(stats *observability.AttributeStats, manager *Manager, cfg config.IndexConfig, logger *zap.Logger) *Policy {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Policy{
		stats:           stats,
		manager:         manager,
		createThreshold: cfg.CreateThreshold,
		dropThreshold:   cfg.DropThreshold,
		maxIndexes:      cfg.MaxIndexes,
		logger:          logger,
	}
}

// Evaluate decides which indexes to create and drop. Nothing is changed.
func (p *Policy) Evaluate(ctx context.Context) ([]Action, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.evaluate(ctx)
}

func (p *Policy) evaluate(ctx context.Context) ([]Action, error) {
	var actions []Action

	// Extra entries so existing indexes find their frequency
	top := p.stats.TopFilters(p.maxIndexes + 10)

	existing, err := p.manager.Attributes(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list existing indexes: %w", err)
	}
	existingSet := make(map[string]bool, len(existing))
	for _, attr := range existing {
		existingSet[attr] = true
	}

	for _, s := range top {
		if s.Frequency < p.createThreshold || existingSet[s.Path] {
			continue
		}
		if len(existing) >= p.maxIndexes {
			break
		}
		actions = append(actions, Action{Type: ActionCreate, Attribute: s.Path})
		existing = append(existing, s.Path)
		existingSet[s.Path] = true
	}

	for _, attr := range existing {
		if p.stats.Frequency(attr) < p.dropThreshold {
			actions = append(actions, Action{Type: ActionDrop, Attribute: attr})
		}
	}
	return actions, nil
}

// Apply evaluates the policy and executes its actions. It returns the
// actions that succeeded; a failed action is logged and skipped.
func (p *Policy) Apply(ctx context.Context) ([]Action, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	actions, err := p.evaluate(ctx)
	if err != nil {
		return nil, err
	}

	done := make([]Action, 0, len(actions))
	for _, action := range actions {
		var err error
		switch action.Type {
		case ActionCreate:
			err = p.manager.Create(ctx, action.Attribute)
		case ActionDrop:
			err = p.manager.Drop(ctx, action.Attribute)
		default:
			err = fmt.Errorf("unknown action type: %s", action.Type)
		}
		if err != nil {
			p.logger.Warn("index policy action failed",
				zap.String("action", string(action.Type)),
				zap.String("attribute", action.Attribute),
				zap.Error(err))
			continue
		}
		done = append(done, action)
	}
	return done, nil
}
