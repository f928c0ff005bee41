package policy

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/leok974/ApplyLens-sub019/internal/models"
)

// Store persists versioned policy snapshots. A rule set is only considered
// active after its snapshot row is durably written; the engine swap happens
// afterwards, never before.
type Store struct {
	db *gorm.DB
}

// NewStore creates a new policy snapshot store
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Active returns the currently active snapshot.
func (s *Store) Active(ctx context.Context) (*models.PolicySnapshot, error) {
	var snap models.PolicySnapshot
	err := s.db.WithContext(ctx).Where("active = ?", true).Order("version DESC").First(&snap).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.ErrNoActiveSnapshot
		}
		return nil, fmt.Errorf("failed to load active policy snapshot: %w", err)
	}
	return &snap, nil
}

// Replace writes a new active snapshot and deactivates the previous one in
// a single transaction. The caller swaps the engine only after this returns.
func (s *Store) Replace(ctx context.Context, rules []models.PolicyRule, budgets map[string]int, updatedBy string) (*models.PolicySnapshot, error) {
	if err := ValidateRules(rules); err != nil {
		return nil, err
	}

	snap := &models.PolicySnapshot{
		ID:        uuid.New(),
		Rules:     rules,
		Budgets:   budgets,
		Active:    true,
		UpdatedBy: updatedBy,
		CreatedAt: time.Now().UTC(),
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var prev models.PolicySnapshot
		switch err := tx.Where("active = ?", true).Order("version DESC").First(&prev).Error; {
		case err == nil:
			snap.Version = prev.Version + 1
			if err := tx.Model(&models.PolicySnapshot{}).
				Where("active = ?", true).
				Update("active", false).Error; err != nil {
				return fmt.Errorf("failed to deactivate previous snapshot: %w", err)
			}
		case errors.Is(err, gorm.ErrRecordNotFound):
			snap.Version = 1
		default:
			return fmt.Errorf("failed to read previous snapshot: %w", err)
		}
		if err := tx.Create(snap).Error; err != nil {
			return fmt.Errorf("failed to persist policy snapshot: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return snap, nil
}
