package audit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/leok974/ApplyLens-sub019/internal/models"
)

// Query pagination bounds
const (
	DefaultQueryLimit = 50
	MaxQueryLimit     = 200
)

// Service owns the durable run history: one record per run, inserted at
// start and completed exactly once at the end.
type Service struct {
	db *gorm.DB
}

// NewService creates a new audit service instance
func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// Begin inserts the running record for a new run and returns it.
func (s *Service) Begin(ctx context.Context, record *models.AuditRecord) error {
	record.Status = models.RunRunning
	if err := s.db.WithContext(ctx).Create(record).Error; err != nil {
		return fmt.Errorf("failed to create audit record: %w", err)
	}
	return nil
}

// Complete writes the single terminal update for a run.
func (s *Service) Complete(ctx context.Context, runID uuid.UUID, status models.RunStatus, artifacts map[string]interface{}, errorMessage string) error {
	if status != models.RunSuccess && status != models.RunFailed {
		return fmt.Errorf("status %q is not terminal", status)
	}
	completedAt := time.Now().UTC()

	updates := map[string]interface{}{
		"status":       status,
		"completed_at": completedAt,
	}
	if artifacts != nil {
		updates["artifacts"] = artifacts
	}
	if errorMessage != "" {
		updates["error_message"] = errorMessage
	}

	var record models.AuditRecord
	if err := s.db.WithContext(ctx).Where("run_id = ?", runID).First(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: %s", models.ErrRunNotFound, runID)
		}
		return fmt.Errorf("failed to load audit record: %w", err)
	}
	updates["duration_ms"] = completedAt.Sub(record.StartedAt).Milliseconds()

	result := s.db.WithContext(ctx).Model(&models.AuditRecord{}).
		Where("run_id = ? AND status = ?", runID, models.RunRunning).
		Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("failed to complete audit record: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("audit record %s is already terminal", runID)
	}
	return nil
}

// Get returns one audit record by run id.
func (s *Service) Get(ctx context.Context, runID uuid.UUID) (*models.AuditRecord, error) {
	var record models.AuditRecord
	if err := s.db.WithContext(ctx).Where("run_id = ?", runID).First(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", models.ErrRunNotFound, runID)
		}
		return nil, fmt.Errorf("failed to load audit record: %w", err)
	}
	return &record, nil
}

// Filters narrows a history query. Nil fields are ignored.
type Filters struct {
	Agent     *string
	Status    *string
	User      *string
	StartDate *time.Time
	EndDate   *time.Time
	Limit     int
	Offset    int
}

// Query returns matching records newest-first plus the unpaginated total.
func (s *Service) Query(ctx context.Context, filters Filters) ([]models.AuditRecord, int64, error) {
	query := s.db.WithContext(ctx).Model(&models.AuditRecord{})

	if filters.Agent != nil && *filters.Agent != "" {
		query = query.Where("agent = ?", *filters.Agent)
	}
	if filters.Status != nil && *filters.Status != "" {
		query = query.Where("status = ?", *filters.Status)
	}
	if filters.User != nil && *filters.User != "" {
		query = query.Where("user_id = ?", *filters.User)
	}
	if filters.StartDate != nil {
		query = query.Where("started_at >= ?", *filters.StartDate)
	}
	if filters.EndDate != nil {
		query = query.Where("started_at <= ?", *filters.EndDate)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count audit records: %w", err)
	}

	limit := filters.Limit
	if limit <= 0 {
		limit = DefaultQueryLimit
	}
	if limit > MaxQueryLimit {
		limit = MaxQueryLimit
	}
	offset := filters.Offset
	if offset < 0 {
		offset = 0
	}

	var records []models.AuditRecord
	if err := query.Order("started_at DESC").Limit(limit).Offset(offset).Find(&records).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to query audit records: %w", err)
	}
	return records, total, nil
}

// CountRunsSince reports how many runs an agent started at or after the
// given time. Used by the daily budget validator.
func (s *Service) CountRunsSince(ctx context.Context, agent string, since time.Time) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.AuditRecord{}).
		Where("agent = ? AND started_at >= ?", agent, since).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count runs: %w", err)
	}
	return count, nil
}
