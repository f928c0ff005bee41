package approval

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/leok974/ApplyLens-sub019/internal/models"
)

// DefaultTTL is how long a new approval request stays usable when the
// caller does not ask for a specific expiry.
const DefaultTTL = time.Hour

// Service manages the approval request lifecycle: request, decide, verify,
// consume. Decisions are signed with a server-held secret so a later verify
// is self-contained and tamper-evident.
type Service struct {
	db         *gorm.DB
	secret     []byte
	defaultTTL time.Duration
	now        func() time.Time
}

// Option customizes a Service
type Option func(*Service)

// WithTTL overrides the default request expiry window
func WithTTL(ttl time.Duration) Option {
	return func(s *Service) { s.defaultTTL = ttl }
}

// WithClock overrides the time source, for tests
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates an approval service. The secret must be non-empty; it
// keys the HMAC that makes stored decisions tamper-evident.
func NewService(db *gorm.DB, secret []byte, opts ...Option) (*Service, error) {
	if len(secret) == 0 {
		return nil, errors.New("approval signing secret must not be empty")
	}
	s := &Service{
		db:         db,
		secret:     secret,
		defaultTTL: DefaultTTL,
		now:        func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Request creates a new pending approval request.
func (s *Service) Request(ctx context.Context, req models.CreateApprovalRequest) (*models.ApprovalRequest, error) {
	if req.Agent == "" || req.Action == "" {
		return nil, errors.New("agent and action are required")
	}
	ttl := s.defaultTTL
	if req.ExpiresInSeconds > 0 {
		ttl = time.Duration(req.ExpiresInSeconds) * time.Second
	}
	now := s.now()
	record := &models.ApprovalRequest{
		ID:          uuid.New(),
		Agent:       req.Agent,
		Action:      req.Action,
		Context:     req.Context,
		Reason:      req.Reason,
		RequestedBy: req.RequestedBy,
		RequestedAt: now,
		ExpiresAt:   now.Add(ttl),
		Status:      models.ApprovalPending,
	}
	if err := s.db.WithContext(ctx).Create(record).Error; err != nil {
		return nil, fmt.Errorf("failed to create approval request: %w", err)
	}
	slog.Info("Created approval request",
		"id", record.ID, "agent", record.Agent, "action", record.Action, "expires_at", record.ExpiresAt)
	return record, nil
}

// Get returns an approval request by id.
func (s *Service) Get(ctx context.Context, id string) (*models.ApprovalRequest, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid approval id", models.ErrApprovalNotFound)
	}
	var record models.ApprovalRequest
	if err := s.db.WithContext(ctx).Where("id = ?", parsed).First(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.ErrApprovalNotFound
		}
		return nil, fmt.Errorf("failed to load approval request: %w", err)
	}
	return &record, nil
}

// List returns approval requests, newest first, optionally filtered by
// effective status. Expiry is a computed projection here: a stale pending or
// approved row reads as expired without any stored transition.
func (s *Service) List(ctx context.Context, status string) ([]models.ApprovalRequest, error) {
	var records []models.ApprovalRequest
	if err := s.db.WithContext(ctx).Order("requested_at DESC").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to list approval requests: %w", err)
	}
	now := s.now()
	for i := range records {
		records[i].Status = records[i].EffectiveStatus(now)
	}
	if status == "" {
		return records, nil
	}
	filtered := records[:0]
	for _, r := range records {
		if string(r.Status) == status {
			filtered = append(filtered, r)
		}
	}
	return filtered, nil
}

// Decide transitions a pending request to approved or rejected, exactly
// once, and stores the signature alongside the decision. A request that is
// no longer pending cannot be re-decided.
func (s *Service) Decide(ctx context.Context, id, decision, approver, comment string) (*models.ApprovalRequest, error) {
	if decision != models.DecisionApproved && decision != models.DecisionRejected {
		return nil, fmt.Errorf("%w: got %q", models.ErrInvalidDecision, decision)
	}

	record, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if record.Status != models.ApprovalPending {
		return nil, fmt.Errorf("%w: status is %s", models.ErrApprovalNotPending, record.Status)
	}
	if record.Expired(s.now()) {
		return nil, fmt.Errorf("%w: expired at %s", models.ErrApprovalExpired, record.ExpiresAt.Format(time.RFC3339))
	}

	decidedAt := s.now()
	signature := s.sign(record.ID, decision, approver, record.ExpiresAt)
	newStatus := models.ApprovalApproved
	if decision == models.DecisionRejected {
		newStatus = models.ApprovalRejected
	}

	// The status guard in the WHERE clause makes a concurrent re-decide
	// fail loudly instead of silently overwriting the first decision.
	result := s.db.WithContext(ctx).Model(&models.ApprovalRequest{}).
		Where("id = ? AND status = ?", record.ID, models.ApprovalPending).
		Updates(map[string]interface{}{
			"status":     newStatus,
			"decision":   decision,
			"approver":   approver,
			"decided_at": decidedAt,
			"comment":    comment,
			"signature":  signature,
		})
	if result.Error != nil {
		return nil, fmt.Errorf("failed to store approval decision: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, fmt.Errorf("%w: decided concurrently", models.ErrApprovalNotPending)
	}

	record.Status = newStatus
	record.Decision = &decision
	record.Approver = &approver
	record.DecidedAt = &decidedAt
	record.Comment = &comment
	record.Signature = &signature
	slog.Info("Decided approval request", "id", record.ID, "decision", decision, "approver", approver)
	return record, nil
}

// Verify recomputes the signature from the stored fields and compares it in
// constant time. Any mismatch, missing record or undecided request verifies
// as false, never as an error.
func (s *Service) Verify(ctx context.Context, id, signature string) bool {
	record, err := s.Get(ctx, id)
	if err != nil {
		return false
	}
	if record.Decision == nil || record.Approver == nil {
		return false
	}
	expected := s.sign(record.ID, *record.Decision, *record.Approver, record.ExpiresAt)
	return hmac.Equal([]byte(expected), []byte(signature))
}

// Consume marks an approved request as executed. Double consumption and
// consumption past expiry both fail loudly; this is the replay-protection
// boundary.
func (s *Service) Consume(ctx context.Context, id string) error {
	record, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	now := s.now()
	if record.Expired(now) {
		return fmt.Errorf("%w: expired at %s", models.ErrApprovalExpired, record.ExpiresAt.Format(time.RFC3339))
	}

	result := s.db.WithContext(ctx).Model(&models.ApprovalRequest{}).
		Where("id = ? AND status = ?", record.ID, models.ApprovalApproved).
		Update("status", models.ApprovalExecuted)
	if result.Error != nil {
		return fmt.Errorf("failed to consume approval: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		// Re-read so a consume that lost a race reports the real state.
		status := record.Status
		if fresh, ferr := s.Get(ctx, id); ferr == nil {
			status = fresh.Status
		}
		if status == models.ApprovalExecuted {
			return models.ErrApprovalAlreadyConsumed
		}
		return fmt.Errorf("%w: status is %s", models.ErrApprovalNotApproved, status)
	}
	slog.Info("Consumed approval request", "id", record.ID)
	return nil
}

// sign computes the keyed MAC over the decision tuple. Expiry is bound into
// the signature so extending an approval's lifetime invalidates it.
func (s *Service) sign(id uuid.UUID, decision, approver string, expiresAt time.Time) string {
	mac := hmac.New(sha256.New, s.secret)
	fmt.Fprintf(mac, "%s|%s|%s|%d", id, decision, approver, expiresAt.UTC().UnixNano())
	return hex.EncodeToString(mac.Sum(nil))
}
