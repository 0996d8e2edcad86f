package auth

import (
	"context"
	"encoding/json"
	"time"

	"ovpnadmin/internal/models"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	MaxAuditPage     = 200
	DefaultAuditPage = 50
)

// AuditStore is the append-only audit ledger.
type AuditStore interface {
	AppendAudit(ctx context.Context, entry *models.AuditEntry) error
	ListAudit(ctx context.Context, limit, offset int) ([]models.AuditEntry, error)
}

// Event is one security-relevant occurrence. Details must marshal to JSON.
type Event struct {
	Actor     string
	Action    string
	Target    string
	IP        string
	UserAgent string
	Details   any
}

type AuditService struct {
	store AuditStore
	log   logrus.FieldLogger
	now   func() time.Time
}

func NewAuditService(store AuditStore, log logrus.FieldLogger) *AuditService {
	return &AuditService{store: store, log: log, now: time.Now}
}

// Record appends the event. Failures are logged and never returned.
func (s *AuditService) Record(ctx context.Context, ev Event) {
	fields := logrus.Fields{"action": ev.Action, "actor": ev.Actor, "target": ev.Target}

	details := json.RawMessage("{}")
	if ev.Details != nil {
		b, err := json.Marshal(ev.Details)
		if err != nil {
			s.log.WithFields(fields).WithError(err).Warn("audit details not serializable")
		} else {
			details = b
		}
	}

	id, err := uuid.NewV7()
	if err != nil {
		s.log.WithFields(fields).WithError(err).Error("audit id generation failed")
		return
	}

	entry := &models.AuditEntry{
		ID:        id.String(),
		TS:        s.now().Unix(),
		ActorUser: orDash(ev.Actor),
		Action:    ev.Action,
		Target:    orDash(ev.Target),
		IP:        orDash(ev.IP),
		UserAgent: orDash(ev.UserAgent),
		Details:   details,
	}
	if err := s.store.AppendAudit(ctx, entry); err != nil {
		s.log.WithFields(fields).WithError(err).Error("audit write failed")
	}
}

// List returns one page of entries, newest first. limit is clamped to
// [1, MaxAuditPage].
func (s *AuditService) List(ctx context.Context, limit, offset int) ([]models.AuditEntry, error) {
	if limit < 1 {
		limit = 1
	}
	if limit > MaxAuditPage {
		limit = MaxAuditPage
	}
	if offset < 0 {
		offset = 0
	}
	return s.store.ListAudit(ctx, limit, offset)
}

func orDash(s string) string {
	if s == "" {
		return models.NoTarget
	}
	return s
}
