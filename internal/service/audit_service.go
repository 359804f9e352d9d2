package service

import (
	"context"
	"log/slog"
	"time"

	"go-auth-service/internal/event"
	"go-auth-service/internal/model"
)

// AuditStore persists and queries audit entries.
type AuditStore interface {
	Log(ctx context.Context, entry model.AuditEntry) error
	Query(ctx context.Context, query model.AuditQuery) ([]model.AuditEntry, model.Meta, error)
}

// AuditService drains the event bus into the audit store. It runs in its own
// goroutine; a failed write is logged and dropped, never propagated back to
// the operation that emitted the event.
type AuditService struct {
	store AuditStore
	bus   event.Bus
}

func NewAuditService(store AuditStore, bus event.Bus) *AuditService {
	return &AuditService{store: store, bus: bus}
}

// Run consumes events until the context is cancelled.
func (s *AuditService) Run(ctx context.Context) {
	events, unsubscribe := s.bus.Subscribe()
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			s.persist(ctx, e)
		}
	}
}

func (s *AuditService) persist(ctx context.Context, e event.Event) {
	if e.Type == event.TypeReuseDetected {
		slog.Error("suspicious activity",
			"event", string(e.Type), "user_id", e.Actor.UserID, "ip", e.Actor.IP, "detail", e.Detail)
	}

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	entry := model.AuditEntry{
		Action:     string(e.Type),
		OccurredAt: e.Timestamp,
		Actor: model.AuditActor{
			UserID:    e.Actor.UserID,
			Email:     e.Actor.Email,
			IP:        e.Actor.IP,
			UserAgent: e.Actor.UserAgent,
		},
		Status: e.Status,
		Detail: e.Detail,
	}

	if err := s.store.Log(writeCtx, entry); err != nil {
		slog.Warn("audit write failed", "action", entry.Action, "error", err)
	}
}

func (s *AuditService) Query(ctx context.Context, query model.AuditQuery) ([]model.AuditEntry, model.Meta, error) {
	return s.store.Query(ctx, query)
}
