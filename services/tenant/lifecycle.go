package tenant

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"smallbiznis-tenancy/pkg/errutil"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Deactivate turns an active tenant off, stamping disabled_at and recording
// reason in the audit trail. Calling it on an inactive tenant writes nothing.
func (s *Service) Deactivate(ctx context.Context, id, reason string) (*Tenant, error) {
	return s.DeactivateFrom(ctx, id, reason, SourceLifecycle)
}

func (s *Service) DeactivateFrom(ctx context.Context, id, reason string, source EventSource) (*Tenant, error) {
	t, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !t.IsActive {
		return t, nil
	}

	var changed bool
	if err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		changed, err = s.deactivate(ctx, tx, t, reason, source)
		return err
	}); err != nil {
		loggerFrom(ctx).Error("failed to deactivate tenant", zap.String("tenant_id", id), zap.Error(err))
		return nil, errutil.Internal("failed to deactivate tenant", err)
	}

	if !changed {
		// another writer got there first
		return s.Get(ctx, id)
	}

	loggerFrom(ctx).Info("tenant deactivated",
		zap.String("tenant_id", t.ID),
		zap.String("source", string(source)),
		zap.String("reason", reason),
	)
	return t, nil
}

// Activate turns an inactive tenant back on and clears disabled_at.
func (s *Service) Activate(ctx context.Context, id, reason string) (*Tenant, error) {
	t, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.IsActive {
		return t, nil
	}

	if err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		_, err := s.activate(ctx, tx, t, reason, SourceLifecycle)
		return err
	}); err != nil {
		loggerFrom(ctx).Error("failed to activate tenant", zap.String("tenant_id", id), zap.Error(err))
		return nil, errutil.Internal("failed to activate tenant", err)
	}

	return s.Get(ctx, id)
}

// deactivate writes only is_active and disabled_at, guarded on the row still
// being active, so concurrent edits to other columns survive.
func (s *Service) deactivate(ctx context.Context, tx *gorm.DB, t *Tenant, reason string, source EventSource) (bool, error) {
	if !t.Deactivate(s.Now()) {
		return false, nil
	}

	res := tx.WithContext(ctx).Model(&Tenant{}).
		Where("id = ? AND is_active = ?", t.ID, true).
		Updates(map[string]any{
			"is_active":   false,
			"disabled_at": *t.DisabledAt,
		})
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 0 {
		return false, nil
	}

	meta := map[string]any{"disabled_at": t.DisabledAt.Format(time.RFC3339)}
	return true, s.recordEvents(ctx, tx, []string{t.ID}, ActionDeactivated, source, reason, meta)
}

func (s *Service) activate(ctx context.Context, tx *gorm.DB, t *Tenant, reason string, source EventSource) (bool, error) {
	if !t.Activate() {
		return false, nil
	}

	res := tx.WithContext(ctx).Model(&Tenant{}).
		Where("id = ? AND is_active = ?", t.ID, false).
		Updates(map[string]any{
			"is_active":   true,
			"disabled_at": nil,
		})
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 0 {
		return false, nil
	}

	return true, s.recordEvents(ctx, tx, []string{t.ID}, ActionActivated, source, reason, nil)
}

// DeactivateSelected turns off every active tenant among ids in a single
// UPDATE and returns how many rows changed. Unlike the legacy admin action it
// also stamps disabled_at, keeping disabled_at meaningful on every path.
func (s *Service) DeactivateSelected(ctx context.Context, ids []string) (int64, error) {
	now := s.Now()
	return s.bulkToggle(ctx, ids, true, map[string]any{
		"is_active":   false,
		"disabled_at": now,
	}, ActionDeactivated)
}

// ActivateSelected turns on every inactive tenant among ids and clears
// disabled_at, returning how many rows changed.
func (s *Service) ActivateSelected(ctx context.Context, ids []string) (int64, error) {
	return s.bulkToggle(ctx, ids, false, map[string]any{
		"is_active":   true,
		"disabled_at": nil,
	}, ActionActivated)
}

func (s *Service) bulkToggle(ctx context.Context, ids []string, from bool, values map[string]any, action EventAction) (int64, error) {
	zapLog := loggerFrom(ctx)

	ids = dedupe(ids)
	if len(ids) == 0 {
		return 0, nil
	}

	var updated int64
	if err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var targets []string
		if err := tx.Model(&Tenant{}).
			Where("id IN ? AND is_active = ?", ids, from).
			Pluck("id", &targets).Error; err != nil {
			return err
		}
		if len(targets) == 0 {
			return nil
		}

		res := tx.Model(&Tenant{}).
			Where("id IN ? AND is_active = ?", targets, from).
			Updates(values)
		if res.Error != nil {
			return res.Error
		}
		updated = res.RowsAffected

		meta := map[string]any{"selected": len(ids), "updated": updated}
		return s.recordEvents(ctx, tx, targets, action, SourceBulkAction, "", meta)
	}); err != nil {
		zapLog.Error("failed bulk tenant update", zap.String("action", string(action)), zap.Error(err))
		return 0, errutil.Internal(fmt.Sprintf("failed to apply %s to selected tenants", action), err)
	}

	zapLog.Info("bulk tenant update",
		zap.String("action", string(action)),
		zap.Int("selected", len(ids)),
		zap.Int64("updated", updated),
	)
	return updated, nil
}

func (s *Service) recordEvents(ctx context.Context, tx *gorm.DB, tenantIDs []string, action EventAction, source EventSource, reason string, meta map[string]any) error {
	var raw datatypes.JSON
	if meta != nil {
		b, err := json.Marshal(meta)
		if err != nil {
			return err
		}
		raw = datatypes.JSON(b)
	}

	events := make([]*Event, 0, len(tenantIDs))
	for _, id := range tenantIDs {
		events = append(events, &Event{
			ID:       s.node.Generate().String(),
			TenantID: id,
			Action:   action,
			Source:   source,
			Reason:   reason,
			Metadata: raw,
		})
	}
	return s.events.WithTrx(tx).BatchCreate(ctx, events)
}

// DeactivatedMessage and ActivatedMessage are the admin feedback strings.
func DeactivatedMessage(n int64) string {
	return fmt.Sprintf("Deactivated %d tenant(s).", n)
}

func ActivatedMessage(n int64) string {
	return fmt.Sprintf("Activated %d tenant(s).", n)
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
