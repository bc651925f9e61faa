package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/kds/internal/archive"
	"github.com/roach88/kds/internal/domain"
	"github.com/roach88/kds/internal/wal"
)

// Counter keys.
const (
	OrderNoKey = "orderNo"
	MainSKUKey = "sku.main"
	SideSKUKey = "sku.side"
)

// maxAllocAttempts bounds the search for a free number.
const maxAllocAttempts = 100

var (
	// ErrNoFreeNumber is returned when every allocation attempt hit a
	// number that is still in use.
	ErrNoFreeNumber = errors.New("no free number")

	// ErrInvalidSettings is returned by UpdateSettings for a patch that
	// would leave the settings unusable.
	ErrInvalidSettings = errors.New("invalid settings")
)

// CancelResult describes a cancellation.
type CancelResult struct {
	Order     domain.Order
	Archived  bool
	SessionID string
}

// AllocateOrderNo returns the next free four-digit order number within the
// configured numbering range.
func (s *Store) AllocateOrderNo(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.allocateLocked(ctx)
}

func (s *Store) allocateLocked(ctx context.Context) (string, error) {
	rng := s.state.Settings.Numbering
	for range maxAllocAttempts {
		n, err := s.counter.Next(ctx, OrderNoKey, rng.Min, rng.Max)
		if err != nil {
			return "", fmt.Errorf("allocate order number: %w", err)
		}
		no := fmt.Sprintf("%04d", n)
		if !s.state.HasOrder(no) {
			s.state.Session.NextOrderSeq = int(n) + 1
			return no, nil
		}
	}
	return "", fmt.Errorf("allocate order number: %w", ErrNoFreeNumber)
}

// NextSKU returns an unused sku for category, e.g. "main_0004".
func (s *Store) NextSKU(ctx context.Context, category domain.Category) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextSKULocked(ctx, category)
}

func (s *Store) nextSKULocked(ctx context.Context, category domain.Category) (string, error) {
	key, prefix := MainSKUKey, "main_"
	switch category {
	case domain.CategoryMain:
	case domain.CategorySide:
		key, prefix = SideSKUKey, "side_"
	default:
		return "", fmt.Errorf("next sku: %w: category %q", domain.ErrInvalidMenuItem, category)
	}
	for range maxAllocAttempts {
		n, err := s.counter.Next(ctx, key, 1, 9999)
		if err != nil {
			return "", fmt.Errorf("next sku: %w", err)
		}
		sku := fmt.Sprintf("%s%04d", prefix, n)
		if s.state.FindMenuItem(sku) == nil {
			return sku, nil
		}
	}
	return "", fmt.Errorf("next sku %s: %w", category, ErrNoFreeNumber)
}

// CreateOrder prices reqs against the catalog, assigns an order number and
// records the order. The returned order is valid whenever its OrderNo is
// set, even if err reports a failed WAL append or snapshot save.
func (s *Store) CreateOrder(ctx context.Context, reqs []domain.LineRequest) (domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	items, skipped, err := s.state.PriceLines(reqs)
	for _, sk := range skipped {
		s.logger.Warn("order line skipped", "line", sk.Index, "reason", sk.Reason)
	}
	if err != nil {
		return domain.Order{}, fmt.Errorf("create order: %w", err)
	}

	no, err := s.allocateLocked(ctx)
	if err != nil {
		return domain.Order{}, fmt.Errorf("create order: %w", err)
	}

	o := domain.Order{
		OrderNo: no,
		Status:  domain.StatusCooking,
		TS:      s.clock.Now(),
		Items:   items,
	}
	s.state.PutOrder(o)
	s.dirty = true

	var errs []error
	if err := s.summary.ApplyOrder(o); err != nil {
		errs = append(errs, err)
	}
	if _, err := s.appendLocked(wal.OrderCreate(o)); err != nil {
		errs = append(errs, err)
	}
	if err := s.saveLocked(); err != nil {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		return o, fmt.Errorf("create order %s: %w", no, err)
	}

	s.logger.Info("order created", "order_no", no, "items", len(items), "total", o.Total())
	return o, nil
}

// UpdateOrderStatus applies a kitchen status. READY and PICKED finalize the
// order into the archive; if archiving fails the order stays active.
// CANCELLED is handled as CancelOrder with no reason. Any other status
// outside COOKING, DONE and their aliases fails with domain.ErrInvalidStatus.
func (s *Store) UpdateOrderStatus(orderNo, status string) (domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if status == string(domain.StatusCancelled) {
		res, err := s.cancelLocked(orderNo, "")
		return res.Order, err
	}

	o := s.state.FindOrder(orderNo)
	if o == nil {
		return domain.Order{}, fmt.Errorf("update order %s: %w", orderNo, domain.ErrOrderNotFound)
	}
	finalize, err := o.ApplyStatus(status)
	if err != nil {
		return o.Clone(), fmt.Errorf("update order %s: %w", orderNo, err)
	}
	updated := o.Clone()
	s.dirty = true

	if _, err := s.appendLocked(wal.OrderUpdate(updated)); err != nil {
		return updated, fmt.Errorf("update order %s: %w", orderNo, err)
	}
	if finalize {
		if err := s.archiveLocked(orderNo); err != nil {
			return updated, fmt.Errorf("update order %s: %w", orderNo, err)
		}
	}
	if err := s.saveLocked(); err != nil {
		return updated, fmt.Errorf("update order %s: %w", orderNo, err)
	}
	return updated, nil
}

// MarkCooked puts the order on the pickup call list.
func (s *Store) MarkCooked(orderNo string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	o := s.state.FindOrder(orderNo)
	if o == nil {
		return fmt.Errorf("mark cooked %s: %w", orderNo, domain.ErrOrderNotFound)
	}
	o.MarkCooked()
	s.dirty = true

	if _, err := s.appendLocked(wal.OrderCooked(orderNo)); err != nil {
		return fmt.Errorf("mark cooked %s: %w", orderNo, err)
	}
	if err := s.saveLocked(); err != nil {
		return fmt.Errorf("mark cooked %s: %w", orderNo, err)
	}
	return nil
}

// MarkPicked records the hand-over and finalizes the order into the
// archive. If archiving fails the order stays active with picked_up set.
func (s *Store) MarkPicked(orderNo string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	o := s.state.FindOrder(orderNo)
	if o == nil {
		return fmt.Errorf("mark picked %s: %w", orderNo, domain.ErrOrderNotFound)
	}
	o.MarkPicked()
	s.dirty = true

	if _, err := s.appendLocked(wal.OrderPicked(orderNo)); err != nil {
		return fmt.Errorf("mark picked %s: %w", orderNo, err)
	}
	if err := s.archiveLocked(orderNo); err != nil {
		return fmt.Errorf("mark picked %s: %w", orderNo, err)
	}
	if err := s.saveLocked(); err != nil {
		return fmt.Errorf("mark picked %s: %w", orderNo, err)
	}
	return nil
}

// CancelOrder cancels an active order, or one already archived in the
// current session. Archived cancellations rewrite the archive record and
// need no snapshot.
func (s *Store) CancelOrder(orderNo, reason string) (CancelResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelLocked(orderNo, reason)
}

func (s *Store) cancelLocked(orderNo, reason string) (CancelResult, error) {
	if o := s.state.FindOrder(orderNo); o != nil {
		if err := o.Cancel(reason); err != nil {
			return CancelResult{}, err
		}
		res := CancelResult{Order: o.Clone(), SessionID: s.state.Session.SessionID}
		s.dirty = true

		var errs []error
		if err := s.summary.ApplyCancellation(res.Order); err != nil {
			errs = append(errs, err)
		}
		if _, err := s.appendLocked(wal.OrderCancel(orderNo, reason, false)); err != nil {
			errs = append(errs, err)
		}
		if err := s.saveLocked(); err != nil {
			errs = append(errs, err)
		}
		if err := errors.Join(errs...); err != nil {
			return res, fmt.Errorf("cancel order %s: %w", orderNo, err)
		}
		s.logger.Info("order cancelled", "order_no", orderNo, "reason", reason)
		return res, nil
	}

	rec, found, err := s.archive.FindOrder(s.state.Session.SessionID, orderNo)
	if err != nil {
		return CancelResult{}, fmt.Errorf("cancel order %s: %w", orderNo, err)
	}
	if !found {
		return CancelResult{}, fmt.Errorf("cancel order %s: %w", orderNo, domain.ErrOrderNotFound)
	}
	if err := rec.Order.Cancel(reason); err != nil {
		return CancelResult{}, err
	}
	res := CancelResult{Order: rec.Order, Archived: true, SessionID: rec.SessionID}

	if err := s.archive.ReplaceOrder(rec.Order, rec.SessionID, rec.ArchivedAt); err != nil {
		return res, fmt.Errorf("cancel order %s: %w", orderNo, err)
	}
	var errs []error
	if err := s.summary.ApplyCancellation(rec.Order); err != nil {
		errs = append(errs, err)
	}
	if _, err := s.appendLocked(wal.OrderCancel(orderNo, reason, true)); err != nil {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		return res, fmt.Errorf("cancel order %s: %w", orderNo, err)
	}
	s.logger.Info("archived order cancelled", "order_no", orderNo, "session_id", rec.SessionID, "reason", reason)
	return res, nil
}

// UpsertMain inserts or replaces MAIN catalog entries. Items without a sku
// get the next free one. It returns the stored items.
func (s *Store) UpsertMain(ctx context.Context, items ...domain.MenuItem) ([]domain.MenuItem, error) {
	return s.upsert(ctx, domain.CategoryMain, items)
}

// UpsertSide is UpsertMain for SIDE entries.
func (s *Store) UpsertSide(ctx context.Context, items ...domain.MenuItem) ([]domain.MenuItem, error) {
	return s.upsert(ctx, domain.CategorySide, items)
}

func (s *Store) upsert(ctx context.Context, category domain.Category, items []domain.MenuItem) ([]domain.MenuItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := make([]domain.MenuItem, 0, len(items))
	for _, item := range items {
		item.Category = category
		if item.SKU == "" {
			sku, err := s.nextSKULocked(ctx, category)
			if err != nil {
				return stored, fmt.Errorf("upsert %s: %w", category, err)
			}
			item.SKU = sku
		}
		if _, err := s.state.UpsertMenuItem(item); err != nil {
			return stored, err
		}
		s.dirty = true
		saved := *s.state.FindMenuItem(item.SKU)
		if _, err := s.appendLocked(wal.MenuUpsert(saved)); err != nil {
			return stored, fmt.Errorf("upsert %s: %w", saved.SKU, err)
		}
		stored = append(stored, saved)
	}
	if err := s.saveLocked(); err != nil {
		return stored, fmt.Errorf("upsert %s: %w", category, err)
	}
	return stored, nil
}

// UpdateSettings merges p into the settings.
func (s *Store) UpdateSettings(p wal.SettingsPatch) (domain.Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := validatePatch(&p); err != nil {
		return s.state.Settings, fmt.Errorf("update settings: %w", err)
	}
	p.Apply(&s.state.Settings)
	s.dirty = true

	if _, err := s.appendLocked(wal.SettingsUpdate(p)); err != nil {
		return s.state.Settings, fmt.Errorf("update settings: %w", err)
	}
	if err := s.saveLocked(); err != nil {
		return s.state.Settings, fmt.Errorf("update settings: %w", err)
	}
	return s.state.Settings, nil
}

// validatePatch rejects values a snapshot load would not keep and fills an
// empty rounding mode.
func validatePatch(p *wal.SettingsPatch) error {
	if n := p.Numbering; n != nil && (n.Min < 1 || n.Max > 9999 || n.Min > n.Max) {
		return fmt.Errorf("%w: numbering [%d, %d]", ErrInvalidSettings, n.Min, n.Max)
	}
	if p.Store != nil && p.Store.Name == "" {
		return fmt.Errorf("%w: empty store name", ErrInvalidSettings)
	}
	if c := p.Chinchiro; c != nil && c.Rounding == "" {
		filled := *c
		filled.Rounding = domain.RoundingRound
		p.Chinchiro = &filled
	}
	return nil
}

// EndSession closes the running session and starts a new one named after
// the clock. Active orders are dropped, the order number counter and the
// sales summary start over, and the archive keeps the old session.
func (s *Store) EndSession(ctx context.Context) (domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	prev := s.state.Session
	id, err := s.freshSessionID(now)
	if err != nil {
		return prev, fmt.Errorf("end session: %w", err)
	}

	s.state.EndSession(id, now)
	s.dirty = true
	next := s.state.Session

	var errs []error
	if _, err := s.appendLocked(wal.SessionEnd(next)); err != nil {
		errs = append(errs, err)
	}
	if err := s.counter.Reset(ctx, OrderNoKey); err != nil {
		errs = append(errs, err)
	}
	if err := s.summary.Reset(); err != nil {
		errs = append(errs, err)
	}
	if err := s.saveLocked(); err != nil {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		return next, fmt.Errorf("end session: %w", err)
	}

	s.logger.Info("session ended", "previous", prev.SessionID, "session_id", next.SessionID)
	return next, nil
}

// freshSessionID names the new session after now, adding a -2, -3 ...
// suffix when the name is already taken by the running session or the
// archive.
func (s *Store) freshSessionID(now int64) (string, error) {
	base := domain.SessionIDFor(time.Unix(now, 0))
	id := base
	for n := 2; ; n++ {
		used := id == s.state.Session.SessionID
		if !used {
			err := s.archive.ForEach(id, func(archive.Record) bool {
				used = true
				return false
			})
			if err != nil {
				return "", err
			}
		}
		if !used {
			return id, nil
		}
		id = fmt.Sprintf("%s-%d", base, n)
	}
}
