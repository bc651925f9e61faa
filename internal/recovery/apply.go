package recovery

import (
	"fmt"

	"github.com/roach88/kds/internal/archive"
	"github.com/roach88/kds/internal/domain"
	"github.com/roach88/kds/internal/wal"
)

// Outcome is the result of applying one record.
type Outcome struct {
	Applied bool
	Reason  string
}

var applied = Outcome{Applied: true}

func skipped(format string, args ...any) Outcome {
	return Outcome{Reason: fmt.Sprintf(format, args...)}
}

// Apply folds one record into st. Records that reference state that no
// longer exists are skipped, not failed. The error return is reserved for
// archive I/O.
func (e *Engine) Apply(st *domain.State, rec wal.Record) (Outcome, error) {
	switch rec.Action {
	case wal.ActionOrderCreate:
		return applyCreate(st, rec), nil
	case wal.ActionOrderUpdate:
		return applyUpdate(st, rec), nil
	case wal.ActionOrderCancel:
		return applyCancel(st, rec), nil
	case wal.ActionOrderCooked:
		return withActive(st, rec, (*domain.Order).MarkCooked), nil
	case wal.ActionOrderPicked:
		return withActive(st, rec, (*domain.Order).MarkPicked), nil
	case wal.ActionOrderArchive:
		return e.applyArchive(st, rec)
	case wal.ActionSettingsUpdate:
		if rec.Settings == nil {
			return skipped("settings update without settings"), nil
		}
		rec.Settings.Apply(&st.Settings)
		return applied, nil
	case wal.ActionMainUpsert, wal.ActionSideUpsert:
		return applyUpsert(st, rec), nil
	case wal.ActionSessionEnd:
		if rec.Session == nil {
			return skipped("session end without next session"), nil
		}
		st.EndSession(rec.Session.SessionID, rec.Session.StartedAt)
		return applied, nil
	default:
		return skipped("unknown action %q", rec.Action), nil
	}
}

func applyCreate(st *domain.State, rec wal.Record) Outcome {
	if rec.Order == nil {
		return skipped("order create without order body")
	}
	o := rec.Order.Clone()
	if o.OrderNo == "" {
		o.OrderNo = rec.OrderNo
	}
	if o.OrderNo == "" {
		return skipped("order create without orderNo")
	}
	st.PutOrder(o)
	return applied
}

func withActive(st *domain.State, rec wal.Record, fn func(*domain.Order)) Outcome {
	o := st.FindOrder(rec.OrderNo)
	if o == nil {
		return skipped("order %s not active", rec.OrderNo)
	}
	fn(o)
	return applied
}

func applyUpdate(st *domain.State, rec wal.Record) Outcome {
	if rec.Status != "" && !domain.OrderStatus(rec.Status).Valid() {
		return skipped("order %s: unknown status %q", rec.OrderNo, rec.Status)
	}
	return withActive(st, rec, func(o *domain.Order) {
		if rec.Status != "" {
			o.Status = domain.OrderStatus(rec.Status)
		}
		if rec.Printed != nil {
			o.Printed = *rec.Printed
		}
		if rec.Cooked != nil {
			o.Cooked = *rec.Cooked
		}
		if rec.PickupCalled != nil {
			o.PickupCalled = *rec.PickupCalled
		}
		if rec.PickedUp != nil {
			o.PickedUp = *rec.PickedUp
		}
	})
}

// applyCancel sets the cancelled state directly so a repeated record is a
// no-op rather than an already-cancelled error. Cancels of archived orders
// were made durable by the archive rewrite and find no active order here.
func applyCancel(st *domain.State, rec wal.Record) Outcome {
	return withActive(st, rec, func(o *domain.Order) {
		o.Status = domain.StatusCancelled
		o.CancelReason = rec.CancelReason
	})
}

func applyUpsert(st *domain.State, rec wal.Record) Outcome {
	if rec.Item == nil {
		return skipped("menu upsert without item")
	}
	item := *rec.Item
	if item.Category == "" {
		item.Category = domain.CategoryMain
		if rec.Action == wal.ActionSideUpsert {
			item.Category = domain.CategorySide
		}
	}
	if _, err := st.UpsertMenuItem(item); err != nil {
		return skipped("%v", err)
	}
	return applied
}

func (e *Engine) applyArchive(st *domain.State, rec wal.Record) (Outcome, error) {
	orderNo := rec.OrderNo
	if orderNo == "" && rec.Order != nil {
		orderNo = rec.Order.OrderNo
	}
	if orderNo == "" {
		return skipped("order archive without orderNo"), nil
	}
	sessionID := rec.SessionID
	if sessionID == "" {
		sessionID = st.Session.SessionID
	}
	archivedAt := rec.ArchivedAt
	if archivedAt == 0 {
		archivedAt = rec.TS
	}

	if st.HasOrder(orderNo) {
		if err := e.archive.ArchiveAndRemove(st, orderNo, sessionID, archivedAt, archive.Replay); err != nil {
			return Outcome{}, err
		}
		return applied, nil
	}

	exists, err := e.archive.Exists(sessionID, orderNo)
	if err != nil {
		return Outcome{}, err
	}
	if exists {
		return skipped("order %s already archived", orderNo), nil
	}
	if rec.Order == nil {
		return skipped("order %s not active and record has no body", orderNo), nil
	}
	if err := e.archive.Append(rec.Order.Clone(), sessionID, archivedAt); err != nil {
		return Outcome{}, err
	}
	return applied, nil
}
