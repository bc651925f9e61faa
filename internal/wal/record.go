package wal

import (
	"fmt"

	"github.com/roach88/kds/internal/domain"
)

// Action identifies the kind of a WAL record.
type Action string

const (
	ActionOrderCreate    Action = "ORDER_CREATE"
	ActionOrderUpdate    Action = "ORDER_UPDATE"
	ActionOrderCancel    Action = "ORDER_CANCEL"
	ActionOrderCooked    Action = "ORDER_COOKED"
	ActionOrderPicked    Action = "ORDER_PICKED"
	ActionOrderArchive   Action = "ORDER_ARCHIVE"
	ActionSettingsUpdate Action = "SETTINGS_UPDATE"
	ActionMainUpsert     Action = "MAIN_UPSERT"
	ActionSideUpsert     Action = "SIDE_UPSERT"
	ActionSessionEnd     Action = "SESSION_END"
)

// Known reports whether a is one of the actions this version writes.
func (a Action) Known() bool {
	switch a {
	case ActionOrderCreate, ActionOrderUpdate, ActionOrderCancel,
		ActionOrderCooked, ActionOrderPicked, ActionOrderArchive,
		ActionSettingsUpdate, ActionMainUpsert, ActionSideUpsert,
		ActionSessionEnd:
		return true
	}
	return false
}

// Record is one line of the log. Action selects which of the optional
// fields are meaningful; the rest stay empty and are omitted on the wire.
type Record struct {
	ID     string `json:"id,omitempty"`
	TS     int64  `json:"ts"`
	Action Action `json:"action"`

	// Order actions.
	OrderNo string        `json:"orderNo,omitempty"`
	Order   *domain.Order `json:"order,omitempty"`

	// ORDER_UPDATE.
	Status       string `json:"status,omitempty"`
	Printed      *bool  `json:"printed,omitempty"`
	Cooked       *bool  `json:"cooked,omitempty"`
	PickupCalled *bool  `json:"pickup_called,omitempty"`
	PickedUp     *bool  `json:"picked_up,omitempty"`

	// ORDER_CANCEL. Archived is set when the cancelled order had already
	// left the active set.
	CancelReason string `json:"cancelReason,omitempty"`
	Archived     bool   `json:"archived,omitempty"`

	// ORDER_ARCHIVE.
	SessionID  string `json:"sessionId,omitempty"`
	ArchivedAt int64  `json:"archivedAt,omitempty"`

	// SETTINGS_UPDATE.
	Settings *SettingsPatch `json:"settings,omitempty"`

	// MAIN_UPSERT / SIDE_UPSERT.
	Item *domain.MenuItem `json:"item,omitempty"`

	// SESSION_END: the session that starts once the old one is closed.
	Session *domain.Session `json:"session,omitempty"`
}

// SettingsPatch carries the settings sections a SETTINGS_UPDATE replaces.
// Nil sections are left alone.
type SettingsPatch struct {
	CatalogVersion *int              `json:"catalogVersion,omitempty"`
	Chinchiro      *domain.Chinchiro `json:"chinchiro,omitempty"`
	Numbering      *domain.Numbering `json:"numbering,omitempty"`
	Store          *domain.StoreInfo `json:"store,omitempty"`
	PresaleEnabled *bool             `json:"presaleEnabled,omitempty"`
	QRPrint        *domain.QRPrint   `json:"qrPrint,omitempty"`
}

// Apply merges the patch into s, section by section.
func (p *SettingsPatch) Apply(s *domain.Settings) {
	if p == nil {
		return
	}
	if p.CatalogVersion != nil {
		s.CatalogVersion = *p.CatalogVersion
	}
	if p.Chinchiro != nil {
		c := *p.Chinchiro
		c.Multipliers = append([]float64(nil), p.Chinchiro.Multipliers...)
		s.Chinchiro = c
	}
	if p.Numbering != nil {
		s.Numbering = *p.Numbering
	}
	if p.Store != nil {
		s.Store = *p.Store
	}
	if p.PresaleEnabled != nil {
		s.PresaleEnabled = *p.PresaleEnabled
	}
	if p.QRPrint != nil {
		s.QRPrint = *p.QRPrint
	}
}

// Key identifies the record in diagnostics.
func (r Record) Key() string {
	if r.ID != "" {
		return r.ID
	}
	return fmt.Sprintf("ts=%d", r.TS)
}

func boolPtr(b bool) *bool { return &b }

// OrderCreate records a newly accepted order with its full body.
func OrderCreate(o domain.Order) Record {
	c := o.Clone()
	return Record{Action: ActionOrderCreate, OrderNo: o.OrderNo, Order: &c}
}

// OrderUpdate records the status and lifecycle flags of o after a change.
func OrderUpdate(o domain.Order) Record {
	return Record{
		Action:       ActionOrderUpdate,
		OrderNo:      o.OrderNo,
		Status:       string(o.Status),
		Printed:      boolPtr(o.Printed),
		Cooked:       boolPtr(o.Cooked),
		PickupCalled: boolPtr(o.PickupCalled),
		PickedUp:     boolPtr(o.PickedUp),
	}
}

// OrderCancel records a cancellation.
func OrderCancel(orderNo, reason string, archived bool) Record {
	return Record{Action: ActionOrderCancel, OrderNo: orderNo, CancelReason: reason, Archived: archived}
}

// OrderCooked records that the kitchen finished an order.
func OrderCooked(orderNo string) Record {
	return Record{Action: ActionOrderCooked, OrderNo: orderNo}
}

// OrderPicked records that the customer collected an order.
func OrderPicked(orderNo string) Record {
	return Record{Action: ActionOrderPicked, OrderNo: orderNo}
}

// OrderArchive records the move of o into the archive. The body is embedded
// so replay can archive an order whose creation predates every retained
// generation.
func OrderArchive(o domain.Order, sessionID string, archivedAt int64) Record {
	c := o.Clone()
	return Record{
		Action:     ActionOrderArchive,
		OrderNo:    o.OrderNo,
		Order:      &c,
		SessionID:  sessionID,
		ArchivedAt: archivedAt,
	}
}

// SettingsUpdate records a settings change.
func SettingsUpdate(p SettingsPatch) Record {
	return Record{Action: ActionSettingsUpdate, Settings: &p}
}

// MenuUpsert records a catalog upsert; the action follows the category.
func MenuUpsert(item domain.MenuItem) Record {
	action := ActionMainUpsert
	if item.Category == domain.CategorySide {
		action = ActionSideUpsert
	}
	return Record{Action: action, Item: &item}
}

// SessionEnd records the end of the running session and the start of next.
func SessionEnd(next domain.Session) Record {
	return Record{Action: ActionSessionEnd, Session: &next}
}
