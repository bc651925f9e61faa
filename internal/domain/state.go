package domain

import (
	"errors"
	"fmt"

	"golang.org/x/text/unicode/norm"
)

var (
	// ErrOrderNotFound is returned when an orderNo is not in the active set.
	ErrOrderNotFound = errors.New("order not found")

	// ErrAlreadyCancelled is returned when cancelling a cancelled order.
	ErrAlreadyCancelled = errors.New("order already cancelled")

	// ErrInvalidMenuItem is returned by upserts with an empty sku or an
	// unknown category.
	ErrInvalidMenuItem = errors.New("invalid menu item")

	// ErrInvalidStatus is returned by ApplyStatus for a status it does not
	// accept. Cancellation goes through Order.Cancel.
	ErrInvalidStatus = errors.New("invalid order status")
)

// State is the whole live model. The zero value is usable but has no
// settings defaults; use NewState.
type State struct {
	Settings Settings     `json:"settings"`
	Session  Session      `json:"session"`
	Printer  PrinterState `json:"printer"`
	Menu     []MenuItem   `json:"menu"`
	Orders   []Order      `json:"orders"`
}

// NewState returns an empty state with default settings.
func NewState() *State {
	return &State{
		Settings: DefaultSettings(),
		Session:  Session{NextOrderSeq: 1},
	}
}

// Reset replaces the receiver's contents with an empty default state.
func (s *State) Reset() {
	*s = *NewState()
}

// Clone returns a deep copy of the state.
func (s *State) Clone() *State {
	c := *s
	if s.Settings.Chinchiro.Multipliers != nil {
		c.Settings.Chinchiro.Multipliers = append([]float64(nil), s.Settings.Chinchiro.Multipliers...)
	}
	if s.Menu != nil {
		c.Menu = append([]MenuItem(nil), s.Menu...)
	}
	if s.Orders != nil {
		c.Orders = make([]Order, len(s.Orders))
		for i, o := range s.Orders {
			c.Orders[i] = o.Clone()
		}
	}
	return &c
}

// FindOrder returns a pointer into Orders, or nil.
func (s *State) FindOrder(orderNo string) *Order {
	for i := range s.Orders {
		if s.Orders[i].OrderNo == orderNo {
			return &s.Orders[i]
		}
	}
	return nil
}

// HasOrder reports whether orderNo is in the active set.
func (s *State) HasOrder(orderNo string) bool {
	return s.FindOrder(orderNo) != nil
}

// PutOrder inserts the order, or overwrites the active order with the same
// orderNo. It reports whether an existing order was replaced.
func (s *State) PutOrder(o Order) bool {
	if existing := s.FindOrder(o.OrderNo); existing != nil {
		*existing = o.Clone()
		return true
	}
	s.Orders = append(s.Orders, o.Clone())
	return false
}

// RemoveOrder deletes the order and returns it.
func (s *State) RemoveOrder(orderNo string) (Order, bool) {
	for i := range s.Orders {
		if s.Orders[i].OrderNo == orderNo {
			o := s.Orders[i]
			s.Orders = append(s.Orders[:i], s.Orders[i+1:]...)
			return o, true
		}
	}
	return Order{}, false
}

// FindMenuItem returns a pointer into Menu, or nil.
func (s *State) FindMenuItem(sku string) *MenuItem {
	for i := range s.Menu {
		if s.Menu[i].SKU == sku {
			return &s.Menu[i]
		}
	}
	return nil
}

// UpsertMenuItem inserts or replaces the catalog entry with item.SKU.
// Names are NFC-normalized. It reports whether an existing entry was updated.
func (s *State) UpsertMenuItem(item MenuItem) (bool, error) {
	if item.SKU == "" {
		return false, fmt.Errorf("upsert menu item: %w: empty sku", ErrInvalidMenuItem)
	}
	if item.Category != CategoryMain && item.Category != CategorySide {
		return false, fmt.Errorf("upsert menu item %s: %w: category %q", item.SKU, ErrInvalidMenuItem, item.Category)
	}
	item.Name = norm.NFC.String(item.Name)
	item.NameRomaji = norm.NFC.String(item.NameRomaji)

	if existing := s.FindMenuItem(item.SKU); existing != nil {
		*existing = item
		return true, nil
	}
	s.Menu = append(s.Menu, item)
	return false, nil
}

// EndSession clears the active orders and starts a new session.
// The archive is untouched.
func (s *State) EndSession(sessionID string, startedAt int64) {
	s.Orders = nil
	s.Session = Session{
		SessionID:    sessionID,
		StartedAt:    startedAt,
		NextOrderSeq: 1,
	}
	s.Printer = PrinterState{}
}

// MarkCooked sets the cooked and pickup_called flags.
func (o *Order) MarkCooked() {
	o.Cooked = true
	o.PickupCalled = true
}

// MarkPicked sets picked_up and takes the order off the call list.
func (o *Order) MarkPicked() {
	o.PickedUp = true
	o.PickupCalled = false
}

// Cancel marks the order cancelled.
func (o *Order) Cancel(reason string) error {
	if o.Status == StatusCancelled {
		return fmt.Errorf("cancel order %s: %w", o.OrderNo, ErrAlreadyCancelled)
	}
	o.Status = StatusCancelled
	o.CancelReason = reason
	return nil
}

// ApplyStatus sets the status and derives the flags the kitchen display uses.
// DONE/COOKED put the order on the call list; READY/PICKED mark it picked up.
// A cancelled order keeps its status and only takes the flags.
// It reports whether the order should now be finalized into the archive.
func (o *Order) ApplyStatus(status string) (bool, error) {
	switch status {
	case "DONE", "COOKED":
		o.MarkCooked()
	case "READY", "PICKED":
		o.MarkPicked()
	case string(StatusCooking):
		if o.Status == StatusCancelled {
			return false, fmt.Errorf("reopen order %s: %w", o.OrderNo, ErrAlreadyCancelled)
		}
		o.Status = StatusCooking
		return false, nil
	default:
		return false, fmt.Errorf("apply status %q to order %s: %w", status, o.OrderNo, ErrInvalidStatus)
	}
	if o.Status != StatusCancelled {
		o.Status = StatusDone
	}
	return o.PickedUp, nil
}
