package domain

// Category splits the catalog into burgers and the things that go with them.
type Category string

const (
	CategoryMain Category = "MAIN"
	CategorySide Category = "SIDE"
)

// OrderStatus is the kitchen status of an order.
type OrderStatus string

const (
	StatusCooking   OrderStatus = "COOKING"
	StatusDone      OrderStatus = "DONE"
	StatusCancelled OrderStatus = "CANCELLED"
)

// Valid reports whether s is one of the three order statuses.
func (s OrderStatus) Valid() bool {
	switch s {
	case StatusCooking, StatusDone, StatusCancelled:
		return true
	}
	return false
}

// PriceMode records which price list a MAIN line was sold under.
type PriceMode string

const (
	PriceModeNone    PriceMode = ""
	PriceModeNormal  PriceMode = "normal"
	PriceModePresale PriceMode = "presale"
)

// LineKind identifies how a line item was sold.
type LineKind string

const (
	KindMain       LineKind = "MAIN"
	KindMainSingle LineKind = "MAIN_SINGLE"
	KindSideAsSet  LineKind = "SIDE_AS_SET"
	KindSideSingle LineKind = "SIDE_SINGLE"
	KindAdjust     LineKind = "ADJUST"
)

// MenuItem is one sellable catalog entry.
//
// MAIN items use PriceNormal, PricePresale and PresaleDiscountAmount.
// SIDE items use PriceSingle and PriceAsSide. A PricePresale of 0 means
// "not set": the presale price is then PriceNormal+PresaleDiscountAmount.
type MenuItem struct {
	SKU                   string   `json:"sku"`
	Name                  string   `json:"name"`
	NameRomaji            string   `json:"nameRomaji"`
	Category              Category `json:"category"`
	Active                bool     `json:"active"`
	PriceNormal           int      `json:"price_normal"`
	PricePresale          int      `json:"price_presale"`
	PresaleDiscountAmount int      `json:"presale_discount_amount"`
	PriceSingle           int      `json:"price_single"`
	PriceAsSide           int      `json:"price_as_side"`
}

// LineItem is one line of an order with its price frozen at sale time.
type LineItem struct {
	SKU              string    `json:"sku"`
	Name             string    `json:"name"`
	Qty              int       `json:"qty"`
	UnitPriceApplied int       `json:"unitPriceApplied"`
	PriceMode        PriceMode `json:"priceMode"`
	Kind             LineKind  `json:"kind"`
	DiscountName     string    `json:"discountName,omitempty"`
	DiscountValue    int       `json:"discountValue"`
}

// Subtotal is UnitPriceApplied*Qty minus the line discount. It may be
// negative for ADJUST lines.
func (l LineItem) Subtotal() int {
	return l.UnitPriceApplied*l.Qty - l.DiscountValue
}

// Order is an accepted order. It lives in State.Orders until it is
// finalized into the archive.
type Order struct {
	OrderNo      string      `json:"orderNo"`
	Status       OrderStatus `json:"status"`
	TS           int64       `json:"ts"`
	Printed      bool        `json:"printed"`
	Cooked       bool        `json:"cooked"`
	PickupCalled bool        `json:"pickup_called"`
	PickedUp     bool        `json:"picked_up"`
	CancelReason string      `json:"cancelReason"`
	Items        []LineItem  `json:"items"`
}

// Total returns sum(unitPriceApplied*qty) - sum(discountValue). The result is
// not clamped; callers that aggregate money clamp it themselves.
func (o Order) Total() int {
	total := 0
	for _, it := range o.Items {
		total += it.Subtotal()
	}
	return total
}

// Clone returns a deep copy of the order.
func (o Order) Clone() Order {
	c := o
	if o.Items != nil {
		c.Items = make([]LineItem, len(o.Items))
		copy(c.Items, o.Items)
	}
	return c
}

// Session is the current shift.
type Session struct {
	SessionID    string `json:"sessionId"`
	StartedAt    int64  `json:"startedAt"`
	Exported     bool   `json:"exported"`
	NextOrderSeq int    `json:"nextOrderSeq"`
}

// PrinterState mirrors what the printer queue last reported.
type PrinterState struct {
	PaperOut bool `json:"paperOut"`
	Overheat bool `json:"overheat"`
	HoldJobs int  `json:"holdJobs"`
}

// Chinchiro configures the dice-roll price adjustment applied to SET lines.
type Chinchiro struct {
	Enabled     bool      `json:"enabled"`
	Multipliers []float64 `json:"multipliers"`
	Rounding    string    `json:"rounding"`
}

// Numbering is the inclusive orderNo range.
type Numbering struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

// StoreInfo is printed on receipts.
type StoreInfo struct {
	Name       string `json:"name"`
	NameRomaji string `json:"nameRomaji"`
	RegisterID string `json:"registerId"`
}

// QRPrint controls the optional QR code at the bottom of receipts.
type QRPrint struct {
	Enabled bool   `json:"enabled"`
	Content string `json:"content"`
}

// Settings is the operator-editable configuration stored with the state.
type Settings struct {
	CatalogVersion int       `json:"catalogVersion"`
	Chinchiro      Chinchiro `json:"chinchiro"`
	Numbering      Numbering `json:"numbering"`
	Store          StoreInfo `json:"store"`
	PresaleEnabled bool      `json:"presaleEnabled"`
	QRPrint        QRPrint   `json:"qrPrint"`
}

// DefaultSettings returns the settings used when nothing has been stored.
func DefaultSettings() Settings {
	return Settings{
		CatalogVersion: 1,
		Chinchiro:      Chinchiro{Rounding: RoundingRound},
		Numbering:      Numbering{Min: 1, Max: 9999},
		Store: StoreInfo{
			Name:       "KDS BURGER",
			NameRomaji: "KDS BURGER",
			RegisterID: "REG-01",
		},
		PresaleEnabled: true,
	}
}
