package domain

import "time"

// BootstrapFunc seeds a state that has no usable catalog. now is epoch
// seconds.
type BootstrapFunc func(st *State, now int64) error

// SessionIDFor formats the shift identifier for t, e.g. "2025-09-25-AM".
func SessionIDFor(t time.Time) string {
	return t.Format("2006-01-02-PM")
}

// DefaultCatalog returns the stall's starter menu: three burgers, four
// drinks and fries.
func DefaultCatalog() []MenuItem {
	menu := []MenuItem{
		{SKU: "main_0001", Name: "Aバーガー", NameRomaji: "A Burger", Category: CategoryMain, Active: true, PriceNormal: 500, PresaleDiscountAmount: -100},
		{SKU: "main_0002", Name: "Bバーガー", NameRomaji: "B Burger", Category: CategoryMain, Active: true, PriceNormal: 600, PresaleDiscountAmount: -100},
		{SKU: "main_0003", Name: "Cバーガー", NameRomaji: "C Burger", Category: CategoryMain, Active: true, PriceNormal: 700, PresaleDiscountAmount: -100},
	}
	drinks := []struct{ sku, name, romaji string }{
		{"side_0001", "ドリンクA", "Drink A"},
		{"side_0002", "ドリンクB", "Drink B"},
		{"side_0003", "ドリンクC", "Drink C"},
		{"side_0004", "ドリンクD", "Drink D"},
	}
	for _, d := range drinks {
		menu = append(menu, MenuItem{
			SKU: d.sku, Name: d.name, NameRomaji: d.romaji, Category: CategorySide,
			Active: true, PriceSingle: 200, PriceAsSide: 100,
		})
	}
	menu = append(menu, MenuItem{
		SKU: "side_0005", Name: "ポテトS", NameRomaji: "French Fries S", Category: CategorySide,
		Active: true, PriceSingle: 300, PriceAsSide: 150,
	})
	return menu
}

// Bootstrap installs the default catalog and chinchiro settings and, when
// no session is running, opens one named after now.
func Bootstrap(st *State, now int64) error {
	st.Menu = nil
	for _, item := range DefaultCatalog() {
		if _, err := st.UpsertMenuItem(item); err != nil {
			return err
		}
	}
	st.Settings.Chinchiro = Chinchiro{
		Enabled:     true,
		Multipliers: []float64{0, 0.5, 1, 2, 3},
		Rounding:    RoundingRound,
	}
	if st.Session.SessionID == "" {
		st.Session.SessionID = SessionIDFor(time.Unix(now, 0))
		st.Session.StartedAt = now
		if st.Session.NextOrderSeq == 0 {
			st.Session.NextOrderSeq = 1
		}
	}
	return nil
}
