// Package domain holds the in-memory model of the stall: settings, the live
// session, printer status, the catalog and the active orders.
//
// The package has no persistence logic. Everything that reaches disk goes
// through the snapshot, wal and archive packages, which all read and write the
// types defined here.
//
// # Invariants
//
//   - MenuItem.SKU is unique inside State.Menu; mutation is upsert-by-sku only.
//   - Order.OrderNo is unique inside State.Orders.
//   - LineItem.UnitPriceApplied is captured when the order is built and never
//     recomputed from the catalog.
//
// State is not safe for concurrent use. The store facade serializes access.
package domain
