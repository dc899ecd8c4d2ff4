// Package marketplace implements the secondary market for SCPI shares.
//
// Sellers list shares at a percent of the asset's public share price inside a
// configured band. Buy orders walk the book in price/time priority, move
// shares through the registry, and escrow each seller's proceeds until the
// seller withdraws them. Every mutating operation is all-or-nothing: any
// failed check discards all tentative effects of the call.
package marketplace
