// Package model defines shared data types used across the Immochain engine.
//
// Conventions:
//   - Payment amounts: int64 in the smallest denomination of the payment unit (cents)
//   - Sale prices: int percent of the asset's public share price
//   - Timestamps: int64 microseconds since Unix epoch
//   - IDs: int64 for assets, uuid.UUID for orders and trades
package model
