package model

import "github.com/google/uuid"

// Address identifies an account. The empty string is the zero address and
// never owns shares or funds.
type Address string

// ZeroAddress is the null account.
const ZeroAddress Address = ""

// -----------------------------------------------------------------------------
// Registry Types
// -----------------------------------------------------------------------------

// Asset represents one registered SCPI with a fixed share supply.
type Asset struct {
	ID               int64   // Sequential, assigned at registration starting at 1
	Issuer           Address // Account allowed to distribute inventory and set the price
	Name             string  // Display name, immutable
	URI              string  // Display image/reference string
	TotalShares      int64   // Fixed supply minted at registration
	PublicSharePrice int64   // Reference price per share (cents), issuer-mutable, > 0
}

// -----------------------------------------------------------------------------
// Marketplace Types
// -----------------------------------------------------------------------------

// SellOrder is a standing offer to sell shares at a percent of the asset's
// public share price.
type SellOrder struct {
	ID           uuid.UUID // Order ID
	AssetID      int64     // Asset being sold
	Seller       Address   // Listing account
	PricePercent int       // Percent of PublicSharePrice (band-checked)
	Quantity     int64     // Remaining unfilled quantity, > 0 while listed
	Seq          int64     // Global creation sequence, used for time priority
	CreatedAt    int64     // Creation time (µs since epoch)
}

// Trade is one matched segment of a buy order.
type Trade struct {
	ID           uuid.UUID // Trade ID
	AssetID      int64     // Asset traded
	Seller       Address   // Resting order owner
	Buyer        Address   // Buy order submitter
	Quantity     int64     // Shares moved
	PricePercent int       // Resting order price
	Cost         int64     // Payment credited to the seller (cents)
	ExecutedAt   int64     // Execution time (µs since epoch)
}

// PriceLevel aggregates open sell quantity at one price.
type PriceLevel struct {
	PricePercent int
	Quantity     int64
}

// BookSnapshot captures one asset's open sell levels and the marketplace
// pooled funds at a point in time.
type BookSnapshot struct {
	SnapshotTS  int64        // Snapshot timestamp (µs since epoch)
	AssetID     int64        // Asset snapshotted
	Levels      []PriceLevel // Open quantity per price, ascending
	PooledFunds int64        // Total escrowed funds at snapshot time
}

// SegmentCost computes the payment owed for filling quantity shares at
// pricePercent of publicSharePrice. The division happens last and truncates
// toward zero; callers charge the sum of truncated segment costs so buyer
// payment and escrow credits balance exactly.
func SegmentCost(quantity int64, pricePercent int, publicSharePrice int64) int64 {
	return quantity * int64(pricePercent) * publicSharePrice / 100
}
