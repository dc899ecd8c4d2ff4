package events

import (
	"github.com/google/uuid"

	"github.com/immochain/immochain/internal/model"
)

// Type discriminates event payloads.
type Type string

const (
	TypeAssetRegistered   Type = "asset_registered"
	TypePriceChanged      Type = "price_changed"
	TypeSharesTransferred Type = "shares_transferred"
	TypeListedForSale     Type = "listed_for_sale"
	TypeUnlistedFromSale  Type = "unlisted_from_sale"
	TypeTradeExecuted     Type = "trade_executed"
)

// Event is one entry of the notification log. It is a flat record so it can
// be serialized unchanged to the feed and to the events table; fields not
// meaningful for a given Type are zero.
type Event struct {
	Seq  int64 `json:"seq"` // Assigned by the log, dense from 1
	Type Type  `json:"type"`
	TS   int64 `json:"ts"` // Operation time (µs since epoch)

	AssetID int64 `json:"asset_id,omitempty"`

	// asset_registered / price_changed
	Name        string        `json:"name,omitempty"`
	URI         string        `json:"uri,omitempty"`
	TotalShares int64         `json:"total_shares,omitempty"`
	Issuer      model.Address `json:"issuer,omitempty"`
	SharePrice  int64         `json:"share_price,omitempty"`

	// shares_transferred
	From model.Address `json:"from,omitempty"`
	To   model.Address `json:"to,omitempty"`

	// listed_for_sale / unlisted_from_sale / trade_executed
	OrderID      uuid.UUID     `json:"order_id,omitempty"`
	Seller       model.Address `json:"seller,omitempty"`
	Buyer        model.Address `json:"buyer,omitempty"`
	Quantity     int64         `json:"quantity,omitempty"`
	PricePercent int           `json:"price_percent,omitempty"`

	// trade_executed
	TradeID uuid.UUID `json:"trade_id,omitempty"`
	Cost    int64     `json:"cost,omitempty"`
}
