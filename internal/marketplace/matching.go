package marketplace

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/immochain/immochain/internal/events"
	"github.com/immochain/immochain/internal/model"
)

// BuyResult reports the outcome of a filled buy order.
type BuyResult struct {
	Trades []model.Trade // One per matched segment, in fill order
	Cost   int64         // Total charged, the sum of segment costs
	Refund int64         // Payment in excess of Cost, returned to the buyer
}

// fill is one planned segment of a buy order.
type fill struct {
	order    *model.SellOrder
	quantity int64
	cost     int64
}

// CreateBuyOrder fills quantity shares of assetID for caller against resting
// sell orders in price/time priority, paying with payment (cents).
//
// The call is all-or-nothing: the book is walked and the total cost computed
// before anything mutates, so an undersupplied book or an insufficient
// payment leaves orders, balances, and escrow untouched.
func (m *Marketplace) CreateBuyOrder(caller model.Address, assetID int64, quantity int64, payment int64) (BuyResult, error) {
	if quantity <= 0 {
		return BuyResult{}, fmt.Errorf("marketplace: buy quantity must be positive: %w", model.ErrInvalidArgument)
	}
	if payment < 0 {
		return BuyResult{}, fmt.Errorf("marketplace: payment must not be negative: %w", model.ErrInvalidArgument)
	}

	asset, err := m.reg.Asset(assetID)
	if err != nil {
		return BuyResult{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	fills, total, err := m.plan(asset, quantity)
	if err != nil {
		return BuyResult{}, err
	}
	if payment < total {
		return BuyResult{}, fmt.Errorf("marketplace: payment %d below the computed cost %d: %w",
			payment, total, model.ErrInsufficientPayment)
	}

	trades, err := m.commit(asset, caller, fills)
	if err != nil {
		return BuyResult{}, err
	}

	m.logger.Info("buy order filled",
		"asset_id", assetID,
		"buyer", string(caller),
		"quantity", quantity,
		"segments", len(trades),
		"cost", total,
	)
	return BuyResult{Trades: trades, Cost: total, Refund: payment - total}, nil
}

// plan walks the book in price/time priority and returns the segments that
// would fill the requested quantity plus their total cost. Caller holds m.mu.
func (m *Marketplace) plan(asset model.Asset, quantity int64) ([]fill, int64, error) {
	book := make([]*model.SellOrder, len(m.books[asset.ID]))
	copy(book, m.books[asset.ID])
	sort.Slice(book, func(i, j int) bool {
		if book[i].PricePercent != book[j].PricePercent {
			return book[i].PricePercent < book[j].PricePercent
		}
		return book[i].Seq < book[j].Seq
	})

	var (
		fills     []fill
		total     int64
		remaining = quantity
	)
	for _, o := range book {
		if remaining == 0 {
			break
		}
		take := o.Quantity
		if take > remaining {
			take = remaining
		}
		cost := model.SegmentCost(take, o.PricePercent, asset.PublicSharePrice)
		fills = append(fills, fill{order: o, quantity: take, cost: cost})
		total += cost
		remaining -= take
	}
	if remaining > 0 {
		return nil, 0, fmt.Errorf("marketplace: not enough shares listed to fill the buy order, %d short: %w",
			remaining, model.ErrInsufficientSupply)
	}
	return fills, total, nil
}

// commit applies planned fills: registry transfer, escrow credit, order
// reduction, and one trade_executed event per segment. A registry failure
// mid-way unwinds every previously applied segment before returning, so the
// whole buy stays all-or-nothing. Caller holds m.mu.
func (m *Marketplace) commit(asset model.Asset, buyer model.Address, fills []fill) ([]model.Trade, error) {
	now := time.Now().UnixMicro()
	trades := make([]model.Trade, 0, len(fills))

	for i, f := range fills {
		if err := m.reg.Transfer(m.cfg.Address, asset.ID, f.order.Seller, buyer, f.quantity); err != nil {
			m.unwind(asset.ID, buyer, fills[:i])
			return nil, fmt.Errorf("marketplace: settlement transfer failed: %w", err)
		}

		m.escrow[f.order.Seller] += f.cost
		m.pooled += f.cost
		f.order.Quantity -= f.quantity

		trades = append(trades, model.Trade{
			ID:           uuid.New(),
			AssetID:      asset.ID,
			Seller:       f.order.Seller,
			Buyer:        buyer,
			Quantity:     f.quantity,
			PricePercent: f.order.PricePercent,
			Cost:         f.cost,
			ExecutedAt:   now,
		})
	}

	m.removeFilled(asset.ID)

	for _, tr := range trades {
		m.log.Append(events.Event{
			Type:         events.TypeTradeExecuted,
			TS:           tr.ExecutedAt,
			AssetID:      tr.AssetID,
			TradeID:      tr.ID,
			Seller:       tr.Seller,
			Buyer:        tr.Buyer,
			Quantity:     tr.Quantity,
			PricePercent: tr.PricePercent,
			Cost:         tr.Cost,
		})
	}
	return trades, nil
}

// unwind reverses already-committed segments after a mid-commit failure.
// The reverse transfers run with marketplace authority and cannot fail: the
// buyer received exactly the quantities being returned and m.mu has been held
// throughout.
func (m *Marketplace) unwind(assetID int64, buyer model.Address, applied []fill) {
	for i := len(applied) - 1; i >= 0; i-- {
		f := applied[i]
		if err := m.reg.Transfer(m.cfg.Address, assetID, buyer, f.order.Seller, f.quantity); err != nil {
			m.logger.Error("unwind transfer failed, balances inconsistent",
				"asset_id", assetID,
				"seller", string(f.order.Seller),
				"quantity", f.quantity,
				"error", err,
			)
		}
		m.escrow[f.order.Seller] -= f.cost
		if m.escrow[f.order.Seller] == 0 {
			delete(m.escrow, f.order.Seller)
		}
		m.pooled -= f.cost
		f.order.Quantity += f.quantity
	}
}

// removeFilled drops fully consumed orders, preserving creation order.
// Caller holds m.mu.
func (m *Marketplace) removeFilled(assetID int64) {
	book := m.books[assetID]
	kept := book[:0]
	for _, o := range book {
		if o.Quantity > 0 {
			kept = append(kept, o)
		}
	}
	if len(kept) == 0 {
		delete(m.books, assetID)
		return
	}
	m.books[assetID] = kept
}
