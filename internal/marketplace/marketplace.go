package marketplace

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/immochain/immochain/internal/events"
	"github.com/immochain/immochain/internal/model"
	"github.com/immochain/immochain/internal/registry"
)

// Config holds marketplace settings. The price band is configuration, not a
// fixed law: listed prices must lie in [MinPricePercent, MaxPricePercent] and
// be a multiple of PriceStepPercent.
type Config struct {
	Address              model.Address // Identity registered with the registry for transfer rights
	MinPricePercent      int
	MaxPricePercent      int
	PriceStepPercent     int
	SingleOrderPerSeller bool // Restore the one-order-per-(asset,seller) model
}

// DefaultConfig returns the historical band: 30% to 100% in steps of 5.
func DefaultConfig() Config {
	return Config{
		Address:          "marketplace",
		MinPricePercent:  30,
		MaxPricePercent:  100,
		PriceStepPercent: 5,
	}
}

// PayoutFunc performs the external payment action of a withdrawal. It runs
// after the escrow entry has been zeroed; returning an error restores the
// entry.
type PayoutFunc func(to model.Address, amount int64) error

// Marketplace owns the order book and the escrowed seller proceeds. Shares
// themselves never live here; the marketplace only requests transfers from
// the registry.
type Marketplace struct {
	cfg Config
	reg *registry.Registry

	mu      sync.Mutex
	books   map[int64][]*model.SellOrder // per asset, creation order
	escrow  map[model.Address]int64
	pooled  int64 // == sum of escrow balances
	nextSeq int64

	payout PayoutFunc
	log    *events.Log
	logger *slog.Logger
}

// New creates a marketplace trading against reg. A nil payout makes
// WithdrawFunds a pure bookkeeping operation.
func New(cfg Config, reg *registry.Registry, log *events.Log, payout PayoutFunc, logger *slog.Logger) *Marketplace {
	if logger == nil {
		logger = slog.Default()
	}
	if payout == nil {
		payout = func(model.Address, int64) error { return nil }
	}
	return &Marketplace{
		cfg:    cfg,
		reg:    reg,
		books:  make(map[int64][]*model.SellOrder),
		escrow: make(map[model.Address]int64),
		payout: payout,
		log:    log,
		logger: logger,
	}
}

// Address returns the identity the marketplace uses toward the registry.
func (m *Marketplace) Address() model.Address {
	return m.cfg.Address
}

// CreateSellOrder lists quantity shares of assetID at pricePercent of the
// asset's public share price. The seller's registry balance minus quantity
// already committed to open orders must cover the new order.
func (m *Marketplace) CreateSellOrder(caller model.Address, assetID int64, pricePercent int, quantity int64) (model.SellOrder, error) {
	if quantity <= 0 {
		return model.SellOrder{}, fmt.Errorf("marketplace: sell quantity must be positive: %w", model.ErrInvalidArgument)
	}
	if err := m.checkBand(pricePercent); err != nil {
		return model.SellOrder{}, err
	}
	if _, err := m.reg.Asset(assetID); err != nil {
		return model.SellOrder{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	committed := int64(0)
	for _, o := range m.books[assetID] {
		if o.Seller == caller {
			if m.cfg.SingleOrderPerSeller {
				return model.SellOrder{}, fmt.Errorf("marketplace: asset %d is already listed for sale by %s: %w",
					assetID, caller, model.ErrAlreadyListed)
			}
			committed += o.Quantity
		}
	}

	available := m.reg.BalanceOf(caller, assetID) - committed
	if available < quantity {
		return model.SellOrder{}, fmt.Errorf("marketplace: insufficient share balance, %d available: %w",
			available, model.ErrInsufficientBalance)
	}

	m.nextSeq++
	order := &model.SellOrder{
		ID:           uuid.New(),
		AssetID:      assetID,
		Seller:       caller,
		PricePercent: pricePercent,
		Quantity:     quantity,
		Seq:          m.nextSeq,
		CreatedAt:    time.Now().UnixMicro(),
	}
	m.books[assetID] = append(m.books[assetID], order)

	m.log.Append(events.Event{
		Type:         events.TypeListedForSale,
		TS:           order.CreatedAt,
		AssetID:      assetID,
		OrderID:      order.ID,
		Seller:       caller,
		Quantity:     quantity,
		PricePercent: pricePercent,
	})

	m.logger.Info("sell order created",
		"asset_id", assetID,
		"seller", string(caller),
		"quantity", quantity,
		"price_percent", pricePercent,
	)
	return *order, nil
}

// CancelSellOrder removes the caller's oldest open order for assetID.
func (m *Marketplace) CancelSellOrder(caller model.Address, assetID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	book := m.books[assetID]
	idx := -1
	for i, o := range book {
		if o.Seller == caller {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("marketplace: asset %d is not listed for sale by %s: %w",
			assetID, caller, model.ErrNotFound)
	}

	cancelled := book[idx]
	m.books[assetID] = append(book[:idx], book[idx+1:]...)

	m.log.Append(events.Event{
		Type:     events.TypeUnlistedFromSale,
		TS:       time.Now().UnixMicro(),
		AssetID:  assetID,
		OrderID:  cancelled.ID,
		Seller:   caller,
		Quantity: cancelled.Quantity,
	})

	m.logger.Info("sell order cancelled",
		"asset_id", assetID,
		"seller", string(caller),
		"quantity", cancelled.Quantity,
	)
	return nil
}

// OrdersByAddress returns seller's open orders for assetID in creation order.
func (m *Marketplace) OrdersByAddress(assetID int64, seller model.Address) []model.SellOrder {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []model.SellOrder
	for _, o := range m.books[assetID] {
		if o.Seller == seller {
			out = append(out, *o)
		}
	}
	return out
}

// Orders returns all open orders for assetID in creation order.
func (m *Marketplace) Orders(assetID int64) []model.SellOrder {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]model.SellOrder, 0, len(m.books[assetID]))
	for _, o := range m.books[assetID] {
		out = append(out, *o)
	}
	return out
}

// OrderCountByPrice groups open orders for assetID by price, summing
// quantity, ascending by price.
func (m *Marketplace) OrderCountByPrice(assetID int64) []model.PriceLevel {
	m.mu.Lock()
	defer m.mu.Unlock()

	byPrice := make(map[int]int64)
	for _, o := range m.books[assetID] {
		byPrice[o.PricePercent] += o.Quantity
	}

	out := make([]model.PriceLevel, 0, len(byPrice))
	for p, q := range byPrice {
		out = append(out, model.PriceLevel{PricePercent: p, Quantity: q})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PricePercent < out[j].PricePercent })
	return out
}

// FundsBalance returns the total payment funds held by the marketplace,
// which always equals the sum of all escrow balances.
func (m *Marketplace) FundsBalance() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pooled
}

// EscrowOf returns the proceeds held for one seller pending withdrawal.
func (m *Marketplace) EscrowOf(holder model.Address) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.escrow[holder]
}

// WithdrawFunds pays out the caller's entire escrow balance. A zero balance
// is a no-op. The escrow entry is zeroed before the external payout runs, so
// a reentrant call observes an empty balance.
func (m *Marketplace) WithdrawFunds(caller model.Address) (int64, error) {
	m.mu.Lock()
	amount := m.escrow[caller]
	if amount == 0 {
		m.mu.Unlock()
		return 0, nil
	}
	delete(m.escrow, caller)
	m.pooled -= amount
	m.mu.Unlock()

	if err := m.payout(caller, amount); err != nil {
		m.mu.Lock()
		m.escrow[caller] += amount
		m.pooled += amount
		m.mu.Unlock()
		return 0, fmt.Errorf("marketplace: payout to %s failed: %w", caller, err)
	}

	m.logger.Info("funds withdrawn", "holder", string(caller), "amount", amount)
	return amount, nil
}

// checkBand validates a listing price against the configured band.
func (m *Marketplace) checkBand(pricePercent int) error {
	if pricePercent < m.cfg.MinPricePercent || pricePercent > m.cfg.MaxPricePercent {
		return fmt.Errorf("marketplace: price is a percent between %d and %d: %w",
			m.cfg.MinPricePercent, m.cfg.MaxPricePercent, model.ErrInvalidArgument)
	}
	if m.cfg.PriceStepPercent > 1 && pricePercent%m.cfg.PriceStepPercent != 0 {
		return fmt.Errorf("marketplace: price must be a multiple of %d percent: %w",
			m.cfg.PriceStepPercent, model.ErrInvalidArgument)
	}
	return nil
}
