package marketplace

import (
	"errors"
	"testing"

	"github.com/immochain/immochain/internal/events"
	"github.com/immochain/immochain/internal/model"
	"github.com/immochain/immochain/internal/registry"
)

const (
	admin = model.Address("admin")
	scpi1 = model.Address("scpi1")
	user1 = model.Address("user1")
	user2 = model.Address("user2")
	user3 = model.Address("user3")
)

// publicPrice is the SCPI 1 reference price in cents.
const publicPrice = int64(200)

// newTestMarket registers SCPI 1 with 10000 shares at publicPrice and hands
// 6000 of them to user1.
func newTestMarket(t *testing.T, cfg Config) (*Marketplace, *registry.Registry, *events.Log) {
	t.Helper()

	log := events.NewLog(nil)
	reg := registry.New(admin, log, nil)
	m := New(cfg, reg, log, nil, nil)

	if err := reg.SetMarketplaceAddress(admin, m.Address()); err != nil {
		t.Fatalf("SetMarketplaceAddress() error = %v", err)
	}
	if _, err := reg.RegisterAsset(admin, scpi1, "SCPI 1", 10000, "URI", publicPrice); err != nil {
		t.Fatalf("RegisterAsset() error = %v", err)
	}
	if err := reg.Transfer(scpi1, 1, scpi1, user1, 6000); err != nil {
		t.Fatalf("Transfer() error = %v", err)
	}
	return m, reg, log
}

func TestCreateSellOrder(t *testing.T) {
	m, _, log := newTestMarket(t, DefaultConfig())

	order, err := m.CreateSellOrder(user1, 1, 100, 6000)
	if err != nil {
		t.Fatalf("CreateSellOrder() error = %v", err)
	}
	if order.Quantity != 6000 || order.PricePercent != 100 || order.Seller != user1 {
		t.Errorf("order = %+v", order)
	}

	got := m.OrdersByAddress(1, user1)
	if len(got) != 1 {
		t.Fatalf("OrdersByAddress() len = %d, want 1", len(got))
	}
	if got[0].ID != order.ID {
		t.Errorf("order ID = %v, want %v", got[0].ID, order.ID)
	}

	evs := log.ReplayFrom(0)
	last := evs[len(evs)-1]
	if last.Type != events.TypeListedForSale || last.Seller != user1 || last.Quantity != 6000 || last.PricePercent != 100 {
		t.Errorf("last event = %+v", last)
	}
}

func TestCreateSellOrder_InsufficientBalance(t *testing.T) {
	m, _, _ := newTestMarket(t, DefaultConfig())

	_, err := m.CreateSellOrder(user1, 1, 100, 6001)
	if !errors.Is(err, model.ErrInsufficientBalance) {
		t.Errorf("CreateSellOrder() error = %v, want ErrInsufficientBalance", err)
	}
}

func TestCreateSellOrder_PriceBand(t *testing.T) {
	m, _, _ := newTestMarket(t, DefaultConfig())

	for _, price := range []int{0, 29, 101, -5} {
		if _, err := m.CreateSellOrder(user1, 1, price, 60); !errors.Is(err, model.ErrInvalidArgument) {
			t.Errorf("price %d: error = %v, want ErrInvalidArgument", price, err)
		}
	}

	// Step check: 33 is in range but not a multiple of 5.
	if _, err := m.CreateSellOrder(user1, 1, 33, 60); !errors.Is(err, model.ErrInvalidArgument) {
		t.Errorf("price 33: error = %v, want ErrInvalidArgument", err)
	}

	// Band bounds are inclusive.
	if _, err := m.CreateSellOrder(user1, 1, 30, 60); err != nil {
		t.Errorf("price 30: error = %v", err)
	}
	if _, err := m.CreateSellOrder(user1, 1, 100, 60); err != nil {
		t.Errorf("price 100: error = %v", err)
	}
}

func TestCreateSellOrder_UnknownAsset(t *testing.T) {
	m, _, _ := newTestMarket(t, DefaultConfig())

	_, err := m.CreateSellOrder(user1, 42, 100, 10)
	if !errors.Is(err, model.ErrNotFound) {
		t.Errorf("CreateSellOrder() error = %v, want ErrNotFound", err)
	}
}

func TestCreateSellOrder_ListingBoundAcrossOrders(t *testing.T) {
	m, _, _ := newTestMarket(t, DefaultConfig())

	if _, err := m.CreateSellOrder(user1, 1, 100, 4000); err != nil {
		t.Fatalf("first order error = %v", err)
	}
	if _, err := m.CreateSellOrder(user1, 1, 50, 2000); err != nil {
		t.Fatalf("second order error = %v", err)
	}

	// 6000 of 6000 committed; one more share cannot be listed.
	_, err := m.CreateSellOrder(user1, 1, 50, 1)
	if !errors.Is(err, model.ErrInsufficientBalance) {
		t.Errorf("third order error = %v, want ErrInsufficientBalance", err)
	}
}

func TestCreateSellOrder_SingleOrderModel(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SingleOrderPerSeller = true
	m, _, _ := newTestMarket(t, cfg)

	if _, err := m.CreateSellOrder(user1, 1, 100, 1000); err != nil {
		t.Fatalf("first order error = %v", err)
	}
	_, err := m.CreateSellOrder(user1, 1, 100, 1000)
	if !errors.Is(err, model.ErrAlreadyListed) {
		t.Errorf("second order error = %v, want ErrAlreadyListed", err)
	}
}

func TestCancelSellOrder(t *testing.T) {
	m, _, log := newTestMarket(t, DefaultConfig())
	m.CreateSellOrder(user1, 1, 100, 5000)

	if err := m.CancelSellOrder(user1, 1); err != nil {
		t.Fatalf("CancelSellOrder() error = %v", err)
	}
	if got := m.OrdersByAddress(1, user1); len(got) != 0 {
		t.Errorf("OrdersByAddress() len = %d, want 0", len(got))
	}

	evs := log.ReplayFrom(0)
	last := evs[len(evs)-1]
	if last.Type != events.TypeUnlistedFromSale || last.Seller != user1 || last.AssetID != 1 {
		t.Errorf("last event = %+v", last)
	}

	// Relisting after cancel works.
	if _, err := m.CreateSellOrder(user1, 1, 100, 6000); err != nil {
		t.Errorf("relist error = %v", err)
	}
}

func TestCancelSellOrder_NothingListed(t *testing.T) {
	m, _, _ := newTestMarket(t, DefaultConfig())

	if err := m.CancelSellOrder(user1, 1); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("CancelSellOrder() error = %v, want ErrNotFound", err)
	}
}

func TestCancelSellOrder_RemovesOldestFirst(t *testing.T) {
	m, _, _ := newTestMarket(t, DefaultConfig())
	first, _ := m.CreateSellOrder(user1, 1, 100, 1000)
	second, _ := m.CreateSellOrder(user1, 1, 50, 2000)

	if err := m.CancelSellOrder(user1, 1); err != nil {
		t.Fatalf("CancelSellOrder() error = %v", err)
	}

	got := m.OrdersByAddress(1, user1)
	if len(got) != 1 {
		t.Fatalf("OrdersByAddress() len = %d, want 1", len(got))
	}
	if got[0].ID != second.ID {
		t.Errorf("remaining order = %v, want the newer order %v (oldest %v cancelled)",
			got[0].ID, second.ID, first.ID)
	}
}

func TestOrderCountByPrice(t *testing.T) {
	m, reg, _ := newTestMarket(t, DefaultConfig())
	reg.Transfer(scpi1, 1, scpi1, user2, 1000)

	m.CreateSellOrder(user1, 1, 100, 2)
	m.CreateSellOrder(user2, 1, 50, 4)
	m.CreateSellOrder(user1, 1, 50, 3)

	levels := m.OrderCountByPrice(1)
	want := []model.PriceLevel{{PricePercent: 50, Quantity: 7}, {PricePercent: 100, Quantity: 2}}
	if len(levels) != len(want) {
		t.Fatalf("len(levels) = %d, want %d", len(levels), len(want))
	}
	for i := range want {
		if levels[i] != want[i] {
			t.Errorf("levels[%d] = %+v, want %+v", i, levels[i], want[i])
		}
	}
}

func TestWithdrawFunds(t *testing.T) {
	var paid []int64
	log := events.NewLog(nil)
	reg := registry.New(admin, log, nil)
	m := New(DefaultConfig(), reg, log, func(to model.Address, amount int64) error {
		paid = append(paid, amount)
		return nil
	}, nil)
	reg.SetMarketplaceAddress(admin, m.Address())
	reg.RegisterAsset(admin, scpi1, "SCPI 1", 10000, "URI", publicPrice)
	reg.Transfer(scpi1, 1, scpi1, user1, 6000)

	m.CreateSellOrder(user1, 1, 100, 5000)
	res, err := m.CreateBuyOrder(user2, 1, 15, 15*publicPrice)
	if err != nil {
		t.Fatalf("CreateBuyOrder() error = %v", err)
	}

	got, err := m.WithdrawFunds(user1)
	if err != nil {
		t.Fatalf("WithdrawFunds() error = %v", err)
	}
	if got != res.Cost {
		t.Errorf("WithdrawFunds() = %d, want %d", got, res.Cost)
	}
	if len(paid) != 1 || paid[0] != res.Cost {
		t.Errorf("payouts = %v, want [%d]", paid, res.Cost)
	}
	if m.EscrowOf(user1) != 0 {
		t.Errorf("EscrowOf(user1) = %d, want 0", m.EscrowOf(user1))
	}
	if m.FundsBalance() != 0 {
		t.Errorf("FundsBalance() = %d, want 0", m.FundsBalance())
	}

	// Second withdrawal is a no-op.
	got, err = m.WithdrawFunds(user1)
	if err != nil || got != 0 {
		t.Errorf("second WithdrawFunds() = %d, %v, want 0, nil", got, err)
	}
	if len(paid) != 1 {
		t.Errorf("payouts after no-op = %v, want 1 entry", paid)
	}
}

func TestWithdrawFunds_PayoutFailureRestoresEscrow(t *testing.T) {
	fail := errors.New("bank offline")
	log := events.NewLog(nil)
	reg := registry.New(admin, log, nil)
	m := New(DefaultConfig(), reg, log, func(model.Address, int64) error {
		return fail
	}, nil)
	reg.SetMarketplaceAddress(admin, m.Address())
	reg.RegisterAsset(admin, scpi1, "SCPI 1", 10000, "URI", publicPrice)
	reg.Transfer(scpi1, 1, scpi1, user1, 6000)

	m.CreateSellOrder(user1, 1, 100, 100)
	if _, err := m.CreateBuyOrder(user2, 1, 10, 10*publicPrice); err != nil {
		t.Fatalf("CreateBuyOrder() error = %v", err)
	}
	before := m.EscrowOf(user1)

	_, err := m.WithdrawFunds(user1)
	if !errors.Is(err, fail) {
		t.Fatalf("WithdrawFunds() error = %v, want wrapped payout error", err)
	}
	if m.EscrowOf(user1) != before {
		t.Errorf("EscrowOf(user1) = %d, want %d restored", m.EscrowOf(user1), before)
	}
	if m.FundsBalance() != before {
		t.Errorf("FundsBalance() = %d, want %d", m.FundsBalance(), before)
	}
}
