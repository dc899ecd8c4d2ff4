package marketplace

import (
	"errors"
	"testing"

	"github.com/immochain/immochain/internal/events"
	"github.com/immochain/immochain/internal/model"
	"github.com/immochain/immochain/internal/registry"
)

// setupTwoSellers lists A(price=100, qty=3) by user1 then B(price=50, qty=5)
// by user2 on SCPI 1.
func setupTwoSellers(t *testing.T) (*Marketplace, *registry.Registry, *events.Log) {
	t.Helper()

	m, reg, log := newTestMarket(t, DefaultConfig())
	if err := reg.Transfer(scpi1, 1, scpi1, user2, 1000); err != nil {
		t.Fatalf("Transfer() error = %v", err)
	}
	if _, err := m.CreateSellOrder(user1, 1, 100, 3); err != nil {
		t.Fatalf("CreateSellOrder(A) error = %v", err)
	}
	if _, err := m.CreateSellOrder(user2, 1, 50, 5); err != nil {
		t.Fatalf("CreateSellOrder(B) error = %v", err)
	}
	return m, reg, log
}

func TestCreateBuyOrder_SingleOrderPartialFill(t *testing.T) {
	m, reg, _ := newTestMarket(t, DefaultConfig())
	m.CreateSellOrder(user1, 1, 100, 5000)

	payment := model.SegmentCost(15, 100, publicPrice)
	res, err := m.CreateBuyOrder(user2, 1, 15, payment)
	if err != nil {
		t.Fatalf("CreateBuyOrder() error = %v", err)
	}

	if res.Cost != payment || res.Refund != 0 {
		t.Errorf("result cost = %d refund = %d, want %d and 0", res.Cost, res.Refund, payment)
	}
	if len(res.Trades) != 1 {
		t.Fatalf("len(Trades) = %d, want 1", len(res.Trades))
	}

	// Shares moved.
	if got := reg.BalanceOf(user1, 1); got != 6000-15 {
		t.Errorf("BalanceOf(user1) = %d, want %d", got, 6000-15)
	}
	if got := reg.BalanceOf(user2, 1); got != 15 {
		t.Errorf("BalanceOf(user2) = %d, want 15", got)
	}

	// Order reduced in place.
	orders := m.OrdersByAddress(1, user1)
	if len(orders) != 1 || orders[0].Quantity != 5000-15 {
		t.Errorf("remaining order = %+v, want quantity %d", orders, 5000-15)
	}

	// Proceeds escrowed.
	if got := m.EscrowOf(user1); got != payment {
		t.Errorf("EscrowOf(user1) = %d, want %d", got, payment)
	}
	if got := m.FundsBalance(); got != payment {
		t.Errorf("FundsBalance() = %d, want %d", got, payment)
	}
}

func TestCreateBuyOrder_PriceTimePriority(t *testing.T) {
	m, _, _ := setupTwoSellers(t)

	// A buy for 3 fills entirely from B (lower price), leaving A untouched.
	res, err := m.CreateBuyOrder(user3, 1, 3, model.SegmentCost(3, 50, publicPrice))
	if err != nil {
		t.Fatalf("CreateBuyOrder() error = %v", err)
	}

	if len(res.Trades) != 1 {
		t.Fatalf("len(Trades) = %d, want 1", len(res.Trades))
	}
	tr := res.Trades[0]
	if tr.Seller != user2 || tr.PricePercent != 50 || tr.Quantity != 3 {
		t.Errorf("trade = %+v, want 3 from user2 at 50", tr)
	}

	b := m.OrdersByAddress(1, user2)
	if len(b) != 1 || b[0].Quantity != 2 {
		t.Errorf("B = %+v, want quantity 2", b)
	}
	a := m.OrdersByAddress(1, user1)
	if len(a) != 1 || a[0].Quantity != 3 {
		t.Errorf("A = %+v, want quantity 3 untouched", a)
	}
}

func TestCreateBuyOrder_MultiSegmentFill(t *testing.T) {
	m, reg, _ := setupTwoSellers(t)

	costB := model.SegmentCost(5, 50, publicPrice)
	costA := model.SegmentCost(3, 100, publicPrice)
	res, err := m.CreateBuyOrder(user3, 1, 8, costA+costB)
	if err != nil {
		t.Fatalf("CreateBuyOrder() error = %v", err)
	}

	if len(res.Trades) != 2 {
		t.Fatalf("len(Trades) = %d, want 2", len(res.Trades))
	}
	// Cheapest order consumed first.
	if res.Trades[0].Seller != user2 || res.Trades[0].Quantity != 5 || res.Trades[0].Cost != costB {
		t.Errorf("Trades[0] = %+v, want 5 from user2 cost %d", res.Trades[0], costB)
	}
	if res.Trades[1].Seller != user1 || res.Trades[1].Quantity != 3 || res.Trades[1].Cost != costA {
		t.Errorf("Trades[1] = %+v, want 3 from user1 cost %d", res.Trades[1], costA)
	}

	// Both orders fully removed.
	if got := m.Orders(1); len(got) != 0 {
		t.Errorf("Orders(1) = %+v, want empty", got)
	}

	// Buyer holds all 8.
	if got := reg.BalanceOf(user3, 1); got != 8 {
		t.Errorf("BalanceOf(user3) = %d, want 8", got)
	}

	// Per-seller escrow.
	if got := m.EscrowOf(user2); got != costB {
		t.Errorf("EscrowOf(user2) = %d, want %d", got, costB)
	}
	if got := m.EscrowOf(user1); got != costA {
		t.Errorf("EscrowOf(user1) = %d, want %d", got, costA)
	}
}

func TestCreateBuyOrder_EmitsOneEventPerSegment(t *testing.T) {
	m, _, log := setupTwoSellers(t)
	before := log.LastSeq()

	costB := model.SegmentCost(5, 50, publicPrice)
	costA := model.SegmentCost(3, 100, publicPrice)
	if _, err := m.CreateBuyOrder(user3, 1, 8, costA+costB); err != nil {
		t.Fatalf("CreateBuyOrder() error = %v", err)
	}

	var trades []events.Event
	for _, ev := range log.ReplayFrom(before + 1) {
		if ev.Type == events.TypeTradeExecuted {
			trades = append(trades, ev)
		}
	}
	if len(trades) != 2 {
		t.Fatalf("trade events = %d, want 2", len(trades))
	}
	if trades[0].Seller != user2 || trades[0].Cost != costB {
		t.Errorf("trades[0] = %+v", trades[0])
	}
	if trades[1].Seller != user1 || trades[1].Cost != costA {
		t.Errorf("trades[1] = %+v", trades[1])
	}
}

func TestCreateBuyOrder_FIFOAmongEqualPrices(t *testing.T) {
	m, reg, _ := newTestMarket(t, DefaultConfig())
	reg.Transfer(scpi1, 1, scpi1, user2, 1000)

	older, _ := m.CreateSellOrder(user1, 1, 50, 4)
	newer, _ := m.CreateSellOrder(user2, 1, 50, 4)

	res, err := m.CreateBuyOrder(user3, 1, 4, model.SegmentCost(4, 50, publicPrice))
	if err != nil {
		t.Fatalf("CreateBuyOrder() error = %v", err)
	}
	if len(res.Trades) != 1 || res.Trades[0].Seller != user1 {
		t.Errorf("Trades = %+v, want fill from the older order (%v before %v)",
			res.Trades, older.ID, newer.ID)
	}
	if got := m.OrdersByAddress(1, user2); len(got) != 1 || got[0].Quantity != 4 {
		t.Errorf("newer order = %+v, want untouched", got)
	}
}

func TestCreateBuyOrder_InsufficientSupply(t *testing.T) {
	m, reg, log := setupTwoSellers(t)
	before := log.LastSeq()

	_, err := m.CreateBuyOrder(user3, 1, 9, 1_000_000)
	if !errors.Is(err, model.ErrInsufficientSupply) {
		t.Fatalf("CreateBuyOrder() error = %v, want ErrInsufficientSupply", err)
	}

	// No partial state changes committed.
	if got := m.Orders(1); len(got) != 2 {
		t.Errorf("Orders(1) = %+v, want both intact", got)
	}
	if got := reg.BalanceOf(user3, 1); got != 0 {
		t.Errorf("BalanceOf(user3) = %d, want 0", got)
	}
	if got := m.FundsBalance(); got != 0 {
		t.Errorf("FundsBalance() = %d, want 0", got)
	}
	if log.LastSeq() != before {
		t.Errorf("events appended on failed buy: %d -> %d", before, log.LastSeq())
	}
}

func TestCreateBuyOrder_InsufficientPayment(t *testing.T) {
	m, reg, log := setupTwoSellers(t)
	before := log.LastSeq()

	cost := model.SegmentCost(5, 50, publicPrice) + model.SegmentCost(3, 100, publicPrice)
	_, err := m.CreateBuyOrder(user3, 1, 8, cost-1)
	if !errors.Is(err, model.ErrInsufficientPayment) {
		t.Fatalf("CreateBuyOrder() error = %v, want ErrInsufficientPayment", err)
	}

	if got := m.Orders(1); len(got) != 2 {
		t.Errorf("Orders(1) = %+v, want both intact", got)
	}
	if got := reg.BalanceOf(user3, 1); got != 0 {
		t.Errorf("BalanceOf(user3) = %d, want 0", got)
	}
	if m.EscrowOf(user1)+m.EscrowOf(user2) != 0 {
		t.Error("escrow changed on failed buy")
	}
	if log.LastSeq() != before {
		t.Errorf("events appended on failed buy: %d -> %d", before, log.LastSeq())
	}
}

func TestCreateBuyOrder_RefundsExcessPayment(t *testing.T) {
	m, _, _ := newTestMarket(t, DefaultConfig())
	m.CreateSellOrder(user1, 1, 100, 100)

	cost := model.SegmentCost(10, 100, publicPrice)
	res, err := m.CreateBuyOrder(user2, 1, 10, cost+500)
	if err != nil {
		t.Fatalf("CreateBuyOrder() error = %v", err)
	}
	if res.Refund != 500 {
		t.Errorf("Refund = %d, want 500", res.Refund)
	}
	// The pool absorbs exactly the cost.
	if got := m.FundsBalance(); got != cost {
		t.Errorf("FundsBalance() = %d, want %d", got, cost)
	}
}

func TestCreateBuyOrder_EmptyBook(t *testing.T) {
	m, _, _ := newTestMarket(t, DefaultConfig())

	_, err := m.CreateBuyOrder(user2, 1, 1, 1_000_000)
	if !errors.Is(err, model.ErrInsufficientSupply) {
		t.Errorf("CreateBuyOrder() error = %v, want ErrInsufficientSupply", err)
	}
}

func TestCreateBuyOrder_ShareConservation(t *testing.T) {
	m, reg, _ := setupTwoSellers(t)

	cost := model.SegmentCost(5, 50, publicPrice) + model.SegmentCost(2, 100, publicPrice)
	if _, err := m.CreateBuyOrder(user3, 1, 7, cost); err != nil {
		t.Fatalf("CreateBuyOrder() error = %v", err)
	}

	total := reg.BalanceOf(scpi1, 1) + reg.BalanceOf(user1, 1) +
		reg.BalanceOf(user2, 1) + reg.BalanceOf(user3, 1)
	if total != 10000 {
		t.Errorf("sum of balances = %d, want 10000", total)
	}
}

// TestReplayRebuildsState rebuilds balances, the order book, and escrow from
// the event log alone and checks them against the live stores.
func TestReplayRebuildsState(t *testing.T) {
	m, reg, log := setupTwoSellers(t)

	cost := model.SegmentCost(5, 50, publicPrice) + model.SegmentCost(1, 100, publicPrice)
	if _, err := m.CreateBuyOrder(user3, 1, 6, cost); err != nil {
		t.Fatalf("CreateBuyOrder() error = %v", err)
	}
	if err := m.CancelSellOrder(user1, 1); err != nil {
		t.Fatalf("CancelSellOrder() error = %v", err)
	}

	balances := make(map[model.Address]int64)
	bookQty := make(map[model.Address]int64)
	escrow := make(map[model.Address]int64)

	for _, ev := range log.ReplayFrom(0) {
		switch ev.Type {
		case events.TypeAssetRegistered:
			balances[ev.Issuer] += ev.TotalShares
		case events.TypeSharesTransferred:
			balances[ev.From] -= ev.Quantity
			balances[ev.To] += ev.Quantity
		case events.TypeListedForSale:
			bookQty[ev.Seller] += ev.Quantity
		case events.TypeUnlistedFromSale:
			bookQty[ev.Seller] -= ev.Quantity
		case events.TypeTradeExecuted:
			bookQty[ev.Seller] -= ev.Quantity
			escrow[ev.Seller] += ev.Cost
		}
	}

	for _, holder := range []model.Address{scpi1, user1, user2, user3} {
		if balances[holder] != reg.BalanceOf(holder, 1) {
			t.Errorf("replayed balance[%s] = %d, want %d", holder, balances[holder], reg.BalanceOf(holder, 1))
		}
	}
	for _, seller := range []model.Address{user1, user2} {
		var live int64
		for _, o := range m.OrdersByAddress(1, seller) {
			live += o.Quantity
		}
		if bookQty[seller] != live {
			t.Errorf("replayed open quantity[%s] = %d, want %d", seller, bookQty[seller], live)
		}
		if escrow[seller] != m.EscrowOf(seller) {
			t.Errorf("replayed escrow[%s] = %d, want %d", seller, escrow[seller], m.EscrowOf(seller))
		}
	}
}
