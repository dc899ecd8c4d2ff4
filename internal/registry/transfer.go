package registry

import (
	"fmt"
	"time"

	"github.com/immochain/immochain/internal/events"
	"github.com/immochain/immochain/internal/model"
)

// BalanceOf returns the share balance of holder for assetID. Unknown holders
// and unknown assets read as zero.
func (r *Registry) BalanceOf(holder model.Address, assetID int64) int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.balances[assetID][holder]
}

// Transfer moves quantity shares of assetID from one holder to another.
//
// Peer-to-peer transfers are gated: the call succeeds only when the caller is
// the registered marketplace, or the caller is the sender and also the
// asset's issuer distributing its own inventory.
func (r *Registry) Transfer(caller model.Address, assetID int64, from, to model.Address, quantity int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	asset, ok := r.assets[assetID]
	if !ok {
		return fmt.Errorf("registry: unknown asset %d: %w", assetID, model.ErrNotFound)
	}
	if quantity <= 0 {
		return fmt.Errorf("registry: transfer quantity must be positive: %w", model.ErrInvalidArgument)
	}
	if to == model.ZeroAddress {
		return fmt.Errorf("registry: transfer to the zero address: %w", model.ErrInvalidArgument)
	}

	authorized := caller == r.marketplace && caller != model.ZeroAddress
	if !authorized {
		authorized = caller == from && from == asset.Issuer
	}
	if !authorized {
		return fmt.Errorf("registry: use the marketplace to trade shares: %w", model.ErrNotAuthorized)
	}

	held := r.balances[assetID][from]
	if held < quantity {
		return fmt.Errorf("registry: holder %s has %d of asset %d, needs %d: %w",
			from, held, assetID, quantity, model.ErrInsufficientBalance)
	}

	r.balances[assetID][from] = held - quantity
	if r.balances[assetID][from] == 0 {
		delete(r.balances[assetID], from)
	}
	r.balances[assetID][to] += quantity

	r.log.Append(events.Event{
		Type:     events.TypeSharesTransferred,
		TS:       time.Now().UnixMicro(),
		AssetID:  assetID,
		From:     from,
		To:       to,
		Quantity: quantity,
	})

	r.logger.Debug("shares transferred",
		"asset_id", assetID,
		"from", string(from),
		"to", string(to),
		"quantity", quantity,
	)
	return nil
}

// BatchTransfer is disallowed so per-asset authorization stays auditable.
func (r *Registry) BatchTransfer(caller model.Address, assetIDs []int64, from, to model.Address, quantities []int64) error {
	return fmt.Errorf("registry: batch transfer is disabled, transfer assets one at a time: %w", model.ErrNotSupported)
}
