package registry

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/immochain/immochain/internal/events"
	"github.com/immochain/immochain/internal/model"
)

// Registry holds asset metadata and share balances. It is an explicit store
// object so independent instances can coexist (one per test, one per
// process); there is no package-level state.
type Registry struct {
	mu          sync.RWMutex
	admin       model.Address
	marketplace model.Address
	assets      map[int64]model.Asset
	balances    map[int64]map[model.Address]int64
	nextAssetID int64

	log    *events.Log
	logger *slog.Logger
}

// New creates a registry administered by admin.
func New(admin model.Address, log *events.Log, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		admin:       admin,
		assets:      make(map[int64]model.Asset),
		balances:    make(map[int64]map[model.Address]int64),
		nextAssetID: 1,
		log:         log,
		logger:      logger,
	}
}

// Admin returns the registry administrator.
func (r *Registry) Admin() model.Address {
	return r.admin
}

// SetMarketplaceAddress registers the single trusted marketplace caller
// allowed to move shares between arbitrary holders. Administrator only.
func (r *Registry) SetMarketplaceAddress(caller, addr model.Address) error {
	if caller != r.admin {
		return fmt.Errorf("registry: only the administrator may set the marketplace address: %w", model.ErrNotAuthorized)
	}
	r.mu.Lock()
	r.marketplace = addr
	r.mu.Unlock()

	r.logger.Info("marketplace address set", "address", string(addr))
	return nil
}

// RegisterAsset registers a new SCPI and mints its full share supply to the
// issuer. Administrator only. Returns the assigned asset ID.
func (r *Registry) RegisterAsset(caller, issuer model.Address, name string, totalShares int64, uri string, publicSharePrice int64) (int64, error) {
	if caller != r.admin {
		return 0, fmt.Errorf("registry: only the administrator may register an asset: %w", model.ErrNotAuthorized)
	}
	if issuer == model.ZeroAddress {
		return 0, fmt.Errorf("registry: issuer address is required: %w", model.ErrInvalidArgument)
	}
	if totalShares <= 0 {
		return 0, fmt.Errorf("registry: total shares must be positive: %w", model.ErrInvalidArgument)
	}
	if publicSharePrice <= 0 {
		return 0, fmt.Errorf("registry: public share price must be positive: %w", model.ErrInvalidArgument)
	}

	r.mu.Lock()
	asset := model.Asset{
		ID:               r.nextAssetID,
		Issuer:           issuer,
		Name:             name,
		URI:              uri,
		TotalShares:      totalShares,
		PublicSharePrice: publicSharePrice,
	}
	r.nextAssetID++
	r.assets[asset.ID] = asset
	r.balances[asset.ID] = map[model.Address]int64{issuer: totalShares}

	r.log.Append(events.Event{
		Type:        events.TypeAssetRegistered,
		TS:          time.Now().UnixMicro(),
		AssetID:     asset.ID,
		Name:        asset.Name,
		URI:         asset.URI,
		TotalShares: asset.TotalShares,
		Issuer:      asset.Issuer,
		SharePrice:  asset.PublicSharePrice,
	})
	r.mu.Unlock()

	r.logger.Info("asset registered",
		"asset_id", asset.ID,
		"name", asset.Name,
		"total_shares", asset.TotalShares,
		"issuer", string(asset.Issuer),
	)
	return asset.ID, nil
}

// SetSharePrice updates an asset's public reference price. Issuer only.
func (r *Registry) SetSharePrice(caller model.Address, assetID, newPrice int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	asset, ok := r.assets[assetID]
	if !ok {
		return fmt.Errorf("registry: unknown asset %d: %w", assetID, model.ErrNotFound)
	}
	if newPrice <= 0 {
		return fmt.Errorf("registry: public share price must be positive: %w", model.ErrInvalidArgument)
	}
	if caller != asset.Issuer {
		return fmt.Errorf("registry: only the issuer may set the share price: %w", model.ErrNotAuthorized)
	}

	asset.PublicSharePrice = newPrice
	r.assets[assetID] = asset

	r.log.Append(events.Event{
		Type:       events.TypePriceChanged,
		TS:         time.Now().UnixMicro(),
		AssetID:    assetID,
		SharePrice: newPrice,
	})

	r.logger.Info("share price changed", "asset_id", assetID, "price", newPrice)
	return nil
}

// SharePrice returns an asset's public reference price.
func (r *Registry) SharePrice(assetID int64) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	asset, ok := r.assets[assetID]
	if !ok {
		return 0, fmt.Errorf("registry: unknown asset %d: %w", assetID, model.ErrNotFound)
	}
	return asset.PublicSharePrice, nil
}

// Asset returns a registered asset by ID.
func (r *Registry) Asset(assetID int64) (model.Asset, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	asset, ok := r.assets[assetID]
	if !ok {
		return model.Asset{}, fmt.Errorf("registry: unknown asset %d: %w", assetID, model.ErrNotFound)
	}
	return asset, nil
}

// Assets returns all registered assets ordered by ID.
func (r *Registry) Assets() []model.Asset {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]model.Asset, 0, len(r.assets))
	for _, a := range r.assets {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// URI returns an asset's display reference string.
func (r *Registry) URI(assetID int64) (string, error) {
	asset, err := r.Asset(assetID)
	if err != nil {
		return "", err
	}
	return asset.URI, nil
}
