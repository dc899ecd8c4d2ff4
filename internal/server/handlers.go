package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/immochain/immochain/internal/model"
)

// Wire representations. Kept separate from the model types so the JSON
// surface stays stable.

type assetResponse struct {
	ID               int64  `json:"id"`
	Issuer           string `json:"issuer"`
	Name             string `json:"name"`
	URI              string `json:"uri"`
	TotalShares      int64  `json:"total_shares"`
	PublicSharePrice int64  `json:"public_share_price"`
}

type orderResponse struct {
	ID           string `json:"id"`
	AssetID      int64  `json:"asset_id"`
	Seller       string `json:"seller"`
	PricePercent int    `json:"price_percent"`
	Quantity     int64  `json:"quantity"`
	CreatedAt    int64  `json:"created_at"`
}

type levelResponse struct {
	PricePercent int   `json:"price_percent"`
	Quantity     int64 `json:"quantity"`
}

type tradeResponse struct {
	ID           string `json:"id"`
	AssetID      int64  `json:"asset_id"`
	Seller       string `json:"seller"`
	Buyer        string `json:"buyer"`
	Quantity     int64  `json:"quantity"`
	PricePercent int    `json:"price_percent"`
	Cost         int64  `json:"cost"`
	ExecutedAt   int64  `json:"executed_at"`
}

func toAssetResponse(a model.Asset) assetResponse {
	return assetResponse{
		ID:               a.ID,
		Issuer:           string(a.Issuer),
		Name:             a.Name,
		URI:              a.URI,
		TotalShares:      a.TotalShares,
		PublicSharePrice: a.PublicSharePrice,
	}
}

func toOrderResponse(o model.SellOrder) orderResponse {
	return orderResponse{
		ID:           o.ID.String(),
		AssetID:      o.AssetID,
		Seller:       string(o.Seller),
		PricePercent: o.PricePercent,
		Quantity:     o.Quantity,
		CreatedAt:    o.CreatedAt,
	}
}

func toTradeResponse(t model.Trade) tradeResponse {
	return tradeResponse{
		ID:           t.ID.String(),
		AssetID:      t.AssetID,
		Seller:       string(t.Seller),
		Buyer:        string(t.Buyer),
		Quantity:     t.Quantity,
		PricePercent: t.PricePercent,
		Cost:         t.Cost,
		ExecutedAt:   t.ExecutedAt,
	}
}

func parseAssetID(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "assetID")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 1 {
		return 0, fmt.Errorf("bad asset id %q: %w", raw, model.ErrInvalidArgument)
	}
	return id, nil
}

func decodeBody(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("bad request body: %w", model.ErrInvalidArgument)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// POST /accounts
func (s *Server) handleRegisterAccount(w http.ResponseWriter, r *http.Request) {
	var body struct {
		PublicKeyPEM string `json:"public_key_pem"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, err)
		return
	}

	addr, err := s.verifier.RegisterPEM([]byte(body.PublicKeyPEM))
	if err != nil {
		writeError(w, fmt.Errorf("bad public key: %w", model.ErrInvalidArgument))
		return
	}

	s.logger.Info("account registered", "address", addr)
	writeJSON(w, http.StatusCreated, map[string]string{"address": string(addr)})
}

// GET /assets
func (s *Server) handleListAssets(w http.ResponseWriter, r *http.Request) {
	assets := s.reg.Assets()
	out := make([]assetResponse, len(assets))
	for i, a := range assets {
		out[i] = toAssetResponse(a)
	}
	writeJSON(w, http.StatusOK, out)
}

// POST /assets
func (s *Server) handleRegisterAsset(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Issuer           string `json:"issuer"`
		Name             string `json:"name"`
		URI              string `json:"uri"`
		TotalShares      int64  `json:"total_shares"`
		PublicSharePrice int64  `json:"public_share_price"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, err)
		return
	}

	id, err := s.reg.RegisterAsset(caller(r), model.Address(body.Issuer), body.Name, body.TotalShares, body.URI, body.PublicSharePrice)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]int64{"asset_id": id})
}

// GET /assets/{assetID}
func (s *Server) handleGetAsset(w http.ResponseWriter, r *http.Request) {
	id, err := parseAssetID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	asset, err := s.reg.Asset(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAssetResponse(asset))
}

// GET /assets/{assetID}/uri
func (s *Server) handleGetURI(w http.ResponseWriter, r *http.Request) {
	id, err := parseAssetID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	uri, err := s.reg.URI(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"uri": uri})
}

// GET /assets/{assetID}/price
func (s *Server) handleGetPrice(w http.ResponseWriter, r *http.Request) {
	id, err := parseAssetID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	price, err := s.reg.SharePrice(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"public_share_price": price})
}

// PUT /assets/{assetID}/price
func (s *Server) handleSetPrice(w http.ResponseWriter, r *http.Request) {
	id, err := parseAssetID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var body struct {
		PublicSharePrice int64 `json:"public_share_price"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, err)
		return
	}
	if err := s.reg.SetSharePrice(caller(r), id, body.PublicSharePrice); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GET /assets/{assetID}/balances/{address}
func (s *Server) handleGetBalance(w http.ResponseWriter, r *http.Request) {
	id, err := parseAssetID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	holder := model.Address(chi.URLParam(r, "address"))
	writeJSON(w, http.StatusOK, map[string]int64{"balance": s.reg.BalanceOf(holder, id)})
}

// POST /assets/{assetID}/transfers
func (s *Server) handleTransfer(w http.ResponseWriter, r *http.Request) {
	id, err := parseAssetID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var body struct {
		From     string `json:"from"`
		To       string `json:"to"`
		Quantity int64  `json:"quantity"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, err)
		return
	}

	from := model.Address(body.From)
	if from == model.ZeroAddress {
		from = caller(r)
	}
	if err := s.reg.Transfer(caller(r), id, from, model.Address(body.To), body.Quantity); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// POST /transfers/batch
func (s *Server) handleBatchTransfer(w http.ResponseWriter, r *http.Request) {
	var body struct {
		AssetIDs   []int64 `json:"asset_ids"`
		From       string  `json:"from"`
		To         string  `json:"to"`
		Quantities []int64 `json:"quantities"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, err)
		return
	}

	err := s.reg.BatchTransfer(caller(r), body.AssetIDs, model.Address(body.From), model.Address(body.To), body.Quantities)
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GET /assets/{assetID}/book
func (s *Server) handleGetBook(w http.ResponseWriter, r *http.Request) {
	id, err := parseAssetID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	levels := s.mkt.OrderCountByPrice(id)
	out := make([]levelResponse, len(levels))
	for i, lv := range levels {
		out[i] = levelResponse{PricePercent: lv.PricePercent, Quantity: lv.Quantity}
	}
	writeJSON(w, http.StatusOK, out)
}

// GET /assets/{assetID}/orders
func (s *Server) handleListOrders(w http.ResponseWriter, r *http.Request) {
	id, err := parseAssetID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	orders := s.mkt.Orders(id)
	out := make([]orderResponse, len(orders))
	for i, o := range orders {
		out[i] = toOrderResponse(o)
	}
	writeJSON(w, http.StatusOK, out)
}

// GET /assets/{assetID}/orders/{address}
func (s *Server) handleOrdersByAddress(w http.ResponseWriter, r *http.Request) {
	id, err := parseAssetID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	seller := model.Address(chi.URLParam(r, "address"))
	orders := s.mkt.OrdersByAddress(id, seller)
	out := make([]orderResponse, len(orders))
	for i, o := range orders {
		out[i] = toOrderResponse(o)
	}
	writeJSON(w, http.StatusOK, out)
}

// POST /assets/{assetID}/orders/sell
func (s *Server) handleCreateSellOrder(w http.ResponseWriter, r *http.Request) {
	id, err := parseAssetID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var body struct {
		PricePercent int   `json:"price_percent"`
		Quantity     int64 `json:"quantity"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, err)
		return
	}

	order, err := s.mkt.CreateSellOrder(caller(r), id, body.PricePercent, body.Quantity)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toOrderResponse(order))
}

// DELETE /assets/{assetID}/orders/sell
func (s *Server) handleCancelSellOrder(w http.ResponseWriter, r *http.Request) {
	id, err := parseAssetID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.mkt.CancelSellOrder(caller(r), id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// POST /assets/{assetID}/orders/buy
func (s *Server) handleCreateBuyOrder(w http.ResponseWriter, r *http.Request) {
	id, err := parseAssetID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var body struct {
		Quantity int64 `json:"quantity"`
		Payment  int64 `json:"payment"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, err)
		return
	}

	result, err := s.mkt.CreateBuyOrder(caller(r), id, body.Quantity, body.Payment)
	if err != nil {
		writeError(w, err)
		return
	}

	trades := make([]tradeResponse, len(result.Trades))
	for i, t := range result.Trades {
		trades[i] = toTradeResponse(t)
	}
	writeJSON(w, http.StatusOK, struct {
		Trades []tradeResponse `json:"trades"`
		Cost   int64           `json:"cost"`
		Refund int64           `json:"refund"`
	}{trades, result.Cost, result.Refund})
}

// GET /marketplace/funds
func (s *Server) handleGetFunds(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]int64{"pooled_funds": s.mkt.FundsBalance()})
}

// GET /marketplace/escrow/{address}
func (s *Server) handleGetEscrow(w http.ResponseWriter, r *http.Request) {
	holder := model.Address(chi.URLParam(r, "address"))
	writeJSON(w, http.StatusOK, map[string]int64{"escrow": s.mkt.EscrowOf(holder)})
}

// POST /marketplace/withdrawals
func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	amount, err := s.mkt.WithdrawFunds(caller(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"amount": amount})
}
