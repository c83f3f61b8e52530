package api

import (
	"errors"
	"fmt"
	"net/http"
	"nftminter"
	"nftminter/helpers"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v4"
	"github.com/ninja-software/terror/v2"
)

type NFTRecordResponse struct {
	TokenID          uint64 `json:"nft_id"`
	TokenURI         string `json:"token_uri"`
	MintItem         string `json:"mint_item"`
	Owner            string `json:"owner"`
	State            int    `json:"state"`
	StateName        string `json:"state_name"`
	RoyaltyNumerator int    `json:"royaltyFeeNumerator"`
	TxHash           string `json:"tx_hash,omitempty"`
}

type GasRecordResponse struct {
	TxHash      string `json:"tx_hash"`
	MethodName  string `json:"method_name"`
	GasUsed     string `json:"gas_used"`
	GasPrice    string `json:"gas_price"`
	TotalCost   string `json:"total_cost"`
	TotalEth    string `json:"total_cost_eth"`
	UserAddress string `json:"user_address"`
	BlockNumber uint64 `json:"block_number"`
}

type ListingResponse struct {
	TokenID  string `json:"token_id"`
	Seller   string `json:"seller"`
	Owner    string `json:"owner"`
	Price    string `json:"price"`
	PriceEth string `json:"price_eth"`
	IsListed bool   `json:"is_listed"`
	TokenURI string `json:"token_uri"`
}

func tokenIDParam(r *http.Request) (uint64, error) {
	raw := chi.URLParam(r, "token_id")
	tokenID, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, terror.Warn(err, "Invalid Token ID")
	}
	return tokenID, nil
}

func notFoundOr(err error, msg string) (int, error) {
	if errors.Is(err, pgx.ErrNoRows) {
		return http.StatusNotFound, terror.Warn(err, msg+" not found")
	}
	return http.StatusInternalServerError, terror.Error(err, "Failed to get "+msg)
}

// NFTRecordGet returns the off-chain record of a minted token
func (api *API) NFTRecordGet(w http.ResponseWriter, r *http.Request) (int, error) {
	tokenID, err := tokenIDParam(r)
	if err != nil {
		return http.StatusBadRequest, err
	}

	rec, err := api.Records.NFTRecord(r.Context(), tokenID)
	if err != nil {
		return notFoundOr(err, "NFT record")
	}

	resp := &NFTRecordResponse{
		TokenID:          rec.TokenID,
		TokenURI:         rec.TokenURI,
		MintItem:         nftminter.FormatMintTime(rec.MintedAt),
		Owner:            rec.Owner.Hex(),
		State:            int(rec.State),
		StateName:        rec.State.String(),
		RoyaltyNumerator: rec.RoyaltyNumerator,
	}
	if rec.TxHash != nil {
		resp.TxHash = rec.TxHash.Hex()
	}
	w.Header().Set("Content-Type", "application/json")
	return helpers.EncodeJSON(w, resp)
}

// GasRecordGet returns the gas accounting of a mint transaction
func (api *API) GasRecordGet(w http.ResponseWriter, r *http.Request) (int, error) {
	raw := chi.URLParam(r, "tx_hash")
	b, err := hexutil.Decode(raw)
	if err != nil || len(b) != common.HashLength {
		return http.StatusBadRequest, terror.Warn(fmt.Errorf("invalid tx hash %q", raw), "Invalid transaction hash")
	}

	rec, err := api.Records.GasRecord(r.Context(), common.BytesToHash(b))
	if err != nil {
		return notFoundOr(err, "Gas record")
	}

	w.Header().Set("Content-Type", "application/json")
	return helpers.EncodeJSON(w, &GasRecordResponse{
		TxHash:      rec.TxHash.Hex(),
		MethodName:  rec.MethodName,
		GasUsed:     rec.GasUsed.String(),
		GasPrice:    rec.GasPrice.String(),
		TotalCost:   rec.TotalCost.String(),
		TotalEth:    WeiToEth(rec.TotalCost).String(),
		UserAddress: rec.UserAddress.Hex(),
		BlockNumber: rec.BlockNumber,
	})
}

// ListingGet reads the contract's listing view of a token
func (api *API) ListingGet(w http.ResponseWriter, r *http.Request) (int, error) {
	tokenID, err := tokenIDParam(r)
	if err != nil {
		return http.StatusBadRequest, err
	}

	item, err := api.Listings.GetNFTItem(r.Context(), tokenID)
	if err != nil {
		return http.StatusBadGateway, err
	}

	w.Header().Set("Content-Type", "application/json")
	return helpers.EncodeJSON(w, &ListingResponse{
		TokenID:  item.TokenId.String(),
		Seller:   item.Seller.Hex(),
		Owner:    item.Owner.Hex(),
		Price:    item.Price.String(),
		PriceEth: WeiToEth(item.Price).String(),
		IsListed: item.IsListed,
		TokenURI: item.TokenUri,
	})
}
