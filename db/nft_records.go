package db

import (
	"context"
	"math/big"
	"nftminter"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/georgysavva/scany/pgxscan"
	"github.com/ninja-software/terror/v2"
	"github.com/shopspring/decimal"
	"github.com/volatiletech/null/v8"
)

type NFTRecordRow struct {
	NftID               decimal.Decimal `db:"nft_id"`
	TokenURI            string          `db:"token_uri"`
	MintItem            string          `db:"mint_item"`
	Owner               string          `db:"owner"`
	State               int             `db:"state"`
	RoyaltyFeeNumerator int             `db:"royalty_fee_numerator"`
	TxHash              null.String     `db:"tx_hash"`
	CreatedAt           time.Time       `db:"created_at"`
	UpdatedAt           time.Time       `db:"updated_at"`
}

// NFTRecord converts the row back to the domain record. mint_item is read in the fixed mint zone.
func (r *NFTRecordRow) NFTRecord() (*nftminter.NFTRecord, error) {
	mintedAt, err := nftminter.ParseMintTime(r.MintItem)
	if err != nil {
		return nil, terror.Error(err, "Stored mint time is malformed.")
	}
	rec := &nftminter.NFTRecord{
		TokenID:          r.NftID.BigInt().Uint64(),
		TokenURI:         r.TokenURI,
		MintedAt:         mintedAt,
		Owner:            common.HexToAddress(r.Owner),
		State:            nftminter.LifecycleState(r.State),
		RoyaltyNumerator: r.RoyaltyFeeNumerator,
	}
	if r.TxHash.Valid {
		h := common.HexToHash(r.TxHash.String)
		rec.TxHash = &h
	}
	return rec, nil
}

const nftRecordColumns = `nft_id, token_uri, mint_item, owner, state, royalty_fee_numerator, tx_hash, created_at, updated_at`

// NFTRecordUpsert writes an NFT record, replacing any existing row for the same token id
func NFTRecordUpsert(ctx context.Context, conn Conn, rec *nftminter.NFTRecord) error {
	txHash := null.String{}
	if rec.TxHash != nil {
		txHash = null.StringFrom(rec.TxHash.Hex())
	}
	q := `
		INSERT INTO nft_records (nft_id, token_uri, mint_item, owner, state, royalty_fee_numerator, tx_hash)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (nft_id) DO UPDATE SET
			token_uri = EXCLUDED.token_uri,
			mint_item = EXCLUDED.mint_item,
			owner = EXCLUDED.owner,
			state = EXCLUDED.state,
			royalty_fee_numerator = EXCLUDED.royalty_fee_numerator,
			tx_hash = EXCLUDED.tx_hash,
			updated_at = NOW()`
	_, err := conn.Exec(ctx, q,
		decimal.NewFromBigInt(new(big.Int).SetUint64(rec.TokenID), 0),
		rec.TokenURI,
		nftminter.FormatMintTime(rec.MintedAt),
		rec.Owner.Hex(),
		int(rec.State),
		rec.RoyaltyNumerator,
		txHash,
	)
	if err != nil {
		return terror.Error(err)
	}
	return nil
}

// NFTRecordGet returns the record of a token
func NFTRecordGet(ctx context.Context, conn Conn, tokenID uint64) (*NFTRecordRow, error) {
	row := &NFTRecordRow{}
	q := `SELECT ` + nftRecordColumns + ` FROM nft_records WHERE nft_id = $1`
	err := pgxscan.Get(ctx, conn, row, q, decimal.NewFromBigInt(new(big.Int).SetUint64(tokenID), 0))
	if err != nil {
		return nil, terror.Error(err)
	}
	return row, nil
}

// NFTRecordsByTxHash returns the records minted by one transaction, lowest token id first
func NFTRecordsByTxHash(ctx context.Context, conn Conn, txHash common.Hash) ([]*NFTRecordRow, error) {
	var rows []*NFTRecordRow
	q := `SELECT ` + nftRecordColumns + ` FROM nft_records WHERE tx_hash = $1 ORDER BY nft_id`
	err := pgxscan.Select(ctx, conn, &rows, q, txHash.Hex())
	if err != nil {
		return nil, terror.Error(err)
	}
	return rows, nil
}
