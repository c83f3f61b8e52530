package db

import (
	"context"
	"nftminter"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/georgysavva/scany/pgxscan"
	"github.com/ninja-software/terror/v2"
	"github.com/shopspring/decimal"
)

type GasRecordRow struct {
	TxHash      string          `db:"tx_hash"`
	MethodName  string          `db:"method_name"`
	GasUsed     decimal.Decimal `db:"gas_used"`
	GasPrice    decimal.Decimal `db:"gas_price"`
	TotalCost   decimal.Decimal `db:"total_cost"`
	UserAddress string          `db:"user_address"`
	BlockNumber int64           `db:"block_number"`
	CreatedAt   time.Time       `db:"created_at"`
	UpdatedAt   time.Time       `db:"updated_at"`
}

func (r *GasRecordRow) GasRecord() *nftminter.GasRecord {
	return &nftminter.GasRecord{
		TxHash:      common.HexToHash(r.TxHash),
		MethodName:  r.MethodName,
		GasUsed:     r.GasUsed.BigInt(),
		GasPrice:    r.GasPrice.BigInt(),
		TotalCost:   r.TotalCost.BigInt(),
		UserAddress: common.HexToAddress(r.UserAddress),
		BlockNumber: uint64(r.BlockNumber),
	}
}

const gasRecordColumns = `tx_hash, method_name, gas_used, gas_price, total_cost, user_address, block_number, created_at, updated_at`

// GasRecordUpsert writes a gas record, replacing any existing row for the same tx hash
func GasRecordUpsert(ctx context.Context, conn Conn, rec *nftminter.GasRecord) error {
	if rec.GasUsed == nil || rec.GasPrice == nil || rec.TotalCost == nil {
		return terror.Error(terror.ErrInvalidInput, "Gas record is missing amounts.")
	}
	q := `
		INSERT INTO gas_records (tx_hash, method_name, gas_used, gas_price, total_cost, user_address, block_number)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (tx_hash) DO UPDATE SET
			method_name = EXCLUDED.method_name,
			gas_used = EXCLUDED.gas_used,
			gas_price = EXCLUDED.gas_price,
			total_cost = EXCLUDED.total_cost,
			user_address = EXCLUDED.user_address,
			block_number = EXCLUDED.block_number,
			updated_at = NOW()`
	_, err := conn.Exec(ctx, q,
		rec.TxHash.Hex(),
		rec.MethodName,
		decimal.NewFromBigInt(rec.GasUsed, 0),
		decimal.NewFromBigInt(rec.GasPrice, 0),
		decimal.NewFromBigInt(rec.TotalCost, 0),
		rec.UserAddress.Hex(),
		int64(rec.BlockNumber),
	)
	if err != nil {
		return terror.Error(err)
	}
	return nil
}

// GasRecordGet returns the gas record of a transaction
func GasRecordGet(ctx context.Context, conn Conn, txHash common.Hash) (*GasRecordRow, error) {
	row := &GasRecordRow{}
	q := `SELECT ` + gasRecordColumns + ` FROM gas_records WHERE tx_hash = $1`
	err := pgxscan.Get(ctx, conn, row, q, txHash.Hex())
	if err != nil {
		return nil, terror.Error(err)
	}
	return row, nil
}

// GasRecordCountByTxHash counts gas rows for a transaction
func GasRecordCountByTxHash(ctx context.Context, conn Conn, txHash common.Hash) (int, error) {
	var count int
	err := pgxscan.Get(ctx, conn, &count, `SELECT COUNT(*) FROM gas_records WHERE tx_hash = $1`, txHash.Hex())
	if err != nil {
		return 0, terror.Error(err)
	}
	return count, nil
}

// GasRecordTally is a gas record with the number of NFT records pointing back at it
type GasRecordTally struct {
	TxHash      string `db:"tx_hash"`
	MethodName  string `db:"method_name"`
	BlockNumber int64  `db:"block_number"`
	NFTCount    int    `db:"nft_count"`
}

// GasRecordTallies lists the most recent gas records with their NFT record counts
func GasRecordTallies(ctx context.Context, conn Conn, limit int) ([]*GasRecordTally, error) {
	var tallies []*GasRecordTally
	q := `
		SELECT g.tx_hash, g.method_name, g.block_number, COUNT(n.nft_id) AS nft_count
		FROM gas_records g
		LEFT JOIN nft_records n ON n.tx_hash = g.tx_hash
		GROUP BY g.tx_hash, g.method_name, g.block_number
		ORDER BY g.block_number DESC
		LIMIT $1`
	err := pgxscan.Select(ctx, conn, &tallies, q, limit)
	if err != nil {
		return nil, terror.Error(err)
	}
	return tallies, nil
}
