package db

import (
	"context"
	"nftminter"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gofrs/uuid"
	"github.com/rs/zerolog"
)

// Store is the record store used by the mint pipeline. Every write is independent;
// nothing here groups writes into a database transaction.
type Store struct {
	conn Conn
	log  *zerolog.Logger
}

func NewStore(conn Conn, log *zerolog.Logger) *Store {
	return &Store{conn: conn, log: log}
}

func (s *Store) SaveGasRecord(ctx context.Context, rec *nftminter.GasRecord) error {
	err := GasRecordUpsert(ctx, s.conn, rec)
	if err != nil {
		s.log.Error().Err(err).Str("tx_hash", rec.TxHash.Hex()).Msg("failed to save gas record")
		return nftminter.PersistenceError(err, "Failed to save gas record.")
	}
	return nil
}

func (s *Store) SaveNFTRecord(ctx context.Context, rec *nftminter.NFTRecord) error {
	err := NFTRecordUpsert(ctx, s.conn, rec)
	if err != nil {
		s.log.Error().Err(err).Uint64("token_id", rec.TokenID).Msg("failed to save nft record")
		return nftminter.PersistenceError(err, "Failed to save NFT record.")
	}
	return nil
}

func (s *Store) GasRecord(ctx context.Context, txHash common.Hash) (*nftminter.GasRecord, error) {
	row, err := GasRecordGet(ctx, s.conn, txHash)
	if err != nil {
		return nil, err
	}
	return row.GasRecord(), nil
}

func (s *Store) NFTRecord(ctx context.Context, tokenID uint64) (*nftminter.NFTRecord, error) {
	row, err := NFTRecordGet(ctx, s.conn, tokenID)
	if err != nil {
		return nil, err
	}
	return row.NFTRecord()
}

func (s *Store) NFTRecordsByTxHash(ctx context.Context, txHash common.Hash) ([]*nftminter.NFTRecord, error) {
	rows, err := NFTRecordsByTxHash(ctx, s.conn, txHash)
	if err != nil {
		return nil, err
	}
	records := make([]*nftminter.NFTRecord, 0, len(rows))
	for _, row := range rows {
		rec, err := row.NFTRecord()
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

func (s *Store) GasRecordTallies(ctx context.Context, limit int) ([]*GasRecordTally, error) {
	return GasRecordTallies(ctx, s.conn, limit)
}

func (s *Store) StageAsset(ctx context.Context, batchID uuid.UUID, asset *nftminter.StagedAsset) error {
	err := StageAsset(ctx, s.conn, batchID, asset)
	if err != nil {
		return nftminter.PersistenceError(err, "Failed to stage batch asset.")
	}
	return nil
}

func (s *Store) StagedAssets(ctx context.Context, batchID uuid.UUID) (map[int]*nftminter.StagedAsset, error) {
	staged, err := StagedAssets(ctx, s.conn, batchID)
	if err != nil {
		return nil, nftminter.PersistenceError(err, "Failed to read staged batch assets.")
	}
	return staged, nil
}

func (s *Store) ClearBatch(ctx context.Context, batchID uuid.UUID) error {
	err := ClearBatch(ctx, s.conn, batchID)
	if err != nil {
		return nftminter.PersistenceError(err, "Failed to clear staged batch.")
	}
	return nil
}
