package db

import (
	"context"
	"nftminter"

	"github.com/georgysavva/scany/pgxscan"
	"github.com/gofrs/uuid"
	"github.com/ninja-software/terror/v2"
	"github.com/volatiletech/null/v8"
)

type StagingItemRow struct {
	BatchID     uuid.UUID   `db:"batch_id"`
	Position    int         `db:"position"`
	AssetSHA256 string      `db:"asset_sha256"`
	ImageCID    null.String `db:"image_cid"`
}

// StageAsset records that the asset at position was uploaded as imageCID
func StageAsset(ctx context.Context, conn Conn, batchID uuid.UUID, asset *nftminter.StagedAsset) error {
	cid := null.NewString(asset.ImageCID, asset.ImageCID != "")
	q := `
		INSERT INTO batch_staging_items (batch_id, position, asset_sha256, image_cid)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (batch_id, position) DO UPDATE SET
			asset_sha256 = EXCLUDED.asset_sha256,
			image_cid = EXCLUDED.image_cid`
	_, err := conn.Exec(ctx, q, batchID, asset.Position, asset.AssetSHA256, cid)
	if err != nil {
		return terror.Error(err)
	}
	return nil
}

// StagedAssets returns the uploaded assets of a batch keyed by position
func StagedAssets(ctx context.Context, conn Conn, batchID uuid.UUID) (map[int]*nftminter.StagedAsset, error) {
	var rows []*StagingItemRow
	q := `
		SELECT batch_id, position, asset_sha256, image_cid
		FROM batch_staging_items
		WHERE batch_id = $1 AND image_cid IS NOT NULL
		ORDER BY position`
	err := pgxscan.Select(ctx, conn, &rows, q, batchID)
	if err != nil {
		return nil, terror.Error(err)
	}

	staged := make(map[int]*nftminter.StagedAsset, len(rows))
	for _, r := range rows {
		staged[r.Position] = &nftminter.StagedAsset{
			Position:    r.Position,
			AssetSHA256: r.AssetSHA256,
			ImageCID:    r.ImageCID.String,
		}
	}
	return staged, nil
}

// ClearBatch removes every staging row of a batch
func ClearBatch(ctx context.Context, conn Conn, batchID uuid.UUID) error {
	_, err := conn.Exec(ctx, `DELETE FROM batch_staging_items WHERE batch_id = $1`, batchID)
	if err != nil {
		return terror.Error(err)
	}
	return nil
}
