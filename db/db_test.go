package db_test

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"math/big"
	"nftminter"
	"nftminter/db"
	"os"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gofrs/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	_ "github.com/lib/pq"
	"github.com/ninja-software/terror/v2"
	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

var conn *pgxpool.Pool

func TestMain(m *testing.M) {
	fmt.Println("Spinning up docker container for postgres...")

	pool, err := dockertest.NewPool("")
	if err == nil {
		err = pool.Client.Ping()
	}
	if err != nil {
		fmt.Printf("Docker unavailable, record store tests will be skipped: %s\n", err)
		os.Exit(m.Run())
	}

	user := "test"
	password := "dev"
	dbName := "test"

	resource, err := pool.RunWithOptions(&dockertest.RunOptions{
		Repository: "postgres",
		Tag:        "13-alpine",
		Env: []string{
			"POSTGRES_USER=" + user,
			"POSTGRES_PASSWORD=" + password,
			"POSTGRES_DB=" + dbName,
		},
	}, func(config *docker.HostConfig) {
		// set AutoRemove to true so that stopped container goes away by itself
		config.AutoRemove = true
		config.RestartPolicy = docker.RestartPolicy{
			Name: "no",
		}
	})
	if err != nil {
		log.Fatalf("Could not start resource: %s", err)
	}

	err = resource.Expire(120) // Tell docker to hard kill the container in 120 seconds
	if err != nil {
		log.Fatalf("Could not start resource: %s", err)
	}

	connString := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		user,
		password,
		"localhost",
		resource.GetPort("5432/tcp"),
		dbName,
	)

	// exponential backoff-retry, because the application in the container might not be ready to accept connections yet
	if err := pool.Retry(func() error {
		sqlConn, err := sql.Open("postgres", connString)
		if err != nil {
			return err
		}
		defer sqlConn.Close()
		if err := sqlConn.Ping(); err != nil {
			return err
		}

		fmt.Println("Running Migration...")
		if err := db.Migrate(sqlConn); err != nil {
			return err
		}

		pgxPoolConfig, err := pgxpool.ParseConfig(connString)
		if err != nil {
			return terror.Error(err, "")
		}
		pgxPoolConfig.ConnConfig.LogLevel = pgx.LogLevelTrace

		conn, err = pgxpool.ConnectConfig(context.Background(), pgxPoolConfig)
		if err != nil {
			return terror.Error(err, "")
		}

		fmt.Println("Postgres Ready.")
		return nil
	}); err != nil {
		log.Fatalf("Could not connect to docker: %s", err)
	}

	fmt.Println("Running tests...")
	code := m.Run()

	conn.Close()
	// You can't defer this because os.Exit doesn't care for defer
	if err := pool.Purge(resource); err != nil {
		log.Fatalf("Could not purge resource: %s", err)
	}

	os.Exit(code)
}

func newStore(t *testing.T) *db.Store {
	t.Helper()
	if conn == nil {
		t.Skip("postgres not available")
	}
	log := zerolog.Nop()
	return db.NewStore(conn, &log)
}

func TestGasRecordIdempotent(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	gasUsed, _ := new(big.Int).SetString("18446744073709551616", 10)
	gasPrice, _ := new(big.Int).SetString("18446744073709551617", 10)
	rec := &nftminter.GasRecord{
		TxHash:      common.HexToHash("0x729c49ceae31895a822b173b1396be4ea6061c9c59e1198cc0c5ecdb03c696e6"),
		MethodName:  "mintItem",
		GasUsed:     gasUsed,
		GasPrice:    gasPrice,
		TotalCost:   new(big.Int).Mul(gasUsed, gasPrice),
		UserAddress: common.HexToAddress("0x52b38626D3167e5357FE7348624352B7062fE271"),
		BlockNumber: 14261476,
	}

	require.NoError(t, store.SaveGasRecord(ctx, rec))
	require.NoError(t, store.SaveGasRecord(ctx, rec))

	count, err := db.GasRecordCountByTxHash(ctx, conn, rec.TxHash)
	require.NoError(t, err)
	require.Equal(t, 1, count)

	got, err := store.GasRecord(ctx, rec.TxHash)
	require.NoError(t, err)
	require.Equal(t, rec.TotalCost.String(), got.TotalCost.String())
	require.Equal(t, "340282366920938463481821351505477763072", got.TotalCost.String())
	require.Equal(t, rec.UserAddress, got.UserAddress)
	require.Equal(t, rec.BlockNumber, got.BlockNumber)

	// overwrite semantics
	rec.BlockNumber = 14261477
	require.NoError(t, store.SaveGasRecord(ctx, rec))
	got, err = store.GasRecord(ctx, rec.TxHash)
	require.NoError(t, err)
	require.Equal(t, uint64(14261477), got.BlockNumber)
}

func TestNFTRecordRoundTrip(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	txHash := common.HexToHash("0x01aa")
	mintedAt := time.Date(2024, 3, 1, 20, 30, 5, 0, time.UTC)
	rec := &nftminter.NFTRecord{
		TokenID:          42,
		TokenURI:         "QmPChd2hVbrJ6bfo3WBcTW4iZnpHm8TEzWkLHmLpXhF68A",
		MintedAt:         mintedAt,
		Owner:            common.HexToAddress("0x52b38626D3167e5357FE7348624352B7062fE271"),
		State:            nftminter.LifecycleActive,
		RoyaltyNumerator: 250,
		TxHash:           &txHash,
	}
	require.NoError(t, store.SaveNFTRecord(ctx, rec))
	require.NoError(t, store.SaveNFTRecord(ctx, rec))

	row, err := db.NFTRecordGet(ctx, conn, 42)
	require.NoError(t, err)
	require.Equal(t, "2024-03-02 04:30:05", row.MintItem)
	require.Equal(t, 250, row.RoyaltyFeeNumerator)
	require.Equal(t, 0, row.State)

	got, err := store.NFTRecord(ctx, 42)
	require.NoError(t, err)
	require.True(t, mintedAt.Equal(got.MintedAt))
	require.Equal(t, rec.Owner, got.Owner)
	require.NotNil(t, got.TxHash)
	require.Equal(t, txHash, *got.TxHash)

	byTx, err := store.NFTRecordsByTxHash(ctx, txHash)
	require.NoError(t, err)
	require.Len(t, byTx, 1)
}

func TestNFTRecordRejectsRoyaltyOverCap(t *testing.T) {
	store := newStore(t)
	err := store.SaveNFTRecord(context.Background(), &nftminter.NFTRecord{
		TokenID:          43,
		TokenURI:         "QmX",
		MintedAt:         time.Now(),
		Owner:            common.HexToAddress("0x01"),
		RoyaltyNumerator: 1001,
	})
	require.ErrorIs(t, err, nftminter.ErrPersistence)
}

func TestGasRecordTallies(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	txHash := common.HexToHash("0x02bb")
	require.NoError(t, store.SaveGasRecord(ctx, &nftminter.GasRecord{
		TxHash:      txHash,
		MethodName:  "batchMintItems",
		GasUsed:     big.NewInt(100),
		GasPrice:    big.NewInt(2),
		TotalCost:   big.NewInt(200),
		UserAddress: common.HexToAddress("0x01"),
		BlockNumber: 99999999,
	}))
	for _, id := range []uint64{100, 101} {
		require.NoError(t, store.SaveNFTRecord(ctx, &nftminter.NFTRecord{
			TokenID:  id,
			TokenURI: "QmY",
			MintedAt: time.Now(),
			Owner:    common.HexToAddress("0x01"),
			TxHash:   &txHash,
		}))
	}

	tallies, err := store.GasRecordTallies(ctx, 10)
	require.NoError(t, err)
	require.NotEmpty(t, tallies)
	require.Equal(t, txHash.Hex(), tallies[0].TxHash)
	require.Equal(t, 2, tallies[0].NFTCount)
}

func TestBatchStaging(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	batchID := uuid.Must(uuid.NewV4())

	require.NoError(t, store.StageAsset(ctx, batchID, &nftminter.StagedAsset{Position: 0, AssetSHA256: "aa", ImageCID: "QmA"}))
	require.NoError(t, store.StageAsset(ctx, batchID, &nftminter.StagedAsset{Position: 1, AssetSHA256: "bb", ImageCID: "QmB"}))
	require.NoError(t, store.StageAsset(ctx, batchID, &nftminter.StagedAsset{Position: 1, AssetSHA256: "cc", ImageCID: "QmC"}))

	staged, err := store.StagedAssets(ctx, batchID)
	require.NoError(t, err)
	require.Len(t, staged, 2)
	require.Equal(t, "QmA", staged[0].ImageCID)
	require.Equal(t, "cc", staged[1].AssetSHA256)
	require.Equal(t, "QmC", staged[1].ImageCID)

	other, err := store.StagedAssets(ctx, uuid.Must(uuid.NewV4()))
	require.NoError(t, err)
	require.Empty(t, other)

	require.NoError(t, store.ClearBatch(ctx, batchID))
	staged, err = store.StagedAssets(ctx, batchID)
	require.NoError(t, err)
	require.Empty(t, staged)
}
