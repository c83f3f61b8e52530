package mint_test

import (
	"context"
	"fmt"
	"nftminter"
	"nftminter/ledger"
	"nftminter/metadata"
	"nftminter/mint"
	"regexp"
	"testing"
	"time"

	"github.com/bxcodec/faker/v3"
	"github.com/ethereum/go-ethereum/common"
	"github.com/gofrs/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

const gatewayHost = "aqua-famous-koala-370.mypinata.cloud"

var (
	recipient = common.HexToAddress("0x52b38626D3167e5357FE7348624352B7062fE271")
	pngMagic  = []byte{0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a}
	mintClock = time.Date(2024, 3, 1, 20, 30, 5, 0, time.UTC)
)

type harness struct {
	storage *memStorage
	ledger  *fakeLedger
	store   *memStore
	stager  *memStager
	orch    *mint.Orchestrator
}

func newHarness(t *testing.T, withStager bool) *harness {
	t.Helper()
	log := zerolog.Nop()
	h := &harness{
		storage: newMemStorage(),
		ledger:  newFakeLedger(),
		store:   newMemStore(),
		stager:  newMemStager(),
	}
	opts := []mint.Option{mint.WithClock(func() time.Time { return mintClock })}
	if withStager {
		opts = append(opts, mint.WithStager(h.stager))
	}
	h.orch = mint.NewOrchestrator(h.storage, metadata.NewComposer(h.storage, gatewayHost), h.ledger, h.store, &log, opts...)
	return h
}

func (h *harness) networkCalls() int {
	return h.storage.calls() + h.ledger.calls() + h.store.writes
}

func image(i int) *nftminter.Asset {
	data := append(append([]byte{}, pngMagic...), []byte(fmt.Sprintf("image-%d", i))...)
	return &nftminter.Asset{FileName: fmt.Sprintf("%d.png", i), Data: data}
}

func images(n int) []*nftminter.Asset {
	assets := make([]*nftminter.Asset, n)
	for i := range assets {
		assets[i] = image(i)
	}
	return assets
}

func TestMintOne(t *testing.T) {
	h := newHarness(t, false)
	attrs := []nftminter.Attribute{{TraitType: "colour", Value: "red"}, {TraitType: "colour", Value: "blue"}}

	out, err := h.orch.MintOne(context.Background(), &mint.OneRequest{
		Asset:            image(1),
		Name:             "Art1",
		Description:      "test",
		Attributes:       attrs,
		RoyaltyNumerator: 250,
		Recipient:        recipient,
	})
	require.NoError(t, err)
	require.Equal(t, mint.StateRecorded, out.State)
	require.Equal(t, []uint64{100}, out.TokenIDs)
	require.True(t, out.Confirmed())
	require.True(t, out.GasRecorded)

	require.Len(t, h.ledger.submissions, 1)
	sub := h.ledger.submissions[0]
	require.Equal(t, ledger.MethodMintItem, sub.method)
	require.Equal(t, out.MetadataCIDs, sub.metadataCIDs)
	require.Equal(t, 250, sub.royalty)

	// published metadata points at the uploaded image
	doc, err := metadata.Decode(h.storage.objects[out.MetadataCIDs[0]])
	require.NoError(t, err)
	require.Equal(t, "Art1", doc.Name)
	require.Equal(t, "test", doc.Description)
	require.Equal(t, out.ImageCIDs[0], doc.ImageCID)
	require.Equal(t, attrs, doc.Attributes)

	require.Len(t, h.store.nfts, 1)
	rec := h.store.nfts[100]
	require.Equal(t, 250, rec.RoyaltyNumerator)
	require.Equal(t, nftminter.LifecycleActive, rec.State)
	require.Equal(t, out.MetadataCIDs[0], rec.TokenURI)
	require.Equal(t, recipient, rec.Owner)
	require.Regexp(t, regexp.MustCompile(`^\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}$`), nftminter.FormatMintTime(rec.MintedAt))
	require.Equal(t, "2024-03-02 04:30:05", nftminter.FormatMintTime(rec.MintedAt))

	gas := h.store.gas[out.Transaction.Hash]
	require.NotNil(t, gas)
	require.Equal(t, ledger.MethodMintItem, gas.MethodName)
	require.Equal(t, "715295071365000", gas.TotalCost.String())
	require.Equal(t, recipient, gas.UserAddress)
	require.Equal(t, *rec.TxHash, gas.TxHash)
}

func TestRoyaltyOverCapMakesNoNetworkCalls(t *testing.T) {
	for _, royalty := range []int{1001, 5000, -1} {
		t.Run(fmt.Sprint(royalty), func(t *testing.T) {
			h := newHarness(t, true)

			out, err := h.orch.MintOne(context.Background(), &mint.OneRequest{
				Asset:            image(1),
				Name:             faker.Name(),
				Description:      faker.Sentence(),
				RoyaltyNumerator: royalty,
				Recipient:        recipient,
			})
			require.ErrorIs(t, err, nftminter.ErrValidation)
			require.Equal(t, mint.StageValidate, mint.StageOf(err))
			require.Equal(t, mint.StateFailed, out.State)

			_, err = h.orch.MintBatch(context.Background(), &mint.BatchRequest{
				BatchID:          uuid.Must(uuid.NewV4()),
				Assets:           images(3),
				NameTemplate:     faker.Name(),
				Description:      faker.Sentence(),
				RoyaltyNumerator: royalty,
				Recipient:        recipient,
			})
			require.ErrorIs(t, err, nftminter.ErrValidation)
			require.Zero(t, h.networkCalls())
		})
	}
}

func TestMintOneValidation(t *testing.T) {
	valid := func() *mint.OneRequest {
		return &mint.OneRequest{Asset: image(1), Name: "Art1", Description: "test", Recipient: recipient}
	}
	tests := []struct {
		name   string
		modify func(r *mint.OneRequest)
	}{
		{"no_asset", func(r *mint.OneRequest) { r.Asset = nil }},
		{"empty_asset", func(r *mint.OneRequest) { r.Asset = &nftminter.Asset{} }},
		{"blank_name", func(r *mint.OneRequest) { r.Name = "  " }},
		{"blank_description", func(r *mint.OneRequest) { r.Description = "" }},
		{"zero_recipient", func(r *mint.OneRequest) { r.Recipient = common.Address{} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, false)
			req := valid()
			tt.modify(req)
			_, err := h.orch.MintOne(context.Background(), req)
			require.ErrorIs(t, err, nftminter.ErrValidation)
			require.Zero(t, h.networkCalls())
		})
	}
}

func TestMintBatchSizeCap(t *testing.T) {
	for _, size := range []int{0, nftminter.MaxBatchSize + 1} {
		t.Run(fmt.Sprint(size), func(t *testing.T) {
			h := newHarness(t, false)
			_, err := h.orch.MintBatch(context.Background(), &mint.BatchRequest{
				Assets:       images(size),
				NameTemplate: "Drop",
				Description:  "test",
				Recipient:    recipient,
			})
			require.ErrorIs(t, err, nftminter.ErrValidation)
			require.Zero(t, h.networkCalls())
		})
	}
}

func TestMintBatchOrdering(t *testing.T) {
	for _, size := range []int{1, 3, nftminter.MaxBatchSize} {
		t.Run(fmt.Sprint(size), func(t *testing.T) {
			h := newHarness(t, false)
			template := faker.Name()

			out, err := h.orch.MintBatch(context.Background(), &mint.BatchRequest{
				Assets:           images(size),
				NameTemplate:     template,
				Description:      faker.Sentence(),
				RoyaltyNumerator: 1000,
				Recipient:        recipient,
			})
			require.NoError(t, err)
			require.Equal(t, mint.StateRecorded, out.State)
			require.Len(t, out.MetadataCIDs, size)
			require.Len(t, out.TokenIDs, size)
			require.Equal(t, out.MetadataCIDs, h.ledger.submissions[0].metadataCIDs)
			require.Equal(t, ledger.MethodBatchMint, h.ledger.submissions[0].method)

			for i, metadataCID := range out.MetadataCIDs {
				doc, err := metadata.Decode(h.storage.objects[metadataCID])
				require.NoError(t, err)
				require.Equal(t, fmt.Sprintf("%s #%d", template, i+1), doc.Name)
				require.Equal(t, out.ImageCIDs[i], doc.ImageCID)
				require.Equal(t, image(i).Data, h.storage.objects[doc.ImageCID])

				rec := h.store.nfts[out.TokenIDs[i]]
				require.NotNil(t, rec)
				require.Equal(t, metadataCID, rec.TokenURI)
			}
			require.Len(t, h.store.gas, 1)
		})
	}
}

func TestMintBatchMissingTopicFallback(t *testing.T) {
	h := newHarness(t, false)
	h.ledger.logsFor = func(count int) []nftminter.LogEntry {
		return []nftminter.LogEntry{
			mintLog(41),
			mintLog(42),
			{Topics: []common.Hash{ledger.TransferTopic, {}, recipient.Hash()}},
		}
	}

	out, err := h.orch.MintBatch(context.Background(), &mint.BatchRequest{
		Assets:       images(3),
		NameTemplate: "Drop",
		Description:  "test",
		Recipient:    recipient,
	})
	require.NoError(t, err)
	require.Equal(t, []uint64{41, 42, 3}, out.TokenIDs)
	require.Contains(t, h.store.nfts, uint64(3))
	require.Equal(t, out.MetadataCIDs[2], h.store.nfts[3].TokenURI)
}

func TestMintOneMissingTopic(t *testing.T) {
	h := newHarness(t, false)
	h.ledger.logsFor = func(int) []nftminter.LogEntry { return nil }

	out, err := h.orch.MintOne(context.Background(), &mint.OneRequest{Asset: image(1), Name: "Art1", Description: "test", Recipient: recipient})
	require.ErrorIs(t, err, nftminter.ErrTransaction)
	require.Equal(t, mint.StageInterpret, mint.StageOf(err))
	require.True(t, out.Confirmed())

	// the transaction still cost gas, so its record is kept for reconciliation
	require.True(t, out.GasRecorded)
	require.Equal(t, 1, h.store.writes)
	require.Contains(t, h.store.gas, out.Transaction.Hash)
	require.Equal(t, out.Cost, h.store.gas[out.Transaction.Hash].TotalCost)
	require.Empty(t, h.store.nfts)
}

func TestMintBatchUploadFailure(t *testing.T) {
	h := newHarness(t, false)
	h.storage.failUpload = 2

	out, err := h.orch.MintBatch(context.Background(), &mint.BatchRequest{
		Assets:       images(5),
		NameTemplate: "Drop",
		Description:  "test",
		Recipient:    recipient,
	})
	require.ErrorIs(t, err, nftminter.ErrStorage)
	require.Equal(t, mint.StageUpload, mint.StageOf(err))
	require.Equal(t, mint.StateFailed, out.State)

	// asset #1 stays on the storage network, nothing else happens
	require.Equal(t, 2, h.storage.uploads)
	require.Len(t, out.ImageCIDs, 1)
	require.Contains(t, h.storage.objects, out.ImageCIDs[0])
	require.Zero(t, h.storage.jsonUploads)
	require.Zero(t, h.ledger.calls())
	require.Zero(t, h.store.writes)
	require.Empty(t, h.store.nfts)
	require.Empty(t, h.store.gas)
}

func TestPersistenceFailureAfterConfirm(t *testing.T) {
	h := newHarness(t, false)
	h.store.failNFTs[101] = true

	out, err := h.orch.MintBatch(context.Background(), &mint.BatchRequest{
		Assets:       images(3),
		NameTemplate: "Drop",
		Description:  "test",
		Recipient:    recipient,
	})
	require.ErrorIs(t, err, nftminter.ErrPersistence)
	require.NotErrorIs(t, err, nftminter.ErrTransaction)
	require.Equal(t, mint.StageRecord, mint.StageOf(err))
	require.Equal(t, mint.StateFailed, out.State)

	// the tokens exist on the ledger even though one record is missing
	require.True(t, out.Confirmed())
	require.Equal(t, []uint64{100, 101, 102}, out.TokenIDs)
	require.Equal(t, []uint64{101}, out.UnrecordedTokenIDs)
	require.True(t, out.GasRecorded)

	// the write after the failed one still happened
	require.Contains(t, h.store.nfts, uint64(100))
	require.Contains(t, h.store.nfts, uint64(102))
	require.Len(t, out.Records, 2)
}

func TestGasRecordFailureStillWritesNFTRecords(t *testing.T) {
	h := newHarness(t, false)
	h.store.failGas = true

	out, err := h.orch.MintOne(context.Background(), &mint.OneRequest{Asset: image(1), Name: "Art1", Description: "test", Recipient: recipient})
	require.ErrorIs(t, err, nftminter.ErrPersistence)
	require.False(t, out.GasRecorded)
	require.Contains(t, h.store.nfts, uint64(100))
}

func TestConfirmFailure(t *testing.T) {
	h := newHarness(t, false)
	h.ledger.confirmErr = nftminter.TransactionError(fmt.Errorf("reverted"), "Mint transaction was reverted.")

	out, err := h.orch.MintOne(context.Background(), &mint.OneRequest{Asset: image(1), Name: "Art1", Description: "test", Recipient: recipient})
	require.ErrorIs(t, err, nftminter.ErrTransaction)
	require.Equal(t, mint.StageConfirm, mint.StageOf(err))
	require.Equal(t, nftminter.TxFailed, out.Transaction.Status)
	require.False(t, out.Confirmed())
	require.Zero(t, h.store.writes)
}

func TestSubmitFailure(t *testing.T) {
	h := newHarness(t, false)
	h.ledger.submitErr = nftminter.TransactionError(fmt.Errorf("insufficient funds"), "Mint transaction was rejected.")

	out, err := h.orch.MintOne(context.Background(), &mint.OneRequest{Asset: image(1), Name: "Art1", Description: "test", Recipient: recipient})
	require.ErrorIs(t, err, nftminter.ErrTransaction)
	require.Equal(t, mint.StageSubmit, mint.StageOf(err))
	require.Nil(t, out.Transaction)
	require.Zero(t, h.ledger.confirms)
}

func TestCancelAfterSubmitStillRecords(t *testing.T) {
	h := newHarness(t, false)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.ledger.onSubmit = cancel

	out, err := h.orch.MintOne(ctx, &mint.OneRequest{Asset: image(1), Name: "Art1", Description: "test", Recipient: recipient})
	require.NoError(t, err)
	require.Equal(t, mint.StateRecorded, out.State)
	require.NoError(t, h.ledger.confirmCtx.Err())
	require.Len(t, h.store.nfts, 1)
}

func TestMintBatchResumesFromStaging(t *testing.T) {
	h := newHarness(t, true)
	batchID := uuid.Must(uuid.NewV4())
	assets := images(4)
	req := &mint.BatchRequest{
		BatchID:      batchID,
		Assets:       assets,
		NameTemplate: "Drop",
		Description:  "test",
		Recipient:    recipient,
	}

	h.storage.failUpload = 3
	_, err := h.orch.MintBatch(context.Background(), req)
	require.ErrorIs(t, err, nftminter.ErrStorage)
	require.Len(t, h.stager.batches[batchID], 2)

	out, err := h.orch.MintBatch(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, 2, out.ResumedAssets)
	// 2 first attempt, 1 failed, 2 on retry
	require.Equal(t, 5, h.storage.uploads)
	require.Equal(t, []string{"QmImage01", "QmImage02", "QmImage04", "QmImage05"}, out.ImageCIDs)
	require.Empty(t, h.stager.batches[batchID])
	require.Equal(t, []uuid.UUID{batchID}, h.stager.cleared)
}

func TestMintBatchStagingIgnoresChangedAsset(t *testing.T) {
	h := newHarness(t, true)
	batchID := uuid.Must(uuid.NewV4())
	require.NoError(t, h.stager.StageAsset(context.Background(), batchID, &nftminter.StagedAsset{Position: 0, AssetSHA256: "stale", ImageCID: "QmOld"}))

	out, err := h.orch.MintBatch(context.Background(), &mint.BatchRequest{
		BatchID:      batchID,
		Assets:       images(2),
		NameTemplate: "Drop",
		Description:  "test",
		Recipient:    recipient,
	})
	require.NoError(t, err)
	require.Zero(t, out.ResumedAssets)
	require.NotContains(t, out.ImageCIDs, "QmOld")
}
