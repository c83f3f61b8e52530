package mint_test

import (
	"context"
	"fmt"
	"math/big"
	"nftminter"
	"nftminter/db"
	"nftminter/ledger"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gofrs/uuid"
)

// memStorage stands in for the pinning service on both upload paths
type memStorage struct {
	mu          sync.Mutex
	uploads     int
	jsonUploads int
	failUpload  int // 1-based upload attempt that fails, 0 for never
	objects     map[string][]byte
	names       []string
}

func newMemStorage() *memStorage {
	return &memStorage{objects: map[string][]byte{}}
}

func (s *memStorage) Upload(ctx context.Context, data []byte, fileName string) (nftminter.UploadedAsset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.uploads++
	if s.uploads == s.failUpload {
		return nftminter.UploadedAsset{}, nftminter.StorageError(fmt.Errorf("429 too many requests"), "Storage network rate limited the upload.")
	}
	cid := fmt.Sprintf("QmImage%02d", s.uploads)
	s.objects[cid] = data
	return nftminter.UploadedAsset{CID: cid}, nil
}

func (s *memStorage) UploadJSON(ctx context.Context, doc []byte, name string) (nftminter.UploadedAsset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jsonUploads++
	cid := fmt.Sprintf("QmMeta%02d", s.jsonUploads)
	s.objects[cid] = doc
	s.names = append(s.names, name)
	return nftminter.UploadedAsset{CID: cid}, nil
}

func (s *memStorage) calls() int {
	return s.uploads + s.jsonUploads
}

type submission struct {
	method       string
	recipient    common.Address
	metadataCIDs []string
	royalty      int
}

// fakeLedger returns a receipt whose logs are built by logsFor
type fakeLedger struct {
	submissions []submission
	confirms    int
	submitErr   error
	confirmErr  error
	// onSubmit runs inside the submit call
	onSubmit   func()
	confirmCtx context.Context
	logsFor    func(count int) []nftminter.LogEntry
	nextID     int64
}

func newFakeLedger() *fakeLedger {
	f := &fakeLedger{nextID: 100}
	f.logsFor = func(count int) []nftminter.LogEntry {
		logs := make([]nftminter.LogEntry, count)
		for i := range logs {
			logs[i] = mintLog(f.nextID + int64(i))
		}
		return logs
	}
	return f
}

func mintLog(id int64) nftminter.LogEntry {
	return nftminter.LogEntry{Topics: []common.Hash{
		ledger.TransferTopic,
		{},
		recipient.Hash(),
		common.BigToHash(big.NewInt(id)),
	}}
}

func (f *fakeLedger) submit(ctx context.Context, s submission) (common.Hash, error) {
	f.submissions = append(f.submissions, s)
	if f.onSubmit != nil {
		f.onSubmit()
	}
	if f.submitErr != nil {
		return common.Hash{}, f.submitErr
	}
	return common.BigToHash(big.NewInt(int64(0xabc0 + len(f.submissions)))), nil
}

func (f *fakeLedger) SubmitMint(ctx context.Context, to common.Address, metadataCID string, royaltyNumerator int) (common.Hash, error) {
	return f.submit(ctx, submission{ledger.MethodMintItem, to, []string{metadataCID}, royaltyNumerator})
}

func (f *fakeLedger) SubmitBatchMint(ctx context.Context, to common.Address, metadataCIDs []string, royaltyNumerator int) (common.Hash, error) {
	cids := make([]string, len(metadataCIDs))
	copy(cids, metadataCIDs)
	return f.submit(ctx, submission{ledger.MethodBatchMint, to, cids, royaltyNumerator})
}

func (f *fakeLedger) Confirm(ctx context.Context, txHash common.Hash) (*nftminter.Receipt, error) {
	f.confirms++
	f.confirmCtx = ctx
	if f.confirmErr != nil {
		return nil, f.confirmErr
	}
	if err := ctx.Err(); err != nil {
		return nil, nftminter.TransactionError(err, "cancelled")
	}
	count := len(f.submissions[len(f.submissions)-1].metadataCIDs)
	return &nftminter.Receipt{
		TxHash:            txHash,
		BlockNumber:       14261476,
		GasUsed:           big.NewInt(21000),
		EffectiveGasPrice: big.NewInt(34061670065),
		Logs:              f.logsFor(count),
	}, nil
}

func (f *fakeLedger) calls() int {
	return len(f.submissions) + f.confirms
}

type memStore struct {
	gas      map[common.Hash]*nftminter.GasRecord
	nfts     map[uint64]*nftminter.NFTRecord
	writes   int
	failGas  bool
	failNFTs map[uint64]bool
}

func newMemStore() *memStore {
	return &memStore{
		gas:      map[common.Hash]*nftminter.GasRecord{},
		nfts:     map[uint64]*nftminter.NFTRecord{},
		failNFTs: map[uint64]bool{},
	}
}

func (s *memStore) SaveGasRecord(ctx context.Context, rec *nftminter.GasRecord) error {
	s.writes++
	if s.failGas {
		return nftminter.PersistenceError(fmt.Errorf("connection reset"), "Failed to save gas record.")
	}
	s.gas[rec.TxHash] = rec
	return nil
}

func (s *memStore) SaveNFTRecord(ctx context.Context, rec *nftminter.NFTRecord) error {
	s.writes++
	if s.failNFTs[rec.TokenID] {
		return nftminter.PersistenceError(fmt.Errorf("connection reset"), "Failed to save NFT record.")
	}
	s.nfts[rec.TokenID] = rec
	return nil
}

func (s *memStore) GasRecordTallies(ctx context.Context, limit int) ([]*db.GasRecordTally, error) {
	var tallies []*db.GasRecordTally
	for hash, g := range s.gas {
		count := 0
		for _, n := range s.nfts {
			if n.TxHash != nil && *n.TxHash == hash {
				count++
			}
		}
		tallies = append(tallies, &db.GasRecordTally{TxHash: hash.Hex(), MethodName: g.MethodName, BlockNumber: int64(g.BlockNumber), NFTCount: count})
	}
	return tallies, nil
}

func (s *memStore) NFTRecordsByTxHash(ctx context.Context, txHash common.Hash) ([]*nftminter.NFTRecord, error) {
	var records []*nftminter.NFTRecord
	for _, n := range s.nfts {
		if n.TxHash != nil && *n.TxHash == txHash {
			records = append(records, n)
		}
	}
	return records, nil
}

type memStager struct {
	batches map[uuid.UUID]map[int]*nftminter.StagedAsset
	cleared []uuid.UUID
}

func newMemStager() *memStager {
	return &memStager{batches: map[uuid.UUID]map[int]*nftminter.StagedAsset{}}
}

func (s *memStager) StageAsset(ctx context.Context, batchID uuid.UUID, asset *nftminter.StagedAsset) error {
	if s.batches[batchID] == nil {
		s.batches[batchID] = map[int]*nftminter.StagedAsset{}
	}
	s.batches[batchID][asset.Position] = asset
	return nil
}

func (s *memStager) StagedAssets(ctx context.Context, batchID uuid.UUID) (map[int]*nftminter.StagedAsset, error) {
	out := map[int]*nftminter.StagedAsset{}
	for k, v := range s.batches[batchID] {
		out[k] = v
	}
	return out, nil
}

func (s *memStager) ClearBatch(ctx context.Context, batchID uuid.UUID) error {
	delete(s.batches, batchID)
	s.cleared = append(s.cleared, batchID)
	return nil
}
