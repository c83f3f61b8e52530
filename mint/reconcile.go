package mint

import (
	"context"
	"nftminter"
	"nftminter/db"
	"nftminter/ledger"
	"nftminter/receipt"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
)

type ReceiptSource interface {
	Confirm(ctx context.Context, txHash common.Hash) (*nftminter.Receipt, error)
}

type RecordSource interface {
	GasRecordTallies(ctx context.Context, limit int) ([]*db.GasRecordTally, error)
	NFTRecordsByTxHash(ctx context.Context, txHash common.Hash) ([]*nftminter.NFTRecord, error)
}

// Discrepancy is a recorded transaction whose minted token ids differ from
// the NFT records pointing at it
type Discrepancy struct {
	TxHash            common.Hash `json:"tx_hash"`
	Method            string      `json:"method"`
	Minted            int         `json:"minted"`
	Recorded          int         `json:"recorded"`
	UntrackedTokenIDs []uint64    `json:"untracked_token_ids"`
	// StrayTokenIDs are recorded against the transaction but were not minted by it
	StrayTokenIDs []uint64 `json:"stray_token_ids"`
	// UnreadableMints counts mint events whose token id could not be read
	UnreadableMints int `json:"unreadable_mints"`
}

type ReconcileReport struct {
	Checked       int            `json:"checked"`
	Discrepancies []*Discrepancy `json:"discrepancies"`
	// Unreadable holds transactions whose receipt could not be fetched
	Unreadable []common.Hash `json:"unreadable"`
}

// Reconciler compares gas records against their receipts. It only reports; nothing is written.
type Reconciler struct {
	receipts ReceiptSource
	records  RecordSource
	limit    int
	log      *zerolog.Logger
}

func NewReconciler(receipts ReceiptSource, records RecordSource, limit int, log *zerolog.Logger) *Reconciler {
	if limit <= 0 {
		limit = 100
	}
	return &Reconciler{receipts: receipts, records: records, limit: limit, log: log}
}

func (r *Reconciler) Run(ctx context.Context) (*ReconcileReport, error) {
	tallies, err := r.records.GasRecordTallies(ctx, r.limit)
	if err != nil {
		return nil, err
	}

	report := &ReconcileReport{}
	for _, tally := range tallies {
		report.Checked++
		txHash := common.HexToHash(tally.TxHash)

		rcpt, err := r.receipts.Confirm(ctx, txHash)
		if err != nil {
			r.log.Warn().Err(err).Str("tx_hash", tally.TxHash).Msg("could not read receipt")
			report.Unreadable = append(report.Unreadable, txHash)
			continue
		}

		minted, unreadable := mintTransfers(rcpt)
		records, err := r.records.NFTRecordsByTxHash(ctx, txHash)
		if err != nil {
			return nil, err
		}

		d := &Discrepancy{TxHash: txHash, Method: tally.MethodName, Minted: len(minted) + unreadable, Recorded: len(records), UnreadableMints: unreadable}
		mintedSet := make(map[uint64]bool, len(minted))
		for _, id := range minted {
			mintedSet[id] = true
		}
		known := make(map[uint64]bool, len(records))
		for _, rec := range records {
			known[rec.TokenID] = true
			if !mintedSet[rec.TokenID] {
				d.StrayTokenIDs = append(d.StrayTokenIDs, rec.TokenID)
			}
		}
		for _, id := range minted {
			if !known[id] {
				d.UntrackedTokenIDs = append(d.UntrackedTokenIDs, id)
			}
		}
		if len(d.UntrackedTokenIDs) == 0 && len(d.StrayTokenIDs) == 0 && d.UnreadableMints == 0 {
			continue
		}
		sort.Slice(d.StrayTokenIDs, func(i, j int) bool { return d.StrayTokenIDs[i] < d.StrayTokenIDs[j] })

		report.Discrepancies = append(report.Discrepancies, d)
		r.log.Warn().
			Str("tx_hash", tally.TxHash).
			Int("minted", d.Minted).
			Int("recorded", d.Recorded).
			Interface("untracked_token_ids", d.UntrackedTokenIDs).
			Interface("stray_token_ids", d.StrayTokenIDs).
			Int("unreadable_mints", d.UnreadableMints).
			Msg("record store disagrees with mint receipt")
	}

	r.log.Info().Int("checked", report.Checked).Int("discrepancies", len(report.Discrepancies)).Msg("reconcile finished")
	return report, nil
}

// MintedTokenIDs returns the ids of Transfer events from the zero address, in log order
func MintedTokenIDs(r *nftminter.Receipt) []uint64 {
	ids, _ := mintTransfers(r)
	return ids
}

func mintTransfers(r *nftminter.Receipt) (ids []uint64, unreadable int) {
	for _, lg := range r.Logs {
		if len(lg.Topics) < 2 || lg.Topics[0] != ledger.TransferTopic || lg.Topics[1] != (common.Hash{}) {
			continue
		}
		if len(lg.Topics) < 4 {
			unreadable++
			continue
		}
		id, err := receipt.TopicToTokenID(lg.Topics[3])
		if err != nil {
			unreadable++
			continue
		}
		ids = append(ids, id)
	}
	return ids, unreadable
}
