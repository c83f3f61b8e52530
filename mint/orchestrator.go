package mint

import (
	"context"
	"fmt"
	"math/big"
	"nftminter"
	"nftminter/ledger"
	"nftminter/receipt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gofrs/uuid"
	"github.com/rs/zerolog"
)

type AssetUploader interface {
	Upload(ctx context.Context, data []byte, fileName string) (nftminter.UploadedAsset, error)
}

type MetadataPublisher interface {
	Compose(name, description, imageCID string, attributes []nftminter.Attribute) (*nftminter.MetadataDocument, error)
	Publish(ctx context.Context, doc *nftminter.MetadataDocument) (string, error)
}

// Ledger submits mints and resolves them into receipts. Logs at indices
// [0, count) of a batch receipt must correspond positionally to the submitted CIDs.
type Ledger interface {
	SubmitMint(ctx context.Context, recipient common.Address, metadataCID string, royaltyNumerator int) (common.Hash, error)
	SubmitBatchMint(ctx context.Context, recipient common.Address, metadataCIDs []string, royaltyNumerator int) (common.Hash, error)
	Confirm(ctx context.Context, txHash common.Hash) (*nftminter.Receipt, error)
}

type RecordStore interface {
	SaveGasRecord(ctx context.Context, rec *nftminter.GasRecord) error
	SaveNFTRecord(ctx context.Context, rec *nftminter.NFTRecord) error
}

// Stager durably remembers which batch assets were already uploaded
type Stager interface {
	StageAsset(ctx context.Context, batchID uuid.UUID, asset *nftminter.StagedAsset) error
	StagedAssets(ctx context.Context, batchID uuid.UUID) (map[int]*nftminter.StagedAsset, error)
	ClearBatch(ctx context.Context, batchID uuid.UUID) error
}

type Option func(*Orchestrator)

// WithStager makes batches carrying a BatchID resumable after an upload failure
func WithStager(s Stager) Option {
	return func(o *Orchestrator) {
		o.stager = s
	}
}

// WithClock replaces time.Now for the mint timestamp
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		o.now = now
	}
}

// Orchestrator runs the mint pipeline. Steps of one operation run one after
// another; separate operations are not serialised against each other.
type Orchestrator struct {
	uploader AssetUploader
	metadata MetadataPublisher
	ledger   Ledger
	records  RecordStore
	stager   Stager
	now      func() time.Time
	log      *zerolog.Logger
}

func NewOrchestrator(uploader AssetUploader, metadata MetadataPublisher, ledger Ledger, records RecordStore, log *zerolog.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		uploader: uploader,
		metadata: metadata,
		ledger:   ledger,
		records:  records,
		now:      time.Now,
		log:      log,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

type OneRequest struct {
	Asset            *nftminter.Asset
	Name             string
	Description      string
	Attributes       []nftminter.Attribute
	RoyaltyNumerator int
	Recipient        common.Address
}

type BatchRequest struct {
	// BatchID enables staging when the orchestrator has a Stager. Retrying with
	// the same id skips assets uploaded by the earlier attempt.
	BatchID          uuid.UUID
	Assets           []*nftminter.Asset
	NameTemplate     string
	Description      string
	Attributes       []nftminter.Attribute
	RoyaltyNumerator int
	Recipient        common.Address
}

// Outcome is returned with every MintOne/MintBatch result, failed or not
type Outcome struct {
	State        State                      `json:"state"`
	FailedStage  Stage                      `json:"failed_stage,omitempty"`
	BatchID      uuid.UUID                  `json:"batch_id,omitempty"`
	ImageCIDs    []string                   `json:"image_cids"`
	MetadataCIDs []string                   `json:"metadata_cids"`
	Transaction  *nftminter.MintTransaction `json:"transaction,omitempty"`
	TokenIDs     []uint64                   `json:"token_ids"`
	Cost         *big.Int                   `json:"cost,omitempty"`
	GasRecorded  bool                       `json:"gas_recorded"`
	Records      []*nftminter.NFTRecord     `json:"records,omitempty"`
	// UnrecordedTokenIDs exist on the ledger but their NFT record write failed
	UnrecordedTokenIDs []uint64 `json:"unrecorded_token_ids,omitempty"`
	// ResumedAssets counts batch assets taken from staging instead of uploaded
	ResumedAssets int `json:"resumed_assets"`
}

// Confirmed reports whether the mint reached the ledger, regardless of what happened after
func (o *Outcome) Confirmed() bool {
	return o.Transaction != nil && o.Transaction.Status == nftminter.TxConfirmed
}

func validateFields(name, description string, royaltyNumerator int, recipient common.Address) error {
	if strings.TrimSpace(name) == "" {
		return nftminter.ValidationError(fmt.Errorf("name is empty"), "A name is required.")
	}
	if strings.TrimSpace(description) == "" {
		return nftminter.ValidationError(fmt.Errorf("description is empty"), "A description is required.")
	}
	if err := nftminter.ValidateRoyalty(royaltyNumerator); err != nil {
		return err
	}
	return nftminter.ValidateRecipient(recipient)
}

func validateAsset(i int, a *nftminter.Asset) error {
	if a == nil || len(a.Data) == 0 {
		return nftminter.ValidationError(fmt.Errorf("asset %d is empty", i), "An image is required.")
	}
	return nil
}

// MintOne uploads one image, publishes its metadata, mints it and records the result
func (o *Orchestrator) MintOne(ctx context.Context, req *OneRequest) (*Outcome, error) {
	const workflow = "single"
	out := &Outcome{State: StateIdle}
	l := o.log.With().Str("workflow", workflow).Str("recipient", req.Recipient.Hex()).Logger()

	err := validateAsset(0, req.Asset)
	if err == nil {
		err = validateFields(req.Name, req.Description, req.RoyaltyNumerator, req.Recipient)
	}
	if err != nil {
		return o.fail(out, workflow, StageValidate, err, &l)
	}

	uploaded, err := o.uploader.Upload(ctx, req.Asset.Data, req.Asset.FileName)
	if err != nil {
		return o.fail(out, workflow, StageUpload, err, &l)
	}
	out.ImageCIDs = []string{uploaded.CID}
	out.State = StateAssetsStaged
	l.Debug().Str("image_cid", uploaded.CID).Msg("asset uploaded")

	doc, err := o.metadata.Compose(req.Name, req.Description, uploaded.CID, req.Attributes)
	if err != nil {
		return o.fail(out, workflow, StagePublish, err, &l)
	}
	metadataCID, err := o.metadata.Publish(ctx, doc)
	if err != nil {
		return o.fail(out, workflow, StagePublish, err, &l)
	}
	out.MetadataCIDs = []string{metadataCID}
	out.State = StateMetadataPublished
	l.Debug().Str("metadata_cid", metadataCID).Msg("metadata published")

	return o.mint(ctx, out, &mintCall{
		workflow:  workflow,
		method:    ledger.MethodMintItem,
		recipient: req.Recipient,
		royalty:   req.RoyaltyNumerator,
		submit: func(ctx context.Context) (common.Hash, error) {
			return o.ledger.SubmitMint(ctx, req.Recipient, metadataCID, req.RoyaltyNumerator)
		},
		extract: receipt.ExtractTokenIDs,
	}, &l)
}

// MintBatch uploads every asset in order, publishes per-item metadata named
// "<template> #<n>", mints them in one transaction and records the results.
// Any upload failure aborts the batch before metadata or minting.
func (o *Orchestrator) MintBatch(ctx context.Context, req *BatchRequest) (*Outcome, error) {
	const workflow = "batch"
	out := &Outcome{State: StateIdle, BatchID: req.BatchID}
	l := o.log.With().Str("workflow", workflow).Str("recipient", req.Recipient.Hex()).Int("size", len(req.Assets)).Logger()
	if req.BatchID != uuid.Nil {
		l = l.With().Str("batch_id", req.BatchID.String()).Logger()
	}

	err := nftminter.ValidateBatchSize(len(req.Assets))
	for i := 0; err == nil && i < len(req.Assets); i++ {
		err = validateAsset(i, req.Assets[i])
	}
	if err == nil {
		err = validateFields(req.NameTemplate, req.Description, req.RoyaltyNumerator, req.Recipient)
	}
	if err != nil {
		return o.fail(out, workflow, StageValidate, err, &l)
	}

	staging := o.stager != nil && req.BatchID != uuid.Nil
	staged := map[int]*nftminter.StagedAsset{}
	if staging {
		staged, err = o.stager.StagedAssets(ctx, req.BatchID)
		if err != nil {
			return o.fail(out, workflow, StageUpload, err, &l)
		}
	}

	out.ImageCIDs = make([]string, 0, len(req.Assets))
	for i, asset := range req.Assets {
		hash := asset.SHA256()
		if s, ok := staged[i]; ok && s.AssetSHA256 == hash && s.ImageCID != "" {
			out.ImageCIDs = append(out.ImageCIDs, s.ImageCID)
			out.ResumedAssets++
			continue
		}

		uploaded, err := o.uploader.Upload(ctx, asset.Data, asset.FileName)
		if err != nil {
			l.Debug().Int("position", i).Msg("batch upload failed")
			return o.fail(out, workflow, StageUpload, err, &l)
		}
		out.ImageCIDs = append(out.ImageCIDs, uploaded.CID)

		if staging {
			err = o.stager.StageAsset(ctx, req.BatchID, &nftminter.StagedAsset{Position: i, AssetSHA256: hash, ImageCID: uploaded.CID})
			if err != nil {
				l.Warn().Err(err).Int("position", i).Msg("failed to stage uploaded asset")
			}
		}
	}
	out.State = StateAssetsStaged
	l.Debug().Strs("image_cids", out.ImageCIDs).Int("resumed", out.ResumedAssets).Msg("assets uploaded")

	out.MetadataCIDs = make([]string, 0, len(out.ImageCIDs))
	for i, imageCID := range out.ImageCIDs {
		name := fmt.Sprintf("%s #%d", req.NameTemplate, i+1)
		doc, err := o.metadata.Compose(name, req.Description, imageCID, req.Attributes)
		if err != nil {
			return o.fail(out, workflow, StagePublish, err, &l)
		}
		metadataCID, err := o.metadata.Publish(ctx, doc)
		if err != nil {
			return o.fail(out, workflow, StagePublish, err, &l)
		}
		out.MetadataCIDs = append(out.MetadataCIDs, metadataCID)
	}
	out.State = StateMetadataPublished
	l.Debug().Strs("metadata_cids", out.MetadataCIDs).Msg("metadata published")

	out, err = o.mint(ctx, out, &mintCall{
		workflow:  workflow,
		method:    ledger.MethodBatchMint,
		recipient: req.Recipient,
		royalty:   req.RoyaltyNumerator,
		submit: func(ctx context.Context) (common.Hash, error) {
			return o.ledger.SubmitBatchMint(ctx, req.Recipient, out.MetadataCIDs, req.RoyaltyNumerator)
		},
		extract: receipt.ExtractBatchTokenIDs,
	}, &l)
	if err != nil {
		return out, err
	}

	if staging {
		err = o.stager.ClearBatch(context.WithoutCancel(ctx), req.BatchID)
		if err != nil {
			l.Warn().Err(err).Msg("failed to clear staged batch")
		}
	}
	return out, nil
}

type mintCall struct {
	workflow  string
	method    string
	recipient common.Address
	royalty   int
	submit    func(ctx context.Context) (common.Hash, error)
	extract   func(r *nftminter.Receipt, count int) ([]uint64, error)
}

// mint runs submit, confirm, interpret and record for published metadata
func (o *Orchestrator) mint(ctx context.Context, out *Outcome, call *mintCall, l *zerolog.Logger) (*Outcome, error) {
	txHash, err := call.submit(ctx)
	if err != nil {
		return o.fail(out, call.workflow, StageSubmit, err, l)
	}
	out.Transaction = &nftminter.MintTransaction{Hash: txHash, Method: call.method, Status: nftminter.TxPending}
	out.State = StateSubmitted
	txLog := l.With().Str("tx_hash", txHash.Hex()).Logger()
	l = &txLog
	l.Debug().Str("method", call.method).Msg("mint submitted")

	// the ledger mutation cannot be taken back once submitted
	ctx = context.WithoutCancel(ctx)

	started := time.Now()
	rcpt, err := o.ledger.Confirm(ctx, txHash)
	if err != nil {
		out.Transaction.Status = nftminter.TxFailed
		return o.fail(out, call.workflow, StageConfirm, err, l)
	}
	confirmSeconds.Observe(time.Since(started).Seconds())
	out.Transaction.Status = nftminter.TxConfirmed
	out.Transaction.Receipt = rcpt
	out.State = StateConfirmed

	// gas is charged whether or not the receipt can be read as a mint, so it is
	// recorded before interpretation
	gas, err := receipt.GasRecord(rcpt, call.method, call.recipient)
	if err != nil {
		return o.fail(out, call.workflow, StageInterpret, err, l)
	}
	out.Cost = gas.TotalCost
	cost, _ := new(big.Float).SetInt(gas.TotalCost).Float64()
	gasCostWei.Add(cost)

	var recordErr error
	err = o.records.SaveGasRecord(ctx, gas)
	if err != nil {
		recordErr = err
		l.Error().Err(err).Msg("gas record not saved")
	} else {
		out.GasRecorded = true
	}

	tokenIDs, err := call.extract(rcpt, len(out.MetadataCIDs))
	if err != nil {
		return o.fail(out, call.workflow, StageInterpret, err, l)
	}
	out.TokenIDs = tokenIDs
	tokensMinted.Add(float64(len(tokenIDs)))
	l.Debug().Interface("token_ids", tokenIDs).Str("cost", gas.TotalCost.String()).Msg("mint confirmed")

	mintedAt := o.now().UTC()
	for i, tokenID := range tokenIDs {
		rec := &nftminter.NFTRecord{
			TokenID:          tokenID,
			TokenURI:         out.MetadataCIDs[i],
			MintedAt:         mintedAt,
			Owner:            call.recipient,
			State:            nftminter.LifecycleActive,
			RoyaltyNumerator: call.royalty,
			TxHash:           &txHash,
		}
		err = o.records.SaveNFTRecord(ctx, rec)
		if err != nil {
			out.UnrecordedTokenIDs = append(out.UnrecordedTokenIDs, tokenID)
			if recordErr == nil {
				recordErr = err
			}
			continue
		}
		out.Records = append(out.Records, rec)
	}
	if recordErr != nil {
		l.Error().Interface("unrecorded_token_ids", out.UnrecordedTokenIDs).Bool("gas_recorded", out.GasRecorded).Msg("minted tokens are missing from the record store")
		return o.fail(out, call.workflow, StageRecord, recordErr, l)
	}

	out.State = StateRecorded
	mintsTotal.WithLabelValues(call.workflow, "recorded").Inc()
	l.Info().Interface("token_ids", tokenIDs).Msg("mint recorded")
	return out, nil
}

func (o *Orchestrator) fail(out *Outcome, workflow string, stage Stage, err error, l *zerolog.Logger) (*Outcome, error) {
	out.State = StateFailed
	out.FailedStage = stage
	kind := nftminter.KindName(err)
	stageFailures.WithLabelValues(string(stage), kind).Inc()
	mintsTotal.WithLabelValues(workflow, "failed").Inc()

	evt := l.Error()
	if kind == "validation" {
		evt = l.Warn()
	}
	evt.Err(err).Str("stage", string(stage)).Str("kind", kind).Msg("mint failed")
	return out, stageError(stage, err)
}
