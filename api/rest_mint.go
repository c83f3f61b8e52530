package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"nftminter"
	"nftminter/helpers"
	"nftminter/mint"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"
)

const defaultMaxUploadBytes = 200 << 20

// DefaultRoyaltyNumerator applies when a mint form leaves royalty out (2.5%)
const DefaultRoyaltyNumerator = 250

var ErrRequestTooLarge = fmt.Errorf("request body too large")

type MintController struct {
	API            *API
	maxUploadBytes int64
}

// MintResponse is returned once a mint reaches Recorded
type MintResponse struct {
	State        string    `json:"state"`
	TxHash       string    `json:"tx_hash"`
	TokenIDs     []uint64  `json:"token_ids"`
	Count        int       `json:"count"`
	ImageCIDs    []string  `json:"image_cids"`
	MetadataCIDs []string  `json:"metadata_cids"`
	CostWei      string    `json:"cost_wei"`
	CostEth      string    `json:"cost_eth"`
	BatchID      uuid.UUID `json:"batch_id"`
	Resumed      int       `json:"resumed_assets"`
}

func newMintResponse(out *mint.Outcome) *MintResponse {
	resp := &MintResponse{
		State:        out.State.String(),
		TokenIDs:     out.TokenIDs,
		Count:        len(out.TokenIDs),
		ImageCIDs:    out.ImageCIDs,
		MetadataCIDs: out.MetadataCIDs,
		BatchID:      out.BatchID,
		Resumed:      out.ResumedAssets,
	}
	if out.Transaction != nil {
		resp.TxHash = out.Transaction.Hash.Hex()
	}
	if out.Cost != nil {
		resp.CostWei = out.Cost.String()
		resp.CostEth = WeiToEth(out.Cost).String()
	}
	return resp
}

// WeiToEth scales a wei amount to ether without losing precision
func WeiToEth(wei *big.Int) decimal.Decimal {
	return decimal.NewFromBigInt(wei, -18)
}

// mintForm is a parsed multipart mint request
type mintForm struct {
	assets []*nftminter.Asset
	params map[string]string
}

// parseMintForm reads a multipart form holding image files plus plain fields.
// Parts named "file" or "files" are images; every other part is a field.
func parseMintForm(w http.ResponseWriter, r *http.Request, maxBytes int64) (*mintForm, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)

	mr, err := r.MultipartReader()
	if err != nil {
		return nil, nftminter.ValidationError(err, "Request must be multipart form data.")
	}

	form := &mintForm{params: map[string]string{}}
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, mapBodyError(err)
		}

		data, err := io.ReadAll(part)
		if err != nil {
			return nil, mapBodyError(err)
		}

		switch part.FormName() {
		case "file", "files":
			asset, err := nftminter.AssetFromBytes(part.FileName(), data)
			if err != nil {
				return nil, err
			}
			form.assets = append(form.assets, asset)
		default:
			form.params[part.FormName()] = string(data)
		}
	}
	return form, nil
}

func mapBodyError(err error) error {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return nftminter.ValidationError(ErrRequestTooLarge, "Upload is too large.")
	}
	return nftminter.ValidationError(err, "Could not read the upload.")
}

// fields are the inputs shared by single and batch mints
type fields struct {
	name        string
	description string
	attributes  []nftminter.Attribute
	royalty     int
	recipient   common.Address
}

func (mc *MintController) parseFields(form *mintForm, nameKey string) (*fields, error) {
	sp := mc.API.HTMLSanitize

	f := &fields{
		name:        helpers.SanitiseString(form.params[nameKey], sp),
		description: helpers.SanitiseString(form.params["description"], sp),
		royalty:     DefaultRoyaltyNumerator,
	}

	if raw := strings.TrimSpace(form.params["attributes"]); raw != "" {
		err := json.Unmarshal([]byte(raw), &f.attributes)
		if err != nil {
			return nil, nftminter.ValidationError(err, "Attributes must be a JSON list of trait_type and value.")
		}
		for i := range f.attributes {
			f.attributes[i].TraitType = helpers.SanitiseString(f.attributes[i].TraitType, sp)
			f.attributes[i].Value = helpers.SanitiseString(f.attributes[i].Value, sp)
		}
	}

	if raw := strings.TrimSpace(form.params["royalty"]); raw != "" {
		royalty, err := strconv.Atoi(raw)
		if err != nil {
			return nil, nftminter.ValidationError(err, "Royalty must be a whole number.")
		}
		f.royalty = royalty
	}

	recipient, err := nftminter.ParseRecipient(form.params["recipient"])
	if err != nil {
		return nil, err
	}
	f.recipient = recipient
	return f, nil
}

// MintOne handles POST /api/mint
func (mc *MintController) MintOne(w http.ResponseWriter, r *http.Request) (int, error) {
	defer r.Body.Close()

	form, err := parseMintForm(w, r, mc.maxUploadBytes)
	if err != nil {
		return StatusForKind(err), err
	}
	if len(form.assets) != 1 {
		return http.StatusBadRequest, nftminter.ValidationError(fmt.Errorf("%d files supplied", len(form.assets)), "Exactly one image is required.")
	}
	f, err := mc.parseFields(form, "name")
	if err != nil {
		return StatusForKind(err), err
	}

	out, err := mc.API.Minter.MintOne(r.Context(), &mint.OneRequest{
		Asset:            form.assets[0],
		Name:             f.name,
		Description:      f.description,
		Attributes:       f.attributes,
		RoyaltyNumerator: f.royalty,
		Recipient:        f.recipient,
	})
	if err != nil {
		return StatusForKind(err), &OutcomeError{Err: err, Outcome: out}
	}

	w.Header().Set("Content-Type", "application/json")
	return helpers.EncodeJSON(w, newMintResponse(out))
}

// MintBatch handles POST /api/mint/batch
func (mc *MintController) MintBatch(w http.ResponseWriter, r *http.Request) (int, error) {
	defer r.Body.Close()

	form, err := parseMintForm(w, r, mc.maxUploadBytes)
	if err != nil {
		return StatusForKind(err), err
	}
	f, err := mc.parseFields(form, "name_template")
	if err != nil {
		return StatusForKind(err), err
	}

	batchID := uuid.Nil
	if raw := strings.TrimSpace(form.params["batch_id"]); raw != "" {
		batchID, err = uuid.FromString(raw)
		if err != nil {
			return http.StatusBadRequest, nftminter.ValidationError(err, "Invalid batch id.")
		}
	}

	out, err := mc.API.Minter.MintBatch(r.Context(), &mint.BatchRequest{
		BatchID:          batchID,
		Assets:           form.assets,
		NameTemplate:     f.name,
		Description:      f.description,
		Attributes:       f.attributes,
		RoyaltyNumerator: f.royalty,
		Recipient:        f.recipient,
	})
	if err != nil {
		return StatusForKind(err), &OutcomeError{Err: err, Outcome: out}
	}

	w.Header().Set("Content-Type", "application/json")
	return helpers.EncodeJSON(w, newMintResponse(out))
}
