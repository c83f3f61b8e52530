package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"nftminter"
	"nftminter/log_helpers"
	"nftminter/mint"

	"github.com/getsentry/sentry-go"
	"github.com/ninja-software/terror/v2"
	"github.com/rs/zerolog"
)

type ErrorMessage string

const (
	InternalErrorTryAgain ErrorMessage = "Internal Error - Please try again in a few minutes or Contact Support"
	InputError            ErrorMessage = "Input Error - Please try again"
	NotFound              ErrorMessage = "Not Found - The requested item does not exist"
)

func (errMsg ErrorMessage) String() string {
	return string(errMsg)
}

// ErrorObject is the JSON body of every failed request
type ErrorObject struct {
	Message   string `json:"message"`
	ErrorCode string `json:"error_code"`
	Kind      string `json:"kind,omitempty"`
	Stage     string `json:"stage,omitempty"`
	// TxHash and TokenIDs are set when the mint reached the ledger before failing
	TxHash   string   `json:"tx_hash,omitempty"`
	TokenIDs []uint64 `json:"token_ids,omitempty"`
}

// OutcomeError carries the pipeline outcome of a failed mint to WithError
type OutcomeError struct {
	Err     error
	Outcome *mint.Outcome
}

func (e *OutcomeError) Error() string {
	return e.Err.Error()
}

func (e *OutcomeError) Unwrap() error {
	return e.Err
}

// WithError handles error responses.
func WithError(log *zerolog.Logger, next func(w http.ResponseWriter, r *http.Request) (int, error)) http.HandlerFunc {
	fn := func(w http.ResponseWriter, r *http.Request) {
		code, err := next(w, r)
		if err == nil {
			return
		}

		log_helpers.TerrorEcho(sentry.GetHubFromContext(r.Context()), err, log)

		errObj := &ErrorObject{
			Message:   err.Error(),
			ErrorCode: fmt.Sprintf("%d", code),
			Stage:     string(mint.StageOf(err)),
		}
		if kind := nftminter.KindOf(err); kind != nil {
			errObj.Kind = nftminter.KindName(err)
		}

		var bErr *terror.TError
		if errors.As(err, &bErr) {
			errObj.Message = bErr.Message

			// set generic messages if friendly message not set making generic messages overrideable
			if bErr.Error() == bErr.Message {
				switch code {
				case http.StatusInternalServerError:
					errObj.Message = InternalErrorTryAgain.String()
				case http.StatusBadRequest:
					errObj.Message = InputError.String()
				case http.StatusNotFound:
					errObj.Message = NotFound.String()
				}
			}
		}

		var oErr *OutcomeError
		if errors.As(err, &oErr) && oErr.Outcome != nil && oErr.Outcome.Transaction != nil {
			errObj.TxHash = oErr.Outcome.Transaction.Hash.Hex()
			if oErr.Outcome.Confirmed() {
				errObj.TokenIDs = oErr.Outcome.TokenIDs
			}
		}

		jsonErr, err := json.Marshal(errObj)
		if err != nil {
			terror.Echo(err)
			http.Error(w, `{"message":"JSON failed, please contact IT.","error_code":"00001"}`, code)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_, _ = w.Write(jsonErr)
	}
	return fn
}

// StatusForKind maps a pipeline error kind to the response status
func StatusForKind(err error) int {
	switch nftminter.KindOf(err) {
	case nftminter.ErrValidation:
		return http.StatusBadRequest
	case nftminter.ErrStorage, nftminter.ErrTransaction, nftminter.ErrPersistence:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}
