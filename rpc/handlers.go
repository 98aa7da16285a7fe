package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"pricebridge/core"
	"pricebridge/core/state"
	"pricebridge/native/oracleclient"
	"pricebridge/native/pricefeed"
)

type statusResult struct {
	Network   string `json:"network"`
	Component string `json:"component"`
	Variant   string `json:"variant"`
	Oracle    string `json:"oracle"`
	Resource  string `json:"resource"`
	Height    uint64 `json:"height"`
	Root      string `json:"root"`
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, statusResult{
		Network:   s.ledger.Network().Name,
		Component: s.client.Address().String(),
		Variant:   s.client.Variant().String(),
		Oracle:    s.client.Oracle().String(),
		Resource:  s.client.Resource().String(),
		Height:    s.ledger.Height(),
		Root:      s.ledger.Root().Hex(),
	})
}

func (s *Server) handleRecord(w http.ResponseWriter, _ *http.Request) {
	var data oracleclient.PriceTokenData
	err := s.ledger.View(func(st *state.Manager) error {
		var err error
		data, err = s.client.Record(st)
		return err
	})
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, RecordResult{
		Component: s.client.Address().String(),
		Resource:  s.client.Resource().String(),
		LocalID:   oracleclient.TrackedRecordLocalID().String(),
		Price:     data.Price.String(),
		Timestamp: data.Timestamp,
	})
}

func (s *Server) handleSupply(w http.ResponseWriter, _ *http.Request) {
	result := SupplyResult{
		Component: s.client.Address().String(),
		Resource:  s.client.Resource().String(),
		Operator:  s.cfg.Operator.String(),
	}
	err := s.ledger.View(func(st *state.Manager) error {
		supply, err := s.client.Supply(st)
		if err != nil {
			return err
		}
		held, err := st.VaultBalance(s.cfg.Operator.NodeID(), s.client.Resource().NodeID())
		if err != nil {
			return err
		}
		result.TotalSupply = supply.String()
		result.OperatorBalance = state.FromAtto(held).String()
		return nil
	})
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleUpdateToken(w http.ResponseWriter, r *http.Request) {
	receipt, err := s.ledger.Execute(r.Context(), oracleclient.MethodUpdateToken, func(tx *core.Tx) (any, error) {
		return tx.Call(s.client.Address(), oracleclient.MethodUpdateToken)
	})
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, receiptResult(receipt))
}

type cashResult struct {
	quantity  string
	deposited bool
}

// handleCashXRD mints through the component and deposits the returned units
// into the operator account within the same unit of work.
func (s *Server) handleCashXRD(w http.ResponseWriter, r *http.Request) {
	receipt, err := s.ledger.Execute(r.Context(), oracleclient.MethodCashXRD, func(tx *core.Tx) (any, error) {
		out, err := tx.Call(s.client.Address(), oracleclient.MethodCashXRD)
		if err != nil {
			return nil, err
		}
		bucket, ok := out.(state.Bucket)
		if !ok {
			return nil, errors.New("rpc: cash_xrd returned no bucket")
		}
		result := cashResult{quantity: bucket.Quantity().String()}
		if !bucket.IsEmpty() {
			if err := tx.State().Deposit(s.cfg.Operator.NodeID(), bucket); err != nil {
				return nil, err
			}
			result.deposited = true
		}
		return result, nil
	})
	if err != nil {
		s.fail(w, err)
		return
	}
	result := receiptResult(receipt)
	if cash, ok := receipt.Result.(cashResult); ok {
		result.Bucket = &BucketResult{
			Resource: s.client.Resource().String(),
			Quantity: cash.quantity,
		}
		if cash.deposited {
			result.Bucket.DepositedTo = s.cfg.Operator.String()
		}
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleFeedSet(w http.ResponseWriter, r *http.Request) {
	var req FeedRequest
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON payload: "+err.Error())
		return
	}
	s.callFeed(r.Context(), w, pricefeed.MethodSetPrice, req.Price, req.Timestamp)
}

func (s *Server) handleFeedClear(w http.ResponseWriter, r *http.Request) {
	s.callFeed(r.Context(), w, pricefeed.MethodClearPrice)
}

func (s *Server) callFeed(ctx context.Context, w http.ResponseWriter, method string, args ...any) {
	receipt, err := s.ledger.Execute(ctx, "feed."+method, func(tx *core.Tx) (any, error) {
		return tx.Call(s.cfg.Publisher, method, args...)
	})
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, receiptResult(receipt))
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, oracleclient.ErrOracleUnreachable), errors.Is(err, oracleclient.ErrOracleMalformed):
		return http.StatusBadGateway
	case errors.Is(err, oracleclient.ErrInvalidPrice), errors.Is(err, pricefeed.ErrInvalidArguments):
		return http.StatusUnprocessableEntity
	case errors.Is(err, oracleclient.ErrWrongVariant):
		return http.StatusNotFound
	case errors.Is(err, state.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("rpc request failed", slog.Any("error", err))
	}
	writeError(w, status, err.Error())
}
