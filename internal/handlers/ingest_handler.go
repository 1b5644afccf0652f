package handlers

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hive402/backend/internal/gate"
	"github.com/hive402/backend/internal/payment"
)

// PaymentSignatureHeader may carry the payment proof instead of the body.
const (
	PaymentSignatureHeader = "payment-signature"
	PaymentRequiredHeader  = "payment-required"
)

type Ingester interface {
	Ingest(ctx context.Context, req gate.Request) (*gate.Result, error)
}

// IngestHandler serves POST /v1/ingest.
type IngestHandler struct {
	Gate   Ingester
	Logger *slog.Logger
}

type ingestRequest struct {
	SkillID      string `json:"skillId"`
	Address      string `json:"address"`
	PublicKey    string `json:"publicKey"`
	Signature    string `json:"signature"`
	Challenge    string `json:"challenge"`
	PaymentProof string `json:"paymentProof"`
}

type intelligence struct {
	SkillID            string    `json:"skillId"`
	Title              string    `json:"title"`
	ContentReference   string    `json:"contentReference"`
	AccessKey          string    `json:"accessKey"`
	AccessKeyExpiresAt time.Time `json:"accessKeyExpiresAt"`
	OrderID            string    `json:"orderId"`
	Simulated          bool      `json:"simulated,omitempty"`
	Timestamp          time.Time `json:"timestamp"`
	Note               string    `json:"note,omitempty"`
}

type releaseResponse struct {
	Status       string       `json:"status"`
	Intelligence intelligence `json:"intelligence"`
}

type paymentRequiredResponse struct {
	Error               string              `json:"error"`
	Reason              string              `json:"reason,omitempty"`
	ReasonClass         string              `json:"reasonClass,omitempty"`
	Detail              string              `json:"detail,omitempty"`
	PaymentRequirements payment.Requirement `json:"paymentRequirements"`
	Instruction         string              `json:"instruction"`
}

// Ingest handles POST /v1/ingest.
func (h *IngestHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	if req.SkillID == "" {
		http.Error(w, `{"error":"skillId is required"}`, http.StatusBadRequest)
		return
	}
	proof := req.PaymentProof
	if proof == "" {
		proof = strings.TrimSpace(r.Header.Get(PaymentSignatureHeader))
	}

	res, err := h.Gate.Ingest(r.Context(), gate.Request{
		SkillID:         req.SkillID,
		ClaimedIdentity: req.Address,
		PublicKey:       req.PublicKey,
		Signature:       req.Signature,
		Challenge:       req.Challenge,
		PaymentProof:    proof,
	})
	if err != nil {
		h.writeGateError(w, req.SkillID, err)
		return
	}

	switch res.Outcome {
	case gate.OutcomeReleased:
		rel := res.Release
		body := releaseResponse{
			Status: "authorized",
			Intelligence: intelligence{
				SkillID:            rel.SkillID.String(),
				Title:              rel.Title,
				ContentReference:   rel.ContentReference,
				AccessKey:          rel.AccessKey,
				AccessKeyExpiresAt: rel.AccessKeyExpiresAt,
				OrderID:            rel.OrderID.String(),
				Simulated:          rel.Simulated,
				Timestamp:          rel.Timestamp,
			},
		}
		if rel.Simulated {
			body.Intelligence.Note = "SIMULATION MODE: payment bypassed"
		}
		writeJSON(w, http.StatusOK, body)
	default:
		h.writePaymentRequired(w, res)
	}
}

func (h *IngestHandler) writePaymentRequired(w http.ResponseWriter, res *gate.Result) {
	req := *res.Requirement
	encoded, err := json.Marshal(req)
	if err == nil {
		w.Header().Set(PaymentRequiredHeader, base64.StdEncoding.EncodeToString(encoded))
	}
	body := paymentRequiredResponse{
		Error:               "Payment Required",
		PaymentRequirements: req,
		Instruction:         req.Instruction(),
	}
	if rej := res.Rejection; rej != nil {
		body.Reason = rej.Reason
		body.ReasonClass = rej.Class
		body.Detail = rej.Detail
	}
	writeJSON(w, http.StatusPaymentRequired, body)
}

func (h *IngestHandler) writeGateError(w http.ResponseWriter, skillID string, err error) {
	reason := gate.Reason(err)
	switch {
	case errors.Is(err, gate.ErrSkillNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "skill not found", "reason": reason})
	case errors.Is(err, gate.ErrChallengeMismatch):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "challenge does not match skill", "reason": reason})
	case errors.Is(err, gate.ErrIdentityRejected):
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "identity verification failed", "reason": reason})
	case errors.Is(err, gate.ErrRailUnavailable):
		h.Logger.Error("payment rail unavailable", "skill_id", skillID, "error", err)
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": "payment rail unavailable, retry later", "reason": reason})
	default:
		h.Logger.Error("ingest failed", "skill_id", skillID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "protocol error during ingestion sequence", "reason": reason})
	}
}
