package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"pos-ledger/internal/api/handler/dto"
	"pos-ledger/internal/domain/credit"
	"pos-ledger/internal/domain/ledger"
)

type CreditHandler struct {
	engine credit.Engine
	clock  ledger.Clock
	logger *slog.Logger
}

func NewCreditHandler(e credit.Engine, clock ledger.Clock, l *slog.Logger) *CreditHandler {
	if clock == nil {
		clock = ledger.SystemClock{}
	}
	return &CreditHandler{
		engine: e,
		clock:  clock,
		logger: l.With("component", "CreditHandler"),
	}
}

// CreateCredit
//
// @Summary Issue store credit to a customer
// @Tags Credits
// @Accept json
// @Produce json
// @Param customerID path int true "Customer ID"
// @Param request body dto.CreateCreditRequest true "Principal and due date"
// @Success 201 {object} dto.CreditResponse
// @Failure 400 {object} dto.ErrorResponse
// @Failure 404 {object} dto.ErrorResponse
// @Failure 422 {object} dto.ErrorResponse "Credit limit exceeded or customer not active"
// @Router /customers/{customerID}/credits [post]
// @Security BearerAuth
func (h *CreditHandler) CreateCredit(w http.ResponseWriter, r *http.Request) {
	customerID, err := getIDFromURL(r, "customerID")
	if err != nil {
		respondError(w, err)
		return
	}
	var req dto.CreateCreditRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, invalidBody(err))
		return
	}
	principal, due, err := req.Parse()
	if err != nil {
		respondError(w, err)
		return
	}

	created, err := h.engine.CreateCredit(r.Context(), customerID, principal, due)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, dto.NewCreditResponse(created))
}

// ListCustomerCredits
//
// @Summary List a customer's credits
// @Tags Credits
// @Produce json
// @Param customerID path int true "Customer ID"
// @Success 200 {array} dto.CreditResponse
// @Failure 404 {object} dto.ErrorResponse
// @Router /customers/{customerID}/credits [get]
// @Security BearerAuth
func (h *CreditHandler) ListCustomerCredits(w http.ResponseWriter, r *http.Request) {
	customerID, err := getIDFromURL(r, "customerID")
	if err != nil {
		respondError(w, err)
		return
	}
	credits, err := h.engine.ListCustomerCredits(r.Context(), customerID)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, dto.NewCreditListResponse(credits))
}

// GetCredit
//
// @Summary Get a credit
// @Description The status is evaluated at request time, so an unpaid credit past its due date reads as OVERDUE.
// @Tags Credits
// @Produce json
// @Param creditID path int true "Credit ID"
// @Success 200 {object} dto.CreditResponse
// @Failure 404 {object} dto.ErrorResponse
// @Router /credits/{creditID} [get]
// @Security BearerAuth
func (h *CreditHandler) GetCredit(w http.ResponseWriter, r *http.Request) {
	creditID, err := getIDFromURL(r, "creditID")
	if err != nil {
		respondError(w, err)
		return
	}
	c, err := h.engine.GetCredit(r.Context(), creditID)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, dto.NewCreditResponse(c))
}

// ProcessPayment
//
// @Summary Pay down a credit
// @Tags Credits
// @Accept json
// @Produce json
// @Param creditID path int true "Credit ID"
// @Param request body dto.PaymentRequest true "Payment amount"
// @Success 200 {object} dto.CreditResponse
// @Failure 400 {object} dto.ErrorResponse
// @Failure 404 {object} dto.ErrorResponse
// @Failure 422 {object} dto.ErrorResponse "Payment exceeds outstanding balance"
// @Router /credits/{creditID}/payments [post]
// @Security BearerAuth
func (h *CreditHandler) ProcessPayment(w http.ResponseWriter, r *http.Request) {
	creditID, err := getIDFromURL(r, "creditID")
	if err != nil {
		respondError(w, err)
		return
	}
	var req dto.PaymentRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, invalidBody(err))
		return
	}
	amount, err := req.Parse()
	if err != nil {
		respondError(w, err)
		return
	}

	updated, err := h.engine.ProcessPayment(r.Context(), creditID, amount)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, dto.NewCreditResponse(updated))
}

// CancelCredit
//
// @Summary Cancel an unpaid credit
// @Description Only credits with nothing paid can be cancelled; the principal is released.
// @Tags Credits
// @Param creditID path int true "Credit ID"
// @Success 204
// @Failure 404 {object} dto.ErrorResponse
// @Failure 409 {object} dto.ErrorResponse "Payments were already made"
// @Router /credits/{creditID} [delete]
// @Security BearerAuth
func (h *CreditHandler) CancelCredit(w http.ResponseWriter, r *http.Request) {
	creditID, err := getIDFromURL(r, "creditID")
	if err != nil {
		respondError(w, err)
		return
	}
	if err := h.engine.CancelCredit(r.Context(), creditID); err != nil {
		respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListOverdue
//
// @Summary List overdue credits
// @Description Credits unpaid after their due date, oldest due date first.
// @Tags Credits
// @Produce json
// @Param asOf query string false "Evaluation time, YYYY-MM-DD or RFC 3339 (defaults to now)"
// @Success 200 {object} dto.OverdueResponse
// @Failure 400 {object} dto.ErrorResponse
// @Router /credits/overdue [get]
// @Security BearerAuth
func (h *CreditHandler) ListOverdue(w http.ResponseWriter, r *http.Request) {
	asOf := h.clock.Now()
	if raw := strings.TrimSpace(r.URL.Query().Get("asOf")); raw != "" {
		t, err := dto.ParseDate("asOf", raw)
		if err != nil {
			respondError(w, err)
			return
		}
		asOf = t
	}

	resp := dto.OverdueResponse{AsOf: asOf, Credits: []dto.CreditResponse{}}
	total := decimal.Zero
	for c, err := range h.engine.ListOverdue(r.Context(), asOf) {
		if err != nil {
			respondError(w, err)
			return
		}
		total = total.Add(c.Outstanding())
		resp.Credits = append(resp.Credits, dto.NewCreditResponse(&c))
	}
	resp.Count = len(resp.Credits)
	resp.TotalOutstanding = total.StringFixed(2)
	respondJSON(w, http.StatusOK, resp)
}

