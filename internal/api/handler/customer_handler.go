package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"pos-ledger/internal/api/handler/dto"
	"pos-ledger/internal/domain/customer"
	"pos-ledger/internal/domain/ledger"
	"pos-ledger/internal/pkg/apperrors"
)

type CustomerHandler struct {
	service customer.Service
	logger  *slog.Logger
}

func NewCustomerHandler(s customer.Service, l *slog.Logger) *CustomerHandler {
	return &CustomerHandler{
		service: s,
		logger:  l.With("component", "CustomerHandler"),
	}
}

// CreateCustomer registers a new customer.
//
// @Summary Create a customer
// @Description Registers an ACTIVE customer with an optional credit limit (decimal string, defaults to 0).
// @Tags Customers
// @Accept json
// @Produce json
// @Param request body dto.CreateCustomerRequest true "Customer payload"
// @Success 201 {object} dto.CustomerResponse
// @Failure 400 {object} dto.ErrorResponse
// @Failure 500 {object} dto.ErrorResponse
// @Router /customers [post]
// @Security BearerAuth
func (h *CustomerHandler) CreateCustomer(w http.ResponseWriter, r *http.Request) {
	var req dto.CreateCustomerRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, invalidBody(err))
		return
	}
	in, err := req.ToNewCustomer()
	if err != nil {
		respondError(w, err)
		return
	}

	created, err := h.service.CreateCustomer(r.Context(), in)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, dto.NewCustomerResponse(created))
}

// ListCustomers lists customers, optionally filtered by status.
//
// @Summary List customers
// @Tags Customers
// @Produce json
// @Param status query string false "ACTIVE, INACTIVE or BLOCKED"
// @Success 200 {array} dto.CustomerResponse
// @Failure 400 {object} dto.ErrorResponse
// @Router /customers [get]
// @Security BearerAuth
func (h *CustomerHandler) ListCustomers(w http.ResponseWriter, r *http.Request) {
	var status ledger.CustomerStatus
	if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
		st, err := ledger.ParseCustomerStatus(strings.ToUpper(raw))
		if err != nil {
			respondError(w, apperrors.NewValidationError("status", "must be ACTIVE, INACTIVE or BLOCKED"))
			return
		}
		status = st
	}

	customers, err := h.service.ListCustomers(r.Context(), status)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, dto.NewCustomerListResponse(customers))
}

// GetCustomer returns one customer.
//
// @Summary Get a customer
// @Tags Customers
// @Produce json
// @Param customerID path int true "Customer ID"
// @Success 200 {object} dto.CustomerResponse
// @Failure 400 {object} dto.ErrorResponse
// @Failure 404 {object} dto.ErrorResponse
// @Router /customers/{customerID} [get]
// @Security BearerAuth
func (h *CustomerHandler) GetCustomer(w http.ResponseWriter, r *http.Request) {
	customerID, err := getIDFromURL(r, "customerID")
	if err != nil {
		respondError(w, err)
		return
	}
	cust, err := h.service.GetCustomer(r.Context(), customerID)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, dto.NewCustomerResponse(cust))
}

// DeleteCustomer removes a customer and its history. Customers with unpaid credits are kept.
//
// @Summary Delete a customer
// @Tags Customers
// @Param customerID path int true "Customer ID"
// @Success 204
// @Failure 404 {object} dto.ErrorResponse
// @Failure 422 {object} dto.ErrorResponse "Customer still has unpaid credits"
// @Router /customers/{customerID} [delete]
// @Security BearerAuth
func (h *CustomerHandler) DeleteCustomer(w http.ResponseWriter, r *http.Request) {
	customerID, err := getIDFromURL(r, "customerID")
	if err != nil {
		respondError(w, err)
		return
	}
	if err := h.service.DeleteCustomer(r.Context(), customerID); err != nil {
		respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeactivateCustomer marks a customer INACTIVE without removing any record.
//
// @Summary Deactivate a customer
// @Tags Customers
// @Param customerID path int true "Customer ID"
// @Success 204
// @Failure 404 {object} dto.ErrorResponse
// @Router /customers/{customerID}/deactivate [post]
// @Security BearerAuth
func (h *CustomerHandler) DeactivateCustomer(w http.ResponseWriter, r *http.Request) {
	customerID, err := getIDFromURL(r, "customerID")
	if err != nil {
		respondError(w, err)
		return
	}
	if err := h.service.DeactivateCustomer(r.Context(), customerID); err != nil {
		respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// UpdateStatus
//
// @Summary Change a customer's status
// @Tags Customers
// @Accept json
// @Produce json
// @Param customerID path int true "Customer ID"
// @Param request body dto.UpdateStatusRequest true "New status"
// @Success 200 {object} dto.CustomerResponse
// @Failure 400 {object} dto.ErrorResponse
// @Failure 404 {object} dto.ErrorResponse
// @Router /customers/{customerID}/status [put]
// @Security BearerAuth
func (h *CustomerHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	customerID, err := getIDFromURL(r, "customerID")
	if err != nil {
		respondError(w, err)
		return
	}
	var req dto.UpdateStatusRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, invalidBody(err))
		return
	}
	status, err := req.Parse()
	if err != nil {
		respondError(w, err)
		return
	}

	updated, err := h.service.SetStatus(r.Context(), customerID, status)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, dto.NewCustomerResponse(updated))
}

// UpdateCreditLimit
//
// @Summary Change a customer's credit limit
// @Description The new limit may not be below the credit already in use.
// @Tags Customers
// @Accept json
// @Produce json
// @Param customerID path int true "Customer ID"
// @Param request body dto.UpdateCreditLimitRequest true "New limit"
// @Success 200 {object} dto.CustomerResponse
// @Failure 400 {object} dto.ErrorResponse
// @Failure 404 {object} dto.ErrorResponse
// @Failure 422 {object} dto.ErrorResponse "Limit below used credit"
// @Router /customers/{customerID}/credit-limit [put]
// @Security BearerAuth
func (h *CustomerHandler) UpdateCreditLimit(w http.ResponseWriter, r *http.Request) {
	customerID, err := getIDFromURL(r, "customerID")
	if err != nil {
		respondError(w, err)
		return
	}
	var req dto.UpdateCreditLimitRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, invalidBody(err))
		return
	}
	limit, err := req.Parse()
	if err != nil {
		respondError(w, err)
		return
	}

	updated, err := h.service.UpdateCreditLimit(r.Context(), customerID, limit)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, dto.NewCustomerResponse(updated))
}

// RecordPurchase books a sale: points on the cash part, a credit for the rest.
//
// @Summary Record a purchase
// @Tags Customers
// @Accept json
// @Produce json
// @Param customerID path int true "Customer ID"
// @Param request body dto.RecordPurchaseRequest true "Purchase"
// @Success 201 {object} dto.PurchaseResponse
// @Failure 400 {object} dto.ErrorResponse
// @Failure 404 {object} dto.ErrorResponse
// @Failure 422 {object} dto.ErrorResponse "Credit limit exceeded or customer not active"
// @Router /customers/{customerID}/purchases [post]
// @Security BearerAuth
func (h *CustomerHandler) RecordPurchase(w http.ResponseWriter, r *http.Request) {
	customerID, err := getIDFromURL(r, "customerID")
	if err != nil {
		respondError(w, err)
		return
	}
	var req dto.RecordPurchaseRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, invalidBody(err))
		return
	}
	amount, creditUsed, date, err := req.Parse()
	if err != nil {
		respondError(w, err)
		return
	}

	purchase, err := h.service.RecordPurchase(r.Context(), customerID, amount, creditUsed, date)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, dto.NewPurchaseResponse(purchase))
}

// GetStatistics
//
// @Summary Customer statistics
// @Tags Customers
// @Produce json
// @Param customerID path int true "Customer ID"
// @Success 200 {object} dto.StatisticsResponse
// @Failure 404 {object} dto.ErrorResponse
// @Router /customers/{customerID}/statistics [get]
// @Security BearerAuth
func (h *CustomerHandler) GetStatistics(w http.ResponseWriter, r *http.Request) {
	customerID, err := getIDFromURL(r, "customerID")
	if err != nil {
		respondError(w, err)
		return
	}
	stats, err := h.service.GetCustomerStatistics(r.Context(), customerID)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, dto.NewStatisticsResponse(stats))
}
