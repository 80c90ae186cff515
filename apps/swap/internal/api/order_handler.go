package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"swap/apps/swap/internal/engine"
)

// OrderHandler handles order-related API endpoints
type OrderHandler struct {
	service  *engine.OrderService
	executor *engine.SettlementExecutor
	oracle   engine.RateSource
	logger   *zap.Logger
}

func NewOrderHandler(service *engine.OrderService, executor *engine.SettlementExecutor, oracle engine.RateSource, logger *zap.Logger) *OrderHandler {
	return &OrderHandler{
		service:  service,
		executor: executor,
		oracle:   oracle,
		logger:   logger,
	}
}

// CreateOrder handles POST /api/orders
func (h *OrderHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req CreateOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeErrorResponse(w, http.StatusBadRequest, "invalid_request_body", "Invalid JSON in request body")
		return
	}

	if req.SourceAddress == "" {
		h.writeErrorResponse(w, http.StatusBadRequest, "missing_source_address", "Source address is required")
		return
	}

	if req.SourceAmount == "" {
		h.writeErrorResponse(w, http.StatusBadRequest, "missing_source_amount", "Source amount is required")
		return
	}

	sourceAmount, err := decimal.NewFromString(req.SourceAmount)
	if err != nil {
		h.writeErrorResponse(w, http.StatusBadRequest, "invalid_source_amount", "Source amount must be a decimal number")
		return
	}

	if sourceAmount.Sign() <= 0 {
		h.writeErrorResponse(w, http.StatusBadRequest, "invalid_source_amount", "Source amount must be positive")
		return
	}

	order, err := h.service.CreateOrder(r.Context(), req.SourceAddress, sourceAmount)
	if err != nil {
		if errors.Is(err, engine.ErrNoWalletAvailable) {
			h.writeErrorResponse(w, http.StatusServiceUnavailable, "no_wallet_available", "No deposit wallet is available, try again later")
			return
		}
		h.logger.Error("Failed to create order", zap.Error(err))
		h.writeErrorResponse(w, http.StatusInternalServerError, "order_creation_error", "Failed to create order")
		return
	}

	h.writeJSONResponse(w, http.StatusCreated, toOrderResponse(*order))
}

// GetOrder handles GET /api/orders/{order_id}
func (h *OrderHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	orderID := vars["order_id"]

	order, err := h.service.GetOrder(orderID)
	if err != nil {
		h.logger.Error("Failed to get order", zap.String("order_id", orderID), zap.Error(err))
		h.writeErrorResponse(w, http.StatusInternalServerError, "database_error", "Failed to retrieve order")
		return
	}

	if order == nil {
		h.writeErrorResponse(w, http.StatusNotFound, "order_not_found", "Order not found")
		return
	}

	h.writeJSONResponse(w, http.StatusOK, toOrderResponse(*order))
}

// RetrySettlement handles POST /api/orders/{order_id}/retry. Idempotent
// operator action: only an order with a received deposit and a failed send is
// re-armed and settled again.
func (h *OrderHandler) RetrySettlement(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	orderID := vars["order_id"]

	order, err := h.service.GetOrder(orderID)
	if err != nil {
		h.logger.Error("Failed to get order for retry", zap.String("order_id", orderID), zap.Error(err))
		h.writeErrorResponse(w, http.StatusInternalServerError, "database_error", "Failed to retrieve order")
		return
	}

	if order == nil {
		h.writeErrorResponse(w, http.StatusNotFound, "order_not_found", "Order not found")
		return
	}

	if err := h.executor.Retry(r.Context(), orderID); err != nil {
		if errors.Is(err, engine.ErrNotRetryable) {
			h.writeErrorResponse(w, http.StatusConflict, "not_retryable", "Order is not in a retryable state")
			return
		}
		h.logger.Error("Failed to retry settlement", zap.String("order_id", orderID), zap.Error(err))
		h.writeErrorResponse(w, http.StatusInternalServerError, "retry_error", "Failed to retry settlement")
		return
	}

	updated, err := h.service.GetOrder(orderID)
	if err != nil || updated == nil {
		h.writeErrorResponse(w, http.StatusInternalServerError, "database_error", "Failed to retrieve order after retry")
		return
	}

	h.writeJSONResponse(w, http.StatusOK, toOrderResponse(*updated))
}

// GetRate handles GET /api/rate
func (h *OrderHandler) GetRate(w http.ResponseWriter, r *http.Request) {
	quote := h.oracle.GetRate(r.Context())
	h.writeJSONResponse(w, http.StatusOK, quote)
}

// writeJSONResponse writes a JSON response with the specified status code
func (h *OrderHandler) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("Failed to encode JSON response", zap.Error(err))
	}
}

// writeErrorResponse writes an error response
func (h *OrderHandler) writeErrorResponse(w http.ResponseWriter, statusCode int, errorCode, message string) {
	errorResponse := ErrorResponse{
		Error:   errorCode,
		Message: message,
	}
	h.writeJSONResponse(w, statusCode, errorResponse)
}
