// internal/service/inventory/interfaces/http_handler.go
package interfaces

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"atlas/internal/pkg/logger"
	"atlas/internal/service/inventory/application"
	"atlas/internal/service/inventory/domain"
)

const serviceName = "inventory-service"

// InventoryHandler 暴露台账和预留的同步管理面。
// Saga 控制流走事件，这些接口服务于运营后台和调试。
type InventoryHandler struct {
	svc *application.ReservationManager
}

func NewInventoryHandler(svc *application.ReservationManager) *InventoryHandler {
	return &InventoryHandler{svc: svc}
}

// RegisterRoutes 在 ServeMux 上注册所有路由。
func (h *InventoryHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("POST /api/inventories", h.createInventory)
	mux.HandleFunc("GET /api/inventories", h.listInventories)
	mux.HandleFunc("GET /api/inventories/low_stock", h.lowStock)
	mux.HandleFunc("GET /api/inventories/product/{productId}", h.getByProduct)
	mux.HandleFunc("GET /api/inventories/sku/{sku}", h.getBySKU)
	mux.HandleFunc("POST /api/inventories/product/{productId}/stock", h.addStock)
	mux.HandleFunc("PUT /api/inventories/product/{productId}/stock", h.adjustStock)
	mux.HandleFunc("GET /api/inventories/product/{productId}/movements", h.movements)

	mux.HandleFunc("POST /api/reservations", h.reserve)
	mux.HandleFunc("GET /api/reservations/order/{orderId}", h.reservations)
	mux.HandleFunc("POST /api/reservations/order/{orderId}/confirm", h.confirm)
	mux.HandleFunc("POST /api/reservations/order/{orderId}/release", h.release)
}

type createInventoryRequest struct {
	ProductID         string `json:"productId"`
	SKU               string `json:"sku"`
	Quantity          int    `json:"quantity"`
	LowStockThreshold int    `json:"lowStockThreshold"`
	WarehouseID       string `json:"warehouseId"`
}

func (h *InventoryHandler) createInventory(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.startSpan(r, "http.CreateInventory")
	defer span.End()

	var req createInventoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "MALFORMED_BODY", err.Error())
		return
	}
	if req.ProductID == "" || req.SKU == "" {
		writeError(w, http.StatusBadRequest, "MISSING_FIELD", "productId and sku are required")
		return
	}

	inv, err := h.svc.CreateInventory(ctx, req.ProductID, req.SKU, req.Quantity, req.LowStockThreshold, req.WarehouseID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, inv)
}

func (h *InventoryHandler) listInventories(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.startSpan(r, "http.ListInventories")
	defer span.End()

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	out, err := h.svc.ListInventories(ctx, limit, offset)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *InventoryHandler) lowStock(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.startSpan(r, "http.LowStock")
	defer span.End()

	out, err := h.svc.LowStock(ctx)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *InventoryHandler) getByProduct(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.startSpan(r, "http.GetInventory")
	defer span.End()

	inv, err := h.svc.Inventory(ctx, r.PathValue("productId"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, inv)
}

func (h *InventoryHandler) getBySKU(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.startSpan(r, "http.GetInventoryBySKU")
	defer span.End()

	inv, err := h.svc.InventoryBySKU(ctx, r.PathValue("sku"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, inv)
}

type addStockRequest struct {
	Quantity  int    `json:"quantity"`
	Reference string `json:"reference"`
	Reason    string `json:"reason"`
}

func (h *InventoryHandler) addStock(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.startSpan(r, "http.AddStock")
	defer span.End()

	var req addStockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "MALFORMED_BODY", err.Error())
		return
	}
	inv, err := h.svc.AddStock(ctx, r.PathValue("productId"), req.Quantity, req.Reference, req.Reason)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, inv)
}

type adjustStockRequest struct {
	Quantity int    `json:"quantity"`
	Reason   string `json:"reason"`
}

func (h *InventoryHandler) adjustStock(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.startSpan(r, "http.AdjustStock")
	defer span.End()

	var req adjustStockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "MALFORMED_BODY", err.Error())
		return
	}
	inv, err := h.svc.Adjust(ctx, r.PathValue("productId"), req.Quantity, req.Reason)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, inv)
}

func (h *InventoryHandler) movements(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.startSpan(r, "http.Movements")
	defer span.End()

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	out, err := h.svc.Movements(ctx, r.PathValue("productId"), limit)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

type reserveRequest struct {
	OrderID string               `json:"orderId"`
	Items   []domain.ReserveItem `json:"items"`
}

func (h *InventoryHandler) reserve(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.startSpan(r, "http.Reserve")
	defer span.End()

	var req reserveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "MALFORMED_BODY", err.Error())
		return
	}
	if req.OrderID == "" {
		writeError(w, http.StatusBadRequest, "MISSING_FIELD", "orderId is required")
		return
	}

	rs, err := h.svc.Reserve(ctx, req.OrderID, req.Items)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rs)
}

func (h *InventoryHandler) reservations(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.startSpan(r, "http.Reservations")
	defer span.End()

	rs, err := h.svc.Reservations(ctx, r.PathValue("orderId"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if len(rs) == 0 {
		writeError(w, http.StatusNotFound, "RESERVATION_NOT_FOUND", "no reservations for order")
		return
	}
	writeJSON(w, http.StatusOK, rs)
}

func (h *InventoryHandler) confirm(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.startSpan(r, "http.Confirm")
	defer span.End()

	orderID := r.PathValue("orderId")
	if err := h.svc.Confirm(ctx, orderID); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"orderId": orderID, "status": "CONFIRMED"})
}

type releaseRequest struct {
	Reason string `json:"reason"`
}

func (h *InventoryHandler) release(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.startSpan(r, "http.Release")
	defer span.End()

	var req releaseRequest
	if r.Body != nil {
		// body 可选，解析失败按空 reason 处理
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	if req.Reason == "" {
		req.Reason = "released via api"
	}

	orderID := r.PathValue("orderId")
	if err := h.svc.Release(ctx, orderID, req.Reason); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"orderId": orderID, "status": "RELEASED"})
}

// startSpan 从请求头恢复追踪上下文并开一个服务端 span。
func (h *InventoryHandler) startSpan(r *http.Request, name string) (context.Context, trace.Span) {
	ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
	return otel.Tracer(serviceName).Start(ctx, name, trace.WithSpanKind(trace.SpanKindServer))
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Logger().Error().Err(err).Msg("failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorBody{Error: errorDetail{Code: code, Message: message}})
}

// writeDomainError 把领域错误翻译成 HTTP 状态码和稳定的错误码。
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrInventoryNotFound):
		writeError(w, http.StatusNotFound, "PRODUCT_NOT_FOUND", err.Error())
	case errors.Is(err, domain.ErrReservationNotFound):
		writeError(w, http.StatusNotFound, "RESERVATION_NOT_FOUND", err.Error())
	case errors.Is(err, domain.ErrInsufficientStock):
		writeError(w, http.StatusBadRequest, "INSUFFICIENT_STOCK", err.Error())
	case errors.Is(err, domain.ErrReservationExpired):
		writeError(w, http.StatusBadRequest, "RESERVATION_EXPIRED", err.Error())
	case errors.Is(err, domain.ErrInvalidQuantity):
		writeError(w, http.StatusBadRequest, "INVALID_QUANTITY", err.Error())
	case errors.Is(err, domain.ErrInvalidAdjustment):
		writeError(w, http.StatusBadRequest, "INVALID_ADJUSTMENT", err.Error())
	case errors.Is(err, domain.ErrDuplicateInventory):
		writeError(w, http.StatusConflict, "DUPLICATE_INVENTORY", err.Error())
	default:
		logger.Logger().Error().Err(err).Msg("unhandled error on http boundary")
		writeError(w, http.StatusInternalServerError, "INTERNAL", "internal error")
	}
}
