// internal/service/order/interfaces/http_handler.go
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
	"atlas/internal/service/order/application"
	"atlas/internal/service/order/domain"
)

const serviceName = "order-service"

// OrderHandler 订单服务的 HTTP 接口。
type OrderHandler struct {
	svc *application.OrderService
}

func NewOrderHandler(svc *application.OrderService) *OrderHandler {
	return &OrderHandler{svc: svc}
}

// RegisterRoutes 在 ServeMux 上注册所有路由。
func (h *OrderHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("POST /api/orders", h.createOrder)
	mux.HandleFunc("GET /api/orders", h.listOrders)
	mux.HandleFunc("GET /api/orders/{orderId}", h.getOrder)
	mux.HandleFunc("GET /api/orders/number/{orderNumber}", h.getOrderByNumber)
	mux.HandleFunc("POST /api/orders/{orderId}/cancel", h.cancelOrder)
	mux.HandleFunc("POST /api/orders/{orderId}/ship", h.shipOrder)
	mux.HandleFunc("POST /api/orders/{orderId}/deliver", h.deliverOrder)
}

func (h *OrderHandler) createOrder(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r, "http.CreateOrder")
	defer span.End()

	var req application.CreateOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "MALFORMED_BODY", err.Error())
		return
	}
	order, err := h.svc.CreateOrder(ctx, &req)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	// Saga 是异步的：返回 202，客户端轮询订单状态或订阅通知
	writeJSON(w, http.StatusAccepted, order)
}

func (h *OrderHandler) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r, "http.ListOrders")
	defer span.End()

	userID := r.URL.Query().Get("userId")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "MISSING_FIELD", "userId query parameter is required")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	out, err := h.svc.ListOrders(ctx, userID, limit, offset)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *OrderHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r, "http.GetOrder")
	defer span.End()

	order, err := h.svc.GetOrder(ctx, r.PathValue("orderId"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (h *OrderHandler) getOrderByNumber(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r, "http.GetOrderByNumber")
	defer span.End()

	order, err := h.svc.GetOrderByNumber(ctx, r.PathValue("orderNumber"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

func (h *OrderHandler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r, "http.CancelOrder")
	defer span.End()

	var req cancelRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	if req.Reason == "" {
		req.Reason = "cancelled by user"
	}
	order, err := h.svc.CancelOrder(ctx, r.PathValue("orderId"), req.Reason)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (h *OrderHandler) shipOrder(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r, "http.ShipOrder")
	defer span.End()

	order, err := h.svc.ShipOrder(ctx, r.PathValue("orderId"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (h *OrderHandler) deliverOrder(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r, "http.DeliverOrder")
	defer span.End()

	order, err := h.svc.DeliverOrder(ctx, r.PathValue("orderId"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func startSpan(r *http.Request, name string) (context.Context, trace.Span) {
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

func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrOrderNotFound):
		writeError(w, http.StatusNotFound, "ORDER_NOT_FOUND", err.Error())
	case errors.Is(err, domain.ErrInvalidOrder):
		writeError(w, http.StatusBadRequest, "INVALID_ORDER", err.Error())
	case errors.Is(err, domain.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "INVALID_TRANSITION", err.Error())
	default:
		logger.Logger().Error().Err(err).Msg("unhandled error on http boundary")
		writeError(w, http.StatusInternalServerError, "INTERNAL", "internal error")
	}
}
