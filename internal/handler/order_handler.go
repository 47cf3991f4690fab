package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"tradedesk/internal/middleware"
	"tradedesk/internal/model"
	"tradedesk/internal/service"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// OrderHandler serves the /orders family. The API multiplexes every
// order and message operation onto one path, dispatched by method and
// query parameters.
type OrderHandler struct {
	orders       service.OrderService
	negotiations service.NegotiationService
	messages     service.MessageService
	logger       zerolog.Logger
}

// NewOrderHandler creates a new order handler.
func NewOrderHandler(
	orders service.OrderService,
	negotiations service.NegotiationService,
	messages service.MessageService,
	logger zerolog.Logger,
) *OrderHandler {
	return &OrderHandler{
		orders:       orders,
		negotiations: negotiations,
		messages:     messages,
		logger:       logger.With().Str("handler", "order").Logger(),
	}
}

// ServeHTTP routes /orders requests.
func (h *OrderHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	switch r.Method {
	case http.MethodGet:
		switch {
		case q.Get("messages") == "true":
			h.listMessages(w, r)
		case q.Get("checkResponse") == "true":
			h.checkResponse(w, r)
		case q.Get("id") != "":
			h.get(w, r)
		default:
			h.list(w, r)
		}

	case http.MethodPost:
		if q.Get("message") == "true" {
			h.postMessage(w, r)
			return
		}
		h.create(w, r)

	case http.MethodPut:
		h.applyPatch(w, r)

	case http.MethodDelete:
		if q.Get("messageId") != "" {
			h.deleteMessage(w, r)
			return
		}
		h.delete(w, r)

	default:
		writeJSON(w, http.StatusMethodNotAllowed, model.ErrorResponse{Error: "method not allowed"})
	}
}

func (h *OrderHandler) create(w http.ResponseWriter, r *http.Request) {
	principal := middleware.PrincipalFromContext(r.Context())

	var req model.CreateOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, model.ErrorResponse{Error: "invalid request body"})
		return
	}

	resp, err := h.orders.Create(r.Context(), principal, &req)
	if err != nil {
		writeError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (h *OrderHandler) list(w http.ResponseWriter, r *http.Request) {
	principal := middleware.PrincipalFromContext(r.Context())
	q := r.URL.Query()

	filter := model.ListFilter{
		Type:   q.Get("type"),
		Status: model.OrderStatus(q.Get("status")),
		Limit:  intParam(q.Get("limit")),
		Offset: intParam(q.Get("offset")),
	}

	views, err := h.orders.List(r.Context(), principal, filter)
	if err != nil {
		writeError(w, err, h.logger)
		return
	}
	if views == nil {
		views = []model.OrderView{}
	}
	writeJSON(w, http.StatusOK, views)
}

func (h *OrderHandler) get(w http.ResponseWriter, r *http.Request) {
	principal := middleware.PrincipalFromContext(r.Context())

	id, err := uuid.Parse(r.URL.Query().Get("id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, model.ErrorResponse{Error: "invalid order id"})
		return
	}

	view, err := h.orders.Get(r.Context(), principal, id)
	if err != nil {
		writeError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// checkResponse reports whether the principal already responded to the
// artifact. The shape is {exists, orderId?} so the client can link to
// the existing order.
func (h *OrderHandler) checkResponse(w http.ResponseWriter, r *http.Request) {
	principal := middleware.PrincipalFromContext(r.Context())

	offerID, err := uuid.Parse(r.URL.Query().Get("offerId"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, model.ErrorResponse{Error: "invalid offer id"})
		return
	}

	order, err := h.orders.CheckResponse(r.Context(), principal, offerID)
	if err != nil {
		writeError(w, err, h.logger)
		return
	}

	resp := map[string]any{"exists": order != nil}
	if order != nil {
		resp["orderId"] = order.ID
		resp["status"] = order.Status
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *OrderHandler) applyPatch(w http.ResponseWriter, r *http.Request) {
	principal := middleware.PrincipalFromContext(r.Context())

	id, err := uuid.Parse(r.URL.Query().Get("id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, model.ErrorResponse{Error: "invalid order id"})
		return
	}

	var patch model.OrderPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeJSON(w, http.StatusBadRequest, model.ErrorResponse{Error: "invalid request body"})
		return
	}

	order, err := h.negotiations.Apply(r.Context(), principal, id, &patch)
	if err != nil {
		writeError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (h *OrderHandler) delete(w http.ResponseWriter, r *http.Request) {
	principal := middleware.PrincipalFromContext(r.Context())

	id, err := uuid.Parse(r.URL.Query().Get("id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, model.ErrorResponse{Error: "invalid order id"})
		return
	}

	if err := h.orders.Delete(r.Context(), principal, id); err != nil {
		writeError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": true})
}

// listMessages serves both conversation variants: by order for a party,
// by artifact for the artifact owner.
func (h *OrderHandler) listMessages(w http.ResponseWriter, r *http.Request) {
	principal := middleware.PrincipalFromContext(r.Context())
	q := r.URL.Query()

	var (
		messages []model.OrderMessage
		err      error
	)
	switch {
	case q.Get("orderId") != "":
		var orderID uuid.UUID
		if orderID, err = uuid.Parse(q.Get("orderId")); err != nil {
			writeJSON(w, http.StatusBadRequest, model.ErrorResponse{Error: "invalid order id"})
			return
		}
		messages, err = h.messages.ListByOrder(r.Context(), principal, orderID)
	case q.Get("offerId") != "":
		var offerID uuid.UUID
		if offerID, err = uuid.Parse(q.Get("offerId")); err != nil {
			writeJSON(w, http.StatusBadRequest, model.ErrorResponse{Error: "invalid offer id"})
			return
		}
		messages, err = h.messages.ListByArtifact(r.Context(), principal, offerID)
	default:
		writeJSON(w, http.StatusBadRequest, model.ErrorResponse{Error: "orderId or offerId is required"})
		return
	}

	if err != nil {
		writeError(w, err, h.logger)
		return
	}
	if messages == nil {
		messages = []model.OrderMessage{}
	}
	writeJSON(w, http.StatusOK, messages)
}

func (h *OrderHandler) postMessage(w http.ResponseWriter, r *http.Request) {
	principal := middleware.PrincipalFromContext(r.Context())

	var req model.PostMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, model.ErrorResponse{Error: "invalid request body"})
		return
	}

	resp, err := h.messages.Post(r.Context(), principal, &req)
	if err != nil {
		writeError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (h *OrderHandler) deleteMessage(w http.ResponseWriter, r *http.Request) {
	principal := middleware.PrincipalFromContext(r.Context())

	id, err := uuid.Parse(r.URL.Query().Get("messageId"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, model.ErrorResponse{Error: "invalid message id"})
		return
	}

	if err := h.messages.Delete(r.Context(), principal, id); err != nil {
		writeError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": true})
}

// intParam parses a numeric query parameter, zero on absence or garbage.
func intParam(raw string) int {
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return n
}
