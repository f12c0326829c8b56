// Package handler содержит HTTP-обработчики API сервиса servimarket.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mkazakov/servimarket-system/internal/gateway"
	"github.com/mkazakov/servimarket-system/internal/middleware"
	"github.com/mkazakov/servimarket-system/internal/model"
	"github.com/mkazakov/servimarket-system/internal/repository"
	"github.com/mkazakov/servimarket-system/internal/service"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	CreateOrder(ctx context.Context, in service.CreateOrderInput) (*model.Order, error)
	GetOrder(ctx context.Context, id, requesterID string) (*model.Order, error)
	GetOrderInvoice(ctx context.Context, id, requesterID string) (*service.Invoice, error)
	ListOrders(ctx context.Context, clientID string) ([]repository.OrderListItem, error)
	ListAffiliateTransactions(ctx context.Context, affiliateID string) ([]repository.AffiliateTransaction, error)
	CreateCheckoutSession(ctx context.Context, clientID string, in service.CheckoutSessionInput) (*service.CheckoutSession, error)
	ProcessPaymentNotification(ctx context.Context, paymentID string) error
}

// Handler реализует HTTP-обработчики API сервиса servimarket.
type Handler struct {
	service        Service
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger, auth *middleware.AuthMiddleware) *Handler {
	return &Handler{
		service:        s,
		logger:         logger,
		authMiddleware: auth,
	}
}

type contactInfoPayload struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
	Email string `json:"email"`
}

type bookingDetailsPayload struct {
	Date     string `json:"date,omitempty"`
	Time     string `json:"time,omitempty"`
	Quantity int    `json:"quantity,omitempty"`
}

type createOrderRequest struct {
	ServiceID      string                `json:"serviceId"`
	PaymentMethod  string                `json:"paymentMethod"`
	Address        string                `json:"address"`
	Notes          string                `json:"notes"`
	ContactInfo    contactInfoPayload    `json:"contactInfo"`
	BookingDetails bookingDetailsPayload `json:"bookingDetails"`
	Currency       string                `json:"currency"`
}

type orderResponse struct {
	ID             string                `json:"id"`
	ServiceID      string                `json:"serviceId"`
	AffiliateID    string                `json:"affiliateId"`
	Amount         float64               `json:"amount"`
	Commission     float64               `json:"commission"`
	Currency       string                `json:"currency"`
	PaymentMethod  string                `json:"paymentMethod"`
	PaymentStatus  string                `json:"paymentStatus"`
	Status         string                `json:"status"`
	TransactionID  string                `json:"transactionId,omitempty"`
	Address        string                `json:"address"`
	Notes          string                `json:"notes,omitempty"`
	ContactInfo    contactInfoPayload    `json:"contactInfo"`
	BookingDetails bookingDetailsPayload `json:"bookingDetails"`
	CreatedAt      string                `json:"createdAt"`
}

func toOrderResponse(o *model.Order) orderResponse {
	return orderResponse{
		ID:            o.ID,
		ServiceID:     o.ServiceID,
		AffiliateID:   o.AffiliateID,
		Amount:        float64(o.AmountCents) / 100,
		Commission:    float64(o.CommissionCents) / 100,
		Currency:      o.Currency,
		PaymentMethod: string(o.PaymentMethod),
		PaymentStatus: string(o.PaymentStatus),
		Status:        string(o.Status),
		TransactionID: o.TransactionID,
		Address:       o.Address,
		Notes:         o.Notes,
		ContactInfo: contactInfoPayload{
			Name:  o.ContactInfo.Name,
			Phone: o.ContactInfo.Phone,
			Email: o.ContactInfo.Email,
		},
		BookingDetails: bookingDetailsPayload{
			Date:     o.BookingDetails.Date,
			Time:     o.BookingDetails.Time,
			Quantity: o.BookingDetails.Quantity,
		},
		CreatedAt: o.CreatedAt.Format(time.RFC3339),
	}
}

// writeJSON сериализует ответ; ошибки сериализации приводят к 500.
func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("encode response", zap.Error(err))
	}
}

// writeError переводит ошибки бизнес-логики в HTTP-статусы.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, repository.ErrOrderNotFound),
		errors.Is(err, repository.ErrServiceNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, service.ErrForbidden):
		http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
	case errors.Is(err, service.ErrAddressRequired),
		errors.Is(err, service.ErrInvalidContactInfo),
		errors.Is(err, service.ErrUnknownPaymentMethod),
		errors.Is(err, service.ErrAmountNotPositive),
		errors.Is(err, service.ErrServiceInactive):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, service.ErrGatewayNotConfigured):
		http.Error(w, err.Error(), http.StatusInternalServerError)
	default:
		var apiErr *gateway.APIError
		if errors.As(err, &apiErr) {
			// Отказ платёжной системы передаётся вызывающей стороне как есть.
			status := apiErr.StatusCode
			if status < 400 || status > 599 {
				status = http.StatusBadGateway
			}
			http.Error(w, apiErr.Message, status)
			return
		}

		h.logger.Error("internal error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

type devLoginRequest struct {
	UserID string `json:"userId"`
}

// DevLogin выпускает cookie авторизации для указанного пользователя.
// Заглушка для разработки: в эксплуатации cookie выпускает внешний
// сервис аутентификации с тем же секретом.
func (h *Handler) DevLogin(w http.ResponseWriter, r *http.Request) {
	var req devLoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	h.authMiddleware.SetAuthCookie(w, req.UserID)
	w.WriteHeader(http.StatusOK)
}

// CreateOrder оформляет заказ от имени текущего пользователя.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	order, err := h.service.CreateOrder(r.Context(), service.CreateOrderInput{
		ClientID:      userID,
		ServiceID:     req.ServiceID,
		PaymentMethod: model.PaymentMethod(req.PaymentMethod),
		Address:       req.Address,
		Notes:         req.Notes,
		ContactInfo: model.ContactInfo{
			Name:  req.ContactInfo.Name,
			Phone: req.ContactInfo.Phone,
			Email: req.ContactInfo.Email,
		},
		BookingDetails: model.BookingDetails{
			Date:     req.BookingDetails.Date,
			Time:     req.BookingDetails.Time,
			Quantity: req.BookingDetails.Quantity,
		},
		Currency: req.Currency,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, toOrderResponse(order))
}

// GetOrder возвращает заказ текущего пользователя.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	order, err := h.service.GetOrder(r.Context(), chi.URLParam(r, "id"), userID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, toOrderResponse(order))
}

type serviceSnapshotResponse struct {
	ID       string  `json:"id"`
	Title    string  `json:"title"`
	Price    float64 `json:"price"`
	Currency string  `json:"currency"`
}

type invoiceResponse struct {
	Order   orderResponse            `json:"order"`
	Service *serviceSnapshotResponse `json:"service"`
	Totals  struct {
		Subtotal   float64 `json:"subtotal"`
		Commission float64 `json:"commission"`
		Total      float64 `json:"total"`
	} `json:"totals"`
}

// GetOrderInvoice возвращает счёт по заказу текущего пользователя.
func (h *Handler) GetOrderInvoice(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	inv, err := h.service.GetOrderInvoice(r.Context(), chi.URLParam(r, "id"), userID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	resp := invoiceResponse{Order: toOrderResponse(inv.Order)}
	if inv.Service != nil {
		resp.Service = &serviceSnapshotResponse{
			ID:       inv.Service.ID,
			Title:    inv.Service.Title,
			Price:    float64(inv.Service.PriceCents) / 100,
			Currency: inv.Service.Currency,
		}
	}
	resp.Totals.Subtotal = float64(inv.Totals.SubtotalCents) / 100
	resp.Totals.Commission = float64(inv.Totals.CommissionCents) / 100
	resp.Totals.Total = float64(inv.Totals.TotalCents) / 100

	h.writeJSON(w, http.StatusOK, resp)
}

type orderListItemResponse struct {
	orderResponse
	ServiceTitle string `json:"serviceTitle,omitempty"`
}

// ListOrders возвращает список заказов текущего пользователя.
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	items, err := h.service.ListOrders(r.Context(), userID)
	if err != nil {
		h.logger.Error("list orders error", zap.Error(err), zap.String("userID", userID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	if len(items) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]orderListItemResponse, 0, len(items))
	for _, it := range items {
		resp = append(resp, orderListItemResponse{
			orderResponse: toOrderResponse(&it.Order),
			ServiceTitle:  it.ServiceTitle,
		})
	}

	h.writeJSON(w, http.StatusOK, resp)
}

type transactionResponse struct {
	TransactionID   string  `json:"transactionId"`
	OrderID         string  `json:"orderId"`
	AffiliateAmount float64 `json:"affiliateAmount"`
	PlatformAmount  float64 `json:"platformAmount"`
	Status          string  `json:"status"`
	CreatedAt       string  `json:"createdAt"`
}

// ListTransactions возвращает записи леджера по заказам текущего аффилиата.
func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	items, err := h.service.ListAffiliateTransactions(r.Context(), userID)
	if err != nil {
		h.logger.Error("list transactions error", zap.Error(err), zap.String("userID", userID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	if len(items) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]transactionResponse, 0, len(items))
	for _, it := range items {
		t := it.Transaction
		resp = append(resp, transactionResponse{
			TransactionID:   t.ID,
			OrderID:         it.OrderID,
			AffiliateAmount: float64(t.AffiliateAmountCents) / 100,
			PlatformAmount:  float64(t.PlatformAmountCents) / 100,
			Status:          string(t.Status),
			CreatedAt:       t.CreatedAt.Format(time.RFC3339),
		})
	}

	h.writeJSON(w, http.StatusOK, resp)
}
