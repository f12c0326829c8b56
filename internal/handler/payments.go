package handler

import (
	"encoding/json"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/mkazakov/servimarket-system/internal/gateway"
	"github.com/mkazakov/servimarket-system/internal/middleware"
	"github.com/mkazakov/servimarket-system/internal/model"
	"github.com/mkazakov/servimarket-system/internal/service"
)

type checkoutRequest struct {
	OrderID        string                `json:"orderId"`
	ServiceID      string                `json:"serviceId"`
	Address        string                `json:"address"`
	Notes          string                `json:"notes"`
	ContactInfo    contactInfoPayload    `json:"contactInfo"`
	BookingDetails bookingDetailsPayload `json:"bookingDetails"`
	Currency       string                `json:"currency"`
}

type checkoutResponse struct {
	PreferenceID      string `json:"preferenceId"`
	ExternalReference string `json:"externalReference"`
	InitPoint         string `json:"initPoint,omitempty"`
	SandboxInitPoint  string `json:"sandboxInitPoint,omitempty"`
	URL               string `json:"url"`
}

// CreateCheckoutSession создаёт платёжную сессию MercadoPago для заказа.
func (h *Handler) CreateCheckoutSession(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	var req checkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	session, err := h.service.CreateCheckoutSession(r.Context(), userID, service.CheckoutSessionInput{
		OrderID:   req.OrderID,
		ServiceID: req.ServiceID,
		Address:   req.Address,
		Notes:     req.Notes,
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

	h.writeJSON(w, http.StatusCreated, checkoutResponse{
		PreferenceID:      session.PreferenceID,
		ExternalReference: session.ExternalReference,
		InitPoint:         session.InitPoint,
		SandboxInitPoint:  session.SandboxInitPoint,
		URL:               session.URL,
	})
}

// PaymentWebhook обрабатывает уведомления платёжной системы о статусе платежа.
// Ответ всегда 200: платёжная система повторяет доставку при любом другом статусе,
// а повторная обработка уведомления идемпотентна.
func (h *Handler) PaymentWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.logger.Warn("webhook body read error", zap.Error(err))
		h.writeAck(w)
		return
	}

	paymentID := gateway.ExtractPaymentID(r.URL.Query(), body)
	if paymentID == "" {
		h.logger.Info("webhook without payment id", zap.String("query", r.URL.RawQuery))
		h.writeAck(w)
		return
	}

	if err := h.service.ProcessPaymentNotification(r.Context(), paymentID); err != nil {
		h.logger.Error("webhook processing error",
			zap.Error(err),
			zap.String("paymentID", paymentID),
		)
	}

	h.writeAck(w)
}

func (h *Handler) writeAck(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(`{"ok":true}`)); err != nil {
		h.logger.Error("write ack", zap.Error(err))
	}
}
