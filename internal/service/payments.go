package service

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/mkazakov/servimarket-system/internal/gateway"
	"github.com/mkazakov/servimarket-system/internal/model"
)

const (
	// paymentLookupTimeout ограничивает обращение к платёжной системе при
	// обработке вебхука: лучше подтвердить доставку без завершения заказа,
	// чем зависнуть — уведомление придёт повторно.
	paymentLookupTimeout = 5 * time.Second

	reconcileInterval  = time.Minute
	reconcileOlderThan = 10 * time.Minute
	reconcileBatchSize = 20
)

// CheckoutSessionInput содержит данные для создания платёжной сессии:
// либо идентификатор существующего неоплаченного заказа, либо данные
// для оформления нового.
type CheckoutSessionInput struct {
	OrderID        string
	ServiceID      string
	Address        string
	Notes          string
	ContactInfo    model.ContactInfo
	BookingDetails model.BookingDetails
	Currency       string
}

// CheckoutSession описывает созданную платёжную сессию.
type CheckoutSession struct {
	PreferenceID      string
	ExternalReference string
	InitPoint         string
	SandboxInitPoint  string
	URL               string
}

// CreateCheckoutSession создаёт платёжную сессию для заказа. Сумма позиции
// берётся из заказа, а не из каталога: цена услуги могла измениться после
// оформления, снимок в заказе авторитетен.
func (s *Service) CreateCheckoutSession(ctx context.Context, clientID string, in CheckoutSessionInput) (*CheckoutSession, error) {
	if s.gateway == nil {
		return nil, ErrGatewayNotConfigured
	}

	var (
		order *model.Order
		err   error
	)

	if in.OrderID != "" {
		order, err = s.GetOrder(ctx, in.OrderID, clientID)
	} else {
		order, err = s.CreateOrder(ctx, CreateOrderInput{
			ClientID:       clientID,
			ServiceID:      in.ServiceID,
			PaymentMethod:  model.PaymentMethodMercadoPago,
			Address:        in.Address,
			Notes:          in.Notes,
			ContactInfo:    in.ContactInfo,
			BookingDetails: in.BookingDetails,
			Currency:       in.Currency,
		})
	}
	if err != nil {
		return nil, err
	}

	if order.AmountCents <= 0 {
		return nil, ErrAmountNotPositive
	}

	title := "Servicio"
	if svc, err := s.repo.GetService(ctx, order.ServiceID); err == nil && svc.Title != "" {
		title = svc.Title
	}

	pref, err := s.gateway.CreatePreference(ctx, gateway.PreferenceRequest{
		Items: []gateway.PreferenceItem{
			{
				Title:      title,
				Quantity:   1,
				CurrencyID: s.settings.Currency,
				UnitPrice:  float64(order.AmountCents) / 100,
			},
		},
		ExternalReference: order.ID,
		NotificationURL:   s.settings.PublicBaseURL + "/api/payments/mercadopago/webhook",
		BackURLs: gateway.BackURLs{
			Success: fmt.Sprintf("%s/order-confirmation?orderId=%s&success=true", s.settings.FrontendURL, order.ID),
			Pending: fmt.Sprintf("%s/order-confirmation?orderId=%s", s.settings.FrontendURL, order.ID),
			Failure: fmt.Sprintf("%s/payment-failure?orderId=%s", s.settings.FrontendURL, order.ID),
		},
	})
	if err != nil {
		return nil, err
	}

	// Не все окружения возвращают боевую ссылку; берём лучшее из доступного.
	checkoutURL := pref.InitPoint
	if checkoutURL == "" {
		checkoutURL = pref.SandboxInitPoint
	}
	if checkoutURL == "" && pref.ID != "" {
		checkoutURL = s.settings.CheckoutBaseURL + url.QueryEscape(pref.ID)
	}

	return &CheckoutSession{
		PreferenceID:      pref.ID,
		ExternalReference: order.ID,
		InitPoint:         pref.InitPoint,
		SandboxInitPoint:  pref.SandboxInitPoint,
		URL:               checkoutURL,
	}, nil
}

// ProcessPaymentNotification обрабатывает уведомление платёжной системы о платеже.
// Заказ завершается только для подтверждённого платежа с привязкой к заказу;
// любой другой статус — не ошибка, заказ просто остаётся неоплаченным.
func (s *Service) ProcessPaymentNotification(ctx context.Context, paymentID string) error {
	if s.gateway == nil {
		return ErrGatewayNotConfigured
	}

	ctx, cancel := context.WithTimeout(ctx, paymentLookupTimeout)
	defer cancel()

	payment, err := s.gateway.GetPayment(ctx, paymentID)
	if err != nil {
		return fmt.Errorf("get payment %s: %w", paymentID, err)
	}

	if payment.Status != gateway.PaymentStatusApproved || payment.ExternalReference == "" {
		return nil
	}

	if _, err := s.CompletePayment(ctx, payment.ExternalReference, payment.ID.String()); err != nil {
		return fmt.Errorf("complete payment for order %s: %w", payment.ExternalReference, err)
	}

	return nil
}

// StartPaymentReconciliation запускает фоновый процесс досмотра зависших заказов:
// вебхук может потеряться, поэтому заказы, давно ожидающие оплаты, периодически
// сверяются с платёжной системой по external_reference.
func (s *Service) StartPaymentReconciliation(ctx context.Context) {
	if s.gateway == nil {
		return
	}

	go func() {
		ticker := time.NewTicker(reconcileInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.reconcilePendingOrders(ctx)
			}
		}
	}()
}

func (s *Service) reconcilePendingOrders(ctx context.Context) {
	orderIDs, err := s.repo.GetPendingGatewayOrders(ctx, reconcileOlderThan, reconcileBatchSize)
	if err != nil {
		if s.logger != nil {
			s.logger.Warn("list pending orders for reconciliation", zap.Error(err))
		}
		return
	}

	for _, orderID := range orderIDs {
		payments, err := s.gateway.SearchPaymentsByReference(ctx, orderID)
		if err != nil {
			continue
		}

		for _, p := range payments {
			if p.Status != gateway.PaymentStatusApproved {
				continue
			}
			if _, err := s.CompletePayment(ctx, orderID, p.ID.String()); err != nil && s.logger != nil {
				s.logger.Warn("reconcile order payment", zap.Error(err), zap.String("orderID", orderID))
			}
			break
		}
	}
}
