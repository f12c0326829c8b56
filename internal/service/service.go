// Package service реализует бизнес-логику маркетплейса услуг.
//
// Сервис — единственный писатель заказов и единственная точка перехода
// оплаты pending→completed; все записи в леджер проходят через него.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mkazakov/servimarket-system/internal/gateway"
	"github.com/mkazakov/servimarket-system/internal/model"
	"github.com/mkazakov/servimarket-system/internal/pricing"
	"github.com/mkazakov/servimarket-system/internal/repository"
	"github.com/mkazakov/servimarket-system/internal/validation"
)

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	Close() error
	GetService(ctx context.Context, id string) (*model.Service, error)
	CreateOrder(ctx context.Context, order *model.Order, settlement *model.Transaction) error
	GetOrder(ctx context.Context, id string) (*model.Order, error)
	ListOrdersByClient(ctx context.Context, clientID string) ([]repository.OrderListItem, error)
	CompleteOrderPayment(ctx context.Context, orderID, gatewayPaymentID string) (*model.Order, bool, error)
	ListTransactionsByAffiliate(ctx context.Context, affiliateID string) ([]repository.AffiliateTransaction, error)
	GetPendingGatewayOrders(ctx context.Context, olderThan time.Duration, limit int) ([]string, error)
	CreateNotification(ctx context.Context, n *model.Notification) error
}

// Gateway описывает контракт платёжной системы, используемый сервисом.
type Gateway interface {
	CreatePreference(ctx context.Context, pref gateway.PreferenceRequest) (*gateway.Preference, error)
	GetPayment(ctx context.Context, paymentID string) (*gateway.Payment, error)
	SearchPaymentsByReference(ctx context.Context, reference string) ([]gateway.Payment, error)
}

// Ошибки валидации и авторизации бизнес-операций.
var (
	ErrServiceInactive      = errors.New("service is not active")
	ErrForbidden            = errors.New("order belongs to another client")
	ErrAddressRequired      = errors.New("address is required")
	ErrInvalidContactInfo   = errors.New("contact info is invalid")
	ErrUnknownPaymentMethod = errors.New("unknown payment method")
	ErrAmountNotPositive    = errors.New("order amount must be positive")
	ErrGatewayNotConfigured = errors.New("payment gateway not configured")
)

// Settings содержит параметры бизнес-логики.
type Settings struct {
	FeeRate         float64 // доля комиссии платформы, [0, 1]
	Currency        string
	FrontendURL     string
	PublicBaseURL   string
	CheckoutBaseURL string
}

// Service содержит бизнес-логику маркетплейса услуг.
type Service struct {
	repo     Repository
	gateway  Gateway // nil, если платёжная система не настроена
	logger   *zap.Logger
	settings Settings
}

// NewService создаёт новый сервис с указанным репозиторием и клиентом платёжной системы.
func NewService(repo Repository, gw Gateway, logger *zap.Logger, settings Settings) *Service {
	return &Service{
		repo:     repo,
		gateway:  gw,
		logger:   logger,
		settings: settings,
	}
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// CreateOrderInput содержит данные для оформления заказа.
type CreateOrderInput struct {
	ClientID       string
	ServiceID      string
	PaymentMethod  model.PaymentMethod
	Address        string
	Notes          string
	ContactInfo    model.ContactInfo
	BookingDetails model.BookingDetails
	Currency       string
}

func validateOrderInput(in CreateOrderInput) error {
	if !in.PaymentMethod.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownPaymentMethod, in.PaymentMethod)
	}
	if in.Address == "" {
		return ErrAddressRequired
	}
	if !validation.IsValidContactName(in.ContactInfo.Name) {
		return fmt.Errorf("%w: name is required", ErrInvalidContactInfo)
	}
	if !validation.IsValidPhone(in.ContactInfo.Phone) {
		return fmt.Errorf("%w: phone", ErrInvalidContactInfo)
	}
	if !validation.IsValidEmail(in.ContactInfo.Email) {
		return fmt.Errorf("%w: email", ErrInvalidContactInfo)
	}
	return nil
}

// CreateOrder оформляет заказ: фиксирует цену услуги и комиссию платформы.
// Оплата через платёжную систему начинается в статусе pending; офлайн-способы
// считаются рассчитанными сразу, и запись леджера создаётся атомарно с заказом.
func (s *Service) CreateOrder(ctx context.Context, in CreateOrderInput) (*model.Order, error) {
	if err := validateOrderInput(in); err != nil {
		return nil, err
	}

	svc, err := s.repo.GetService(ctx, in.ServiceID)
	if err != nil {
		return nil, err
	}
	if !svc.Active {
		return nil, ErrServiceInactive
	}

	commission, affiliateShare, err := pricing.Split(svc.PriceCents, s.settings.FeeRate)
	if err != nil {
		return nil, fmt.Errorf("compute split: %w", err)
	}

	currency := in.Currency
	if currency == "" {
		currency = svc.Currency
	}
	if currency == "" {
		currency = s.settings.Currency
	}

	paymentStatus := model.PaymentStatusPending
	if in.PaymentMethod.Offline() {
		paymentStatus = model.PaymentStatusCompleted
	}

	order := &model.Order{
		ID:              uuid.NewString(),
		ClientID:        in.ClientID,
		ServiceID:       svc.ID,
		AffiliateID:     svc.AffiliateID,
		AmountCents:     svc.PriceCents,
		CommissionCents: commission,
		Currency:        currency,
		PaymentMethod:   in.PaymentMethod,
		PaymentStatus:   paymentStatus,
		Status:          model.OrderStatusPending,
		Address:         in.Address,
		Notes:           in.Notes,
		ContactInfo:     in.ContactInfo,
		BookingDetails:  in.BookingDetails,
		CreatedAt:       time.Now(),
	}
	if order.BookingDetails.Quantity <= 0 {
		order.BookingDetails.Quantity = 1
	}

	var settlement *model.Transaction
	if paymentStatus == model.PaymentStatusCompleted {
		settlement = &model.Transaction{
			ID:                   uuid.NewString(),
			OrderID:              order.ID,
			AffiliateAmountCents: affiliateShare,
			PlatformAmountCents:  commission,
			Status:               model.TransactionStatusCompleted,
		}
	}

	if err := s.repo.CreateOrder(ctx, order, settlement); err != nil {
		return nil, err
	}

	if settlement != nil {
		s.notifyPaymentReceived(ctx, order, settlement.ID)
	}

	return order, nil
}

// CompletePayment выполняет идемпотентный переход оплаты заказа в completed.
// Повторные вызовы для уже оплаченного заказа возвращают заказ без ошибки и
// без новой записи в леджере: платёжная система доставляет вебхуки многократно.
func (s *Service) CompletePayment(ctx context.Context, orderID, gatewayPaymentID string) (*model.Order, error) {
	order, transitioned, err := s.repo.CompleteOrderPayment(ctx, orderID, gatewayPaymentID)
	if err != nil {
		return nil, err
	}

	if transitioned {
		s.notifyPaymentReceived(ctx, order, gatewayPaymentID)
	}

	return order, nil
}

// notifyPaymentReceived уведомляет аффилиата о поступившей оплате.
// Сбой уведомления не прерывает завершение оплаты, а только логируется.
func (s *Service) notifyPaymentReceived(ctx context.Context, order *model.Order, reference string) {
	share := order.AmountCents - order.CommissionCents
	if share < 0 {
		share = 0
	}

	n := &model.Notification{
		ID:     uuid.NewString(),
		UserID: order.AffiliateID,
		Kind:   "payment_received",
		Title:  "Payment received",
		Message: fmt.Sprintf("Payment for order %s received: %.2f %s credited to your balance",
			order.ID, float64(share)/100, order.Currency),
	}

	if err := s.repo.CreateNotification(ctx, n); err != nil && s.logger != nil {
		s.logger.Warn("notify affiliate",
			zap.Error(err),
			zap.String("orderID", order.ID),
			zap.String("reference", reference),
		)
	}
}

// GetOrder возвращает заказ. Если requesterID задан и не совпадает с покупателем,
// возвращается ErrForbidden.
func (s *Service) GetOrder(ctx context.Context, id, requesterID string) (*model.Order, error) {
	order, err := s.repo.GetOrder(ctx, id)
	if err != nil {
		return nil, err
	}

	if requesterID != "" && order.ClientID != requesterID {
		return nil, ErrForbidden
	}

	return order, nil
}

// InvoiceTotals содержит суммы счёта в центах. Итог равен подытогу:
// комиссия — внутренний сбор платформы, покупателю сверху не начисляется.
type InvoiceTotals struct {
	SubtotalCents   int64
	CommissionCents int64
	TotalCents      int64
}

// Invoice содержит данные счёта по заказу.
type Invoice struct {
	Order   *model.Order
	Service *model.Service
	Totals  InvoiceTotals
}

// GetOrderInvoice возвращает счёт: заказ, снимок услуги и блок сумм.
func (s *Service) GetOrderInvoice(ctx context.Context, id, requesterID string) (*Invoice, error) {
	order, err := s.GetOrder(ctx, id, requesterID)
	if err != nil {
		return nil, err
	}

	svc, err := s.repo.GetService(ctx, order.ServiceID)
	if err != nil && !errors.Is(err, repository.ErrServiceNotFound) {
		return nil, err
	}

	return &Invoice{
		Order:   order,
		Service: svc,
		Totals: InvoiceTotals{
			SubtotalCents:   order.AmountCents,
			CommissionCents: order.CommissionCents,
			TotalCents:      order.AmountCents,
		},
	}, nil
}

// ListOrders возвращает заказы покупателя.
func (s *Service) ListOrders(ctx context.Context, clientID string) ([]repository.OrderListItem, error) {
	return s.repo.ListOrdersByClient(ctx, clientID)
}

// ListAffiliateTransactions возвращает записи леджера по заказам аффилиата.
func (s *Service) ListAffiliateTransactions(ctx context.Context, affiliateID string) ([]repository.AffiliateTransaction, error) {
	return s.repo.ListTransactionsByAffiliate(ctx, affiliateID)
}
