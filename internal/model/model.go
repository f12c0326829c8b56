// Package model содержит доменные сущности маркетплейса услуг.
package model

import "time"

// PaymentMethod описывает способ оплаты заказа.
type PaymentMethod string

const (
	PaymentMethodCash        PaymentMethod = "cash"
	PaymentMethodCard        PaymentMethod = "card"
	PaymentMethodTransfer    PaymentMethod = "transfer"
	PaymentMethodYape        PaymentMethod = "yape"
	PaymentMethodPlin        PaymentMethod = "plin"
	PaymentMethodMercadoPago PaymentMethod = "mercado_pago"
	PaymentMethodBank        PaymentMethod = "bank"
)

// Valid сообщает, известен ли способ оплаты.
func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentMethodCash, PaymentMethodCard, PaymentMethodTransfer,
		PaymentMethodYape, PaymentMethodPlin, PaymentMethodMercadoPago, PaymentMethodBank:
		return true
	}
	return false
}

// Offline сообщает, считается ли оплата рассчитанной уже в момент оформления заказа.
// Через платёжную систему проходит только mercado_pago.
func (m PaymentMethod) Offline() bool {
	return m != PaymentMethodMercadoPago
}

// PaymentStatus описывает статус оплаты заказа.
// Допустимые переходы: pending→completed и pending→failed; completed — терминальный.
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusFailed    PaymentStatus = "failed"
)

// OrderStatus описывает статус выполнения заказа. От статуса оплаты не зависит.
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusConfirmed  OrderStatus = "confirmed"
	OrderStatusInProgress OrderStatus = "in_progress"
	OrderStatusCompleted  OrderStatus = "completed"
	OrderStatusCancelled  OrderStatus = "cancelled"
)

// ContactInfo содержит контактные данные покупателя для заказа.
type ContactInfo struct {
	Name  string
	Phone string
	Email string
}

// BookingDetails содержит детали бронирования услуги.
type BookingDetails struct {
	Date     string
	Time     string
	Quantity int
}

// Order описывает заказ: зафиксированную покупку услуги по цене на момент оформления.
// Суммы хранятся в центах; цена услуги может позже измениться, сумма заказа — нет.
type Order struct {
	ID              string
	ClientID        string
	ServiceID       string
	AffiliateID     string
	AmountCents     int64
	CommissionCents int64
	Currency        string
	PaymentMethod   PaymentMethod
	PaymentStatus   PaymentStatus
	Status          OrderStatus
	TransactionID   string // идентификатор платежа во внешней платёжной системе
	Address         string
	Notes           string
	ContactInfo     ContactInfo
	BookingDetails  BookingDetails
	CreatedAt       time.Time
}

// TransactionStatus описывает статус записи о расщеплении средств.
type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "pending"
	TransactionStatusCompleted TransactionStatus = "completed"
	TransactionStatusRefunded  TransactionStatus = "refunded"
)

// Transaction описывает неизменяемую запись о расщеплении оплаты одного заказа
// между аффилиатом и платформой. На заказ существует не более одной записи.
type Transaction struct {
	ID                   string
	OrderID              string
	AffiliateAmountCents int64
	PlatformAmountCents  int64
	GatewayPaymentID     string
	Status               TransactionStatus
	CreatedAt            time.Time
}

// Service описывает услугу каталога в объёме, достаточном для оформления заказа.
type Service struct {
	ID          string
	Title       string
	PriceCents  int64
	Currency    string
	AffiliateID string
	Active      bool
}

// Notification описывает уведомление пользователю о событии в системе.
type Notification struct {
	ID        string
	UserID    string
	Kind      string
	Title     string
	Message   string
	CreatedAt time.Time
}
