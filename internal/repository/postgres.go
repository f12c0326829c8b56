// Package repository содержит реализацию доступа к данным в PostgreSQL.
package repository

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/sethvargo/go-retry"

	"github.com/mkazakov/servimarket-system/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrOrderNotFound возвращается, если заказ не найден.
var (
	ErrOrderNotFound = errors.New("order not found")
	// ErrServiceNotFound возвращается, если услуга не найдена в каталоге.
	ErrServiceNotFound = errors.New("service not found")
)

// PostgresRepository предоставляет доступ к хранилищу данных в PostgreSQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository создаёт новый репозиторий и инициализирует схему БД через миграции.
func NewPostgresRepository(dsn string) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &PostgresRepository{pool: pool}

	if err := r.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return r, nil
}

func (r *PostgresRepository) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(r.pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

// withRetry повторяет операцию при временных ошибках: serialization failure,
// deadlock и обрывы соединения. Остальные ошибки возвращаются сразу.
func (r *PostgresRepository) withRetry(ctx context.Context, fn func() error) error {
	backoff := retry.WithMaxRetries(3, retry.NewFibonacci(500*time.Millisecond))

	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := fn()
		if err == nil {
			return nil
		}

		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			if pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected {
				return retry.RetryableError(err)
			}
			return err
		}

		if isConnectionError(err) {
			return retry.RetryableError(err)
		}

		return err
	})
}

func isConnectionError(err error) bool {
	// Упрощенная проверка на ошибки соединения
	return strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "broken pipe") ||
		strings.Contains(err.Error(), "connection reset by peer")
}

// Close закрывает пул соединений с БД.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// GetService возвращает услугу каталога по идентификатору.
func (r *PostgresRepository) GetService(ctx context.Context, id string) (*model.Service, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, title, price, currency, affiliate_id, active FROM services WHERE id = $1`,
		id,
	)

	var s model.Service
	err := row.Scan(&s.ID, &s.Title, &s.PriceCents, &s.Currency, &s.AffiliateID, &s.Active)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrServiceNotFound
		}
		return nil, fmt.Errorf("get service: %w", err)
	}

	return &s, nil
}

// CreateOrder сохраняет заказ. Если передана запись о расщеплении средств
// (офлайн-оплата, рассчитанная в момент оформления), она создаётся в той же
// транзакции: оплаченный заказ не существует без своей записи в леджере.
func (r *PostgresRepository) CreateOrder(ctx context.Context, order *model.Order, settlement *model.Transaction) error {
	return r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		_, err = tx.Exec(ctx,
			`INSERT INTO orders (
				id, client_id, service_id, affiliate_id,
				amount, commission, currency,
				payment_method, payment_status, status, transaction_id,
				address, notes,
				contact_name, contact_phone, contact_email,
				booking_date, booking_time, booking_quantity
			 ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`,
			order.ID, order.ClientID, order.ServiceID, order.AffiliateID,
			order.AmountCents, order.CommissionCents, order.Currency,
			string(order.PaymentMethod), string(order.PaymentStatus), string(order.Status), order.TransactionID,
			order.Address, order.Notes,
			order.ContactInfo.Name, order.ContactInfo.Phone, order.ContactInfo.Email,
			order.BookingDetails.Date, order.BookingDetails.Time, order.BookingDetails.Quantity,
		)
		if err != nil {
			return fmt.Errorf("insert order: %w", err)
		}

		if settlement != nil {
			_, err = tx.Exec(ctx,
				`INSERT INTO transactions (id, order_id, affiliate_amount, platform_amount, gateway_payment_id, status)
				 VALUES ($1, $2, $3, $4, $5, $6)`,
				settlement.ID, settlement.OrderID,
				settlement.AffiliateAmountCents, settlement.PlatformAmountCents,
				settlement.GatewayPaymentID, string(settlement.Status),
			)
			if err != nil {
				return fmt.Errorf("insert settlement: %w", err)
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}

		return nil
	})
}

// CompleteOrderPayment выполняет идемпотентный переход оплаты pending→completed.
// Переход выполняется условным UPDATE; запись в леджер дополнительно защищена
// уникальностью order_id, поэтому при конкурентных дубликатах вебхука запись
// создаётся не более одного раза. Возвращает заказ и признак того, что переход
// выполнен этим вызовом.
func (r *PostgresRepository) CompleteOrderPayment(ctx context.Context, orderID, gatewayPaymentID string) (*model.Order, bool, error) {
	var order *model.Order
	var transitioned bool

	err := r.withRetry(ctx, func() error {
		order = nil
		transitioned = false

		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		cmdTag, err := tx.Exec(ctx,
			`UPDATE orders SET payment_status = $2, transaction_id = $3
			 WHERE id = $1 AND payment_status = $4`,
			orderID, string(model.PaymentStatusCompleted), gatewayPaymentID, string(model.PaymentStatusPending),
		)
		if err != nil {
			return fmt.Errorf("update payment status: %w", err)
		}

		transitioned = cmdTag.RowsAffected() == 1

		order, err = scanOrder(tx.QueryRow(ctx, selectOrderQuery+` WHERE id = $1`, orderID))
		if err != nil {
			return err
		}

		if transitioned {
			cmdTag, err := tx.Exec(ctx,
				`INSERT INTO transactions (id, order_id, affiliate_amount, platform_amount, gateway_payment_id, status)
				 VALUES ($1, $2, $3, $4, $5, $6)
				 ON CONFLICT (order_id) DO NOTHING`,
				uuid.NewString(), order.ID,
				affiliateShare(order), order.CommissionCents,
				gatewayPaymentID, string(model.TransactionStatusCompleted),
			)
			if err != nil {
				return fmt.Errorf("insert settlement: %w", err)
			}
			// Конфликт означает, что расщепление уже записано другим путём.
			if cmdTag.RowsAffected() == 0 {
				transitioned = false
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}

		return nil
	})
	if err != nil {
		return nil, false, err
	}

	return order, transitioned, nil
}

func affiliateShare(order *model.Order) int64 {
	share := order.AmountCents - order.CommissionCents
	if share < 0 {
		share = 0
	}
	return share
}

const selectOrderQuery = `
	SELECT id, client_id, service_id, affiliate_id,
	       amount, commission, currency,
	       payment_method, payment_status, status, COALESCE(transaction_id, ''),
	       address, notes,
	       contact_name, contact_phone, contact_email,
	       booking_date, booking_time, booking_quantity,
	       created_at
	FROM orders`

func scanOrder(row pgx.Row) (*model.Order, error) {
	var (
		o                         model.Order
		method, payStatus, status string
	)
	err := row.Scan(
		&o.ID, &o.ClientID, &o.ServiceID, &o.AffiliateID,
		&o.AmountCents, &o.CommissionCents, &o.Currency,
		&method, &payStatus, &status, &o.TransactionID,
		&o.Address, &o.Notes,
		&o.ContactInfo.Name, &o.ContactInfo.Phone, &o.ContactInfo.Email,
		&o.BookingDetails.Date, &o.BookingDetails.Time, &o.BookingDetails.Quantity,
		&o.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("scan order: %w", err)
	}

	o.PaymentMethod = model.PaymentMethod(method)
	o.PaymentStatus = model.PaymentStatus(payStatus)
	o.Status = model.OrderStatus(status)

	return &o, nil
}

// GetOrder возвращает заказ по идентификатору.
func (r *PostgresRepository) GetOrder(ctx context.Context, id string) (*model.Order, error) {
	return scanOrder(r.pool.QueryRow(ctx, selectOrderQuery+` WHERE id = $1`, id))
}

// OrderListItem описывает заказ в списке покупателя вместе с названием услуги.
type OrderListItem struct {
	Order        model.Order
	ServiceTitle string
}

// ListOrdersByClient возвращает заказы покупателя, новые первыми.
func (r *PostgresRepository) ListOrdersByClient(ctx context.Context, clientID string) ([]OrderListItem, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT o.id, o.client_id, o.service_id, o.affiliate_id,
		        o.amount, o.commission, o.currency,
		        o.payment_method, o.payment_status, o.status, COALESCE(o.transaction_id, ''),
		        o.address, o.notes,
		        o.contact_name, o.contact_phone, o.contact_email,
		        o.booking_date, o.booking_time, o.booking_quantity,
		        o.created_at,
		        COALESCE(s.title, '')
		 FROM orders o
		 LEFT JOIN services s ON s.id = o.service_id
		 WHERE o.client_id = $1
		 ORDER BY o.created_at DESC
		 LIMIT 100`,
		clientID,
	)
	if err != nil {
		return nil, fmt.Errorf("select orders: %w", err)
	}
	defer rows.Close()

	var res []OrderListItem
	for rows.Next() {
		var (
			item                      OrderListItem
			method, payStatus, status string
		)
		o := &item.Order
		if err := rows.Scan(
			&o.ID, &o.ClientID, &o.ServiceID, &o.AffiliateID,
			&o.AmountCents, &o.CommissionCents, &o.Currency,
			&method, &payStatus, &status, &o.TransactionID,
			&o.Address, &o.Notes,
			&o.ContactInfo.Name, &o.ContactInfo.Phone, &o.ContactInfo.Email,
			&o.BookingDetails.Date, &o.BookingDetails.Time, &o.BookingDetails.Quantity,
			&o.CreatedAt,
			&item.ServiceTitle,
		); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}

		o.PaymentMethod = model.PaymentMethod(method)
		o.PaymentStatus = model.PaymentStatus(payStatus)
		o.Status = model.OrderStatus(status)

		res = append(res, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// GetPendingGatewayOrders возвращает идентификаторы заказов, ожидающих оплаты
// через платёжную систему дольше указанного срока. Используется реконсилиацией.
func (r *PostgresRepository) GetPendingGatewayOrders(ctx context.Context, olderThan time.Duration, limit int) ([]string, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id
		 FROM orders
		 WHERE payment_status = $1 AND payment_method = $2 AND created_at < now() - $3::interval
		 ORDER BY created_at
		 LIMIT $4`,
		string(model.PaymentStatusPending), string(model.PaymentMethodMercadoPago),
		fmt.Sprintf("%d seconds", int(olderThan.Seconds())), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("select pending orders: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan order id: %w", err)
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return ids, nil
}

// AffiliateTransaction описывает запись леджера в списке выплат аффилиата.
type AffiliateTransaction struct {
	Transaction model.Transaction
	OrderID     string
}

// ListTransactionsByAffiliate возвращает записи леджера по заказам аффилиата, новые первыми.
func (r *PostgresRepository) ListTransactionsByAffiliate(ctx context.Context, affiliateID string) ([]AffiliateTransaction, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT t.id, t.order_id, t.affiliate_amount, t.platform_amount, t.gateway_payment_id, t.status, t.created_at
		 FROM transactions t
		 JOIN orders o ON o.id = t.order_id
		 WHERE o.affiliate_id = $1
		 ORDER BY t.created_at DESC
		 LIMIT 100`,
		affiliateID,
	)
	if err != nil {
		return nil, fmt.Errorf("select transactions: %w", err)
	}
	defer rows.Close()

	var res []AffiliateTransaction
	for rows.Next() {
		var (
			item   AffiliateTransaction
			status string
		)
		tr := &item.Transaction
		if err := rows.Scan(&tr.ID, &tr.OrderID, &tr.AffiliateAmountCents, &tr.PlatformAmountCents,
			&tr.GatewayPaymentID, &status, &tr.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		tr.Status = model.TransactionStatus(status)
		item.OrderID = tr.OrderID

		res = append(res, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// CreateNotification сохраняет уведомление пользователю.
func (r *PostgresRepository) CreateNotification(ctx context.Context, n *model.Notification) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO notifications (id, user_id, kind, title, message) VALUES ($1, $2, $3, $4, $5)`,
		n.ID, n.UserID, n.Kind, n.Title, n.Message,
	)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}
