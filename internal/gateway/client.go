// Package gateway предоставляет клиент платёжной системы Mercado Pago.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

const defaultBaseURL = "https://api.mercadopago.com"

// ErrNotConfigured возвращается, если клиент создаётся без токена доступа.
var ErrNotConfigured = errors.New("payment gateway not configured")

// APIError описывает ошибку, возвращённую платёжной системой.
// Статус и сообщение передаются вызывающей стороне без изменений.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("gateway: %s (status %d)", e.Message, e.StatusCode)
}

// Client инкапсулирует HTTP-взаимодействие с платёжной системой.
// Создаётся явно через NewClient; глобального состояния нет.
type Client struct {
	baseURL     string
	accessToken string
	httpClient  *http.Client
	retryClient *retryablehttp.Client
}

// Option настраивает клиент платёжной системы.
type Option func(*Client)

// WithBaseURL заменяет базовый адрес API. Используется в тестах.
func WithBaseURL(u string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(u, "/")
	}
}

// NewClient создаёт клиент платёжной системы. Токен проверяется один раз здесь.
func NewClient(accessToken string, opts ...Option) (*Client, error) {
	if accessToken == "" {
		return nil, ErrNotConfigured
	}

	// Чтение статуса платежа безопасно повторять, поэтому для него
	// используется retryablehttp; создание сессии — нет.
	rc := retryablehttp.NewClient()
	rc.RetryMax = 2
	rc.RetryWaitMin = 200 * time.Millisecond
	rc.RetryWaitMax = 2 * time.Second
	rc.HTTPClient.Timeout = 5 * time.Second
	rc.Logger = nil

	c := &Client{
		baseURL:     defaultBaseURL,
		accessToken: accessToken,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		retryClient: rc,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// PreferenceItem описывает одну позицию платёжной сессии.
type PreferenceItem struct {
	Title      string  `json:"title"`
	Quantity   int     `json:"quantity"`
	CurrencyID string  `json:"currency_id"`
	UnitPrice  float64 `json:"unit_price"`
}

// BackURLs содержит адреса возврата покупателя после оплаты.
type BackURLs struct {
	Success string `json:"success"`
	Pending string `json:"pending"`
	Failure string `json:"failure"`
}

// PreferenceRequest описывает запрос на создание платёжной сессии.
type PreferenceRequest struct {
	Items             []PreferenceItem `json:"items"`
	ExternalReference string           `json:"external_reference"`
	NotificationURL   string           `json:"notification_url"`
	BackURLs          BackURLs         `json:"back_urls"`
}

// Preference описывает созданную платёжную сессию.
type Preference struct {
	ID               string `json:"id"`
	InitPoint        string `json:"init_point"`
	SandboxInitPoint string `json:"sandbox_init_point"`
}

// CreatePreference создаёт платёжную сессию. Отказ платёжной системы
// возвращается как *APIError с её статусом и сообщением.
func (c *Client) CreatePreference(ctx context.Context, pref PreferenceRequest) (*Preference, error) {
	if c == nil {
		return nil, ErrNotConfigured
	}

	body, err := json.Marshal(pref)
	if err != nil {
		return nil, fmt.Errorf("marshal preference: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/checkout/preferences", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, apiErrorFromResponse(resp)
	}

	var result Preference
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	return &result, nil
}

// Payment описывает состояние платежа во внешней системе.
type Payment struct {
	ID                flexID  `json:"id"`
	Status            string  `json:"status"`
	ExternalReference string  `json:"external_reference"`
	TransactionAmount float64 `json:"transaction_amount"`
}

// PaymentStatusApproved — статус платежа, при котором заказ считается оплаченным.
const PaymentStatusApproved = "approved"

// GetPayment возвращает текущее состояние платежа по его идентификатору.
func (c *Client) GetPayment(ctx context.Context, paymentID string) (*Payment, error) {
	if c == nil {
		return nil, ErrNotConfigured
	}

	reqURL := c.baseURL + "/v1/payments/" + url.PathEscape(paymentID)

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)

	resp, err := c.retryClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, apiErrorFromResponse(resp)
	}

	var result Payment
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	return &result, nil
}

// SearchPaymentsByReference возвращает платежи, привязанные к заказу через
// external_reference. Используется фоновой реконсилиацией зависших заказов.
func (c *Client) SearchPaymentsByReference(ctx context.Context, reference string) ([]Payment, error) {
	if c == nil {
		return nil, ErrNotConfigured
	}

	q := url.Values{}
	q.Set("external_reference", reference)
	q.Set("sort", "date_created")
	q.Set("criteria", "desc")

	reqURL := c.baseURL + "/v1/payments/search?" + q.Encode()

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)

	resp, err := c.retryClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, apiErrorFromResponse(resp)
	}

	var result struct {
		Results []Payment `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	return result.Results, nil
}

func apiErrorFromResponse(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}

	var body struct {
		Message string `json:"message"`
		Error   string `json:"error"`
		Cause   []struct {
			Description string `json:"description"`
		} `json:"cause"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err == nil {
		switch {
		case body.Message != "":
			apiErr.Message = body.Message
		case len(body.Cause) > 0 && body.Cause[0].Description != "":
			apiErr.Message = body.Cause[0].Description
		case body.Error != "":
			apiErr.Message = body.Error
		}
	}

	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}

	return apiErr
}
