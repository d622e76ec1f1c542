// Package billing реализует клиент HTTP API платёжного провайдера.
//
// Провайдер — источник истины по платёжному состоянию: клиент создаёт
// объекты на его стороне, а локальная подписка меняется только из
// проверенных webhook-событий или валидированной ссылки успеха.
package billing

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/squeezeai/account-service/internal/config"
)

const defaultAPIURL = "https://api.stripe.com/v1"

// Client клиент платёжного провайдера с ограниченными таймаутами.
type Client struct {
	secretKey  string
	apiURL     string
	cfg        config.Billing
	httpClient *http.Client
}

// NewClient создает новый клиент провайдера.
func NewClient(cfg config.Billing) *Client {
	return &Client{
		secretKey:  cfg.SecretKey,
		apiURL:     defaultAPIURL,
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.RequestTimeout},
	}
}

func (c *Client) newRequest(ctx context.Context, method, path string, form url.Values) (*http.Request, error) {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, c.apiURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		// Повтор после сетевой ошибки не должен создать второй объект.
		req.Header.Set("Idempotency-Key", uuid.NewString())
	}
	return req, nil
}

func (c *Client) do(req *http.Request, result any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		var apiErr apiError
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil && apiErr.Error.Message != "" {
			return fmt.Errorf("provider error %d: %s", resp.StatusCode, apiErr.Error.Message)
		}
		return fmt.Errorf("unexpected status: %s", resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(result)
}

// FindCustomerByEmail ищет существующего клиента по email.
// Возвращает nil без ошибки, если клиента нет.
func (c *Client) FindCustomerByEmail(ctx context.Context, email string) (*Customer, error) {
	const op = "billing.FindCustomerByEmail"
	req, err := c.newRequest(ctx, http.MethodGet,
		"/customers?limit=1&email="+url.QueryEscape(email), nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	var list customerList
	if err := c.do(req, &list); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if len(list.Data) == 0 {
		return nil, nil
	}
	return &list.Data[0], nil
}

// CreateCustomer создает клиента на стороне провайдера.
func (c *Client) CreateCustomer(ctx context.Context, email, name, userUID string) (*Customer, error) {
	const op = "billing.CreateCustomer"
	form := url.Values{}
	form.Set("email", email)
	form.Set("name", name)
	form.Set("metadata[user_uid]", userUID)

	req, err := c.newRequest(ctx, http.MethodPost, "/customers", form)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	var customer Customer
	if err := c.do(req, &customer); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &customer, nil
}

// CreateCheckoutSession создает сессию оформления подписки с пробным
// периодом. successURL уже содержит подписанную ссылку проверки —
// идентификатор сессии подставляет провайдер. checkoutRef кладётся в
// метаданные сессии для сверки при возврате.
func (c *Client) CreateCheckoutSession(ctx context.Context, customerID, userUID, checkoutRef, successURL, cancelURL string) (*CheckoutSession, error) {
	const op = "billing.CreateCheckoutSession"
	form := url.Values{}
	form.Set("mode", "subscription")
	form.Set("customer", customerID)
	form.Set("success_url", successURL)
	form.Set("cancel_url", cancelURL)
	form.Set("metadata[checkout_ref]", checkoutRef)
	form.Set("line_items[0][quantity]", "1")
	form.Set("line_items[0][price_data][currency]", c.cfg.Currency)
	form.Set("line_items[0][price_data][unit_amount]", strconv.Itoa(c.cfg.PriceCents))
	form.Set("line_items[0][price_data][recurring][interval]", "month")
	form.Set("line_items[0][price_data][product_data][name]", c.cfg.ProductName)
	form.Set("subscription_data[trial_period_days]", strconv.Itoa(c.cfg.TrialDays))
	form.Set("metadata[user_uid]", userUID)
	form.Set("subscription_data[metadata][user_uid]", userUID)

	req, err := c.newRequest(ctx, http.MethodPost, "/checkout/sessions", form)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	var session CheckoutSession
	if err := c.do(req, &session); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &session, nil
}

// GetCheckoutSession возвращает сессию оформления по идентификатору.
func (c *Client) GetCheckoutSession(ctx context.Context, sessionID string) (*CheckoutSession, error) {
	const op = "billing.GetCheckoutSession"
	req, err := c.newRequest(ctx, http.MethodGet, "/checkout/sessions/"+url.PathEscape(sessionID), nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	var session CheckoutSession
	if err := c.do(req, &session); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &session, nil
}

// CreatePortalSession создает сессию кабинета управления подпиской.
func (c *Client) CreatePortalSession(ctx context.Context, customerID, returnURL string) (*PortalSession, error) {
	const op = "billing.CreatePortalSession"
	form := url.Values{}
	form.Set("customer", customerID)
	form.Set("return_url", returnURL)

	req, err := c.newRequest(ctx, http.MethodPost, "/billing_portal/sessions", form)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	var session PortalSession
	if err := c.do(req, &session); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &session, nil
}

// CancelAtPeriodEnd просит провайдера не продлевать подписку.
// Доступ сохраняется до конца оплаченного периода; локальное состояние
// изменит webhook customer.subscription.updated.
func (c *Client) CancelAtPeriodEnd(ctx context.Context, subscriptionID string) (*ProviderSubscription, error) {
	const op = "billing.CancelAtPeriodEnd"
	form := url.Values{}
	form.Set("cancel_at_period_end", "true")

	req, err := c.newRequest(ctx, http.MethodPost, "/subscriptions/"+url.PathEscape(subscriptionID), form)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	var sub ProviderSubscription
	if err := c.do(req, &sub); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &sub, nil
}
