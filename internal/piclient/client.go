// Package piclient реализует HTTP-клиент серверного API платёжной сети Pi.
//
// Клиент покрывает четыре вызова, которые нужны ядру: проверку токена
// доступа пользователя (/me), подтверждение (approve) и завершение
// (complete) платежа, а также получение деталей платежа.
package piclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client инкапсулирует доступ к серверному API сети Pi.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// NewClient создаёт новый клиент API сети Pi.
func NewClient(apiKey, baseURL string, timeout time.Duration) *Client {
	return &Client{
		apiKey:  apiKey,
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// newRequest собирает запрос к API. Серверные вызовы авторизуются
// ключом приложения ("Key ..."), вызов /me — пользовательским
// токеном доступа ("Bearer ...").
func (c *Client) newRequest(ctx context.Context, method, path, authorization string, body any) (*http.Request, error) {
	url := c.baseURL + path
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", authorization)
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

// Me проверяет токен доступа пользователя через идентификационный
// эндпоинт провайдера и возвращает профиль с авторитетным uid.
func (c *Client) Me(ctx context.Context, accessToken string) (*Profile, error) {
	const op = "piclient.Me"

	req, err := c.newRequest(ctx, http.MethodGet, "/me", "Bearer "+accessToken, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s: unexpected status: %s", op, resp.Status)
	}
	var profile Profile
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &profile, nil
}

// ApprovePayment подтверждает платёж на стороне сервера приложения.
func (c *Client) ApprovePayment(ctx context.Context, paymentID string) error {
	const op = "piclient.ApprovePayment"

	req, err := c.newRequest(ctx, http.MethodPost,
		"/payments/"+paymentID+"/approve", "Key "+c.apiKey, nil)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: unexpected status: %s", op, resp.Status)
	}
	return nil
}

// CompletePayment отмечает платёж завершённым, передавая провайдеру
// идентификатор блокчейн-транзакции.
func (c *Client) CompletePayment(ctx context.Context, paymentID, txid string) error {
	const op = "piclient.CompletePayment"

	req, err := c.newRequest(ctx, http.MethodPost,
		"/payments/"+paymentID+"/complete", "Key "+c.apiKey,
		map[string]string{"txid": txid})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: unexpected status: %s", op, resp.Status)
	}
	return nil
}

// GetPayment возвращает авторитетные детали платежа. Помимо разобранной
// структуры сохраняется сырой ответ провайдера — он уходит в журнал
// транзакций для аудита.
func (c *Client) GetPayment(ctx context.Context, paymentID string) (*Payment, error) {
	const op = "piclient.GetPayment"

	req, err := c.newRequest(ctx, http.MethodGet,
		"/payments/"+paymentID, "Key "+c.apiKey, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s: unexpected status: %s", op, resp.Status)
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	var payment Payment
	if err := json.Unmarshal(raw, &payment); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	payment.Raw = raw
	return &payment, nil
}
