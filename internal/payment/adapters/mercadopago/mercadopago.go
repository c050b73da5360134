package mercadopago

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/UrrutyLabs/encuentraya-payments/internal/money"
	paymentdomain "github.com/UrrutyLabs/encuentraya-payments/internal/payment/domain"
)

const defaultBaseURL = "https://api.mercadopago.com"

type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (f *Factory) Provider() string {
	return "mercadopago"
}

func (f *Factory) NewAdapter(cfg paymentdomain.AdapterConfig) (paymentdomain.PaymentAdapter, error) {
	accessToken, _ := readString(cfg.Config, "access_token")
	accessToken = strings.TrimSpace(accessToken)
	if accessToken == "" {
		return nil, paymentdomain.ErrInvalidConfig
	}

	webhookSecret, _ := readString(cfg.Config, "webhook_secret")
	webhookSecret = strings.TrimSpace(webhookSecret)
	if webhookSecret == "" {
		return nil, paymentdomain.ErrInvalidConfig
	}

	baseURL, _ := readString(cfg.Config, "base_url")
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return &Adapter{
		accessToken:   accessToken,
		webhookSecret: webhookSecret,
		baseURL:       baseURL,
		httpClient:    httpClient,
	}, nil
}

// Adapter drives Mercado Pago payments created with capture=false, which
// holds the authorization until an explicit capture. The API speaks
// decimal major units, so every amount is converted through
// money.FromMajorUnits / MajorUnits at this boundary.
type Adapter struct {
	accessToken   string
	webhookSecret string
	baseURL       string
	httpClient    *http.Client
}

type mpPayment struct {
	ID                 json.Number `json:"id"`
	Status             string      `json:"status"`
	CurrencyID         string      `json:"currency_id"`
	TransactionAmount  float64     `json:"transaction_amount"`
	TransactionDetails *struct {
		TotalPaidAmount float64 `json:"total_paid_amount"`
	} `json:"transaction_details"`
}

func (a *Adapter) CreatePreauth(ctx context.Context, in paymentdomain.CreatePreauthInput) (*paymentdomain.CreatePreauthResult, error) {
	body := map[string]any{
		"transaction_amount": in.Amount.MajorUnits(),
		"description":        in.Description,
		"capture":            false,
		"metadata": map[string]any{
			"category": in.Category,
		},
	}
	if in.PayerEmail != "" {
		body["payer"] = map[string]any{"email": in.PayerEmail}
	}

	var payment mpPayment
	if err := a.do(ctx, http.MethodPost, "/v1/payments", body, in.IdempotencyKey, &payment); err != nil {
		return nil, err
	}

	return &paymentdomain.CreatePreauthResult{
		ProviderReference: payment.ID.String(),
		Status:            mapPaymentStatus(payment.Status),
		AmountAuthorized:  authorizedAmount(&payment),
	}, nil
}

func (a *Adapter) FetchStatus(ctx context.Context, providerReference string) (*paymentdomain.ProviderStatus, error) {
	var payment mpPayment
	path := "/v1/payments/" + url.PathEscape(providerReference)
	if err := a.do(ctx, http.MethodGet, path, nil, "", &payment); err != nil {
		return nil, err
	}

	status := &paymentdomain.ProviderStatus{
		Status:           mapPaymentStatus(payment.Status),
		AmountAuthorized: authorizedAmount(&payment),
	}
	if payment.TransactionDetails != nil && payment.TransactionDetails.TotalPaidAmount > 0 {
		paid := money.FromMajorUnits(payment.TransactionDetails.TotalPaidAmount, payment.CurrencyID).Amount
		status.AmountCaptured = &paid
	}
	return status, nil
}

func (a *Adapter) Capture(ctx context.Context, providerReference string, amount *int64) (*paymentdomain.CaptureResult, error) {
	body := map[string]any{"capture": true}
	if amount != nil {
		body["transaction_amount"] = money.New(*amount, "").MajorUnits()
	}

	var payment mpPayment
	path := "/v1/payments/" + url.PathEscape(providerReference)
	if err := a.do(ctx, http.MethodPut, path, body, "", &payment); err != nil {
		return nil, err
	}

	captured := money.FromMajorUnits(payment.TransactionAmount, payment.CurrencyID).Amount
	if payment.TransactionDetails != nil && payment.TransactionDetails.TotalPaidAmount > 0 {
		captured = money.FromMajorUnits(payment.TransactionDetails.TotalPaidAmount, payment.CurrencyID).Amount
	}
	return &paymentdomain.CaptureResult{AmountCaptured: captured}, nil
}

func (a *Adapter) Refund(ctx context.Context, providerReference string, amount *int64) error {
	body := map[string]any{}
	if amount != nil {
		body["amount"] = money.New(*amount, "").MajorUnits()
	}

	var out struct {
		ID json.Number `json:"id"`
	}
	path := "/v1/payments/" + url.PathEscape(providerReference) + "/refunds"
	return a.do(ctx, http.MethodPost, path, body, "", &out)
}

// Verify checks the x-signature header: HMAC-SHA256 over the
// "id:<data.id>;ts:<ts>;" manifest with the webhook secret.
func (a *Adapter) Verify(ctx context.Context, payload []byte, headers http.Header) error {
	sigHeader := strings.TrimSpace(headers.Get("x-signature"))
	if sigHeader == "" {
		return paymentdomain.ErrInvalidSignature
	}

	var ts, v1 string
	for _, part := range strings.Split(sigHeader, ",") {
		keyValue := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(keyValue) != 2 {
			continue
		}
		switch strings.TrimSpace(keyValue[0]) {
		case "ts":
			ts = strings.TrimSpace(keyValue[1])
		case "v1":
			v1 = strings.TrimSpace(keyValue[1])
		}
	}
	if ts == "" || v1 == "" {
		return paymentdomain.ErrInvalidSignature
	}

	notification, err := parseNotification(payload)
	if err != nil {
		return err
	}

	manifest := fmt.Sprintf("id:%s;ts:%s;", notification.Data.ID.String(), ts)
	mac := hmac.New(sha256.New, []byte(a.webhookSecret))
	_, _ = mac.Write([]byte(manifest))
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(v1), []byte(expected)) {
		return paymentdomain.ErrInvalidSignature
	}
	return nil
}

type mpNotification struct {
	Action string `json:"action"`
	Type   string `json:"type"`
	Data   struct {
		ID flexibleID `json:"id"`
	} `json:"data"`
}

// flexibleID tolerates data.id arriving as either a JSON number or a
// string; deliveries use both.
type flexibleID string

func (id *flexibleID) UnmarshalJSON(raw []byte) error {
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		*id = flexibleID(asString)
		return nil
	}
	var asNumber json.Number
	if err := json.Unmarshal(raw, &asNumber); err != nil {
		return err
	}
	*id = flexibleID(asNumber.String())
	return nil
}

func (id flexibleID) String() string {
	return string(id)
}

// Parse returns the payment reference carried by the notification. The
// body holds nothing but ids, which is exactly why webhook handling
// re-polls the API for status instead of trusting the delivery.
func (a *Adapter) Parse(ctx context.Context, payload []byte) (*paymentdomain.WebhookEvent, error) {
	notification, err := parseNotification(payload)
	if err != nil {
		return nil, err
	}
	if notification.Type != "payment" {
		return nil, paymentdomain.ErrEventIgnored
	}

	eventType := strings.TrimSpace(notification.Action)
	if eventType == "" {
		eventType = "payment.updated"
	}

	return &paymentdomain.WebhookEvent{
		Provider:          paymentdomain.ProviderMercadoPago,
		ProviderReference: notification.Data.ID.String(),
		Type:              eventType,
		RawPayload:        payload,
	}, nil
}

func parseNotification(payload []byte) (*mpNotification, error) {
	var notification mpNotification
	if err := json.Unmarshal(payload, &notification); err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}
	if notification.Data.ID.String() == "" {
		return nil, paymentdomain.ErrInvalidPayload
	}
	return &notification, nil
}

// mapPaymentStatus maps Mercado Pago's status vocabulary onto the
// internal lifecycle. Unknown statuses stay pending; they never promote.
func mapPaymentStatus(status string) paymentdomain.PaymentStatus {
	switch strings.TrimSpace(status) {
	case "authorized":
		return paymentdomain.StatusAuthorized
	case "approved":
		return paymentdomain.StatusCaptured
	case "rejected":
		return paymentdomain.StatusFailed
	case "cancelled":
		return paymentdomain.StatusCancelled
	case "refunded", "charged_back":
		return paymentdomain.StatusRefunded
	case "pending", "in_process", "in_mediation":
		return paymentdomain.StatusRequiresAction
	default:
		return paymentdomain.StatusCreated
	}
}

func authorizedAmount(payment *mpPayment) *int64 {
	if payment == nil || payment.TransactionAmount <= 0 {
		return nil
	}
	if mapPaymentStatus(payment.Status) != paymentdomain.StatusAuthorized &&
		mapPaymentStatus(payment.Status) != paymentdomain.StatusCaptured {
		return nil
	}
	amount := money.FromMajorUnits(payment.TransactionAmount, payment.CurrencyID).Amount
	return &amount
}

func (a *Adapter) do(ctx context.Context, method, path string, body map[string]any, idempotencyKey string, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+a.accessToken)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if idempotencyKey != "" {
		req.Header.Set("X-Idempotency-Key", idempotencyKey)
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode >= 400 {
		var apiErr struct {
			Message string `json:"message"`
		}
		if err := json.Unmarshal(raw, &apiErr); err == nil && apiErr.Message != "" {
			return fmt.Errorf("mercadopago: %s", apiErr.Message)
		}
		return fmt.Errorf("mercadopago: unexpected status %d", resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return paymentdomain.ErrInvalidPayload
	}
	return nil
}

func readString(config map[string]any, key string) (string, bool) {
	value, ok := config[key]
	if !ok {
		return "", false
	}
	switch cast := value.(type) {
	case string:
		return cast, true
	default:
		return "", false
	}
}
