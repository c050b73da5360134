package stripe

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	paymentdomain "github.com/UrrutyLabs/encuentraya-payments/internal/payment/domain"
)

const defaultBaseURL = "https://api.stripe.com"

type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (f *Factory) Provider() string {
	return "stripe"
}

func (f *Factory) NewAdapter(cfg paymentdomain.AdapterConfig) (paymentdomain.PaymentAdapter, error) {
	secretKey, _ := readString(cfg.Config, "secret_key")
	secretKey = strings.TrimSpace(secretKey)
	if secretKey == "" {
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
		secretKey:     secretKey,
		webhookSecret: webhookSecret,
		baseURL:       baseURL,
		httpClient:    httpClient,
	}, nil
}

// Adapter drives Stripe PaymentIntents with manual capture: a created
// intent holds the authorization until Capture converts it into a charge.
// Stripe already speaks integer minor units, so amounts pass through
// unconverted.
type Adapter struct {
	secretKey     string
	webhookSecret string
	baseURL       string
	httpClient    *http.Client
}

type stripeIntent struct {
	ID               string           `json:"id"`
	Status           string           `json:"status"`
	Amount           int64            `json:"amount"`
	AmountCapturable int64            `json:"amount_capturable"`
	AmountReceived   int64            `json:"amount_received"`
	Currency         string           `json:"currency"`
	NextAction       *stripeNextState `json:"next_action"`
	LastPaymentError *stripeAPIError  `json:"last_payment_error"`
}

type stripeNextState struct {
	Type          string `json:"type"`
	RedirectToURL *struct {
		URL string `json:"url"`
	} `json:"redirect_to_url"`
}

type stripeAPIError struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type stripeErrorResponse struct {
	Error *stripeAPIError `json:"error"`
}

func (a *Adapter) CreatePreauth(ctx context.Context, in paymentdomain.CreatePreauthInput) (*paymentdomain.CreatePreauthResult, error) {
	form := url.Values{}
	form.Set("amount", strconv.FormatInt(in.Amount.Amount, 10))
	form.Set("currency", strings.ToLower(in.Amount.Currency))
	form.Set("capture_method", "manual")
	form.Set("automatic_payment_methods[enabled]", "true")
	if in.Description != "" {
		form.Set("description", in.Description)
	}
	if in.Category != "" {
		form.Set("metadata[category]", in.Category)
	}
	if in.PayerEmail != "" {
		form.Set("receipt_email", in.PayerEmail)
	}
	if in.PayerName != "" {
		form.Set("metadata[payer_name]", in.PayerName)
	}

	var intent stripeIntent
	if err := a.do(ctx, http.MethodPost, "/v1/payment_intents", form, in.IdempotencyKey, &intent); err != nil {
		return nil, err
	}

	result := &paymentdomain.CreatePreauthResult{
		ProviderReference: intent.ID,
		Status:            mapIntentStatus(intent.Status),
	}
	if intent.NextAction != nil && intent.NextAction.RedirectToURL != nil {
		result.CheckoutURL = intent.NextAction.RedirectToURL.URL
	}
	if intent.AmountCapturable > 0 {
		capturable := intent.AmountCapturable
		result.AmountAuthorized = &capturable
	}
	return result, nil
}

func (a *Adapter) FetchStatus(ctx context.Context, providerReference string) (*paymentdomain.ProviderStatus, error) {
	var intent stripeIntent
	path := "/v1/payment_intents/" + url.PathEscape(providerReference)
	if err := a.do(ctx, http.MethodGet, path, nil, "", &intent); err != nil {
		return nil, err
	}

	status := &paymentdomain.ProviderStatus{Status: mapIntentStatus(intent.Status)}
	if intent.AmountCapturable > 0 {
		capturable := intent.AmountCapturable
		status.AmountAuthorized = &capturable
	}
	if intent.AmountReceived > 0 {
		received := intent.AmountReceived
		status.AmountCaptured = &received
		if status.AmountAuthorized == nil {
			status.AmountAuthorized = &received
		}
	}
	return status, nil
}

func (a *Adapter) Capture(ctx context.Context, providerReference string, amount *int64) (*paymentdomain.CaptureResult, error) {
	form := url.Values{}
	if amount != nil {
		form.Set("amount_to_capture", strconv.FormatInt(*amount, 10))
	}

	var intent stripeIntent
	path := "/v1/payment_intents/" + url.PathEscape(providerReference) + "/capture"
	if err := a.do(ctx, http.MethodPost, path, form, "", &intent); err != nil {
		return nil, err
	}
	return &paymentdomain.CaptureResult{AmountCaptured: intent.AmountReceived}, nil
}

func (a *Adapter) Refund(ctx context.Context, providerReference string, amount *int64) error {
	form := url.Values{}
	form.Set("payment_intent", providerReference)
	if amount != nil {
		form.Set("amount", strconv.FormatInt(*amount, 10))
	}

	var out struct {
		ID string `json:"id"`
	}
	return a.do(ctx, http.MethodPost, "/v1/refunds", form, "", &out)
}

func (a *Adapter) Verify(ctx context.Context, payload []byte, headers http.Header) error {
	sigHeader := strings.TrimSpace(headers.Get("Stripe-Signature"))
	if sigHeader == "" {
		return paymentdomain.ErrInvalidSignature
	}

	timestamp, signatures, err := parseSignatureHeader(sigHeader)
	if err != nil {
		return paymentdomain.ErrInvalidSignature
	}

	signedPayload := fmt.Sprintf("%s.%s", timestamp, string(payload))
	mac := hmac.New(sha256.New, []byte(a.webhookSecret))
	_, _ = mac.Write([]byte(signedPayload))
	expected := hex.EncodeToString(mac.Sum(nil))

	for _, signature := range signatures {
		if hmac.Equal([]byte(signature), []byte(expected)) {
			return nil
		}
	}

	return paymentdomain.ErrInvalidSignature
}

type stripeEvent struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

// Parse extracts the payment-intent reference from a webhook delivery.
// The payload status is deliberately discarded: every event is only a
// signal to re-poll the intent for authoritative state.
func (a *Adapter) Parse(ctx context.Context, payload []byte) (*paymentdomain.WebhookEvent, error) {
	var event stripeEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}
	if strings.TrimSpace(event.ID) == "" {
		return nil, paymentdomain.ErrInvalidPayload
	}

	switch strings.TrimSpace(event.Type) {
	case "payment_intent.amount_capturable_updated",
		"payment_intent.succeeded",
		"payment_intent.payment_failed",
		"payment_intent.canceled",
		"payment_intent.requires_action",
		"charge.refunded":
	default:
		return nil, paymentdomain.ErrEventIgnored
	}

	reference, err := extractIntentReference(event)
	if err != nil {
		return nil, err
	}

	return &paymentdomain.WebhookEvent{
		Provider:          paymentdomain.ProviderStripe,
		ProviderReference: reference,
		Type:              event.Type,
		RawPayload:        payload,
	}, nil
}

func extractIntentReference(event stripeEvent) (string, error) {
	if strings.HasPrefix(event.Type, "payment_intent.") {
		var object struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(event.Data.Object, &object); err != nil || strings.TrimSpace(object.ID) == "" {
			return "", paymentdomain.ErrInvalidPayload
		}
		return object.ID, nil
	}

	// charge events reference their intent
	var object struct {
		PaymentIntent string `json:"payment_intent"`
	}
	if err := json.Unmarshal(event.Data.Object, &object); err != nil || strings.TrimSpace(object.PaymentIntent) == "" {
		return "", paymentdomain.ErrInvalidPayload
	}
	return object.PaymentIntent, nil
}

// mapIntentStatus maps Stripe's intent status vocabulary onto the
// internal lifecycle. Unknown statuses stay pending; they never promote.
func mapIntentStatus(status string) paymentdomain.PaymentStatus {
	switch strings.TrimSpace(status) {
	case "requires_payment_method", "requires_confirmation", "requires_action":
		return paymentdomain.StatusRequiresAction
	case "requires_capture":
		return paymentdomain.StatusAuthorized
	case "succeeded":
		return paymentdomain.StatusCaptured
	case "canceled":
		return paymentdomain.StatusCancelled
	case "processing":
		return paymentdomain.StatusCreated
	default:
		return paymentdomain.StatusCreated
	}
}

func (a *Adapter) do(ctx context.Context, method, path string, form url.Values, idempotencyKey string, out any) error {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+a.secretKey)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
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
		var apiErr stripeErrorResponse
		if err := json.Unmarshal(raw, &apiErr); err == nil && apiErr.Error != nil && apiErr.Error.Message != "" {
			return fmt.Errorf("stripe: %s (%s)", apiErr.Error.Message, apiErr.Error.Code)
		}
		return fmt.Errorf("stripe: unexpected status %d", resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return paymentdomain.ErrInvalidPayload
	}
	return nil
}

func parseSignatureHeader(header string) (string, []string, error) {
	parts := strings.Split(header, ",")
	var timestamp string
	signatures := []string{}
	for _, part := range parts {
		piece := strings.TrimSpace(part)
		if piece == "" {
			continue
		}
		keyValue := strings.SplitN(piece, "=", 2)
		if len(keyValue) != 2 {
			continue
		}
		key := strings.TrimSpace(keyValue[0])
		value := strings.TrimSpace(keyValue[1])
		if key == "t" {
			timestamp = value
		}
		if key == "v1" {
			signatures = append(signatures, value)
		}
	}
	if timestamp == "" || len(signatures) == 0 {
		return "", nil, errors.New("invalid_signature")
	}
	return timestamp, signatures, nil
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
