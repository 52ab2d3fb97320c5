package provider

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	defaultTokenTTL       = time.Hour
	invalidTokenErrorCode = "404.001.03"
	stkTimestampLayout    = "20060102150405"
	maxAccountReference   = 12
	maxTransactionDesc    = 13
	maxRemarks            = 100
)

// eat is East Africa Time; Daraja timestamps are local to Nairobi.
var eat = time.FixedZone("EAT", 3*60*60)

type MpesaConfig struct {
	BaseURL               string
	ConsumerKey           string
	ConsumerSecret        string
	ShortCode             string
	Passkey               string
	TransactionType       string
	B2CShortCode          string
	B2CInitiatorName      string
	B2CSecurityCredential string
	B2CCommandID          string
	CallbackBaseURL       string
	TokenExpirySkew       time.Duration
	HTTPTimeout           time.Duration
}

type MpesaGateway struct {
	cfg    MpesaConfig
	client *http.Client
	tokens *tokenSource
	now    func() time.Time
}

func NewMpesaGateway(cfg MpesaConfig) *MpesaGateway {
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if strings.TrimSpace(cfg.TransactionType) == "" {
		cfg.TransactionType = "CustomerPayBillOnline"
	}
	if strings.TrimSpace(cfg.B2CCommandID) == "" {
		cfg.B2CCommandID = "BusinessPayment"
	}
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")

	g := &MpesaGateway{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
		now:    time.Now,
	}
	g.tokens = newTokenSource(g.fetchToken, cfg.TokenExpirySkew)
	return g
}

// Close releases idle provider connections.
func (g *MpesaGateway) Close() {
	g.client.CloseIdleConnections()
}

func (g *MpesaGateway) AcquireToken(ctx context.Context) (string, error) {
	return g.tokens.Token(ctx)
}

type stkPushRequest struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	TransactionType   string `json:"TransactionType"`
	Amount            int64  `json:"Amount"`
	PartyA            string `json:"PartyA"`
	PartyB            string `json:"PartyB"`
	PhoneNumber       string `json:"PhoneNumber"`
	CallBackURL       string `json:"CallBackURL"`
	AccountReference  string `json:"AccountReference"`
	TransactionDesc   string `json:"TransactionDesc"`
}

type stkPushResponse struct {
	MerchantRequestID   string `json:"MerchantRequestID"`
	CheckoutRequestID   string `json:"CheckoutRequestID"`
	ResponseCode        string `json:"ResponseCode"`
	ResponseDescription string `json:"ResponseDescription"`
	CustomerMessage     string `json:"CustomerMessage"`
}

func (g *MpesaGateway) Collect(ctx context.Context, input *CollectInput) (*Acknowledgement, error) {
	amount, err := majorAmount(input.AmountMinor)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(g.cfg.ShortCode) == "" || strings.TrimSpace(g.cfg.Passkey) == "" {
		return nil, errors.New("mpesa shortcode and passkey are not configured")
	}

	timestamp := g.now().In(eat).Format(stkTimestampLayout)
	request := stkPushRequest{
		BusinessShortCode: g.cfg.ShortCode,
		Password:          base64.StdEncoding.EncodeToString([]byte(g.cfg.ShortCode + g.cfg.Passkey + timestamp)),
		Timestamp:         timestamp,
		TransactionType:   g.cfg.TransactionType,
		Amount:            amount,
		PartyA:            input.Msisdn,
		PartyB:            g.cfg.ShortCode,
		PhoneNumber:       input.Msisdn,
		CallBackURL:       g.callbackURL("stk", input.AccountReference),
		AccountReference:  truncate(input.AccountReference, maxAccountReference),
		TransactionDesc:   truncate(defaultString(input.Description, "Rental payment"), maxTransactionDesc),
	}

	var response stkPushResponse
	if err := g.post(ctx, "collect", "/mpesa/stkpush/v1/processrequest", request, &response); err != nil {
		return nil, err
	}
	if response.ResponseCode != "0" {
		return nil, &GatewayRejectedError{Op: "collect", Code: response.ResponseCode, Message: response.ResponseDescription}
	}
	if strings.TrimSpace(response.CheckoutRequestID) == "" {
		return nil, &TransportError{Op: "collect", Err: errors.New("acknowledgement without CheckoutRequestID")}
	}

	return &Acknowledgement{
		ProviderRequestID:   response.CheckoutRequestID,
		ProviderSecondaryID: response.MerchantRequestID,
		ResponseCode:        response.ResponseCode,
		ResponseDescription: response.ResponseDescription,
	}, nil
}

type b2cRequest struct {
	InitiatorName      string `json:"InitiatorName"`
	SecurityCredential string `json:"SecurityCredential"`
	CommandID          string `json:"CommandID"`
	Amount             int64  `json:"Amount"`
	PartyA             string `json:"PartyA"`
	PartyB             string `json:"PartyB"`
	Remarks            string `json:"Remarks"`
	QueueTimeOutURL    string `json:"QueueTimeOutURL"`
	ResultURL          string `json:"ResultURL"`
	Occasion           string `json:"Occasion"`
}

type b2cResponse struct {
	ConversationID           string `json:"ConversationID"`
	OriginatorConversationID string `json:"OriginatorConversationID"`
	ResponseCode             string `json:"ResponseCode"`
	ResponseDescription      string `json:"ResponseDescription"`
}

func (g *MpesaGateway) Disburse(ctx context.Context, input *DisburseInput) (*Acknowledgement, error) {
	amount, err := majorAmount(input.AmountMinor)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(g.cfg.B2CShortCode) == "" || strings.TrimSpace(g.cfg.B2CInitiatorName) == "" {
		return nil, errors.New("mpesa b2c shortcode and initiator are not configured")
	}

	resultURL := g.callbackURL("b2c", input.CorrelationID)
	request := b2cRequest{
		InitiatorName:      g.cfg.B2CInitiatorName,
		SecurityCredential: g.cfg.B2CSecurityCredential,
		CommandID:          g.cfg.B2CCommandID,
		Amount:             amount,
		PartyA:             g.cfg.B2CShortCode,
		PartyB:             input.Msisdn,
		Remarks:            truncate(defaultString(input.Remarks, "Rental payout"), maxRemarks),
		QueueTimeOutURL:    resultURL,
		ResultURL:          resultURL,
		Occasion:           truncate(defaultString(input.Occasion, input.CorrelationID), maxRemarks),
	}

	var response b2cResponse
	if err := g.post(ctx, "disburse", "/mpesa/b2c/v1/paymentrequest", request, &response); err != nil {
		return nil, err
	}
	if response.ResponseCode != "0" {
		return nil, &GatewayRejectedError{Op: "disburse", Code: response.ResponseCode, Message: response.ResponseDescription}
	}
	if strings.TrimSpace(response.ConversationID) == "" {
		return nil, &TransportError{Op: "disburse", Err: errors.New("acknowledgement without ConversationID")}
	}

	return &Acknowledgement{
		ProviderRequestID:   response.ConversationID,
		ProviderSecondaryID: response.OriginatorConversationID,
		ResponseCode:        response.ResponseCode,
		ResponseDescription: response.ResponseDescription,
	}, nil
}

// post sends an authorized request. An expired token is re-acquired once;
// a second rejection surfaces as a TransportError.
func (g *MpesaGateway) post(ctx context.Context, op, path string, payload interface{}, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	for attempt := 0; attempt < 2; attempt++ {
		token, err := g.tokens.Token(ctx)
		if err != nil {
			return &TransportError{Op: op, Err: fmt.Errorf("acquire token: %w", err)}
		}

		err = g.do(ctx, op, path, token, body, out)
		if !errors.Is(err, ErrAuthExpired) {
			return err
		}
		g.tokens.Invalidate(token)
	}

	return &TransportError{Op: op, Err: ErrAuthExpired}
}

type darajaError struct {
	RequestID    string `json:"requestId"`
	ErrorCode    string `json:"errorCode"`
	ErrorMessage string `json:"errorMessage"`
}

func (g *MpesaGateway) do(ctx context.Context, op, path, token string, body []byte, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.cfg.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := g.client.Do(req)
	if err != nil {
		return &TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &TransportError{Op: op, Err: err}
	}

	if resp.StatusCode >= 400 {
		var apiErr darajaError
		_ = json.Unmarshal(respBody, &apiErr)
		switch {
		case resp.StatusCode == http.StatusUnauthorized || apiErr.ErrorCode == invalidTokenErrorCode:
			return ErrAuthExpired
		case resp.StatusCode >= 500:
			return &TransportError{Op: op, Err: fmt.Errorf("status=%d body=%s", resp.StatusCode, truncate(string(respBody), 512))}
		default:
			code := apiErr.ErrorCode
			if code == "" {
				code = strconv.Itoa(resp.StatusCode)
			}
			return &GatewayRejectedError{Op: op, Code: code, Message: apiErr.ErrorMessage}
		}
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return &TransportError{Op: op, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

func (g *MpesaGateway) fetchToken(ctx context.Context) (string, time.Duration, error) {
	if strings.TrimSpace(g.cfg.ConsumerKey) == "" || strings.TrimSpace(g.cfg.ConsumerSecret) == "" {
		return "", 0, errors.New("mpesa consumer credentials are not configured")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.cfg.BaseURL+"/oauth/v1/generate?grant_type=client_credentials", nil)
	if err != nil {
		return "", 0, err
	}
	req.SetBasicAuth(g.cfg.ConsumerKey, g.cfg.ConsumerSecret)

	resp, err := g.client.Do(req)
	if err != nil {
		return "", 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", 0, err
	}
	if resp.StatusCode != http.StatusOK {
		return "", 0, fmt.Errorf("token request failed: status=%d body=%s", resp.StatusCode, truncate(string(body), 512))
	}

	var payload struct {
		AccessToken string      `json:"access_token"`
		ExpiresIn   json.Number `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", 0, err
	}
	if strings.TrimSpace(payload.AccessToken) == "" {
		return "", 0, errors.New("token response without access_token")
	}

	ttl := defaultTokenTTL
	if seconds, err := payload.ExpiresIn.Int64(); err == nil && seconds > 0 {
		ttl = time.Duration(seconds) * time.Second
	}
	return payload.AccessToken, ttl, nil
}

func (g *MpesaGateway) callbackURL(kind, correlationID string) string {
	base := strings.TrimRight(strings.TrimSpace(g.cfg.CallbackBaseURL), "/")
	if base == "" {
		return ""
	}
	url := base + "/webhooks/mpesa/" + kind
	if correlationID = strings.TrimSpace(correlationID); correlationID != "" {
		url += "/" + correlationID
	}
	return url
}

func majorAmount(amountMinor int64) (int64, error) {
	if amountMinor <= 0 || amountMinor%MinorUnitsPerMajor != 0 {
		return 0, ErrInvalidAmount
	}
	return amountMinor / MinorUnitsPerMajor, nil
}

func defaultString(value, fallback string) string {
	if trimmed := strings.TrimSpace(value); trimmed != "" {
		return trimmed
	}
	return fallback
}

// truncate caps value at max bytes without splitting a UTF-8 sequence.
func truncate(value string, max int) string {
	if len(value) <= max {
		return value
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(value[cut]) {
		cut--
	}
	return value[:cut]
}
