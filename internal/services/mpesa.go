package services

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"fortunet/internal/config"
)

const mpesaTimestampLayout = "20060102150405"

var phoneNumberPattern = regexp.MustCompile(`^254[0-9]{9}$`)

// MpesaService talks to the Safaricom Daraja API: an OAuth2
// client-credentials token fetch followed by an STK push request that
// prompts the payer's handset for a PIN. Confirmation arrives later on
// the configured callback URL.
type MpesaService struct {
	consumerKey    string
	consumerSecret string
	shortcode      string
	callbackURL    string
	baseURL        string
	client         *http.Client
	now            func() time.Time
}

// STKPushResult is the gateway's synchronous answer to a push request.
// CheckoutRequestID is the correlation id the eventual callback will
// carry; it is not a payment confirmation.
type STKPushResult struct {
	MerchantRequestID   string `json:"MerchantRequestID"`
	CheckoutRequestID   string `json:"CheckoutRequestID"`
	ResponseCode        string `json:"ResponseCode"`
	ResponseDescription string `json:"ResponseDescription"`
	CustomerMessage     string `json:"CustomerMessage"`
}

func NewMpesaService(cfg config.MpesaConfig) *MpesaService {
	baseURL := "https://api.safaricom.co.ke"
	if cfg.Environment == "sandbox" {
		baseURL = "https://sandbox.safaricom.co.ke"
	}
	return &MpesaService{
		consumerKey:    cfg.ConsumerKey,
		consumerSecret: cfg.ConsumerSecret,
		shortcode:      cfg.Shortcode,
		callbackURL:    cfg.CallbackURL,
		baseURL:        baseURL,
		client:         &http.Client{Timeout: cfg.Timeout},
		now:            time.Now,
	}
}

// NormalizePhoneNumber converts a subscriber number to the
// international format the gateway requires. Local leading-zero form
// (0712345678) and leading-plus form (+254712345678) are accepted;
// anything else is ErrInvalidInput.
func NormalizePhoneNumber(phone string) (string, error) {
	phone = strings.TrimSpace(phone)

	switch {
	case strings.HasPrefix(phone, "0"):
		phone = "254" + strings.TrimPrefix(phone, "0")
	case strings.HasPrefix(phone, "+"):
		phone = strings.TrimPrefix(phone, "+")
	default:
		return "", fmt.Errorf("%w: phone number must start with 0 or +", ErrInvalidInput)
	}

	if !phoneNumberPattern.MatchString(phone) {
		return "", fmt.Errorf("%w: %q is not a valid Kenyan phone number", ErrInvalidInput, phone)
	}
	return phone, nil
}

// generatePassword derives the request password from the shortcode,
// the merchant secret and the request timestamp.
func (s *MpesaService) generatePassword(timestamp string) string {
	sum := sha256.Sum256([]byte(s.shortcode + s.consumerSecret + timestamp))
	return hex.EncodeToString(sum[:])
}

// AccessToken fetches a bearer token with the merchant key/secret.
func (s *MpesaService) AccessToken(ctx context.Context) (string, error) {
	url := s.baseURL + "/oauth/v1/generate?grant_type=client_credentials"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create token request: %w", err)
	}
	req.SetBasicAuth(s.consumerKey, s.consumerSecret)

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: token request failed: %v", ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("%w: token request returned status %d: %s", ErrGatewayUnavailable, resp.StatusCode, string(body))
	}

	var tokenResp struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return "", fmt.Errorf("%w: failed to decode token response: %v", ErrGatewayUnavailable, err)
	}
	if tokenResp.AccessToken == "" {
		return "", fmt.Errorf("%w: token response contained no access token", ErrGatewayUnavailable)
	}
	return tokenResp.AccessToken, nil
}

// InitiateSTKPush asks the gateway to prompt phone for amount. The
// phone number must already be normalized. Amount is sent in whole
// currency units as the gateway requires.
func (s *MpesaService) InitiateSTKPush(ctx context.Context, phone string, amount int64, packageName, accountRef string) (*STKPushResult, error) {
	token, err := s.AccessToken(ctx)
	if err != nil {
		return nil, err
	}

	timestamp := s.now().Format(mpesaTimestampLayout)
	payload := map[string]interface{}{
		"BusinessShortCode": s.shortcode,
		"Password":          s.generatePassword(timestamp),
		"Timestamp":         timestamp,
		"TransactionType":   "CustomerPayBillOnline",
		"Amount":            amount,
		"PartyA":            phone,
		"PartyB":            s.shortcode,
		"PhoneNumber":       phone,
		"CallBackURL":       s.callbackURL,
		"AccountReference":  accountRef,
		"TransactionDesc":   fmt.Sprintf("FortuNet %s", packageName),
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal STK push payload: %w", err)
	}

	url := s.baseURL + "/mpesa/stkpush/v1/processrequest"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create STK push request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: STK push request failed: %v", ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%w: STK push returned status %d: %s", ErrGatewayUnavailable, resp.StatusCode, string(body))
	}

	var result STKPushResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("%w: failed to decode STK push response: %v", ErrGatewayUnavailable, err)
	}
	return &result, nil
}
