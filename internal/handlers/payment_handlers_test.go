package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"fortunet/internal/middleware"
	"fortunet/internal/models"
	"fortunet/internal/services"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatal(err)
	}
	sqlDB.SetMaxOpenConns(1)

	err = db.AutoMigrate(
		&models.User{},
		&models.Package{},
		&models.Transaction{},
		&models.PaymentCallback{},
	)
	if err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}
	return db
}

type stubGateway struct {
	result *services.STKPushResult
	err    error
}

func (s *stubGateway) InitiateSTKPush(ctx context.Context, phone string, amount int64, packageName, accountRef string) (*services.STKPushResult, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

type stubProvisioner struct{ err error }

func (s *stubProvisioner) Activate(ctx context.Context, userID, packageID uint) error {
	return s.err
}

func newPaymentTestServer(t *testing.T, db *gorm.DB, gateway services.PaymentGateway) *echo.Echo {
	t.Helper()

	payments := services.NewPaymentService(db, gateway, &stubProvisioner{})
	h := NewPaymentHandler(db, payments)

	e := echo.New()
	e.HTTPErrorHandler = middleware.CustomErrorHandler
	e.POST("/api/initiate-payment", h.InitiatePayment)
	e.POST("/api/mpesa-callback", h.MpesaCallback)
	return e
}

func seedPackage(t *testing.T, db *gorm.DB) models.Package {
	t.Helper()
	pkg := models.Package{
		Name:          "24 Hrs Unlimited",
		Price:         100,
		DurationHours: 24,
		Category:      models.PackageCategoryDaily,
		IsActive:      true,
	}
	if err := db.Create(&pkg).Error; err != nil {
		t.Fatal(err)
	}
	return pkg
}

func postJSON(e *echo.Echo, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestInitiatePaymentRegistersUnknownDevice(t *testing.T) {
	db := newTestDB(t)
	pkg := seedPackage(t, db)

	gateway := &stubGateway{result: &services.STKPushResult{
		CheckoutRequestID: "ws_CO_1",
		CustomerMessage:   "Success. Request accepted for processing",
	}}
	e := newPaymentTestServer(t, db, gateway)

	body := `{"phoneNumber":"0712345678","packageId":1,"amount":100,"packageName":"24 Hrs Unlimited","macAddress":"aa:bb:cc:dd:ee:ff"}`
	rec := postJSON(e, "/api/initiate-payment", body)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s; want 200", rec.Code, rec.Body.String())
	}

	var resp map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp["success"] != true {
		t.Errorf("success = %v; want true", resp["success"])
	}
	if resp["checkoutRequestID"] != "ws_CO_1" {
		t.Errorf("checkoutRequestID = %v; want ws_CO_1", resp["checkoutRequestID"])
	}

	// The unknown MAC was registered, uppercased.
	var user models.User
	if err := db.Where("mac_address = ?", "AA:BB:CC:DD:EE:FF").First(&user).Error; err != nil {
		t.Fatalf("device account not auto-registered: %v", err)
	}
	if user.PhoneNumber != "254712345678" {
		t.Errorf("stored phone = %q; want normalized 254712345678", user.PhoneNumber)
	}

	var tx models.Transaction
	if err := db.Where("user_id = ?", user.ID).First(&tx).Error; err != nil {
		t.Fatalf("transaction not created: %v", err)
	}
	if tx.PackageID != pkg.ID || tx.Status != models.TransactionStatusPending {
		t.Errorf("transaction = %+v; want pending for package %d", tx, pkg.ID)
	}
}

func TestInitiatePaymentValidation(t *testing.T) {
	db := newTestDB(t)
	seedPackage(t, db)
	e := newPaymentTestServer(t, db, &stubGateway{})

	tests := []struct {
		name string
		body string
		code int
	}{
		{
			name: "missing required fields",
			body: `{"phoneNumber":"0712345678"}`,
			code: http.StatusBadRequest,
		},
		{
			name: "no account identity",
			body: `{"phoneNumber":"0712345678","packageId":1,"amount":100,"packageName":"24 Hrs Unlimited"}`,
			code: http.StatusBadRequest,
		},
		{
			name: "unknown username",
			body: `{"phoneNumber":"0712345678","packageId":1,"amount":100,"packageName":"24 Hrs Unlimited","username":"ghost"}`,
			code: http.StatusNotFound,
		},
		{
			name: "unknown package",
			body: `{"phoneNumber":"0712345678","packageId":42,"amount":100,"packageName":"nope","macAddress":"aa:bb:cc:dd:ee:01"}`,
			code: http.StatusNotFound,
		},
		{
			name: "invalid phone",
			body: `{"phoneNumber":"12345","packageId":1,"amount":100,"packageName":"24 Hrs Unlimited","macAddress":"aa:bb:cc:dd:ee:02"}`,
			code: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := postJSON(e, "/api/initiate-payment", tt.body)
			if rec.Code != tt.code {
				t.Errorf("status = %d, body %s; want %d", rec.Code, rec.Body.String(), tt.code)
			}
			var resp map[string]string
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatalf("error body is not JSON: %v", err)
			}
			if resp["error"] == "" {
				t.Error("error body missing the error field")
			}
		})
	}
}

func TestInitiatePaymentGatewayDown(t *testing.T) {
	db := newTestDB(t)
	seedPackage(t, db)
	e := newPaymentTestServer(t, db, &stubGateway{err: services.ErrGatewayUnavailable})

	body := `{"phoneNumber":"0712345678","packageId":1,"amount":100,"packageName":"24 Hrs Unlimited","macAddress":"aa:bb:cc:dd:ee:ff"}`
	rec := postJSON(e, "/api/initiate-payment", body)
	if rec.Code != http.StatusBadGateway {
		t.Errorf("status = %d; want 502 when the gateway is down", rec.Code)
	}
}

func TestMpesaCallbackAlwaysAcks(t *testing.T) {
	db := newTestDB(t)
	e := newPaymentTestServer(t, db, &stubGateway{})

	tests := []struct {
		name string
		body string
	}{
		{name: "garbage body", body: `not json at all`},
		{name: "missing checkout id", body: `{"ResultCode":0}`},
		{name: "unknown checkout id", body: `{"ResultCode":0,"CheckoutRequestID":"ws_CO_unknown"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := postJSON(e, "/api/mpesa-callback", tt.body)
			if rec.Code != http.StatusOK {
				t.Errorf("status = %d; callback endpoint must always return 200", rec.Code)
			}
			var resp map[string]string
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatal(err)
			}
			if resp["status"] != "success" {
				t.Errorf("ack body = %v; want status success", resp)
			}
		})
	}
}

func TestMpesaCallbackCompletesTransaction(t *testing.T) {
	db := newTestDB(t)
	pkg := seedPackage(t, db)

	mac := "AA:BB:CC:DD:EE:FF"
	user := models.User{MACAddress: &mac, PhoneNumber: "254712345678", IsActive: true}
	if err := db.Create(&user).Error; err != nil {
		t.Fatal(err)
	}
	checkout := "ws_CO_1"
	tx := models.Transaction{
		UserID: user.ID, PackageID: pkg.ID, Amount: pkg.Price,
		Status: models.TransactionStatusPending, CheckoutRequestID: &checkout,
	}
	if err := db.Create(&tx).Error; err != nil {
		t.Fatal(err)
	}

	e := newPaymentTestServer(t, db, &stubGateway{})
	rec := postJSON(e, "/api/mpesa-callback", `{"ResultCode":0,"CheckoutRequestID":"ws_CO_1"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d; want 200", rec.Code)
	}

	var stored models.Transaction
	if err := db.First(&stored, tx.ID).Error; err != nil {
		t.Fatal(err)
	}
	if stored.Status != models.TransactionStatusCompleted {
		t.Errorf("status = %s; want completed", stored.Status)
	}
	if !stored.Provisioned {
		t.Error("transaction not provisioned after successful callback")
	}
}
