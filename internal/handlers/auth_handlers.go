package handlers

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"fortunet/internal/config"
	"fortunet/internal/models"
	"fortunet/internal/services"
)

// AuthHandler handles registration, login and logout.
type AuthHandler struct {
	db  *gorm.DB
	cfg config.JWTConfig
}

func NewAuthHandler(db *gorm.DB, cfg config.JWTConfig) *AuthHandler {
	return &AuthHandler{db: db, cfg: cfg}
}

type registerRequest struct {
	Username    string `json:"username"`
	Password    string `json:"password"`
	MACAddress  string `json:"macAddress"`
	PhoneNumber string `json:"phoneNumber"`
	Email       string `json:"email"`
}

// Register creates an account. Exactly one identity scheme is
// accepted: a MAC address for captive-portal device accounts, or a
// username plus password for credentialed accounts.
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerRequest
	if err := c.Bind(&req); err != nil {
		return fmt.Errorf("%w: malformed request body", services.ErrInvalidInput)
	}

	if req.PhoneNumber == "" {
		return fmt.Errorf("%w: phoneNumber is required", services.ErrInvalidInput)
	}
	phone, err := services.NormalizePhoneNumber(req.PhoneNumber)
	if err != nil {
		return err
	}

	hasMAC := req.MACAddress != ""
	hasCredentials := req.Username != "" && req.Password != ""
	if hasMAC == hasCredentials {
		return fmt.Errorf("%w: provide either macAddress or username and password", services.ErrInvalidInput)
	}

	user := models.User{
		PhoneNumber: phone,
		IsActive:    true,
	}
	if req.Email != "" {
		user.Email = &req.Email
	}
	if hasMAC {
		mac := strings.ToUpper(req.MACAddress)
		user.MACAddress = &mac
	} else {
		hash := hashPassword(req.Password)
		user.Username = &req.Username
		user.PasswordHash = &hash
	}

	if err := h.db.Create(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("%w: account already exists", services.ErrInvalidInput)
		}
		return err
	}

	return c.JSON(http.StatusCreated, user)
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Login verifies a credentialed account and issues a bearer token.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return fmt.Errorf("%w: malformed request body", services.ErrInvalidInput)
	}
	if req.Username == "" || req.Password == "" {
		return fmt.Errorf("%w: username and password are required", services.ErrInvalidInput)
	}

	var user models.User
	err := h.db.Where("username = ? AND is_active = ?", req.Username, true).First(&user).Error
	if err != nil || user.PasswordHash == nil || *user.PasswordHash != hashPassword(req.Password) {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid username or password")
	}

	now := time.Now()
	h.db.Model(&user).Update("last_login_at", now)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": req.Username,
		"uid": user.ID,
		"iat": now.Unix(),
		"exp": now.Add(h.cfg.TokenTTL).Unix(),
	})
	signed, err := token.SignedString([]byte(h.cfg.Secret))
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"token":   signed,
		"user_id": user.ID,
	})
}

// Logout exists for client symmetry; bearer tokens simply expire.
func (h *AuthHandler) Logout(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"message": "Logged out successfully"})
}

func hashPassword(password string) string {
	sum := sha256.Sum256([]byte(password))
	return hex.EncodeToString(sum[:])
}
