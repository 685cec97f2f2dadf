package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"tenantcrm/models"
)

const minPasswordLength = 8

// Claims are carried by access tokens.
type Claims struct {
	TenantID   uint        `json:"tid"`
	Role       models.Role `json:"role"`
	SuperAdmin bool        `json:"sa,omitempty"`
	jwt.RegisteredClaims
}

type LoginResult struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expires_at"`
	User      *models.User `json:"-"`
}

type AuthService struct {
	repo   *models.Repository
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewAuthService(repo *models.Repository, secret string, ttl time.Duration) *AuthService {
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &AuthService{repo: repo, secret: []byte(secret), ttl: ttl, now: time.Now}
}

func HashPassword(password string) (string, error) {
	if len(password) < minPasswordLength {
		return "", invalid("password", "is too short, use at least %d characters", minPasswordLength)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// Login checks credentials and issues an access token.
func (s *AuthService) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, ErrInvalidCredentials
	}
	db := s.repo.DB(ctx)
	var u models.User
	if err := db.Where("email = ?", email).Take(&u).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	if !u.Active {
		return nil, ErrInvalidCredentials
	}
	if err := s.checkTenant(db, u.TenantID, u.SuperAdmin); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	if err := db.Model(&u).Update("last_login_at", now).Error; err != nil {
		return nil, err
	}
	token, exp, err := s.issue(&u, now)
	if err != nil {
		return nil, err
	}
	return &LoginResult{Token: token, ExpiresAt: exp, User: &u}, nil
}

func (s *AuthService) issue(u *models.User, now time.Time) (string, time.Time, error) {
	exp := now.Add(s.ttl)
	claims := Claims{
		TenantID:   u.TenantID,
		Role:       u.Role,
		SuperAdmin: u.SuperAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatUint(uint64(u.ID), 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, exp, nil
}

// ParseToken validates the signature and expiry of a token.
func (s *AuthService) ParseToken(token string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCredentials, err)
	}
	return claims, nil
}

// Authenticate turns a token into the caller's scope. The user must still be
// active and the tenant not suspended. Super admins may act inside another
// tenant by passing its id as tenantOverride.
func (s *AuthService) Authenticate(ctx context.Context, token string, tenantOverride uint) (models.Scope, error) {
	claims, err := s.ParseToken(token)
	if err != nil {
		return models.Scope{}, err
	}
	uid, err := strconv.ParseUint(claims.Subject, 10, 64)
	if err != nil {
		return models.Scope{}, ErrInvalidCredentials
	}

	db := s.repo.DB(ctx)
	var u models.User
	if err := db.Where("id = ? AND active = ?", uid, true).Take(&u).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Scope{}, ErrInvalidCredentials
		}
		return models.Scope{}, err
	}
	scope := models.Scope{TenantID: u.TenantID, UserID: u.ID, Role: u.Role, SuperAdmin: u.SuperAdmin}

	if tenantOverride != 0 && tenantOverride != u.TenantID {
		if !u.SuperAdmin {
			return models.Scope{}, ErrForbidden
		}
		var t models.Tenant
		if err := db.Take(&t, tenantOverride).Error; err != nil {
			return models.Scope{}, normalize(err)
		}
		scope.TenantID = t.ID
		return scope, nil
	}
	if err := s.checkTenant(db, u.TenantID, u.SuperAdmin); err != nil {
		return models.Scope{}, err
	}
	return scope, nil
}

func (s *AuthService) checkTenant(db *gorm.DB, tenantID uint, superAdmin bool) error {
	var t models.Tenant
	if err := db.Take(&t, tenantID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrInvalidCredentials
		}
		return err
	}
	if t.Status == models.TenantSuspended && !superAdmin {
		return ErrTenantSuspended
	}
	return nil
}

// Me returns the caller's user record.
func (s *AuthService) Me(ctx context.Context, scope models.Scope) (*models.User, error) {
	var u models.User
	if err := s.repo.DB(ctx).Take(&u, scope.UserID).Error; err != nil {
		return nil, normalize(err)
	}
	return &u, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
