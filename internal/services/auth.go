package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/personaforge/backend/internal/logger"
	"github.com/personaforge/backend/internal/repos"
	"github.com/personaforge/backend/internal/requestdata"
	"github.com/personaforge/backend/internal/types"
	"github.com/personaforge/backend/internal/utils"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid token")
)

type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

type AuthService interface {
	Register(ctx context.Context, email, password, displayName string) (*types.User, *TokenPair, error)
	Login(ctx context.Context, email, password string) (*types.User, *TokenPair, error)
	Refresh(ctx context.Context, refreshToken string) (*TokenPair, error)
	Logout(ctx context.Context, userID uuid.UUID) error
	SetContextFromToken(ctx context.Context, tokenString string) (context.Context, error)
}

type authService struct {
	db            *gorm.DB
	log           *logger.Logger
	userRepo      repos.UserRepo
	tokenRepo     repos.UserTokenRepo
	jwtSecret     []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	signingMethod jwt.SigningMethod
}

func NewAuthService(db *gorm.DB, baseLog *logger.Logger, userRepo repos.UserRepo, tokenRepo repos.UserTokenRepo) AuthService {
	serviceLog := baseLog.With("service", "AuthService")
	secret := utils.GetEnv("JWT_SECRET", "", serviceLog)
	if secret == "" {
		serviceLog.Warn("JWT_SECRET is empty; tokens are not secure")
	}
	return &authService{
		db:            db,
		log:           serviceLog,
		userRepo:      userRepo,
		tokenRepo:     tokenRepo,
		jwtSecret:     []byte(secret),
		accessTTL:     time.Duration(utils.GetEnvAsInt("JWT_ACCESS_TTL_MINUTES", 30, serviceLog)) * time.Minute,
		refreshTTL:    time.Duration(utils.GetEnvAsInt("JWT_REFRESH_TTL_HOURS", 24*14, serviceLog)) * time.Hour,
		signingMethod: jwt.SigningMethodHS256,
	}
}

func (as *authService) Register(ctx context.Context, email, password, displayName string) (*types.User, *TokenPair, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, nil, fmt.Errorf("invalid email address")
	}
	if len(password) < 8 {
		return nil, nil, fmt.Errorf("password must be at least 8 characters")
	}

	if _, err := as.userRepo.GetByEmail(ctx, nil, email); err == nil {
		return nil, nil, fmt.Errorf("email already registered")
	} else if !errors.Is(err, repos.ErrNotFound) {
		return nil, nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, nil, fmt.Errorf("hash password: %w", err)
	}

	user := &types.User{
		ID:          uuid.New(),
		Email:       email,
		Password:    string(hash),
		DisplayName: displayName,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}
	if _, err := as.userRepo.Create(ctx, nil, user); err != nil {
		return nil, nil, fmt.Errorf("create user: %w", err)
	}

	pair, err := as.issueTokens(ctx, user.ID)
	if err != nil {
		return nil, nil, err
	}
	return user, pair, nil
}

func (as *authService) Login(ctx context.Context, email, password string) (*types.User, *TokenPair, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	user, err := as.userRepo.GetByEmail(ctx, nil, email)
	if err != nil {
		if errors.Is(err, repos.ErrNotFound) {
			return nil, nil, ErrInvalidCredentials
		}
		return nil, nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return nil, nil, ErrInvalidCredentials
	}

	pair, err := as.issueTokens(ctx, user.ID)
	if err != nil {
		return nil, nil, err
	}
	return user, pair, nil
}

func (as *authService) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	record, err := as.tokenRepo.GetByRefreshToken(ctx, nil, refreshToken)
	if err != nil {
		if errors.Is(err, repos.ErrNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, err
	}
	if record.Revoked || time.Now().After(record.ExpiresAt) {
		return nil, ErrInvalidToken
	}

	// Rotate: the presented refresh token is single-use.
	if err := as.tokenRepo.Revoke(ctx, nil, record.ID); err != nil {
		return nil, fmt.Errorf("revoke refresh token: %w", err)
	}
	return as.issueTokens(ctx, record.UserID)
}

func (as *authService) Logout(ctx context.Context, userID uuid.UUID) error {
	return as.tokenRepo.RevokeAllForUser(ctx, nil, userID)
}

// SetContextFromToken validates an access token and attaches the caller's
// identity to the context for downstream handlers.
func (as *authService) SetContextFromToken(ctx context.Context, tokenString string) (context.Context, error) {
	userID, err := as.parseAccessToken(tokenString)
	if err != nil {
		return ctx, err
	}
	if _, err := as.userRepo.GetByID(ctx, nil, userID); err != nil {
		if errors.Is(err, repos.ErrNotFound) {
			return ctx, ErrInvalidToken
		}
		return ctx, err
	}
	return requestdata.WithRequestData(ctx, &requestdata.RequestData{
		TokenString: tokenString,
		UserID:      userID,
	}), nil
}

func (as *authService) issueTokens(ctx context.Context, userID uuid.UUID) (*TokenPair, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   userID.String(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(as.accessTTL)),
	}
	access, err := jwt.NewWithClaims(as.signingMethod, claims).SignedString(as.jwtSecret)
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}

	refresh := uuid.NewString() + uuid.NewString()
	record := &types.UserToken{
		ID:           uuid.New(),
		UserID:       userID,
		RefreshToken: refresh,
		ExpiresAt:    now.Add(as.refreshTTL),
		CreatedAt:    now,
	}
	if _, err := as.tokenRepo.Create(ctx, nil, record); err != nil {
		return nil, fmt.Errorf("store refresh token: %w", err)
	}

	return &TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

func (as *authService) parseAccessToken(tokenString string) (uuid.UUID, error) {
	token, err := jwt.ParseWithClaims(tokenString, &jwt.RegisteredClaims{}, func(t *jwt.Token) (any, error) {
		if t.Method != as.signingMethod {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return as.jwtSecret, nil
	})
	if err != nil || !token.Valid {
		return uuid.Nil, ErrInvalidToken
	}
	claims, ok := token.Claims.(*jwt.RegisteredClaims)
	if !ok || claims.Subject == "" {
		return uuid.Nil, ErrInvalidToken
	}
	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return uuid.Nil, ErrInvalidToken
	}
	return userID, nil
}
