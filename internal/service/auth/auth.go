package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pixelift/pixelift/internal/apperrors"
	"github.com/pixelift/pixelift/internal/models"
	"github.com/pixelift/pixelift/internal/repository"
	"github.com/pixelift/pixelift/internal/service/auth/tokenmanager"
)

// Interface to create or compare user password hashes
type PasswordHasher interface {
	// Generate Hash from password
	Hash(password string) (string, error)

	// Compare known hashedPassword and user provided password
	// Must be protected against timing attacks
	Compare(hashedPassword string, password string) error
}

type tokenManager interface {
	GeneratePair(ctx context.Context, user models.User) (models.TokenPair, error)
	UseRefresh(ctx context.Context, refresh string) (models.RefreshToken, error)
	ParseAccess(ctx context.Context, access string) (uuid.UUID, error)
}

type Config struct {
	// Secret key to sign user access token payload
	SecretKey string

	// Hasher to use during registration and login
	Hasher PasswordHasher

	// Access and refresh token lifetimes
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
}

type AuthService struct {
	token  tokenManager
	hasher PasswordHasher

	userRepo repository.UserRepo
}

func NewService(cfg Config, userRepo repository.UserRepo, refreshRepo repository.RefreshTokenRepo) (*AuthService, error) {
	hasher := cfg.Hasher
	if hasher == nil {
		hasher = DefaultHasher
	}

	if userRepo == nil || refreshRepo == nil {
		return nil, errors.New("repos must not be nil")
	}

	tm, err := tokenmanager.New(tokenmanager.Config{
		SecretKey:  cfg.SecretKey,
		AccessTTL:  cfg.AccessTokenTTL,
		RefreshTTL: cfg.RefreshTokenTTL,
	}, refreshRepo)
	if err != nil {
		return nil, fmt.Errorf("error while creating token manager. Err: %w", err)
	}

	return &AuthService{
		token:    tm,
		hasher:   hasher,
		userRepo: userRepo,
	}, nil
}

func (s *AuthService) Register(ctx context.Context, email string, name string, password string) (models.User, models.TokenPair, error) {
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return models.User{}, models.TokenPair{}, fmt.Errorf("can't use this as password. Err: %w", err)
	}

	user, err := s.userRepo.CreateUser(ctx, email, name, hash)
	if err != nil {
		return user, models.TokenPair{}, err
	}

	pair, err := s.token.GeneratePair(ctx, user)
	if err != nil {
		return user, pair, fmt.Errorf("token could not be generated. Err: %w", err)
	}

	return user, pair, nil
}

func (s *AuthService) Login(ctx context.Context, email string, password string) (models.User, models.TokenPair, error) {
	user, err := s.userRepo.GetUserByEmail(ctx, email)
	if err != nil {
		// Burn a compare anyway so absent and present users take the
		// same time to reject
		_ = s.hasher.Compare("$2a$10$0000000000000000000000000000000000000000000000000000", password)
		return user, models.TokenPair{}, apperrors.ErrUserNotFound
	}

	if err := s.hasher.Compare(user.HashedPassword, password); err != nil {
		return user, models.TokenPair{}, apperrors.ErrUserNotFound
	}

	pair, err := s.token.GeneratePair(ctx, user)
	if err != nil {
		return user, pair, fmt.Errorf("token could not be generated. Err: %w", err)
	}

	return user, pair, nil
}

func (s *AuthService) Refresh(ctx context.Context, refresh string) (models.TokenPair, error) {
	token, err := s.token.UseRefresh(ctx, refresh)
	if err != nil {
		return models.TokenPair{}, err
	}

	user, err := s.userRepo.GetUserByID(ctx, token.UserID)
	if err != nil {
		return models.TokenPair{}, err
	}

	return s.token.GeneratePair(ctx, user)
}

// Auth authenticates the request by its bearer access token
func (s *AuthService) Auth(ctx context.Context, r *http.Request) (models.User, error) {
	header := r.Header.Get("Authorization")
	token, found := strings.CutPrefix(header, "Bearer ")
	if !found || token == "" {
		return models.User{}, errors.New("no bearer token in request")
	}

	userID, err := s.token.ParseAccess(ctx, token)
	if err != nil {
		return models.User{}, err
	}

	return s.userRepo.GetUserByID(ctx, userID)
}

// SetTokenPairToRequest sets the access token to the request. Test helper.
func (s *AuthService) SetTokenPairToRequest(r *http.Request, pair models.TokenPair) {
	r.Header.Set("Authorization", "Bearer "+pair.Access.Value)
}
