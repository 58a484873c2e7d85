package services

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"parley/auth"
	"parley/domain"
	"parley/errors"
	"parley/repositories"
)

type IAuthService interface {
	Register(req auth.RegisterRequest) (Token, domain.UserProfile, error)
	Login(req auth.LoginRequest) (Token, domain.UserProfile, error)
	Me(userID string) (domain.UserProfile, error)
	SetDark(userID string, dark bool) error
	SetPicture(userID string, picture string) error
}

type Token string

func (t Token) String() string {
	return string(t)
}

type AuthService struct {
	users  repositories.IUserRepository
	tokens *auth.TokenManager
}

func NewAuthService(users repositories.IUserRepository, tokens *auth.TokenManager) IAuthService {
	return &AuthService{users: users, tokens: tokens}
}

func (s *AuthService) Register(req auth.RegisterRequest) (Token, domain.UserProfile, error) {
	// 1. Validate business rules before any expensive cryptographic work
	if err := auth.ValidateRegister(req); err != nil {
		return "", domain.UserProfile{}, err
	}

	// 2. Hash the password here so the repository never sees plain text
	hashedPassword, err := auth.HashPassword(req.Password)
	if err != nil {
		return "", domain.UserProfile{}, fmt.Errorf("hashing failed: %w", err)
	}

	user := domain.User{
		ID:           uuid.NewString(),
		Username:     req.Username,
		Name:         req.Name,
		Email:        req.Email,
		PasswordHash: hashedPassword,
		LastOnline:   time.Now().UTC(),
		CreatedAt:    time.Now().UTC(),
	}

	// 3. Persist, propagating ErrUserAlreadyExists on a taken handle
	if err := s.users.CreateUser(user); err != nil {
		return "", domain.UserProfile{}, err
	}

	// 4. Hand out the initial session token
	token, err := s.tokens.Generate(user.ID)
	if err != nil {
		return "", domain.UserProfile{}, fmt.Errorf("token generation failed: %w", err)
	}

	return Token(token), user.Profile(), nil
}

func (s *AuthService) Login(req auth.LoginRequest) (Token, domain.UserProfile, error) {
	if err := auth.ValidateLogin(req); err != nil {
		return "", domain.UserProfile{}, err
	}

	// Generic error on every failure path to prevent user enumeration
	user, err := s.users.GetUserByUsername(req.Username)
	if err != nil {
		return "", domain.UserProfile{}, errors.ErrInvalidCredentials
	}

	match, err := auth.ComparePassword(req.Password, user.PasswordHash)
	if err != nil || !match {
		return "", domain.UserProfile{}, errors.ErrInvalidCredentials
	}

	token, err := s.tokens.Generate(user.ID)
	if err != nil {
		return "", domain.UserProfile{}, fmt.Errorf("token generation failed: %w", err)
	}

	return Token(token), user.Profile(), nil
}

func (s *AuthService) Me(userID string) (domain.UserProfile, error) {
	user, err := s.users.GetUser(userID)
	if err != nil {
		return domain.UserProfile{}, errors.NotFoundf("user %s", userID)
	}
	return user.Profile(), nil
}

func (s *AuthService) SetDark(userID string, dark bool) error {
	return s.users.SetDark(userID, dark)
}

func (s *AuthService) SetPicture(userID string, picture string) error {
	if picture == "" {
		return errors.Validationf("picture is empty")
	}
	return s.users.SetPicture(userID, picture)
}
