package user

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

var ErrInvalidCredentials = errors.New("invalid email or password")

type Service struct {
	repo       Store
	jwtSecret  string
	tokenTTL   time.Duration
	bcryptCost int
}

type MyJWTClaims struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
	jwt.RegisteredClaims
}

func NewService(repo Store, secret string, tokenTTL time.Duration) *Service {
	return &Service{
		repo:       repo,
		jwtSecret:  secret,
		tokenTTL:   tokenTTL,
		bcryptCost: bcrypt.DefaultCost,
	}
}

// WithBcryptCost lowers the hashing cost, tests use bcrypt.MinCost.
func (s *Service) WithBcryptCost(cost int) *Service {
	s.bcryptCost = cost
	return s
}

// Register creates the account and logs it in straight away.
func (s *Service) Register(ctx context.Context, req *RegisterRequest) (*AuthResponse, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if _, err := s.repo.GetUserByEmail(ctx, email); err == nil {
		return nil, ErrUserExists
	} else if !errors.Is(err, ErrUserNotFound) {
		return nil, err
	}

	hashedPwd, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.bcryptCost)
	if err != nil {
		return nil, err
	}

	u, err := s.repo.CreateUser(ctx, &User{
		Name:     strings.TrimSpace(req.Name),
		Email:    email,
		Password: string(hashedPwd),
	})
	if err != nil {
		return nil, err
	}

	token, err := s.issueToken(u)
	if err != nil {
		return nil, err
	}
	return &AuthResponse{
		Message:  "User registered successfully",
		Token:    token,
		Username: u.Name,
	}, nil
}

func (s *Service) Login(ctx context.Context, req *LoginRequest) (*AuthResponse, error) {
	u, err := s.repo.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(req.Email)))
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(req.Password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	token, err := s.issueToken(u)
	if err != nil {
		return nil, err
	}
	return &AuthResponse{
		Message:  "Login successful",
		Token:    token,
		Username: u.Name,
		User:     &UserInfo{ID: u.ID, Email: u.Email},
	}, nil
}

func (s *Service) issueToken(u *User) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, MyJWTClaims{
		ID:   u.ID,
		Name: u.Name,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "go-collab",
			Subject:   strconv.Itoa(u.ID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
		},
	})

	ss, err := token.SignedString([]byte(s.jwtSecret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return ss, nil
}

// ValidateToken returns the user id and display name carried by the token.
func (s *Service) ValidateToken(tokenString string) (int, string, error) {
	claims := &MyJWTClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte(s.jwtSecret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))

	if err != nil {
		return 0, "", err
	}
	if !token.Valid {
		return 0, "", jwt.ErrTokenSignatureInvalid
	}

	return claims.ID, claims.Name, nil
}

func (s *Service) SearchUsers(ctx context.Context, query string) ([]User, error) {
	return s.repo.SearchUsers(ctx, strings.TrimSpace(query))
}
