// Package auth is the identity collaborator: it registers accounts,
// verifies credentials and issues the opaque {id, name} pair the
// signaling core consumes. Accounts live in memory only; persistence
// is out of scope for this service.
package auth

import (
	"errors"
	"strings"
	"sync"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"

	"github.com/dway/meetup/internal/domain"
)

var (
	ErrEmailTaken         = errors.New("an account with this email already exists")
	ErrInvalidInput       = errors.New("not all fields have been entered")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

type account struct {
	id    string
	email string
	name  string
	hash  []byte
}

type Service struct {
	mu      sync.RWMutex
	byEmail map[string]*account
	secret  []byte
}

func NewService(secret string) *Service {
	return &Service{
		byEmail: make(map[string]*account),
		secret:  []byte(secret),
	}
}

func (s *Service) Register(email, password, displayName string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" || displayName == "" {
		return ErrInvalidInput
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byEmail[email]; ok {
		return ErrEmailTaken
	}
	s.byEmail[email] = &account{
		id:    uuid.NewString(),
		email: email,
		name:  displayName,
		hash:  hash,
	}
	log.Info().Str("module", "auth").Str("email", email).Msg("account registered")
	return nil
}

// Login verifies credentials and returns the identity plus a signed
// session token.
func (s *Service) Login(email, password string) (domain.Identity, string, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	s.mu.RLock()
	acc, ok := s.byEmail[email]
	s.mu.RUnlock()
	if !ok {
		return domain.Identity{}, "", ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(acc.hash, []byte(password)); err != nil {
		return domain.Identity{}, "", ErrInvalidCredentials
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"id": acc.id,
	})
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return domain.Identity{}, "", err
	}

	return domain.Identity{ID: acc.id, Name: acc.name}, signed, nil
}

// Verify parses a session token and returns the account id it carries.
func (s *Service) Verify(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return s.secret, nil
	})
	if err != nil {
		return "", err
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", jwt.ErrTokenInvalidClaims
	}
	id, _ := claims["id"].(string)
	if id == "" {
		return "", jwt.ErrTokenInvalidClaims
	}
	return id, nil
}
