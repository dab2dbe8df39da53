package auth

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// ErrInvalidCredentials is returned for a wrong operator password.
var ErrInvalidCredentials = errors.New("invalid credentials")

// ErrLoginDisabled is returned when no operator password hash is configured.
var ErrLoginDisabled = errors.New("operator login is disabled")

// HashPassword returns the bcrypt hash to place in auth.operator_password_hash.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// PasswordLogin exchanges the shared operator password for a token.
type PasswordLogin struct {
	hash   []byte
	tokens *TokenIssuer
}

// NewPasswordLogin creates a PasswordLogin. An empty hash disables login.
func NewPasswordLogin(hash string, tokens *TokenIssuer) *PasswordLogin {
	return &PasswordLogin{hash: []byte(hash), tokens: tokens}
}

// Login checks password and issues an operator token for subject.
func (p *PasswordLogin) Login(subject, password string) (string, error) {
	if len(p.hash) == 0 {
		return "", ErrLoginDisabled
	}
	if err := bcrypt.CompareHashAndPassword(p.hash, []byte(password)); err != nil {
		return "", ErrInvalidCredentials
	}
	if subject == "" {
		subject = RoleOperator
	}
	return p.tokens.Issue(subject)
}
