// Package auth проверяет учётные данные администратора.
package auth

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/vladislavdragonenkov/canteen/internal/domain"
)

// ErrNoPassword — администратор настроен без пароля и без хеша.
var ErrNoPassword = errors.New("admin password or password hash is required")

// Authenticator хранит логин и bcrypt-хеш пароля администратора.
type Authenticator struct {
	user string
	hash []byte
}

// New создаёт Authenticator. Если hash пуст, хеш считается из password.
func New(user, password, hash string) (*Authenticator, error) {
	user = strings.TrimSpace(user)
	if user == "" {
		return nil, errors.New("admin user is required")
	}

	if hash != "" {
		if _, err := bcrypt.Cost([]byte(hash)); err != nil {
			return nil, fmt.Errorf("parse admin password hash: %w", err)
		}
		return &Authenticator{user: user, hash: []byte(hash)}, nil
	}
	if password == "" {
		return nil, ErrNoPassword
	}

	generated, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash admin password: %w", err)
	}
	return &Authenticator{user: user, hash: generated}, nil
}

// Verify возвращает ErrInvalidCredentials при неверном логине или пароле.
// Хеш сверяется всегда, чтобы время ответа не выдавало верный логин.
func (a *Authenticator) Verify(user, password string) error {
	userOK := subtle.ConstantTimeCompare([]byte(user), []byte(a.user)) == 1
	hashErr := bcrypt.CompareHashAndPassword(a.hash, []byte(password))
	if !userOK || hashErr != nil {
		return domain.ErrInvalidCredentials
	}
	return nil
}

// User возвращает логин администратора.
func (a *Authenticator) User() string {
	return a.user
}
