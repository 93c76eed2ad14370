// Package auth gates admin actions behind a per browser session.
//
// Credentials come from configuration: either a plain name/password pair or a
// name plus bcrypt hash. Sessions live in memory only and are lost on restart.
package auth

import (
	"crypto/subtle"
	"errors"

	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrInvalidCredentials is returned when the provided credentials are invalid.
	ErrInvalidCredentials = errors.New("wrong credentials")
	// ErrSessionNotFound is returned when a session token is unknown.
	ErrSessionNotFound = errors.New("session not found")
	// ErrNoCredentials is returned when no admin credentials are configured.
	ErrNoCredentials = errors.New("no admin credentials configured")
)

// Authenticator decides whether a name/password pair may administer the gallery.
type Authenticator interface {
	Authenticate(name, password string) bool
}

// StaticCredentials accepts exactly one name/password pair.
type StaticCredentials struct {
	Name     string
	Password string
}

func (c StaticCredentials) Authenticate(name, password string) bool {
	nameOK := subtle.ConstantTimeCompare([]byte(name), []byte(c.Name)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(password), []byte(c.Password)) == 1
	return nameOK && passOK && c.Name != ""
}

// HashedCredentials accepts one name whose password matches a bcrypt hash.
type HashedCredentials struct {
	Name string
	Hash []byte
}

func (c HashedCredentials) Authenticate(name, password string) bool {
	if c.Name == "" || subtle.ConstantTimeCompare([]byte(name), []byte(c.Name)) != 1 {
		return false
	}
	return bcrypt.CompareHashAndPassword(c.Hash, []byte(password)) == nil
}

// HashPassword returns a bcrypt hash suitable for HashedCredentials.
func HashPassword(password string) ([]byte, error) {
	return bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
}

// NewAuthenticator prefers a bcrypt hash when one is given.
func NewAuthenticator(name, password, passwordHash string) (Authenticator, error) {
	if name == "" {
		return nil, ErrNoCredentials
	}
	if passwordHash != "" {
		if _, err := bcrypt.Cost([]byte(passwordHash)); err != nil {
			return nil, err
		}
		return HashedCredentials{Name: name, Hash: []byte(passwordHash)}, nil
	}
	if password == "" {
		return nil, ErrNoCredentials
	}
	return StaticCredentials{Name: name, Password: password}, nil
}
