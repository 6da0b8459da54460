// Package auth issues access tokens for stored accounts and verifies them
// on behalf of the contract service.
package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"options-dashboard/interfaces"
)

// Authenticator implements interfaces.IdentityVerifier over a UserStore
type Authenticator struct {
	users  interfaces.UserStore
	issuer *TokenIssuer
	logger *logrus.Logger
}

// NewAuthenticator creates an authenticator
func NewAuthenticator(users interfaces.UserStore, issuer *TokenIssuer, log *logrus.Logger) *Authenticator {
	if log == nil {
		log = logrus.New()
	}
	return &Authenticator{
		users:  users,
		issuer: issuer,
		logger: log,
	}
}

// HashPassword hashes a plain password for storage
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// Login checks credentials and returns a fresh access token
func (a *Authenticator) Login(ctx context.Context, username, password string) (string, error) {
	user, err := a.users.FindUser(ctx, username)
	if errors.Is(err, interfaces.ErrUserNotFound) {
		a.logger.WithField("username", username).Info("Login for unknown user")
		return "", &interfaces.AuthError{Reason: "incorrect username or password"}
	}
	if err != nil {
		return "", err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.HashedPassword), []byte(password)); err != nil {
		a.logger.WithField("username", username).Info("Login with wrong password")
		return "", &interfaces.AuthError{Reason: "incorrect username or password"}
	}

	return a.issuer.Issue(user.Username)
}

// Verify resolves a bearer token to an active account
func (a *Authenticator) Verify(ctx context.Context, token string) (*interfaces.Identity, error) {
	if token == "" {
		return nil, &interfaces.AuthError{Reason: "missing bearer token"}
	}

	username, err := a.issuer.Parse(token)
	if err != nil {
		a.logger.WithError(err).Debug("Rejected access token")
		return nil, &interfaces.AuthError{Reason: "could not validate credentials"}
	}

	user, err := a.users.FindUser(ctx, username)
	if errors.Is(err, interfaces.ErrUserNotFound) {
		return nil, &interfaces.AuthError{Reason: "could not validate credentials"}
	}
	if err != nil {
		return nil, err
	}

	if user.Disabled {
		return nil, &interfaces.AuthError{Reason: "inactive user", Inactive: true}
	}

	return &interfaces.Identity{
		Username: user.Username,
		FullName: user.FullName,
		Email:    user.Email,
	}, nil
}
