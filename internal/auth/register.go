package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/harrylevesque/stationbook/internal/models"
	"github.com/harrylevesque/stationbook/internal/storage"
	"github.com/harrylevesque/stationbook/internal/utils"
	"golang.org/x/crypto/bcrypt"
)

const (
	minPasswordLen = 8
	// bcrypt ignores input past 72 bytes.
	maxPasswordLen = 72
	maxFullNameLen = 120
)

// passwordCost is lowered by tests.
var passwordCost = bcrypt.DefaultCost

// SignupRequest is the data collected by the signup screen.
type SignupRequest struct {
	FullName string
	Email    string
	Password string
	Role     string
}

// AccountCreator persists a new account with its profile.
type AccountCreator interface {
	CreateAccount(ctx context.Context, account models.Account, profile models.Profile) error
}

// Validate checks the request and returns a *utils.CustomError describing the first problem.
func (req SignupRequest) Validate() error {
	if _, err := mail.ParseAddress(strings.TrimSpace(req.Email)); err != nil {
		return utils.New(http.StatusBadRequest, "a valid email address is required")
	}
	if len(req.Password) < minPasswordLen {
		return utils.New(http.StatusBadRequest, fmt.Sprintf("password must be at least %d characters", minPasswordLen))
	}
	if len(req.Password) > maxPasswordLen {
		return utils.New(http.StatusBadRequest, fmt.Sprintf("password must be at most %d bytes", maxPasswordLen))
	}
	if utf8.RuneCountInString(strings.TrimSpace(req.FullName)) > maxFullNameLen {
		return utils.New(http.StatusBadRequest, "name is too long")
	}
	if _, ok := models.ParseRole(req.Role); !ok {
		return utils.New(http.StatusBadRequest, "role must be user or owner")
	}
	return nil
}

// Register validates req and stores a new account plus profile.
func Register(ctx context.Context, store AccountCreator, req SignupRequest, now time.Time) (models.Account, error) {
	if err := req.Validate(); err != nil {
		return models.Account{}, err
	}
	role, _ := models.ParseRole(req.Role)
	hash, err := HashPassword(req.Password)
	if err != nil {
		return models.Account{}, fmt.Errorf("hash password: %w", err)
	}

	now = now.UTC()
	account := models.Account{
		ID:           uuid.NewString(),
		Email:        normalizeEmail(req.Email),
		PasswordHash: hash,
		CreatedAt:    now,
	}
	profile := models.Profile{
		ID:        account.ID,
		FullName:  strings.TrimSpace(req.FullName),
		Role:      role,
		UpdatedAt: now,
	}
	if err := store.CreateAccount(ctx, account, profile); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return models.Account{}, ErrAccountExists
		}
		return models.Account{}, fmt.Errorf("create account: %w", err)
	}
	return account, nil
}

// HashPassword hashes a password.
func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), passwordCost)
	return string(bytes), err
}

// CheckPasswordHash checks a password hash.
func CheckPasswordHash(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}

func normalizeEmail(email string) string {
	email = strings.TrimSpace(email)
	if addr, err := mail.ParseAddress(email); err == nil {
		email = addr.Address
	}
	return strings.ToLower(email)
}
