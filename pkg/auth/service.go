// Package auth implements account registration, login and password reset on
// top of the ledger's user store. Free-trial signups are gated on an email
// whitelist and receive a signup token bonus.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/asystentai/backend/pkg/email"
	"github.com/asystentai/backend/pkg/jwt"
	"github.com/asystentai/backend/pkg/ledger"
)

const minPasswordLength = 8

// Config holds authentication settings.
type Config struct {
	SigningKey           string        `env:"JWT_SIGNING_KEY,required"`
	SignupBonusTokens    int64         `env:"SIGNUP_BONUS_TOKENS" envDefault:"10000"`
	AccessTokenTTL       time.Duration `env:"ACCESS_TOKEN_TTL" envDefault:"24h"`
	RegistrationTokenTTL time.Duration `env:"REGISTRATION_TOKEN_TTL" envDefault:"168h"`
	ResetTokenTTL        time.Duration `env:"RESET_TOKEN_TTL" envDefault:"1h"`
	ResetBaseURL         string        `env:"PASSWORD_RESET_BASE_URL" envDefault:"https://app.asystent.ai/reset-password"`
}

// CompanyDetails carries the billing data of a company account.
type CompanyDetails struct {
	CompanyName     string `json:"company_name"`
	ContactEmail    string `json:"contact_email"`
	Street          string `json:"street"`
	StreetNumber    string `json:"street_number"`
	ApartmentNumber string `json:"apartment_number"`
	City            string `json:"city"`
	PostalCode      string `json:"postal_code"`
	TaxID           string `json:"tax_id"`
}

// RegisterRequest is a new account. Company is nil for individual accounts.
type RegisterRequest struct {
	Email    string          `json:"email"`
	Password string          `json:"password"`
	Name     string          `json:"name"`
	Company  *CompanyDetails `json:"company,omitempty"`
}

// Service owns the account lifecycle up to the point where billing takes
// over: registration, login, password reset and trial gating.
type Service struct {
	users     ledger.UserStore
	ledger    *ledger.Service
	tokens    *jwt.Service
	whitelist WhitelistStore
	sender    email.EmailSender
	cfg       Config
	logger    *slog.Logger
}

// Option configures optional service collaborators.
type Option func(*Service)

// WithEmailSender enables password reset emails.
func WithEmailSender(s email.EmailSender) Option {
	return func(svc *Service) { svc.sender = s }
}

// WithLogger sets the service logger.
func WithLogger(l *slog.Logger) Option {
	return func(svc *Service) {
		if l != nil {
			svc.logger = l
		}
	}
}

// NewService creates the auth service. Panics on nil required dependencies to
// fail fast during initialization.
func NewService(users ledger.UserStore, ledgerSvc *ledger.Service, whitelist WhitelistStore, cfg Config, opts ...Option) (*Service, error) {
	if users == nil {
		panic("auth: UserStore is required")
	}
	if ledgerSvc == nil {
		panic("auth: ledger service is required")
	}
	if whitelist == nil {
		panic("auth: WhitelistStore is required")
	}

	tokens, err := jwt.New(cfg.SigningKey)
	if err != nil {
		return nil, err
	}
	if cfg.SignupBonusTokens <= 0 {
		cfg.SignupBonusTokens = 10000
	}
	if cfg.AccessTokenTTL <= 0 {
		cfg.AccessTokenTTL = 24 * time.Hour
	}
	if cfg.RegistrationTokenTTL <= 0 {
		cfg.RegistrationTokenTTL = 7 * 24 * time.Hour
	}
	if cfg.ResetTokenTTL <= 0 {
		cfg.ResetTokenTTL = time.Hour
	}

	svc := &Service{
		users:     users,
		ledger:    ledgerSvc,
		tokens:    tokens,
		whitelist: whitelist,
		cfg:       cfg,
		logger:    slog.Default(),
	}

	for _, opt := range opts {
		opt(svc)
	}

	return svc, nil
}

// Tokens exposes the token service for the HTTP auth middleware.
func (s *Service) Tokens() *jwt.Service {
	return s.tokens
}

// Register creates an account and returns it with a week-long access token,
// so a fresh signup does not have to log in separately.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*ledger.User, string, error) {
	user, err := s.createUser(ctx, req)
	if err != nil {
		return nil, "", err
	}

	token, err := s.accessToken(user, s.cfg.RegistrationTokenTTL)
	if err != nil {
		return nil, "", err
	}
	return user, token, nil
}

// RegisterFreeTrial creates a whitelisted account and credits the signup
// bonus. The whitelist entry is consumed later, when the trial subscription
// activates.
func (s *Service) RegisterFreeTrial(ctx context.Context, req RegisterRequest) (*ledger.User, string, error) {
	ok, err := s.whitelist.Contains(ctx, req.Email)
	if err != nil {
		return nil, "", err
	}
	if !ok {
		return nil, "", ErrNotWhitelisted
	}

	user, err := s.createUser(ctx, req)
	if err != nil {
		return nil, "", err
	}

	if _, err := s.ledger.Credit(ctx, user.ID, s.cfg.SignupBonusTokens, "Signup bonus"); err != nil {
		s.logger.ErrorContext(ctx, "failed to credit signup bonus",
			slog.String("user_id", user.ID.String()),
			slog.Any("error", err))
	} else if refreshed, err := s.users.FindByID(ctx, user.ID); err == nil {
		user = refreshed
	}

	token, err := s.accessToken(user, s.cfg.RegistrationTokenTTL)
	if err != nil {
		return nil, "", err
	}
	return user, token, nil
}

// Login verifies the password and returns a 24h access token.
func (s *Service) Login(ctx context.Context, emailAddr, password string) (*ledger.User, string, error) {
	user, err := s.users.FindByEmail(ctx, emailAddr)
	if err != nil {
		if errors.Is(err, ledger.ErrUserNotFound) {
			return nil, "", ErrInvalidCredentials
		}
		return nil, "", err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, "", ErrInvalidCredentials
	}

	token, err := s.accessToken(user, s.cfg.AccessTokenTTL)
	if err != nil {
		return nil, "", err
	}
	return user, token, nil
}

// RequestPasswordReset emails a short-lived reset link. Unknown emails are
// acknowledged without an email so the endpoint does not reveal which
// addresses have accounts.
func (s *Service) RequestPasswordReset(ctx context.Context, emailAddr string) error {
	user, err := s.users.FindByEmail(ctx, emailAddr)
	if err != nil {
		if errors.Is(err, ledger.ErrUserNotFound) {
			return nil
		}
		return err
	}
	if s.sender == nil {
		s.logger.WarnContext(ctx, "password reset requested but no email sender configured",
			slog.String("user_id", user.ID.String()))
		return nil
	}

	token, err := s.tokens.Generate(jwt.Claims{
		UserID:  user.ID.String(),
		Email:   user.Email,
		Purpose: jwt.PurposePasswordReset,
	}, s.cfg.ResetTokenTTL)
	if err != nil {
		return err
	}

	link := s.cfg.ResetBaseURL + "?token=" + token
	return s.sender.SendEmail(ctx, email.SendEmailParams{
		SendTo:  user.Email,
		Subject: "Reset your password",
		BodyHTML: fmt.Sprintf(
			`<p>Hello %s,</p><p>Click <a href="%s">here</a> to choose a new password. The link expires in %s.</p>`,
			user.Name, link, s.cfg.ResetTokenTTL),
		Tag: "password-reset",
	})
}

// ResetPassword verifies the reset token and stores the new password hash.
func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) error {
	claims, err := s.tokens.Parse(token)
	if err != nil || claims.Purpose != jwt.PurposePasswordReset {
		return ErrInvalidResetToken
	}

	userID, err := uuid.Parse(claims.UserID)
	if err != nil {
		return ErrInvalidResetToken
	}

	if _, err := s.users.FindByID(ctx, userID); err != nil {
		return ErrInvalidResetToken
	}

	hash, err := hashPassword(newPassword)
	if err != nil {
		return err
	}

	// The hash is written through the ledger's locked update so a balance
	// change landing between the fetch and the save is never overwritten.
	_, err = s.ledger.Update(ctx, userID, func(u *ledger.User) {
		u.PasswordHash = hash
	})
	return err
}

func (s *Service) createUser(ctx context.Context, req RegisterRequest) (*ledger.User, error) {
	hash, err := hashPassword(req.Password)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	user := &ledger.User{
		ID:           uuid.New(),
		Email:        normalizeEmail(req.Email),
		Name:         req.Name,
		PasswordHash: hash,
		AccountType:  ledger.AccountTypeIndividual,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if req.Company != nil {
		user.AccountType = ledger.AccountTypeCompany
		user.CompanyName = req.Company.CompanyName
		user.ContactEmail = req.Company.ContactEmail
		user.Street = req.Company.Street
		user.StreetNumber = req.Company.StreetNumber
		user.ApartmentNumber = req.Company.ApartmentNumber
		user.City = req.Company.City
		user.PostalCode = req.Company.PostalCode
		user.TaxID = req.Company.TaxID
	}

	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

func (s *Service) accessToken(user *ledger.User, ttl time.Duration) (string, error) {
	return s.tokens.Generate(jwt.Claims{
		UserID:  user.ID.String(),
		Email:   user.Email,
		Purpose: jwt.PurposeAccess,
	}, ttl)
}

func hashPassword(password string) (string, error) {
	if len(password) < minPasswordLength {
		return "", ErrWeakPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
