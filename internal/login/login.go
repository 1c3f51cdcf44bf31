// Package login turns a third-party sign-in credential into an app token.
//
// A request passes the following gates in order, and the first one that
// fails decides the response:
//
//	validate -> resolve Apple subject -> registered -> approved ->
//	profile exists -> provider verifies credential -> token issued
package login

import (
	"context"
	"errors"
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/jmerrifield20/fellows/internal/apierr"
	"github.com/jmerrifield20/fellows/internal/identity"
	"github.com/jmerrifield20/fellows/internal/media"
	"github.com/jmerrifield20/fellows/internal/tokens"
	"github.com/jmerrifield20/fellows/internal/users"
	"go.uber.org/zap"
)

// Request is the login body sent by the mobile clients.
type Request struct {
	Email        string `json:"email"`
	AppleID      string `json:"appleId"`
	Token        string `json:"token"`
	AuthProvider string `json:"authProvider"`
}

// Validate checks field presence. AuthProvider must already be upper-cased.
func (r Request) Validate() error {
	apple := r.AuthProvider == string(identity.ProviderApple)
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email,
			validation.When(!apple, validation.Required),
			is.EmailFormat,
		),
		validation.Field(&r.AppleID,
			validation.When(apple && r.Email == "", validation.Required.Error("Either email or appleId is required.")),
		),
		validation.Field(&r.Token, validation.Required),
		validation.Field(&r.AuthProvider,
			validation.Required,
			validation.In(
				string(identity.ProviderGoogle),
				string(identity.ProviderApple),
				string(identity.ProviderWeChat),
				string(identity.ProviderMF),
			).Error(fmt.Sprintf("%q is not a valid choice.", r.AuthProvider)),
		),
	)
}

// Result is a successful login.
type Result struct {
	AccountID int64
	Email     string
	Provider  identity.Provider
	Token     *tokens.Token
}

type accountLookup interface {
	LookupAccount(ctx context.Context, email string) (*users.Account, error)
	LookupProfile(ctx context.Context, accountID int64) (*users.Profile, error)
	SetPictureIfEmpty(ctx context.Context, accountID int64, ref string) (bool, error)
}

type appleResolver interface {
	Resolve(ctx context.Context, email, subject string) (string, error)
	Link(ctx context.Context, subject, email string) error
}

type tokenIssuer interface {
	IssueOrGet(ctx context.Context, accountID int64) (*tokens.Token, error)
}

// Service runs the login flow.
type Service struct {
	accounts  accountLookup
	verifiers identity.Registry
	apple     appleResolver
	tokens    tokenIssuer
	pictures  media.PictureSaver
	logger    *zap.Logger
}

// NewService creates a login Service. pictures may be nil to skip picture
// persistence.
func NewService(
	accounts accountLookup,
	verifiers identity.Registry,
	apple appleResolver,
	issuer tokenIssuer,
	pictures media.PictureSaver,
	logger *zap.Logger,
) *Service {
	if pictures == nil {
		pictures = media.NewDiscardSaver(logger)
	}
	return &Service{
		accounts:  accounts,
		verifiers: verifiers,
		apple:     apple,
		tokens:    issuer,
		pictures:  pictures,
		logger:    logger,
	}
}

// Login authenticates req and returns the caller's token. Functional
// failures are returned as *apierr.Error or *apierr.ValidationError.
func (s *Service) Login(ctx context.Context, req Request) (*Result, error) {
	provider, _ := identity.ParseProvider(req.AuthProvider)
	req.AuthProvider = string(provider)
	req.Email = users.NormalizeEmail(req.Email)

	if err := apierr.FromValidation(req.Validate()); err != nil {
		return nil, err
	}

	emailAddr := req.Email
	if provider == identity.ProviderApple {
		resolved, err := s.apple.Resolve(ctx, req.Email, req.AppleID)
		if err != nil {
			if errors.Is(err, identity.ErrUnresolved) {
				return nil, apierr.InvalidAppleUser
			}
			return nil, fmt.Errorf("resolve apple user: %w", err)
		}
		emailAddr = resolved
	}

	account, err := s.accounts.LookupAccount(ctx, emailAddr)
	if err != nil {
		if errors.Is(err, users.ErrNotFound) {
			return nil, apierr.UserNotRegistered
		}
		return nil, fmt.Errorf("lookup account: %w", err)
	}
	if !account.IsActive {
		return nil, apierr.AccountNotApproved
	}

	profile, err := s.accounts.LookupProfile(ctx, account.ID)
	if err != nil {
		if errors.Is(err, users.ErrNotFound) {
			return nil, apierr.ProfileDoesNotExist
		}
		return nil, fmt.Errorf("lookup profile: %w", err)
	}

	verifier, err := s.verifiers.Verifier(provider)
	if err != nil {
		return nil, err
	}
	verified, err := verifier.Verify(ctx, identity.Claim{Email: account.Email, Subject: req.AppleID}, req.Token)
	if err != nil {
		var perr *identity.ProviderError
		switch {
		case errors.Is(err, identity.ErrClaimMismatch):
			return nil, apierr.Unauthorized
		case errors.As(err, &perr):
			s.logger.Info("provider rejected credential",
				zap.String("provider", string(perr.Provider)),
				zap.String("reason", perr.Reason),
				zap.Error(perr.Err),
			)
			return nil, apierr.InvalidProviderToken.WithDetails(map[string]any{
				"provider": string(perr.Provider),
				"reason":   perr.Reason,
			})
		default:
			return nil, fmt.Errorf("verify credential: %w", err)
		}
	}

	if provider == identity.ProviderApple {
		if err := s.bindAppleSubject(ctx, account.Email, verified); err != nil {
			return nil, err
		}
	}

	if verified.PictureURL != "" && profile.Picture == "" {
		s.savePicture(ctx, account.ID, verified.PictureURL)
	}

	tok, err := s.tokens.IssueOrGet(ctx, account.ID)
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}

	s.logger.Info("login succeeded",
		zap.Int64("account_id", account.ID),
		zap.String("provider", string(provider)),
	)
	return &Result{AccountID: account.ID, Email: account.Email, Provider: provider, Token: tok}, nil
}

// bindAppleSubject records the subject's link when Apple vouched for the
// email. A subject-only identity must already be linked to the account.
func (s *Service) bindAppleSubject(ctx context.Context, accountEmail string, verified *identity.VerifiedIdentity) error {
	if verified.Email == "" {
		linked, err := s.apple.Resolve(ctx, "", verified.Subject)
		if err != nil {
			if errors.Is(err, identity.ErrUnresolved) {
				return apierr.Unauthorized
			}
			return fmt.Errorf("resolve apple subject: %w", err)
		}
		if linked != accountEmail {
			s.logger.Warn("apple subject linked to another account", zap.String("subject", verified.Subject))
			return apierr.Unauthorized
		}
		return nil
	}
	if err := s.apple.Link(ctx, verified.Subject, accountEmail); err != nil {
		s.logger.Warn("failed to link apple subject", zap.String("subject", verified.Subject), zap.Error(err))
	}
	return nil
}

// savePicture stores the provider picture. Failures never fail the login.
func (s *Service) savePicture(ctx context.Context, accountID int64, url string) {
	ref, err := s.pictures.SaveFromURL(ctx, accountID, url)
	if err != nil {
		s.logger.Warn("failed to save profile picture", zap.Int64("account_id", accountID), zap.Error(err))
		return
	}
	if ref == "" {
		return
	}
	if _, err := s.accounts.SetPictureIfEmpty(ctx, accountID, ref); err != nil {
		s.logger.Warn("failed to record profile picture", zap.Int64("account_id", accountID), zap.Error(err))
	}
}
