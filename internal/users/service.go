package users

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/jmerrifield20/fellows/internal/apierr"
	"github.com/jmerrifield20/fellows/internal/email"
	"go.uber.org/zap"
)

// userRepo is the storage interface consumed by Service.
type userRepo interface {
	CreateWithProfile(ctx context.Context, a *Account, p *Profile) error
	GetAccountByEmail(ctx context.Context, email string) (*Account, error)
	GetAccountByID(ctx context.Context, id int64) (*Account, error)
	ListPending(ctx context.Context) ([]*Account, error)
	SetActive(ctx context.Context, email string, active bool) error
	GetProfile(ctx context.Context, accountID int64) (*Profile, error)
	ListActiveProfiles(ctx context.Context, search string) ([]*Profile, error)
	UpdateProfile(ctx context.Context, accountID int64, u ProfileUpdate) error
	ExistingSDGCodes(ctx context.Context, codes []int) ([]int, error)
	ListSDGs(ctx context.Context) ([]SDG, error)
	SetPictureIfEmpty(ctx context.Context, accountID int64, ref string) (bool, error)
	AddPoints(ctx context.Context, accountID int64, n int) (int, error)
}

// Service implements registration, approval and profile management.
type Service struct {
	repo     userRepo
	mailer   email.EmailSender
	managers []string
	logger   *zap.Logger
}

// NewService creates a new Service. managers receive a notice for every new
// registration; an empty list disables notices.
func NewService(repo userRepo, mailer email.EmailSender, managers []string, logger *zap.Logger) *Service {
	return &Service{repo: repo, mailer: mailer, managers: managers, logger: logger}
}

// Register creates an inactive account with its profile and notifies the
// managers. Validation failures are returned as *apierr.ValidationError.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*Profile, error) {
	in.User.Email = NormalizeEmail(in.User.Email)
	if err := apierr.FromValidation(in.Validate()); err != nil {
		return nil, err
	}
	sdgs, err := s.checkSDGs(ctx, in.SDGs)
	if err != nil {
		return nil, err
	}

	a := &Account{Email: in.User.Email}
	p := &Profile{
		Name:                in.Name,
		IsJuniorFellow:      in.IsJuniorFellow,
		Campus:              in.Campus,
		Batch:               in.Batch,
		PhoneNumbers:        []PhoneNumber{},
		SocialMediaAccounts: []SocialMediaAccount{},
		SDGs:                sdgs,
	}
	if in.PhoneNumber != nil {
		p.PhoneNumbers = append(p.PhoneNumbers, *in.PhoneNumber)
	}

	if err := s.repo.CreateWithProfile(ctx, a, p); err != nil {
		if errors.Is(err, ErrDuplicateEmail) {
			return nil, &apierr.ValidationError{Fields: map[string]any{
				"user": map[string]any{"email": []string{"User with this email address already exists."}},
			}}
		}
		return nil, fmt.Errorf("create account: %w", err)
	}

	s.logger.Info("registration received", zap.Int64("account_id", a.ID), zap.String("email", a.Email))
	s.notifyManagers(ctx, p)
	return p, nil
}

// notifyManagers is best effort: failures are logged and never surface.
func (s *Service) notifyManagers(ctx context.Context, p *Profile) {
	if s.mailer == nil || len(s.managers) == 0 {
		return
	}
	subject, body := email.RegistrationNotice(p.Name, p.User.Email, p.Campus, p.Batch)
	for _, to := range s.managers {
		if err := s.mailer.Send(ctx, to, subject, body); err != nil {
			s.logger.Warn("notify manager",
				zap.String("manager", to),
				zap.Int64("account_id", p.ID),
				zap.Error(err),
			)
		}
	}
}

// CheckStatus reports whether the email is unknown, pending or approved.
func (s *Service) CheckStatus(ctx context.Context, emailAddr string) (RegistrationStatus, error) {
	q := StatusQuery{Email: NormalizeEmail(emailAddr)}
	if err := apierr.FromValidation(q.Validate()); err != nil {
		return StatusNotFound, err
	}
	a, err := s.repo.GetAccountByEmail(ctx, q.Email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return StatusNotFound, nil
		}
		return StatusNotFound, fmt.Errorf("lookup account: %w", err)
	}
	if a.IsActive {
		return StatusApproved, nil
	}
	return StatusPending, nil
}

// Approve activates the account with the given email.
func (s *Service) Approve(ctx context.Context, emailAddr string) error {
	if err := s.repo.SetActive(ctx, NormalizeEmail(emailAddr), true); err != nil {
		return err
	}
	s.logger.Info("account approved", zap.String("email", emailAddr))
	return nil
}

// ListPending returns accounts waiting for approval.
func (s *Service) ListPending(ctx context.Context) ([]*Account, error) {
	return s.repo.ListPending(ctx)
}

// LookupAccount returns the account for an email or ErrNotFound.
func (s *Service) LookupAccount(ctx context.Context, emailAddr string) (*Account, error) {
	return s.repo.GetAccountByEmail(ctx, NormalizeEmail(emailAddr))
}

// LookupProfile returns the account's profile or ErrNotFound.
func (s *Service) LookupProfile(ctx context.Context, accountID int64) (*Profile, error) {
	return s.repo.GetProfile(ctx, accountID)
}

// GetProfile returns the caller's own profile.
func (s *Service) GetProfile(ctx context.Context, accountID int64) (*Profile, error) {
	p, err := s.repo.GetProfile(ctx, accountID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, apierr.ProfileDoesNotExist.WithStatus(http.StatusNotFound)
		}
		return nil, fmt.Errorf("get profile: %w", err)
	}
	return p, nil
}

// GetProfileByID returns the profile of another active member.
func (s *Service) GetProfileByID(ctx context.Context, accountID int64) (*Profile, error) {
	a, err := s.repo.GetAccountByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, apierr.UserNotFound
		}
		return nil, fmt.Errorf("get account: %w", err)
	}
	if !a.IsActive {
		return nil, apierr.UserNotFound
	}
	p, err := s.repo.GetProfile(ctx, accountID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, apierr.UserNotFound
		}
		return nil, fmt.Errorf("get profile: %w", err)
	}
	return p, nil
}

// ListProfiles returns active members matching search on name or email.
func (s *Service) ListProfiles(ctx context.Context, search string) ([]*Profile, error) {
	out, err := s.repo.ListActiveProfiles(ctx, strings.TrimSpace(search))
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	if out == nil {
		out = []*Profile{}
	}
	return out, nil
}

// UpdateProfile applies a partial update and returns the stored profile.
func (s *Service) UpdateProfile(ctx context.Context, accountID int64, u ProfileUpdate) (*Profile, error) {
	if err := apierr.FromValidation(u.Validate()); err != nil {
		return nil, err
	}
	if u.SDGs != nil {
		codes, err := s.checkSDGs(ctx, u.SDGs)
		if err != nil {
			return nil, err
		}
		u.SDGs = codes
	}

	if err := s.repo.UpdateProfile(ctx, accountID, u); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, apierr.ProfileDoesNotExist.WithStatus(http.StatusNotFound)
		}
		return nil, fmt.Errorf("update profile: %w", err)
	}
	return s.GetProfile(ctx, accountID)
}

// ListSDGs returns the development-goal catalog.
func (s *Service) ListSDGs(ctx context.Context) ([]SDG, error) {
	return s.repo.ListSDGs(ctx)
}

// SetPictureIfEmpty stores ref unless the profile already has a picture.
func (s *Service) SetPictureIfEmpty(ctx context.Context, accountID int64, ref string) (bool, error) {
	return s.repo.SetPictureIfEmpty(ctx, accountID, ref)
}

// GrantPoints credits n points to the member with the given email.
func (s *Service) GrantPoints(ctx context.Context, emailAddr string, n int) (int, error) {
	if n <= 0 {
		return 0, fmt.Errorf("points must be positive, got %d", n)
	}
	a, err := s.repo.GetAccountByEmail(ctx, NormalizeEmail(emailAddr))
	if err != nil {
		return 0, err
	}
	balance, err := s.repo.AddPoints(ctx, a.ID, n)
	if err != nil {
		return 0, err
	}
	s.logger.Info("points granted",
		zap.Int64("account_id", a.ID),
		zap.Int("points", n),
		zap.Int("balance", balance),
	)
	return balance, nil
}

// checkSDGs de-duplicates codes and verifies each exists in the catalog.
func (s *Service) checkSDGs(ctx context.Context, codes []int) ([]int, error) {
	if len(codes) == 0 {
		return []int{}, nil
	}
	seen := make(map[int]bool, len(codes))
	uniq := make([]int, 0, len(codes))
	for _, c := range codes {
		if !seen[c] {
			seen[c] = true
			uniq = append(uniq, c)
		}
	}

	existing, err := s.repo.ExistingSDGCodes(ctx, uniq)
	if err != nil {
		return nil, fmt.Errorf("check sdgs: %w", err)
	}
	known := make(map[int]bool, len(existing))
	for _, c := range existing {
		known[c] = true
	}
	var missing []string
	for _, c := range uniq {
		if !known[c] {
			missing = append(missing, fmt.Sprintf("Invalid pk \"%d\" - object does not exist.", c))
		}
	}
	if len(missing) > 0 {
		return nil, &apierr.ValidationError{Fields: map[string]any{"sdgs": missing}}
	}
	sort.Ints(uniq)
	return uniq, nil
}
