package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/230701390/feedr/internal/auth"
	"github.com/230701390/feedr/internal/config"
	"github.com/230701390/feedr/internal/feederr"
	"github.com/230701390/feedr/internal/geo"
	"github.com/230701390/feedr/internal/models"
	"github.com/230701390/feedr/internal/store"
)

// ErrEmailExists is returned when an attempt is made to use an email that already exists.
var ErrEmailExists = errors.New("email already in use by another account")

// RegisterInput carries a signup request.
type RegisterInput struct {
	Name      string
	Email     string
	Mobile    string
	Password  string
	Role      models.Role
	AdminCode string
	Address   *models.Address
	Location  *geo.Coordinates
}

// ProfileUpdateInput carries the editable profile fields. Nil fields are
// left unchanged.
type ProfileUpdateInput struct {
	Name     *string
	Mobile   *string
	Address  *models.Address
	Location *geo.Coordinates
}

// IUserService defines the interface for user-related operations.
// This allows for easier mocking in tests.
type IUserService interface {
	Register(ctx context.Context, input RegisterInput) (*models.User, error)
	Authenticate(ctx context.Context, email, password string) (*models.User, error)
	FindByID(ctx context.Context, userID uuid.UUID) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	UpdateProfile(ctx context.Context, userID uuid.UUID, input ProfileUpdateInput) (*models.User, error)
	ListUsers(ctx context.Context) ([]models.User, error)
}

// userService implements IUserService.
type userService struct {
	store store.Store
	cfg   *config.Config
	mu    sync.Mutex
}

// NewUserService creates a new UserService.
func NewUserService(st store.Store, cfg *config.Config) IUserService {
	return &userService{store: st, cfg: cfg}
}

// Register creates a new account. Admin signups must present the configured
// registration code. Donors start with zero points so their score shows up
// on the dashboard immediately.
func (s *userService) Register(ctx context.Context, input RegisterInput) (*models.User, error) {
	email := strings.ToLower(strings.TrimSpace(input.Email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, fmt.Errorf("%w: a valid email is required", feederr.ErrValidation)
	}
	if strings.TrimSpace(input.Name) == "" {
		return nil, fmt.Errorf("%w: name is required", feederr.ErrValidation)
	}
	if !models.ValidRole(input.Role) {
		return nil, fmt.Errorf("%w: unknown role %q", feederr.ErrValidation, input.Role)
	}
	if err := auth.ValidatePassword(input.Password); err != nil {
		return nil, err
	}
	if input.Address != nil && input.Address.Pincode != "" {
		if err := auth.ValidatePincode(input.Address.Pincode); err != nil {
			return nil, err
		}
	}
	if input.Role == models.RoleAdmin {
		if s.cfg.AdminRegistrationCode == "" || input.AdminCode != s.cfg.AdminRegistrationCode {
			return nil, fmt.Errorf("%w: admin registration requires a valid code", feederr.ErrForbidden)
		}
	}

	hash, err := auth.HashPassword(input.Password)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	users, err := s.store.LoadUsers(ctx)
	if err != nil {
		return nil, err
	}
	for _, u := range users {
		if strings.EqualFold(u.Email, email) {
			return nil, ErrEmailExists
		}
	}

	now := time.Now().UTC()
	user := models.User{
		Base:         models.NewBase(),
		Name:         strings.TrimSpace(input.Name),
		Email:        email,
		Mobile:       strings.TrimSpace(input.Mobile),
		PasswordHash: hash,
		Role:         input.Role,
		Address:      input.Address,
		Location:     input.Location,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if input.Role == models.RoleDonor {
		zero := 0
		user.Points = &zero
	}

	if err := s.store.SaveUsers(ctx, append(users, user)); err != nil {
		return nil, err
	}
	return &user, nil
}

// Authenticate checks the credentials and returns the matching user. The
// same error covers an unknown email and a wrong password, so the endpoint
// does not leak which addresses are registered.
func (s *userService) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	users, err := s.store.LoadUsers(ctx)
	if err != nil {
		return nil, err
	}
	email = strings.ToLower(strings.TrimSpace(email))
	for i := range users {
		if strings.EqualFold(users[i].Email, email) {
			if !auth.CheckPasswordHash(password, users[i].PasswordHash) {
				return nil, feederr.ErrInvalidCredentials
			}
			return &users[i], nil
		}
	}
	return nil, feederr.ErrInvalidCredentials
}

// FindByID looks a user up by ID.
func (s *userService) FindByID(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	users, err := s.store.LoadUsers(ctx)
	if err != nil {
		return nil, err
	}
	for i := range users {
		if users[i].ID == userID {
			return &users[i], nil
		}
	}
	return nil, fmt.Errorf("%w: user %s", feederr.ErrNotFound, userID)
}

// FindByEmail looks a user up by email, case-insensitive.
func (s *userService) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	users, err := s.store.LoadUsers(ctx)
	if err != nil {
		return nil, err
	}
	for i := range users {
		if strings.EqualFold(users[i].Email, email) {
			return &users[i], nil
		}
	}
	return nil, fmt.Errorf("%w: user %s", feederr.ErrNotFound, email)
}

// UpdateProfile applies the non-nil fields of input to the user's profile.
func (s *userService) UpdateProfile(ctx context.Context, userID uuid.UUID, input ProfileUpdateInput) (*models.User, error) {
	if input.Address != nil && input.Address.Pincode != "" {
		if err := auth.ValidatePincode(input.Address.Pincode); err != nil {
			return nil, err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	users, err := s.store.LoadUsers(ctx)
	if err != nil {
		return nil, err
	}
	idx := -1
	for i := range users {
		if users[i].ID == userID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, fmt.Errorf("%w: user %s", feederr.ErrNotFound, userID)
	}

	if input.Name != nil {
		if strings.TrimSpace(*input.Name) == "" {
			return nil, fmt.Errorf("%w: name cannot be blank", feederr.ErrValidation)
		}
		users[idx].Name = strings.TrimSpace(*input.Name)
	}
	if input.Mobile != nil {
		users[idx].Mobile = strings.TrimSpace(*input.Mobile)
	}
	if input.Address != nil {
		users[idx].Address = input.Address
	}
	if input.Location != nil {
		users[idx].Location = input.Location
	}
	users[idx].UpdatedAt = time.Now().UTC()

	if err := s.store.SaveUsers(ctx, users); err != nil {
		return nil, err
	}
	updated := users[idx]
	return &updated, nil
}

// ListUsers returns every account. Admin dashboard only.
func (s *userService) ListUsers(ctx context.Context) ([]models.User, error) {
	return s.store.LoadUsers(ctx)
}
