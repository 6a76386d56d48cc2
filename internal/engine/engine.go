package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/230701390/feedr/internal/config"
	"github.com/230701390/feedr/internal/feederr"
	"github.com/230701390/feedr/internal/geo"
	"github.com/230701390/feedr/internal/models"
	"github.com/230701390/feedr/internal/store"
)

// IEngine defines the interface for listing lifecycle operations.
type IEngine interface {
	Listings(ctx context.Context) ([]models.FoodListing, error)
	Users(ctx context.Context) ([]models.User, error)
	CreateListing(ctx context.Context, input CreateListingInput, donorID uuid.UUID) (*models.FoodListing, error)
	ClaimListing(ctx context.Context, foodID, receiverID uuid.UUID) (*models.FoodListing, *models.User, error)
	DeleteListing(ctx context.Context, foodID, requesterID uuid.UUID) error
	UpdateListingImage(ctx context.Context, foodID uuid.UUID, imageURL string) error
	PruneExpired(ctx context.Context, retention time.Duration) (int, error)
	AdminStats(ctx context.Context) (Stats, error)
	Now() time.Time
}

// CreateListingInput carries the donor-supplied fields for a new listing.
// Address falls back to the donor's profile address when nil.
type CreateListingInput struct {
	Name        string           `json:"name"`
	Description string           `json:"description"`
	Quantity    int              `json:"quantity"`
	Unit        string           `json:"unit"`
	ExpiryHours int              `json:"expiry_hours"`
	ImageURL    string           `json:"image_url"`
	Location    *geo.Coordinates `json:"location,omitempty"`
	Address     *models.Address  `json:"address,omitempty"`
}

// Engine applies all lifecycle rules over the listing and user collections.
// Mutating operations serialize on an internal mutex and re-read state under
// it, so the first successful claim wins and later attempts observe it.
type Engine struct {
	store store.Store
	cfg   *config.Config
	now   func() time.Time
	mu    sync.Mutex
}

// NewEngine creates an Engine over the given store.
func NewEngine(st store.Store, cfg *config.Config) *Engine {
	return &Engine{store: st, cfg: cfg, now: time.Now}
}

// SetClock replaces the engine's clock. Tests use this to pin time; expiry
// classification never reads the wall clock directly.
func (e *Engine) SetClock(now func() time.Time) {
	e.now = now
}

// Now returns the engine's current time.
func (e *Engine) Now() time.Time {
	return e.now()
}

// Listings loads the full listing collection.
func (e *Engine) Listings(ctx context.Context) ([]models.FoodListing, error) {
	return e.store.LoadListings(ctx)
}

// Users loads the full user collection.
func (e *Engine) Users(ctx context.Context) ([]models.User, error) {
	return e.store.LoadUsers(ctx)
}

// CreateListing validates the input, constructs the listing, and credits the
// donor's points. The listing write and the points write are all-or-nothing:
// if the points cannot be committed the listing is rolled back.
func (e *Engine) CreateListing(ctx context.Context, input CreateListingInput, donorID uuid.UUID) (*models.FoodListing, error) {
	if input.Quantity < 1 {
		return nil, fmt.Errorf("%w: quantity must be at least 1", feederr.ErrValidation)
	}
	if len(strings.TrimSpace(input.Description)) < e.cfg.MinDescriptionLength {
		return nil, fmt.Errorf("%w: description must be at least %d characters", feederr.ErrValidation, e.cfg.MinDescriptionLength)
	}
	if strings.TrimSpace(input.ImageURL) == "" {
		return nil, fmt.Errorf("%w: an image of the food is required", feederr.ErrValidation)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	users, err := e.store.LoadUsers(ctx)
	if err != nil {
		return nil, err
	}
	donorIdx := findUser(users, donorID)
	if donorIdx < 0 {
		return nil, fmt.Errorf("%w: donor %s", feederr.ErrNotFound, donorID)
	}
	donor := users[donorIdx]

	address := input.Address
	if address == nil {
		address = donor.Address
	}
	if address == nil {
		return nil, fmt.Errorf("%w: a pickup address is required", feederr.ErrValidation)
	}

	unit := strings.TrimSpace(input.Unit)
	if unit == "" {
		unit = models.DefaultUnit
	}

	now := e.now()
	listing := models.FoodListing{
		Base:        models.NewBase(),
		Name:        input.Name,
		Description: input.Description,
		Quantity:    input.Quantity,
		Unit:        unit,
		CreatedAt:   now,
		ExpiresAt:   now.Add(time.Duration(clamp(input.ExpiryHours, e.cfg.MinExpiryHours, e.cfg.MaxExpiryHours)) * time.Hour),
		DonorID:     donor.ID,
		DonorName:   donor.Name,
		Location:    input.Location,
		Address:     *address,
		ImageURL:    input.ImageURL,
		IsClaimed:   false,
	}

	listings, err := e.store.LoadListings(ctx)
	if err != nil {
		return nil, err
	}
	original := listings
	updated := append(append([]models.FoodListing{}, listings...), listing)

	if err := e.store.SaveListings(ctx, updated); err != nil {
		return nil, err
	}

	users[donorIdx].AddPoints(e.cfg.PointsPerListing)
	if err := e.store.SaveUsers(ctx, users); err != nil {
		// Roll back the listing so the create is not half-committed.
		if rbErr := e.store.SaveListings(ctx, original); rbErr != nil {
			return nil, fmt.Errorf("points update failed (%v) and listing rollback failed: %w", err, rbErr)
		}
		return nil, err
	}

	return &listing, nil
}

// ClaimListing transitions a listing to claimed and credits the donor's
// points. Fails with ErrNotFound, ErrAlreadyClaimed, or ErrExpired; the
// claim-time classification here is the sole authority, regardless of what
// any browse view showed. The listing write and the points write are
// all-or-nothing.
func (e *Engine) ClaimListing(ctx context.Context, foodID, receiverID uuid.UUID) (*models.FoodListing, *models.User, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	listings, err := e.store.LoadListings(ctx)
	if err != nil {
		return nil, nil, err
	}
	idx := findListing(listings, foodID)
	if idx < 0 {
		return nil, nil, fmt.Errorf("%w: listing %s", feederr.ErrNotFound, foodID)
	}
	if listings[idx].IsClaimed {
		return nil, nil, feederr.ErrAlreadyClaimed
	}
	if Classify(listings[idx], e.now()) == StatusExpired {
		return nil, nil, feederr.ErrExpired
	}

	users, err := e.store.LoadUsers(ctx)
	if err != nil {
		return nil, nil, err
	}
	if findUser(users, receiverID) < 0 {
		return nil, nil, fmt.Errorf("%w: receiver %s", feederr.ErrNotFound, receiverID)
	}
	donorIdx := findUser(users, listings[idx].DonorID)
	if donorIdx < 0 {
		return nil, nil, fmt.Errorf("%w: donor %s", feederr.ErrNotFound, listings[idx].DonorID)
	}

	originalUsers := copyUsersForRollback(users)
	users[donorIdx].AddPoints(e.cfg.PointsPerClaim)
	if err := e.store.SaveUsers(ctx, users); err != nil {
		// Nothing written yet; the claim is simply not committed.
		return nil, nil, err
	}

	receiver := receiverID
	listings[idx].IsClaimed = true
	listings[idx].ClaimedBy = &receiver
	if err := e.store.SaveListings(ctx, listings); err != nil {
		// Points landed but the claim did not; undo the points so the
		// two collections stay consistent.
		if rbErr := e.store.SaveUsers(ctx, originalUsers); rbErr != nil {
			return nil, nil, fmt.Errorf("claim write failed (%v) and points rollback failed: %w", err, rbErr)
		}
		return nil, nil, err
	}

	claimed := listings[idx]
	donor := users[donorIdx]
	return &claimed, &donor, nil
}

// DeleteListing removes a listing owned by the requester. Ownership is the
// only guard: a claimed listing is still deletable by its donor.
func (e *Engine) DeleteListing(ctx context.Context, foodID, requesterID uuid.UUID) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	listings, err := e.store.LoadListings(ctx)
	if err != nil {
		return err
	}
	idx := findListing(listings, foodID)
	if idx < 0 {
		return fmt.Errorf("%w: listing %s", feederr.ErrNotFound, foodID)
	}
	if listings[idx].DonorID != requesterID {
		return fmt.Errorf("%w: only the donor may delete this listing", feederr.ErrForbidden)
	}

	remaining := append(listings[:idx:idx], listings[idx+1:]...)
	return e.store.SaveListings(ctx, remaining)
}

// UpdateListingImage replaces a listing's image URL. Used by the image
// processing pipeline once a normalized image has been stored.
func (e *Engine) UpdateListingImage(ctx context.Context, foodID uuid.UUID, imageURL string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	listings, err := e.store.LoadListings(ctx)
	if err != nil {
		return err
	}
	idx := findListing(listings, foodID)
	if idx < 0 {
		return fmt.Errorf("%w: listing %s", feederr.ErrNotFound, foodID)
	}
	listings[idx].ImageURL = imageURL
	return e.store.SaveListings(ctx, listings)
}

// PruneExpired removes unclaimed listings whose expiry passed more than
// retention ago. Claimed listings are kept as history. Returns the number of
// listings removed.
func (e *Engine) PruneExpired(ctx context.Context, retention time.Duration) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	listings, err := e.store.LoadListings(ctx)
	if err != nil {
		return 0, err
	}

	cutoff := e.now().Add(-retention)
	kept := make([]models.FoodListing, 0, len(listings))
	for _, l := range listings {
		if !l.IsClaimed && l.ExpiresAt.Before(cutoff) {
			continue
		}
		kept = append(kept, l)
	}

	removed := len(listings) - len(kept)
	if removed == 0 {
		return 0, nil
	}
	if err := e.store.SaveListings(ctx, kept); err != nil {
		return 0, err
	}
	return removed, nil
}

// AdminStats loads both collections and computes the aggregate dashboard.
func (e *Engine) AdminStats(ctx context.Context) (Stats, error) {
	listings, err := e.store.LoadListings(ctx)
	if err != nil {
		return Stats{}, err
	}
	users, err := e.store.LoadUsers(ctx)
	if err != nil {
		return Stats{}, err
	}
	return DashboardStats(listings, users, e.now()), nil
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func findListing(listings []models.FoodListing, id uuid.UUID) int {
	for i := range listings {
		if listings[i].ID == id {
			return i
		}
	}
	return -1
}

func findUser(users []models.User, id uuid.UUID) int {
	for i := range users {
		if users[i].ID == id {
			return i
		}
	}
	return -1
}

func copyUsersForRollback(users []models.User) []models.User {
	out := make([]models.User, len(users))
	copy(out, users)
	for i := range out {
		if out[i].Points != nil {
			p := *out[i].Points
			out[i].Points = &p
		}
	}
	return out
}

// IsLifecycleError reports whether err belongs to the lifecycle taxonomy, as
// opposed to an environment failure.
func IsLifecycleError(err error) bool {
	return errors.Is(err, feederr.ErrValidation) ||
		errors.Is(err, feederr.ErrNotFound) ||
		errors.Is(err, feederr.ErrAlreadyClaimed) ||
		errors.Is(err, feederr.ErrExpired) ||
		errors.Is(err, feederr.ErrForbidden)
}
