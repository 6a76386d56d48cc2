package handlers_test

import (
	"context"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/mock"

	"github.com/230701390/feedr/internal/config"
	"github.com/230701390/feedr/internal/engine"
	"github.com/230701390/feedr/internal/models"
	"github.com/230701390/feedr/internal/store"
)

// MockAsynqClient implements handlers.IAsynqClient
type MockAsynqClient struct {
	mock.Mock
}

func (m *MockAsynqClient) EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	args := m.Called(ctx, task, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*asynq.TaskInfo), args.Error(1)
}

// --- Shared fixtures ---

var handlerNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func handlerConfig() *config.Config {
	return &config.Config{
		JwtSecret:             "handler-test-secret",
		JwtTTL:                time.Hour,
		AdminRegistrationCode: "letmein",
		MinExpiryHours:        1,
		MaxExpiryHours:        5,
		PointsPerListing:      10,
		PointsPerClaim:        5,
		MinDescriptionLength:  10,
		DefaultMaxDistanceKm:  10,
	}
}

func newTestEngine(cfg *config.Config) (*engine.Engine, *store.MemoryStore) {
	st := store.NewMemoryStore()
	eng := engine.NewEngine(st, cfg)
	eng.SetClock(func() time.Time { return handlerNow })
	return eng, st
}

func seedDonor() models.User {
	zero := 0
	return models.User{
		Base:    models.NewBase(),
		Name:    "Asha",
		Email:   "asha@example.com",
		Role:    models.RoleDonor,
		Points:  &zero,
		Address: &models.Address{Street1: "14 Link Road", City: "Chennai", Pincode: "600042"},
	}
}

func seedReceiver() models.User {
	return models.User{
		Base:  models.NewBase(),
		Name:  "Ravi",
		Email: "ravi@example.com",
		Role:  models.RoleReceiver,
	}
}
