package store

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/230701390/feedr/internal/feederr"
	"github.com/230701390/feedr/internal/models"
)

const (
	listingsCollection = "listings"
	usersCollection    = "users"
)

// ConnectDB initializes and returns a MongoDB client and database instance.
func ConnectDB(uri, dbName string) (*mongo.Client, *mongo.Database, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	clientOptions := options.Client().ApplyURI(uri)
	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	// Ping the primary node
	ctxPing, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelPing()
	if err := client.Ping(ctxPing, readpref.Primary()); err != nil {
		// Disconnect if ping fails
		_ = client.Disconnect(context.Background())
		return nil, nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	db := client.Database(dbName)
	fmt.Println("Successfully connected to MongoDB!")

	return client, db, nil
}

// DisconnectDB closes the MongoDB client connection.
func DisconnectDB(client *mongo.Client) error {
	if client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := client.Disconnect(ctx); err != nil {
		return fmt.Errorf("failed to disconnect MongoDB: %w", err)
	}
	fmt.Println("MongoDB connection closed.")
	return nil
}

// MongoStore implements Store backed by MongoDB collections, one document per
// entity. Saves replace the entire collection to honor the read/replace
// contract.
type MongoStore struct {
	db *mongo.Database
}

// NewMongoStore creates a MongoStore over the given database.
func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{db: db}
}

// LoadListings reads the entire listings collection.
func (s *MongoStore) LoadListings(ctx context.Context) ([]models.FoodListing, error) {
	var listings []models.FoodListing
	if err := s.loadAll(ctx, listingsCollection, &listings); err != nil {
		return nil, err
	}
	return listings, nil
}

// SaveListings replaces the entire listings collection.
func (s *MongoStore) SaveListings(ctx context.Context, listings []models.FoodListing) error {
	docs := make([]interface{}, len(listings))
	for i := range listings {
		docs[i] = listings[i]
	}
	return s.replaceAll(ctx, listingsCollection, docs)
}

// LoadUsers reads the entire users collection.
func (s *MongoStore) LoadUsers(ctx context.Context) ([]models.User, error) {
	var users []models.User
	if err := s.loadAll(ctx, usersCollection, &users); err != nil {
		return nil, err
	}
	return users, nil
}

// SaveUsers replaces the entire users collection.
func (s *MongoStore) SaveUsers(ctx context.Context, users []models.User) error {
	docs := make([]interface{}, len(users))
	for i := range users {
		docs[i] = users[i]
	}
	return s.replaceAll(ctx, usersCollection, docs)
}

func (s *MongoStore) loadAll(ctx context.Context, name string, out interface{}) error {
	cursor, err := s.db.Collection(name).Find(ctx, bson.M{})
	if err != nil {
		return fmt.Errorf("%w: reading %s: %v", feederr.ErrPersistence, name, err)
	}
	defer cursor.Close(ctx)

	if err := cursor.All(ctx, out); err != nil {
		return fmt.Errorf("%w: decoding %s: %v", feederr.ErrPersistence, name, err)
	}
	return nil
}

// replaceAll writes docs inside a single transaction where the deployment
// supports one, keeping the delete+insert pair atomic.
func (s *MongoStore) replaceAll(ctx context.Context, name string, docs []interface{}) error {
	coll := s.db.Collection(name)

	replace := func(sc mongo.SessionContext) (interface{}, error) {
		if _, err := coll.DeleteMany(sc, bson.M{}); err != nil {
			return nil, err
		}
		if len(docs) > 0 {
			if _, err := coll.InsertMany(sc, docs); err != nil {
				return nil, err
			}
		}
		return nil, nil
	}

	session, err := s.db.Client().StartSession()
	if err != nil {
		// Standalone deployments have no sessions; fall back to the
		// unwrapped delete+insert pair.
		if _, derr := coll.DeleteMany(ctx, bson.M{}); derr != nil {
			return fmt.Errorf("%w: replacing %s: %v", feederr.ErrPersistence, name, derr)
		}
		if len(docs) > 0 {
			if _, ierr := coll.InsertMany(ctx, docs); ierr != nil {
				return fmt.Errorf("%w: replacing %s: %v", feederr.ErrPersistence, name, ierr)
			}
		}
		return nil
	}
	defer session.EndSession(ctx)

	if _, err := session.WithTransaction(ctx, replace); err != nil {
		return fmt.Errorf("%w: replacing %s: %v", feederr.ErrPersistence, name, err)
	}
	return nil
}
