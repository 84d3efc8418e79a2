// Package mongodb persists clients, scopes, authorization codes and tokens in
// MongoDB.
package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pilab-dev/shadow-oauth/domain"
	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.opentelemetry.io/contrib/instrumentation/go.mongodb.org/mongo-driver/mongo/otelmongo"
)

const (
	ClientsCollection = "oauth_clients"
	ScopesCollection  = "oauth_scopes"
	CodesCollection   = "oauth_auth_codes"
	AccessCollection  = "oauth_access_tokens"
	RefreshCollection = "oauth_refresh_tokens"
)

// Store owns the MongoDB connection and the repositories built on it.
type Store struct {
	client *mongo.Client
	db     *mongo.Database

	Clients   *ClientRepository
	Scopes    *ScopeRepository
	AuthCodes *AuthCodeRepository
	Tokens    *TokenRepository
}

// Connect dials uri, verifies the connection and makes sure every collection
// has its indexes.
func Connect(ctx context.Context, uri, dbName string) (*Store, error) {
	if uri == "" || dbName == "" {
		return nil, errors.New("mongodb uri and database name must be provided")
	}

	log.Info().Str("database", dbName).Msg("Connecting to MongoDB")

	opts := options.Client().ApplyURI(uri).
		SetConnectTimeout(10 * time.Second).
		SetMonitor(otelmongo.NewMonitor())

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	s := NewStore(client.Database(dbName))
	s.client = client

	if err := s.EnsureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}

	return s, nil
}

// NewStore builds the repositories on an existing database handle.
func NewStore(db *mongo.Database) *Store {
	return &Store{
		db:        db,
		Clients:   NewClientRepository(db),
		Scopes:    NewScopeRepository(db),
		AuthCodes: NewAuthCodeRepository(db),
		Tokens:    NewTokenRepository(db),
	}
}

// EnsureIndexes creates the indexes of every collection. It is idempotent.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	for _, ensure := range []func(context.Context) error{
		s.Clients.ensureIndexes,
		s.AuthCodes.ensureIndexes,
		s.Tokens.ensureIndexes,
	} {
		if err := ensure(ctx); err != nil {
			return err
		}
	}

	return nil
}

// Ping checks the connection. Used by health checks.
func (s *Store) Ping(ctx context.Context) error {
	if s.client == nil {
		return errors.New("mongodb client is not connected")
	}

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	return s.client.Ping(ctx, readpref.Primary())
}

// Close disconnects the client.
func (s *Store) Close(ctx context.Context) error {
	if s.client == nil {
		return nil
	}

	log.Info().Msg("Closing MongoDB connection")

	return s.client.Disconnect(ctx)
}

// notFound maps mongo.ErrNoDocuments to domain.ErrNotFound.
func notFound(err error, what, id string) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return fmt.Errorf("%s %s: %w", what, id, domain.ErrNotFound)
	}

	return fmt.Errorf("failed to load %s %s: %w", what, id, err)
}

// duplicate maps duplicate key errors to domain.ErrConflict.
func duplicate(err error, what, id string) error {
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("%s %s: %w", what, id, domain.ErrConflict)
	}

	return fmt.Errorf("failed to store %s %s: %w", what, id, err)
}
