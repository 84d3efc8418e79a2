package mongodb

import (
	"context"
	"fmt"
	"time"

	"github.com/pilab-dev/shadow-oauth/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

var _ domain.TokenRepository = (*TokenRepository)(nil)

// TokenRepository stores access and refresh token records in separate
// collections keyed by jti. There are no TTL indexes: access token records
// must outlive their refresh tokens, so the purger removes both.
type TokenRepository struct {
	access  *mongo.Collection
	refresh *mongo.Collection
}

func NewTokenRepository(db *mongo.Database) *TokenRepository {
	return &TokenRepository{
		access:  db.Collection(AccessCollection),
		refresh: db.Collection(RefreshCollection),
	}
}

func (r *TokenRepository) ensureIndexes(ctx context.Context) error {
	_, err := r.access.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "client_id", Value: 1}}},
		{Keys: bson.D{{Key: "user_id", Value: 1}}},
		{Keys: bson.D{{Key: "expires_at", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("failed to create access token indexes: %w", err)
	}

	_, err = r.refresh.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "access_token_id", Value: 1}}},
		{Keys: bson.D{{Key: "expires_at", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("failed to create refresh token indexes: %w", err)
	}

	return nil
}

func (r *TokenRepository) CreateAccessToken(ctx context.Context, token *domain.AccessToken) error {
	if _, err := r.access.InsertOne(ctx, token); err != nil {
		return duplicate(err, "access token", token.ID)
	}

	return nil
}

func (r *TokenRepository) GetAccessToken(ctx context.Context, id string) (*domain.AccessToken, error) {
	var t domain.AccessToken
	if err := r.access.FindOne(ctx, bson.M{"_id": id}).Decode(&t); err != nil {
		return nil, notFound(err, "access token", id)
	}

	return &t, nil
}

func (r *TokenRepository) RevokeAccessToken(ctx context.Context, id string, at time.Time) error {
	return revoke(ctx, r.access, "access token", id, at, false)
}

func (r *TokenRepository) CreateRefreshToken(ctx context.Context, token *domain.RefreshToken) error {
	if _, err := r.refresh.InsertOne(ctx, token); err != nil {
		return duplicate(err, "refresh token", token.ID)
	}

	return nil
}

func (r *TokenRepository) GetRefreshToken(ctx context.Context, id string) (*domain.RefreshToken, error) {
	var t domain.RefreshToken
	if err := r.refresh.FindOne(ctx, bson.M{"_id": id}).Decode(&t); err != nil {
		return nil, notFound(err, "refresh token", id)
	}

	return &t, nil
}

func (r *TokenRepository) ConsumeRefreshToken(ctx context.Context, id string, at time.Time) error {
	return revoke(ctx, r.refresh, "refresh token", id, at, true)
}

func (r *TokenRepository) RevokeRefreshToken(ctx context.Context, id string, at time.Time) error {
	return revoke(ctx, r.refresh, "refresh token", id, at, false)
}

func (r *TokenRepository) DeleteExpiredTokens(ctx context.Context, accessBefore, refreshBefore time.Time) (int64, error) {
	refresh, err := r.refresh.DeleteMany(ctx, bson.M{"expires_at": bson.M{"$lt": refreshBefore}})
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired refresh tokens: %w", err)
	}

	access, err := r.access.DeleteMany(ctx, bson.M{"expires_at": bson.M{"$lt": accessBefore}})
	if err != nil {
		return refresh.DeletedCount, fmt.Errorf("failed to delete expired access tokens: %w", err)
	}

	return refresh.DeletedCount + access.DeletedCount, nil
}

// revoke sets revoked_at if it is unset. With exclusive set, a record that
// was already revoked yields domain.ErrConflict.
func revoke(ctx context.Context, coll *mongo.Collection, what, id string, at time.Time, exclusive bool) error {
	filter := bson.M{"_id": id, "revoked_at": bson.M{"$exists": false}}

	result, err := coll.UpdateOne(ctx, filter, bson.M{"$set": bson.M{"revoked_at": at}})
	if err != nil {
		return fmt.Errorf("failed to revoke %s %s: %w", what, id, err)
	}
	if result.MatchedCount > 0 {
		return nil
	}

	if err := coll.FindOne(ctx, bson.M{"_id": id}).Err(); err != nil {
		return notFound(err, what, id)
	}
	if exclusive {
		return fmt.Errorf("%s %s already consumed: %w", what, id, domain.ErrConflict)
	}

	return nil
}
