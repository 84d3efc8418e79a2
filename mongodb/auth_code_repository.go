package mongodb

import (
	"context"
	"fmt"
	"time"

	"github.com/pilab-dev/shadow-oauth/domain"
	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var _ domain.AuthCodeRepository = (*AuthCodeRepository)(nil)

// AuthCodeRepository stores authorization requests. State transitions are
// conditional UpdateOne calls; a zero MatchedCount means another caller won.
type AuthCodeRepository struct {
	coll *mongo.Collection
}

func NewAuthCodeRepository(db *mongo.Database) *AuthCodeRepository {
	return &AuthCodeRepository{coll: db.Collection(CodesCollection)}
}

func (r *AuthCodeRepository) ensureIndexes(ctx context.Context) error {
	_, err := r.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			// unbound requests carry no code
			Keys: bson.D{{Key: "code", Value: 1}},
			Options: options.Index().SetUnique(true).
				SetPartialFilterExpression(bson.M{"code": bson.M{"$exists": true}}),
		},
		{Keys: bson.D{{Key: "client_id", Value: 1}}},
		{Keys: bson.D{{Key: "expires_at", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("failed to create authorization code indexes: %w", err)
	}

	return nil
}

func (r *AuthCodeRepository) CreateAuthCode(ctx context.Context, code *domain.AuthCode) error {
	if _, err := r.coll.InsertOne(ctx, code); err != nil {
		return duplicate(err, "authorization code", code.ID)
	}

	return nil
}

func (r *AuthCodeRepository) GetAuthCode(ctx context.Context, id string) (*domain.AuthCode, error) {
	var code domain.AuthCode
	if err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&code); err != nil {
		return nil, notFound(err, "authorization code", id)
	}

	return &code, nil
}

func (r *AuthCodeRepository) GetAuthCodeByCode(ctx context.Context, clientID, value string) (*domain.AuthCode, error) {
	var code domain.AuthCode
	if err := r.coll.FindOne(ctx, bson.M{"client_id": clientID, "code": value}).Decode(&code); err != nil {
		return nil, notFound(err, "authorization code for client", clientID)
	}

	return &code, nil
}

func (r *AuthCodeRepository) BindAuthCode(ctx context.Context, id string, binding domain.AuthCodeBinding) error {
	set := bson.M{
		"user_id":  binding.UserID,
		"scope":    binding.Scope,
		"bound_at": binding.BoundAt,
	}
	if binding.Code != "" {
		set["code"] = binding.Code
	}

	filter := bson.M{
		"_id":          id,
		"bound_at":     bson.M{"$exists": false},
		"exchanged_at": bson.M{"$exists": false},
		"revoked_at":   bson.M{"$exists": false},
	}

	result, err := r.coll.UpdateOne(ctx, filter, bson.M{"$set": set})
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("authorization code value collision: %w", domain.ErrConflict)
		}
		return fmt.Errorf("failed to bind authorization code %s: %w", id, err)
	}
	if result.MatchedCount == 0 {
		return r.conflict(ctx, id, "already bound")
	}

	return nil
}

func (r *AuthCodeRepository) MarkAuthCodeExchanged(ctx context.Context, id string, at time.Time) error {
	filter := bson.M{
		"_id":          id,
		"exchanged_at": bson.M{"$exists": false},
		"revoked_at":   bson.M{"$exists": false},
	}

	result, err := r.coll.UpdateOne(ctx, filter, bson.M{"$set": bson.M{"exchanged_at": at}})
	if err != nil {
		return fmt.Errorf("failed to mark authorization code %s exchanged: %w", id, err)
	}
	if result.MatchedCount == 0 {
		return r.conflict(ctx, id, "already used")
	}

	log.Debug().Str("auth_code_id", id).Msg("Authorization code marked as exchanged")

	return nil
}

func (r *AuthCodeRepository) RevokeAuthCode(ctx context.Context, id string, at time.Time) error {
	filter := bson.M{"_id": id, "revoked_at": bson.M{"$exists": false}}

	result, err := r.coll.UpdateOne(ctx, filter, bson.M{"$set": bson.M{"revoked_at": at}})
	if err != nil {
		return fmt.Errorf("failed to revoke authorization code %s: %w", id, err)
	}
	if result.MatchedCount == 0 {
		// already revoked is fine, missing is not
		if _, err := r.GetAuthCode(ctx, id); err != nil {
			return err
		}
	}

	return nil
}

func (r *AuthCodeRepository) DeleteExpiredAuthCodes(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.coll.DeleteMany(ctx, bson.M{"expires_at": bson.M{"$lt": before}})
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired authorization codes: %w", err)
	}

	return result.DeletedCount, nil
}

// conflict tells a missing record apart from one in the wrong state after a
// conditional update matched nothing.
func (r *AuthCodeRepository) conflict(ctx context.Context, id, reason string) error {
	if _, err := r.GetAuthCode(ctx, id); err != nil {
		return err
	}

	return fmt.Errorf("authorization code %s %s: %w", id, reason, domain.ErrConflict)
}
