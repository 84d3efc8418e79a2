package mongodb

import (
	"context"
	"fmt"

	"github.com/pilab-dev/shadow-oauth/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var (
	_ domain.ClientRepository = (*ClientRepository)(nil)
	_ domain.ScopeRepository  = (*ScopeRepository)(nil)
)

// ClientRepository stores OAuth clients. The client ID is the document _id.
type ClientRepository struct {
	coll *mongo.Collection
}

func NewClientRepository(db *mongo.Database) *ClientRepository {
	return &ClientRepository{coll: db.Collection(ClientsCollection)}
}

func (r *ClientRepository) ensureIndexes(ctx context.Context) error {
	_, err := r.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "name", Value: 1}}},
		{Keys: bson.D{{Key: "created_at", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("failed to create client indexes: %w", err)
	}

	return nil
}

func (r *ClientRepository) CreateClient(ctx context.Context, c *domain.Client) error {
	if _, err := r.coll.InsertOne(ctx, c); err != nil {
		return duplicate(err, "client", c.ID)
	}

	return nil
}

func (r *ClientRepository) GetClient(ctx context.Context, clientID string) (*domain.Client, error) {
	var c domain.Client
	if err := r.coll.FindOne(ctx, bson.M{"_id": clientID}).Decode(&c); err != nil {
		return nil, notFound(err, "client", clientID)
	}

	return &c, nil
}

func (r *ClientRepository) UpdateClient(ctx context.Context, c *domain.Client) error {
	result, err := r.coll.ReplaceOne(ctx, bson.M{"_id": c.ID}, c)
	if err != nil {
		return fmt.Errorf("failed to update client %s: %w", c.ID, err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("client %s: %w", c.ID, domain.ErrNotFound)
	}

	return nil
}

func (r *ClientRepository) DeleteClient(ctx context.Context, clientID string) error {
	result, err := r.coll.DeleteOne(ctx, bson.M{"_id": clientID})
	if err != nil {
		return fmt.Errorf("failed to delete client %s: %w", clientID, err)
	}
	if result.DeletedCount == 0 {
		return fmt.Errorf("client %s: %w", clientID, domain.ErrNotFound)
	}

	return nil
}

func (r *ClientRepository) ListClients(ctx context.Context) ([]*domain.Client, error) {
	cursor, err := r.coll.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to list clients: %w", err)
	}
	defer cursor.Close(ctx)

	clients := []*domain.Client{}
	if err := cursor.All(ctx, &clients); err != nil {
		return nil, fmt.Errorf("failed to decode clients: %w", err)
	}

	return clients, nil
}

// ScopeRepository stores the scope registry. The scope name is the document
// _id.
type ScopeRepository struct {
	coll *mongo.Collection
}

func NewScopeRepository(db *mongo.Database) *ScopeRepository {
	return &ScopeRepository{coll: db.Collection(ScopesCollection)}
}

func (r *ScopeRepository) CreateScope(ctx context.Context, s *domain.Scope) error {
	if _, err := r.coll.InsertOne(ctx, s); err != nil {
		return duplicate(err, "scope", s.Name)
	}

	return nil
}

func (r *ScopeRepository) GetScope(ctx context.Context, name string) (*domain.Scope, error) {
	var s domain.Scope
	if err := r.coll.FindOne(ctx, bson.M{"_id": name}).Decode(&s); err != nil {
		return nil, notFound(err, "scope", name)
	}

	return &s, nil
}

func (r *ScopeRepository) ListScopes(ctx context.Context) ([]*domain.Scope, error) {
	cursor, err := r.coll.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to list scopes: %w", err)
	}
	defer cursor.Close(ctx)

	scopes := []*domain.Scope{}
	if err := cursor.All(ctx, &scopes); err != nil {
		return nil, fmt.Errorf("failed to decode scopes: %w", err)
	}

	return scopes, nil
}

func (r *ScopeRepository) DeleteScope(ctx context.Context, name string) error {
	result, err := r.coll.DeleteOne(ctx, bson.M{"_id": name})
	if err != nil {
		return fmt.Errorf("failed to delete scope %s: %w", name, err)
	}
	if result.DeletedCount == 0 {
		return fmt.Errorf("scope %s: %w", name, domain.ErrNotFound)
	}

	return nil
}
