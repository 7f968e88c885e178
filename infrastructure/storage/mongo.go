package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/ahrav/go-consensus/internal/domain"
	"github.com/ahrav/go-consensus/internal/ports"
)

// Collection names used by MongoStore.
const (
	ModelsCollection    = "models"
	PromptsCollection   = "prompts"
	ResponsesCollection = "responses"
	GroupsCollection    = "consensus_groups"
)

// modelSort orders models by provider, then name, then slug.
var modelSort = bson.D{{Key: "provider", Value: 1}, {Key: "name", Value: 1}, {Key: "slug", Value: 1}}

// MongoStore persists models, prompts, responses and consensus groups in
// MongoDB, one collection each.
type MongoStore struct {
	models    *mongo.Collection
	prompts   *mongo.Collection
	responses *mongo.Collection
	groups    *mongo.Collection
	newID     func() string
}

var (
	_ ports.ModelRegistry   = (*MongoStore)(nil)
	_ ports.PersistenceSink = (*MongoStore)(nil)
)

// NewMongoStore creates a store on db.
func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{
		models:    db.Collection(ModelsCollection),
		prompts:   db.Collection(PromptsCollection),
		responses: db.Collection(ResponsesCollection),
		groups:    db.Collection(GroupsCollection),
		newID:     uuid.NewString,
	}
}

// ConnectMongo connects to uri, verifies the connection and returns a store
// on database. Callers disconnect the returned client.
func ConnectMongo(ctx context.Context, uri, database string) (*mongo.Client, *MongoStore, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, nil, fmt.Errorf("ping mongo: %w", err)
	}

	store := NewMongoStore(client.Database(database))
	if err := store.EnsureIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, nil, err
	}
	return client, store, nil
}

// EnsureIndexes creates the unique slug index and the prompt lookup indexes.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	if _, err := s.models.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "slug", Value: 1}},
		Options: options.Index().SetUnique(true),
	}); err != nil {
		return fmt.Errorf("create models index: %w", err)
	}

	byPrompt := mongo.IndexModel{Keys: bson.D{{Key: "prompt_id", Value: 1}}}
	if _, err := s.responses.Indexes().CreateOne(ctx, byPrompt); err != nil {
		return fmt.Errorf("create responses index: %w", err)
	}
	if _, err := s.groups.Indexes().CreateOne(ctx, byPrompt); err != nil {
		return fmt.Errorf("create groups index: %w", err)
	}
	return nil
}

// List returns every model ordered by provider, then name.
func (s *MongoStore) List(ctx context.Context) ([]domain.Model, error) {
	return s.findModels(ctx, bson.M{})
}

// Lookup returns the models whose IDs appear in ids in List order.
func (s *MongoStore) Lookup(ctx context.Context, ids []string) ([]domain.Model, error) {
	if len(ids) == 0 {
		return []domain.Model{}, nil
	}
	return s.findModels(ctx, bson.M{"_id": bson.M{"$in": ids}})
}

func (s *MongoStore) findModels(ctx context.Context, filter bson.M) ([]domain.Model, error) {
	cursor, err := s.models.Find(ctx, filter, options.Find().SetSort(modelSort))
	if err != nil {
		return nil, fmt.Errorf("find models: %w", err)
	}
	defer cursor.Close(ctx)

	models := make([]domain.Model, 0)
	if err := cursor.All(ctx, &models); err != nil {
		return nil, fmt.Errorf("decode models: %w", err)
	}
	return models, nil
}

// Upsert inserts or replaces models keyed by slug in one bulk write.
// Existing documents keep their _id.
func (s *MongoStore) Upsert(ctx context.Context, models []domain.Model) error {
	if len(models) == 0 {
		return nil
	}

	writes := make([]mongo.WriteModel, len(models))
	for i, m := range models {
		writes[i] = modelUpsert(m, s.newID)
	}

	if _, err := s.models.BulkWrite(ctx, writes, options.BulkWrite().SetOrdered(false)); err != nil {
		return fmt.Errorf("upsert models: %w", err)
	}
	return nil
}

// modelUpsert builds the write that inserts m or updates the document with
// the same slug.
func modelUpsert(m domain.Model, newID func() string) *mongo.UpdateOneModel {
	id := m.ID
	if id == "" {
		id = newID()
	}
	return mongo.NewUpdateOneModel().
		SetFilter(bson.M{"slug": m.Slug}).
		SetUpdate(bson.M{
			"$set": bson.M{
				"name":           m.Name,
				"provider":       m.Provider,
				"enabled":        m.Enabled,
				"context_length": m.ContextLength,
			},
			"$setOnInsert": bson.M{"_id": id},
		}).
		SetUpsert(true)
}

// SetEnabled toggles a model by ID and returns the updated document.
func (s *MongoStore) SetEnabled(ctx context.Context, id string, enabled bool) (domain.Model, error) {
	var m domain.Model
	err := s.models.FindOneAndUpdate(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"enabled": enabled}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&m)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.Model{}, domain.ErrModelNotFound
	}
	if err != nil {
		return domain.Model{}, fmt.Errorf("update model %s: %w", id, err)
	}
	return m, nil
}

// SavePrompt inserts a prompt document.
func (s *MongoStore) SavePrompt(ctx context.Context, prompt domain.Prompt) error {
	if _, err := s.prompts.InsertOne(ctx, prompt); err != nil {
		return ports.NewPersistenceError("prompt", "insert", err)
	}
	return nil
}

// SaveResponses inserts response documents.
func (s *MongoStore) SaveResponses(ctx context.Context, records []domain.ResponseRecord) error {
	if len(records) == 0 {
		return nil
	}
	docs := make([]any, len(records))
	for i, r := range records {
		docs[i] = r
	}
	if _, err := s.responses.InsertMany(ctx, docs); err != nil {
		return ports.NewPersistenceError("responses", "insert", err)
	}
	return nil
}

// SaveGroups inserts consensus group documents.
func (s *MongoStore) SaveGroups(ctx context.Context, records []domain.GroupRecord) error {
	if len(records) == 0 {
		return nil
	}
	docs := make([]any, len(records))
	for i, g := range records {
		docs[i] = g
	}
	if _, err := s.groups.InsertMany(ctx, docs); err != nil {
		return ports.NewPersistenceError("consensus_groups", "insert", err)
	}
	return nil
}
