package docstore

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/TheMichaelB/formsync/internal/events"
	"github.com/TheMichaelB/formsync/internal/models"
)

// MongoStore implements Store on MongoDB.
type MongoStore struct {
	client *mongo.Client
	db     *mongo.Database
	logger *events.Logger
}

// NewMongoStore connects, pings and ensures the identity indexes exist.
func NewMongoStore(ctx context.Context, uri, database string, logger *events.Logger) (*MongoStore, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	s := &MongoStore{
		client: client,
		db:     client.Database(database),
		logger: logger.WithFields(map[string]interface{}{"component": "mongo_docstore", "database": database}),
	}

	if err := s.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}

	return s, nil
}

func (s *MongoStore) ensureIndexes(ctx context.Context) error {
	identities := map[string]string{
		models.CollectionForms:       models.FieldXMLFormID,
		models.CollectionSubmissions: models.FieldInstanceID,
	}

	for collection, field := range identities {
		_, err := s.db.Collection(collection).Indexes().CreateOne(ctx, mongo.IndexModel{
			Keys:    bson.D{{Key: field, Value: 1}, {Key: models.FieldProjectID, Value: 1}},
			Options: options.Index().SetUnique(true),
		})
		if err != nil {
			return fmt.Errorf("create index on %s: %w", collection, err)
		}
	}
	return nil
}

func toBSON(filter Filter) bson.M {
	m := make(bson.M, len(filter))
	for k, v := range filter {
		m[k] = v
	}
	return m
}

// Upsert sets doc's fields on the document matching filter, inserting if needed.
// Filter fields are never overwritten, so the stored identity stays equal to
// the filter whatever type the remote used for it.
func (s *MongoStore) Upsert(ctx context.Context, collection string, filter Filter, doc models.Document) error {
	if err := checkCollection(collection); err != nil {
		return err
	}

	set := bson.M{}
	for k, v := range doc {
		if _, ok := filter[k]; ok || k == "_id" {
			continue
		}
		set[k] = v
	}

	_, err := s.db.Collection(collection).UpdateOne(ctx,
		toBSON(filter),
		bson.M{"$set": set},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return &models.StorageError{Op: "upsert " + collection, Err: err}
	}
	return nil
}

// Get returns the document matching filter without its _id.
func (s *MongoStore) Get(ctx context.Context, collection string, filter Filter) (models.Document, error) {
	if err := checkCollection(collection); err != nil {
		return nil, err
	}

	var raw bson.M
	err := s.db.Collection(collection).FindOne(ctx, toBSON(filter)).Decode(&raw)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("%s %s: %w", collection, filter.key(), models.ErrNotFound)
	}
	if err != nil {
		return nil, &models.StorageError{Op: "find " + collection, Err: err}
	}

	delete(raw, "_id")
	return models.Document(raw), nil
}

// Count returns the number of documents in collection.
func (s *MongoStore) Count(ctx context.Context, collection string) (int, error) {
	if err := checkCollection(collection); err != nil {
		return 0, err
	}

	n, err := s.db.Collection(collection).CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, &models.StorageError{Op: "count " + collection, Err: err}
	}
	return int(n), nil
}

// Close disconnects the client.
func (s *MongoStore) Close() error {
	return s.client.Disconnect(context.Background())
}
