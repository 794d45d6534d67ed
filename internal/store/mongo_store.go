package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/AltanReisoglu/UCP-AGENT/internal/domain"
)

// ConnectMongo dials MongoDB and verifies the connection.
func ConnectMongo(ctx context.Context, uri, database string) (*mongo.Database, error) {
	clientOpts := options.Client().
		ApplyURI(uri).
		SetConnectTimeout(10 * time.Second).
		SetServerSelectionTimeout(5 * time.Second).
		SetMaxPoolSize(100)

	client, err := mongo.Connect(clientOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	return client.Database(database), nil
}

// sessionDoc wraps the JSON-encoded session so the Mongo schema stays
// stable under session shape changes. expire_at drives a TTL index and
// is only set once a session turns terminal.
type sessionDoc struct {
	ID       string     `bson:"_id"`
	Version  int64      `bson:"version"`
	Data     []byte     `bson:"data"`
	ExpireAt *time.Time `bson:"expire_at,omitempty"`
}

// MongoStore implements SessionStore on a MongoDB collection.
type MongoStore struct {
	collection *mongo.Collection
	ttl        time.Duration
}

func NewMongoStore(ctx context.Context, db *mongo.Database, terminalTTL time.Duration) (*MongoStore, error) {
	if terminalTTL <= 0 {
		terminalTTL = DefaultTerminalTTL
	}
	coll := db.Collection("checkout_sessions")

	// Mongo evicts terminal sessions itself via the TTL index.
	_, err := coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "expire_at", Value: 1}},
		Options: options.Index().SetExpireAfterSeconds(0),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create TTL index: %w", err)
	}

	return &MongoStore{collection: coll, ttl: terminalTTL}, nil
}

func (m *MongoStore) Put(ctx context.Context, session *domain.CheckoutSession) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("marshal session failed: %w", err)
	}

	doc := sessionDoc{
		ID:      session.ID,
		Version: session.Version,
		Data:    data,
	}
	if session.Status.IsTerminal() {
		expireAt := time.Now().Add(m.ttl)
		doc.ExpireAt = &expireAt
	}

	// Replace only when the stored version is older; racing inserts
	// surface as duplicate keys, which is the same conflict.
	filter := bson.M{"_id": session.ID, "version": bson.M{"$lt": session.Version}}
	opts := options.Replace().SetUpsert(session.Version == 1)

	res, err := m.collection.ReplaceOne(ctx, filter, doc, opts)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrVersionConflict
		}
		return fmt.Errorf("mongo put failed: %w", err)
	}
	if session.Version > 1 && res.MatchedCount == 0 {
		// Either the session vanished or a newer version is stored;
		// both mean this write must not land.
		return ErrVersionConflict
	}
	return nil
}

func (m *MongoStore) Get(ctx context.Context, id string) (*domain.CheckoutSession, error) {
	var doc sessionDoc
	err := m.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("mongo get failed: %w", err)
	}

	var session domain.CheckoutSession
	if err := json.Unmarshal(doc.Data, &session); err != nil {
		return nil, fmt.Errorf("unmarshal session failed: %w", err)
	}
	return &session, nil
}

func (m *MongoStore) Delete(ctx context.Context, id string) error {
	res, err := m.collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("mongo delete failed: %w", err)
	}
	if res.DeletedCount == 0 {
		return ErrSessionNotFound
	}
	return nil
}

func (m *MongoStore) Close() error {
	return nil
}
