package docstore

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const defaultMongoDatabase = "recordstore"

// MongoDocStore implements DocStore on the official MongoDB driver.
type MongoDocStore struct {
	client *mongo.Client
	dbName string
}

// NewMongoDocStore connects a driver client. The driver dials lazily, so
// callers should Ping before relying on the connection.
func NewMongoDocStore(ctx context.Context, uri string, opts DialOptions) (*MongoDocStore, error) {
	client, err := mongo.Connect(ctx, mongoClientOptions(uri, opts))
	if err != nil {
		return nil, err
	}

	dbName := opts.Database
	if dbName == "" {
		dbName = defaultMongoDatabase
	}
	return &MongoDocStore{client: client, dbName: dbName}, nil
}

func mongoClientOptions(uri string, opts DialOptions) *options.ClientOptions {
	co := options.Client().ApplyURI(uri)
	if opts.AppName != "" {
		co.SetAppName(opts.AppName)
	}
	if opts.ConnectTimeout > 0 {
		co.SetConnectTimeout(opts.ConnectTimeout)
	}
	if opts.ServerSelectionTimeout > 0 {
		co.SetServerSelectionTimeout(opts.ServerSelectionTimeout)
	}
	if opts.MaxPoolSize > 0 {
		co.SetMaxPoolSize(opts.MaxPoolSize)
	}
	if opts.MinPoolSize > 0 {
		co.SetMinPoolSize(opts.MinPoolSize)
	}
	if opts.DirectConnection != nil {
		co.SetDirect(*opts.DirectConnection)
	}
	if opts.RetryWrites != nil {
		co.SetRetryWrites(*opts.RetryWrites)
	}
	return co
}

func (m *MongoDocStore) coll(name string) *mongo.Collection {
	return m.client.Database(m.dbName).Collection(name)
}

func toBSON(f map[string]interface{}) bson.M {
	out := bson.M{}
	for k, v := range f {
		out[k] = v
	}
	return out
}

func (m *MongoDocStore) InsertOne(ctx context.Context, collection string, document interface{}) error {
	_, err := m.coll(collection).InsertOne(ctx, document)
	if err != nil && mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("%w: %w", ErrDuplicateKey, err)
	}
	return err
}

func (m *MongoDocStore) FindOne(ctx context.Context, collection string, filter Filter, result interface{}) error {
	err := m.coll(collection).FindOne(ctx, toBSON(filter)).Decode(result)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return fmt.Errorf("%w: %w", ErrNoDocuments, err)
	}
	return err
}

func (m *MongoDocStore) FindMany(ctx context.Context, collection string, filter Filter, results interface{}) error {
	cursor, err := m.coll(collection).Find(ctx, toBSON(filter))
	if err != nil {
		return err
	}
	defer cursor.Close(ctx)
	return cursor.All(ctx, results)
}

func (m *MongoDocStore) UpdateOne(ctx context.Context, collection string, filter Filter, set Fields) (int64, error) {
	res, err := m.coll(collection).UpdateOne(ctx, toBSON(filter), bson.M{"$set": toBSON(set)})
	if err != nil {
		return 0, err
	}
	return res.MatchedCount, nil
}

func (m *MongoDocStore) DeleteOne(ctx context.Context, collection string, filter Filter) (int64, error) {
	res, err := m.coll(collection).DeleteOne(ctx, toBSON(filter))
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

func (m *MongoDocStore) DeleteMany(ctx context.Context, collection string, filter Filter) (int64, error) {
	res, err := m.coll(collection).DeleteMany(ctx, toBSON(filter))
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

func (m *MongoDocStore) CountDocuments(ctx context.Context, collection string, filter Filter) (int64, error) {
	return m.coll(collection).CountDocuments(ctx, toBSON(filter))
}

func (m *MongoDocStore) EnsureUniqueIndex(ctx context.Context, collection, field string) error {
	_, err := m.coll(collection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: field, Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	return err
}

func (m *MongoDocStore) Ping(ctx context.Context) error {
	return m.client.Ping(ctx, readpref.Primary())
}

func (m *MongoDocStore) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}
