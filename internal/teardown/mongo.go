// Package teardown implements the optional session-persistence sink
// (SPEC_FULL §4.9/§6.2): a dump hook called once per session at teardown
// with the session's raw buffer and diagnostic log, backed by
// go.mongodb.org/mongo-driver as a session-dump collection.
package teardown

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"audiosearch/internal/buffer"
)

const collectionName = "session_dumps"

// sessionDump is the document shape stored for each persisted session.
type sessionDump struct {
	Token          string    `bson:"token"`
	DataLength     int       `bson:"dataLength"`
	SampleRate     uint32    `bson:"sampleRate"`
	DurationSecs   float64   `bson:"durationSeconds"`
	Log            []string  `bson:"log"`
	PersistedAtUTC time.Time `bson:"persistedAt"`
}

// MongoSink is a TeardownSink backed by a MongoDB collection. It is built
// by Dial, which connects and pings the server before returning.
type MongoSink struct {
	client     *mongo.Client
	collection *mongo.Collection
}

// Dial connects to uri and returns a ready MongoSink, or an error if the
// server is unreachable within the given context's deadline.
func Dial(ctx context.Context, uri, database string) (*MongoSink, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, err
	}
	return &MongoSink{
		client:     client,
		collection: client.Database(database).Collection(collectionName),
	}, nil
}

// Close disconnects the underlying Mongo client.
func (s *MongoSink) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// DumpSessionData persists buf and log under token if shouldStore is true;
// otherwise it is a no-op.
func (s *MongoSink) DumpSessionData(ctx context.Context, token string, buf *buffer.SampleBuffer, log []string, shouldStore bool) error {
	if !shouldStore {
		return nil
	}

	doc := sessionDump{
		Token:          token,
		DataLength:     buf.DataLength(),
		SampleRate:     buf.SampleRate(),
		DurationSecs:   buf.DurationSeconds(),
		Log:            log,
		PersistedAtUTC: time.Now().UTC(),
	}

	_, err := s.collection.UpdateOne(ctx,
		bson.M{"token": token},
		bson.M{"$set": doc},
		options.Update().SetUpsert(true),
	)
	return err
}

// NoopSink is a TeardownSink that discards everything, used when no Mongo
// URI is configured (SPEC_FULL §4.10's ServerConfig.MongoURI == "").
type NoopSink struct{}

func (NoopSink) DumpSessionData(ctx context.Context, token string, buf *buffer.SampleBuffer, log []string, shouldStore bool) error {
	return nil
}
