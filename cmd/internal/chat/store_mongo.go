package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// DefaultMongoCollection is the collection holding chat messages.
const DefaultMongoCollection = "chats"

// mongoClockSuffix names the companion collection holding one timestamp
// clock document per room ("chats_clock").
const mongoClockSuffix = "_clock"

// MongoStore is a MessageStore backed by a MongoDB collection.
//
// Ownership model: the *mongo.Client is owned by the caller; Close() is a no-op.
//
// Timestamps have millisecond resolution. Append bumps the room clock and
// inserts the message in one transaction, so concurrent appends to a room
// conflict and retry. A message therefore commits before any later-stamped
// message of its room becomes visible. Transactions need a replica set or
// sharded cluster.
type MongoStore struct {
	coll   *mongo.Collection
	clocks *mongo.Collection
	now    func() time.Time
}

type mongoMessage struct {
	ID         primitive.ObjectID `bson:"_id,omitempty"`
	RoomID     string             `bson:"roomId"`
	SenderID   string             `bson:"senderId"`
	ReceiverID string             `bson:"receiverId"`
	Message    string             `bson:"message"`
	Timestamp  time.Time          `bson:"timestamp"`
	Seen       bool               `bson:"seen"`
}

func (d mongoMessage) toMessage() Message {
	return Message{
		ID:         d.ID.Hex(),
		RoomID:     d.RoomID,
		SenderID:   d.SenderID,
		ReceiverID: d.ReceiverID,
		Body:       d.Message,
		Timestamp:  d.Timestamp.UTC(),
		Seen:       d.Seen,
	}
}

// MongoOption configures MongoStore behavior.
type MongoOption func(*MongoStore)

// WithMongoClock overrides the clock used to stamp appended messages.
func WithMongoClock(now func() time.Time) MongoOption {
	return func(s *MongoStore) {
		if now != nil {
			s.now = now
		}
	}
}

// NewMongoStore constructs a MessageStore over db.collection (default "chats").
func NewMongoStore(db *mongo.Database, collection string, opts ...MongoOption) (*MongoStore, error) {
	if db == nil {
		return nil, errors.New("chat: nil mongo database")
	}
	collection = strings.TrimSpace(collection)
	if collection == "" {
		collection = DefaultMongoCollection
	}
	s := &MongoStore{
		coll:   db.Collection(collection),
		clocks: db.Collection(collection + mongoClockSuffix),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

// Close is a no-op because the client is owned by the caller.
func (s *MongoStore) Close() error { return nil }

// Ping checks primary reachability.
func (s *MongoStore) Ping(ctx context.Context) error {
	return s.coll.Database().Client().Ping(ctx, readpref.Primary())
}

// EnsureIndexes creates the room ordering and unseen-inbox indexes, plus the
// clock collection so Append never creates a collection inside a transaction.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	if err := s.coll.Database().CreateCollection(ctx, s.clocks.Name()); err != nil && !isNamespaceExists(err) {
		return fmt.Errorf("chat mongo clock collection: %w", err)
	}
	_, err := s.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "roomId", Value: 1}, {Key: "timestamp", Value: 1}, {Key: "_id", Value: 1}},
			Options: options.Index().SetName("room_ts_idx"),
		},
		{
			Keys:    bson.D{{Key: "receiverId", Value: 1}, {Key: "seen", Value: 1}},
			Options: options.Index().SetName("receiver_seen_idx"),
		},
	})
	if err != nil {
		return fmt.Errorf("chat mongo indexes: %w", err)
	}
	return nil
}

// Append stamps the message from the room clock and inserts it, both in one
// transaction.
func (s *MongoStore) Append(ctx context.Context, in AppendInput) (Message, error) {
	in, err := NormalizeAppend("chat.MongoStore.Append", in)
	if err != nil {
		return Message{}, err
	}

	sess, err := s.coll.Database().Client().StartSession()
	if err != nil {
		return Message{}, fmt.Errorf("start session: %w", err)
	}
	defer sess.EndSession(ctx)

	var doc mongoMessage
	_, err = sess.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		ts, err := s.tick(sc, in.RoomID)
		if err != nil {
			return nil, err
		}
		doc = mongoMessage{
			ID:         primitive.NewObjectID(),
			RoomID:     in.RoomID,
			SenderID:   in.SenderID,
			ReceiverID: in.ReceiverID,
			Message:    in.Body,
			Timestamp:  ts,
		}
		if _, err := s.coll.InsertOne(sc, doc); err != nil {
			return nil, fmt.Errorf("insert message: %w", err)
		}
		return nil, nil
	})
	if err != nil {
		return Message{}, err
	}
	return doc.toMessage(), nil
}

// tick advances the room clock to max(now, last+1ms) and returns it.
func (s *MongoStore) tick(ctx context.Context, roomID string) (time.Time, error) {
	now := s.now().UTC().Truncate(time.Millisecond)
	update := mongo.Pipeline{
		{{Key: "$set", Value: bson.M{
			"last": bson.M{"$max": bson.A{
				now,
				bson.M{"$add": bson.A{bson.M{"$ifNull": bson.A{"$last", time.Unix(0, 0).UTC()}}, int64(1)}},
			}},
		}}},
	}

	var clock struct {
		Last time.Time `bson:"last"`
	}
	err := s.clocks.FindOneAndUpdate(ctx,
		bson.M{"_id": roomID},
		update,
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&clock)
	if err != nil {
		return time.Time{}, fmt.Errorf("room clock: %w", err)
	}
	return clock.Last.UTC(), nil
}

func isNamespaceExists(err error) bool {
	var ce mongo.CommandError
	return errors.As(err, &ce) && ce.Code == 48
}

// ListSince returns messages ordered by (timestamp, _id) ASC after the optional cursor.
func (s *MongoStore) ListSince(ctx context.Context, in ListInput) ([]Message, error) {
	if in.RoomID == "" {
		return nil, errors.New("chat: missing room id")
	}
	limit := ClampLimit(in.Limit, DefaultPollLimit)

	and := bson.A{bson.M{"roomId": in.RoomID}}
	if in.After != nil {
		ts := in.After.Timestamp.UTC()
		cond := bson.A{bson.M{"timestamp": bson.M{"$gt": ts}}}
		if oid, err := primitive.ObjectIDFromHex(in.After.ID); err == nil {
			cond = append(cond, bson.M{"timestamp": ts, "_id": bson.M{"$gt": oid}})
		}
		and = append(and, bson.M{"$or": cond})
	}
	if !in.NotBefore.IsZero() {
		and = append(and, bson.M{"timestamp": bson.M{"$gte": in.NotBefore.UTC()}})
	}

	cur, err := s.coll.Find(ctx,
		bson.M{"$and": and},
		options.Find().
			SetSort(bson.D{{Key: "timestamp", Value: 1}, {Key: "_id", Value: 1}}).
			SetLimit(int64(limit)),
	)
	if err != nil {
		return nil, err
	}
	defer func() { _ = cur.Close(ctx) }()

	out := make([]Message, 0, limit)
	for cur.Next(ctx) {
		var d mongoMessage
		if err := cur.Decode(&d); err != nil {
			return nil, err
		}
		out = append(out, d.toMessage())
	}
	if err := cur.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Get returns a message by its ObjectID hex.
func (s *MongoStore) Get(ctx context.Context, id string) (Message, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return Message{}, opErr("chat.MongoStore.Get", ErrNotFound, "message not found")
	}

	var d mongoMessage
	if err := s.coll.FindOne(ctx, bson.M{"_id": oid}).Decode(&d); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return Message{}, opErr("chat.MongoStore.Get", ErrNotFound, "message not found")
		}
		return Message{}, err
	}
	return d.toMessage(), nil
}

// MarkSeen sets seen=true for the given ids and reports how many documents changed.
func (s *MongoStore) MarkSeen(ctx context.Context, msgIDs []string) (int64, error) {
	msgIDs = dedupeIDs(msgIDs)
	oids := make([]primitive.ObjectID, 0, len(msgIDs))
	for _, id := range msgIDs {
		if oid, err := primitive.ObjectIDFromHex(id); err == nil {
			oids = append(oids, oid)
		}
	}
	if len(oids) == 0 {
		return 0, nil
	}

	res, err := s.coll.UpdateMany(ctx,
		bson.M{"_id": bson.M{"$in": oids}, "seen": false},
		bson.M{"$set": bson.M{"seen": true}},
	)
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}
