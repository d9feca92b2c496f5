package directory

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// DefaultMongoCollection holds user documents written by the account service.
const DefaultMongoCollection = "users"

// MongoDirectory reads users from a MongoDB collection keyed by ObjectID.
type MongoDirectory struct {
	coll *mongo.Collection
}

type mongoUser struct {
	ID             primitive.ObjectID `bson:"_id"`
	Name           string             `bson:"name"`
	Role           string             `bson:"role"`
	Specialization string             `bson:"specialization,omitempty"`
	CreatedAt      time.Time          `bson:"createdAt"`
}

func (d mongoUser) toUser() User {
	return User{
		ID:             d.ID.Hex(),
		Name:           d.Name,
		Role:           Role(d.Role),
		Specialization: d.Specialization,
		CreatedAt:      d.CreatedAt.UTC(),
	}
}

// NewMongoDirectory constructs a directory over db.collection (default "users").
func NewMongoDirectory(db *mongo.Database, collection string) (*MongoDirectory, error) {
	if db == nil {
		return nil, errors.New("directory: nil mongo database")
	}
	collection = strings.TrimSpace(collection)
	if collection == "" {
		collection = DefaultMongoCollection
	}
	return &MongoDirectory{coll: db.Collection(collection)}, nil
}

// EnsureIndexes creates the role and specialization indexes.
func (d *MongoDirectory) EnsureIndexes(ctx context.Context) error {
	_, err := d.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "role", Value: 1}, {Key: "createdAt", Value: 1}}},
		{Keys: bson.D{{Key: "specialization", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("directory mongo indexes: %w", err)
	}
	return nil
}

// Upsert replaces the user document with u. u.ID must be an ObjectID hex string.
func (d *MongoDirectory) Upsert(ctx context.Context, u User) error {
	if err := u.Validate(); err != nil {
		return err
	}
	oid, err := primitive.ObjectIDFromHex(u.ID)
	if err != nil {
		return errors.Join(ErrInvalidInput, fmt.Errorf("id %q is not an ObjectID", u.ID))
	}
	created := u.CreatedAt.UTC()
	if created.IsZero() {
		created = time.Now().UTC()
	}
	doc := mongoUser{
		ID:             oid,
		Name:           strings.TrimSpace(u.Name),
		Role:           string(u.Role),
		Specialization: strings.TrimSpace(u.Specialization),
		CreatedAt:      created,
	}
	_, err = d.coll.ReplaceOne(ctx, bson.M{"_id": oid}, doc, options.Replace().SetUpsert(true))
	return err
}

func (d *MongoDirectory) Get(ctx context.Context, id string) (User, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return User{}, ErrNotFound
	}
	var doc mongoUser
	if err := d.coll.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return User{}, ErrNotFound
		}
		return User{}, err
	}
	return doc.toUser(), nil
}

func (d *MongoDirectory) Lookup(ctx context.Context, ids []string) (map[string]User, error) {
	out := make(map[string]User, len(ids))
	oids := make([]primitive.ObjectID, 0, len(ids))
	for _, id := range ids {
		if oid, err := primitive.ObjectIDFromHex(id); err == nil {
			oids = append(oids, oid)
		}
	}
	if len(oids) == 0 {
		return out, nil
	}

	cur, err := d.coll.Find(ctx,
		bson.M{"_id": bson.M{"$in": oids}},
		options.Find().SetProjection(bson.M{"name": 1, "role": 1, "specialization": 1, "createdAt": 1}),
	)
	if err != nil {
		return nil, err
	}
	defer func() { _ = cur.Close(ctx) }()

	for cur.Next(ctx) {
		var doc mongoUser
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		u := doc.toUser()
		out[u.ID] = u
	}
	return out, cur.Err()
}

func (d *MongoDirectory) FindSpecialist(ctx context.Context, specialization string) (User, error) {
	specialization = strings.TrimSpace(specialization)
	if specialization == "" {
		return User{}, ErrInvalidInput
	}

	var doc mongoUser
	err := d.coll.FindOne(ctx,
		bson.M{
			"role":           bson.M{"$in": bson.A{string(RoleDoctor), string(RoleClinician)}},
			"specialization": primitive.Regex{Pattern: regexp.QuoteMeta(specialization), Options: "i"},
		},
		options.FindOne().SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}}),
	).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, err
	}
	return doc.toUser(), nil
}
