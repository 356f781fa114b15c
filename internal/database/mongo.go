package database

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	usersCollection    = "users"
	roomsCollection    = "rooms"
	choresCollection   = "chores"
	expensesCollection = "expenses"
	messagesCollection = "chat_messages"
	eventsCollection   = "events"
)

type MongoRepository struct {
	client   *mongo.Client
	db       *mongo.Database
	users    *mongo.Collection
	rooms    *mongo.Collection
	chores   *mongo.Collection
	expenses *mongo.Collection
	messages *mongo.Collection
	events   *mongo.Collection
}

func NewMongoRepository(ctx context.Context, uri, dbName string) (*MongoRepository, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri).SetRegistry(newRegistry()))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("mongo ping: %w", err)
	}

	db := client.Database(dbName)
	return &MongoRepository{
		client:   client,
		db:       db,
		users:    db.Collection(usersCollection),
		rooms:    db.Collection(roomsCollection),
		chores:   db.Collection(choresCollection),
		expenses: db.Collection(expensesCollection),
		messages: db.Collection(messagesCollection),
		events:   db.Collection(eventsCollection),
	}, nil
}

func (m *MongoRepository) Ping(ctx context.Context) error {
	return m.client.Ping(ctx, nil)
}

func (m *MongoRepository) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}

// EnsureIndexes creates the indexes the repository relies on. The unique
// indexes on users.subject and rooms.code arbitrate concurrent creates.
func (m *MongoRepository) EnsureIndexes(ctx context.Context) error {
	desired := map[*mongo.Collection][]mongo.IndexModel{
		m.users: {
			{Keys: bson.D{{Key: "subject", Value: 1}}, Options: options.Index().SetUnique(true).SetName("uniq_subject")},
			{Keys: bson.D{{Key: "created_at", Value: 1}}, Options: options.Index().SetName("idx_created_at")},
		},
		m.rooms: {
			{Keys: bson.D{{Key: "code", Value: 1}}, Options: options.Index().SetUnique(true).SetName("uniq_code")},
			{Keys: bson.D{{Key: "members", Value: 1}}, Options: options.Index().SetName("idx_members")},
		},
		m.chores: {
			{Keys: bson.D{{Key: "room_id", Value: 1}, {Key: "created_at", Value: -1}}, Options: options.Index().SetName("idx_room_created")},
			{Keys: bson.D{{Key: "completed", Value: 1}, {Key: "recurrence", Value: 1}}, Options: options.Index().SetName("idx_completed_recurrence")},
		},
		m.expenses: {
			{Keys: bson.D{{Key: "room_id", Value: 1}, {Key: "date", Value: -1}}, Options: options.Index().SetName("idx_room_date")},
		},
		m.messages: {
			{Keys: bson.D{{Key: "room_id", Value: 1}, {Key: "created_at", Value: 1}}, Options: options.Index().SetName("idx_room_created")},
		},
		m.events: {
			{Keys: bson.D{{Key: "room_id", Value: 1}, {Key: "start_date", Value: 1}}, Options: options.Index().SetName("idx_room_start")},
		},
	}

	var problems []string
	for coll, models := range desired {
		if _, err := coll.Indexes().CreateMany(ctx, models); err != nil {
			problems = append(problems, coll.Name()+": "+err.Error())
		}
	}

	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}

// mapErr converts driver errors into the repository's sentinel errors.
func mapErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, mongo.ErrNoDocuments):
		return ErrNotFound
	case mongo.IsDuplicateKeyError(err):
		return fmt.Errorf("%w: %v", ErrDuplicate, err)
	default:
		return err
	}
}
