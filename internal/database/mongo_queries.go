package database

import (
	"context"
	"slices"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func findAll[T any](ctx context.Context, coll *mongo.Collection, filter any, opts ...*options.FindOptions) ([]T, error) {
	cur, err := coll.Find(ctx, filter, opts...)
	if err != nil {
		return nil, err
	}

	out := []T{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func findOne[T any](ctx context.Context, coll *mongo.Collection, filter any) (T, error) {
	var out T
	err := coll.FindOne(ctx, filter).Decode(&out)
	return out, mapErr(err)
}

func replaceById(ctx context.Context, coll *mongo.Collection, id string, doc any) error {
	res, err := coll.ReplaceOne(ctx, bson.M{"_id": id}, doc)
	if err != nil {
		return mapErr(err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func deleteById(ctx context.Context, coll *mongo.Collection, id string) error {
	res, err := coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (m *MongoRepository) CreateUser(ctx context.Context, user User) (User, error) {
	if _, err := m.users.InsertOne(ctx, user); err != nil {
		return User{}, mapErr(err)
	}
	return user, nil
}

func (m *MongoRepository) GetUserById(ctx context.Context, id string) (User, error) {
	return findOne[User](ctx, m.users, bson.M{"_id": id})
}

func (m *MongoRepository) GetUserBySubject(ctx context.Context, subject string) (User, error) {
	return findOne[User](ctx, m.users, bson.M{"subject": subject})
}

func (m *MongoRepository) GetUsersByIds(ctx context.Context, ids []string) ([]User, error) {
	if len(ids) == 0 {
		return []User{}, nil
	}
	return findAll[User](ctx, m.users, bson.M{"_id": bson.M{"$in": ids}}, options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}))
}

func (m *MongoRepository) GetEarliestUser(ctx context.Context) (User, error) {
	var u User
	err := m.users.FindOne(ctx, bson.M{}, options.FindOne().SetSort(bson.D{{Key: "created_at", Value: 1}})).Decode(&u)
	return u, mapErr(err)
}

func (m *MongoRepository) UpdateUserProfile(ctx context.Context, params UpdateProfileParams) (User, error) {
	update := bson.M{"$set": bson.M{
		"display_name": params.DisplayName,
		"bio":          params.Bio,
		"avatar_url":   params.AvatarURL,
		"updated_at":   time.Now().UTC(),
	}}

	var u User
	err := m.users.FindOneAndUpdate(ctx, bson.M{"_id": params.UserId}, update,
		options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&u)
	return u, mapErr(err)
}

func (m *MongoRepository) CreateRoom(ctx context.Context, room Room) (Room, error) {
	if _, err := m.rooms.InsertOne(ctx, room); err != nil {
		return Room{}, mapErr(err)
	}
	return room, nil
}

func (m *MongoRepository) GetRoomById(ctx context.Context, id string) (Room, error) {
	return findOne[Room](ctx, m.rooms, bson.M{"_id": id})
}

func (m *MongoRepository) GetRoomByCode(ctx context.Context, code string) (Room, error) {
	return findOne[Room](ctx, m.rooms, bson.M{"code": code})
}

func (m *MongoRepository) ListRoomsForUser(ctx context.Context, userId string) ([]Room, error) {
	return findAll[Room](ctx, m.rooms, bson.M{"members": userId}, options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}))
}

func (m *MongoRepository) AddRoomMember(ctx context.Context, roomId, userId string) (Room, error) {
	update := bson.M{
		"$addToSet": bson.M{"members": userId},
		"$set":      bson.M{"updated_at": time.Now().UTC()},
	}

	var room Room
	err := m.rooms.FindOneAndUpdate(ctx, bson.M{"_id": roomId}, update,
		options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&room)
	return room, mapErr(err)
}

func (m *MongoRepository) RemoveRoomMember(ctx context.Context, roomId, userId string) error {
	res, err := m.rooms.UpdateOne(ctx, bson.M{"_id": roomId}, bson.M{
		"$pull": bson.M{"members": userId},
		"$set":  bson.M{"updated_at": time.Now().UTC()},
	})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (m *MongoRepository) IsRoomMember(ctx context.Context, roomId, userId string) (bool, error) {
	var room struct {
		Members []string `bson:"members"`
	}
	err := m.rooms.FindOne(ctx, bson.M{"_id": roomId},
		options.FindOne().SetProjection(bson.M{"members": 1})).Decode(&room)
	if err != nil {
		return false, mapErr(err)
	}
	return slices.Contains(room.Members, userId), nil
}

func (m *MongoRepository) UpdateRoomName(ctx context.Context, roomId, name string) (Room, error) {
	var room Room
	err := m.rooms.FindOneAndUpdate(ctx, bson.M{"_id": roomId},
		bson.M{"$set": bson.M{"name": name, "updated_at": time.Now().UTC()}},
		options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&room)
	return room, mapErr(err)
}

// DeleteRoom removes the room and every record scoped to it.
func (m *MongoRepository) DeleteRoom(ctx context.Context, roomId string) error {
	for _, coll := range []*mongo.Collection{m.chores, m.expenses, m.messages, m.events} {
		if _, err := coll.DeleteMany(ctx, bson.M{"room_id": roomId}); err != nil {
			return err
		}
	}
	return deleteById(ctx, m.rooms, roomId)
}

func (m *MongoRepository) CreateChore(ctx context.Context, chore Chore) (Chore, error) {
	if _, err := m.chores.InsertOne(ctx, chore); err != nil {
		return Chore{}, mapErr(err)
	}
	return chore, nil
}

func (m *MongoRepository) GetChore(ctx context.Context, id string) (Chore, error) {
	return findOne[Chore](ctx, m.chores, bson.M{"_id": id})
}

func (m *MongoRepository) ListChores(ctx context.Context, roomId string) ([]Chore, error) {
	return findAll[Chore](ctx, m.chores, bson.M{"room_id": roomId}, options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}))
}

func (m *MongoRepository) ListCompletedRecurringChores(ctx context.Context) ([]Chore, error) {
	return findAll[Chore](ctx, m.chores, bson.M{
		"completed":  true,
		"recurrence": bson.M{"$in": []string{RecurrenceDaily, RecurrenceWeekly, RecurrenceMonthly}},
	})
}

func (m *MongoRepository) UpdateChore(ctx context.Context, chore Chore) (Chore, error) {
	if err := replaceById(ctx, m.chores, chore.Id, chore); err != nil {
		return Chore{}, err
	}
	return chore, nil
}

func (m *MongoRepository) DeleteChore(ctx context.Context, id string) error {
	return deleteById(ctx, m.chores, id)
}

func (m *MongoRepository) CreateExpense(ctx context.Context, expense Expense) (Expense, error) {
	if _, err := m.expenses.InsertOne(ctx, expense); err != nil {
		return Expense{}, mapErr(err)
	}
	return expense, nil
}

func (m *MongoRepository) GetExpense(ctx context.Context, id string) (Expense, error) {
	return findOne[Expense](ctx, m.expenses, bson.M{"_id": id})
}

func (m *MongoRepository) ListExpenses(ctx context.Context, roomId string) ([]Expense, error) {
	return findAll[Expense](ctx, m.expenses, bson.M{"room_id": roomId}, options.Find().SetSort(bson.D{{Key: "date", Value: -1}}))
}

func (m *MongoRepository) UpdateExpense(ctx context.Context, expense Expense) (Expense, error) {
	if err := replaceById(ctx, m.expenses, expense.Id, expense); err != nil {
		return Expense{}, err
	}
	return expense, nil
}

func (m *MongoRepository) DeleteExpense(ctx context.Context, id string) error {
	return deleteById(ctx, m.expenses, id)
}

func (m *MongoRepository) CreateMessage(ctx context.Context, msg Message) (Message, error) {
	if _, err := m.messages.InsertOne(ctx, msg); err != nil {
		return Message{}, mapErr(err)
	}
	return msg, nil
}

// ListMessages returns up to filter.Limit messages older than filter.Before,
// oldest first.
func (m *MongoRepository) ListMessages(ctx context.Context, filter MessageFilter) ([]Message, error) {
	q := bson.M{"room_id": filter.RoomId}
	if !filter.Before.IsZero() {
		q["created_at"] = bson.M{"$lt": filter.Before}
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}).
		SetLimit(int64(clampLimit(filter.Limit)))

	msgs, err := findAll[Message](ctx, m.messages, q, opts)
	if err != nil {
		return nil, err
	}

	slices.Reverse(msgs)
	return msgs, nil
}

func (m *MongoRepository) CreateEvent(ctx context.Context, event Event) (Event, error) {
	if _, err := m.events.InsertOne(ctx, event); err != nil {
		return Event{}, mapErr(err)
	}
	return event, nil
}

func (m *MongoRepository) GetEvent(ctx context.Context, id string) (Event, error) {
	return findOne[Event](ctx, m.events, bson.M{"_id": id})
}

func (m *MongoRepository) ListEvents(ctx context.Context, filter EventFilter) ([]Event, error) {
	q := bson.M{"room_id": filter.RoomId}

	start := bson.M{}
	if filter.Start != nil {
		start["$gte"] = *filter.Start
	}
	if filter.End != nil {
		start["$lte"] = *filter.End
	}
	if len(start) > 0 {
		q["start_date"] = start
	}

	if filter.Type != "" {
		q["type"] = filter.Type
	}
	if filter.UnpaidOnly {
		q["type"] = EventBill
		q["is_paid"] = false
	}

	opts := options.Find().SetSort(bson.D{{Key: "start_date", Value: 1}})
	if filter.Limit > 0 {
		opts.SetLimit(int64(filter.Limit))
	}

	return findAll[Event](ctx, m.events, q, opts)
}

func (m *MongoRepository) UpdateEvent(ctx context.Context, event Event) (Event, error) {
	if err := replaceById(ctx, m.events, event.Id, event); err != nil {
		return Event{}, err
	}
	return event, nil
}

func (m *MongoRepository) DeleteEvent(ctx context.Context, id string) error {
	return deleteById(ctx, m.events, id)
}

func (m *MongoRepository) AssignOrphans(ctx context.Context, roomId string) (int64, error) {
	orphan := bson.M{"$or": bson.A{
		bson.M{"room_id": bson.M{"$exists": false}},
		bson.M{"room_id": nil},
		bson.M{"room_id": ""},
	}}
	update := bson.M{"$set": bson.M{"room_id": roomId}}

	var total int64
	for _, coll := range []*mongo.Collection{m.chores, m.expenses, m.events} {
		res, err := coll.UpdateMany(ctx, orphan, update)
		if err != nil {
			return total, err
		}
		total += res.ModifiedCount
	}
	return total, nil
}
