package database

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
)

const (
	userColumns    = "id, subject, email, display_name, bio, avatar_url, created_at, updated_at"
	roomColumns    = "id, name, code, created_by, members, created_at, updated_at"
	choreColumns   = "id, room_id, title, assigned_to, completed, completed_at, recurrence, due_date, created_at, updated_at"
	expenseColumns = "id, room_id, description, amount, paid_by, split_between, date, created_at, updated_at"
	messageColumns = "id, room_id, sender_id, text, related_type, related_id, created_at"
	eventColumns   = "id, room_id, title, description, type, start_date, end_date, all_day, created_by, attendees, location, recurrence, bill_amount, is_paid, created_at, updated_at"
)

type pgRoom struct {
	Room
	Members pq.StringArray `db:"members"`
}

func (r pgRoom) toRoom() Room {
	room := r.Room
	room.Members = []string(r.Members)
	return room
}

type pgExpense struct {
	Expense
	SplitBetween pq.StringArray `db:"split_between"`
}

func (e pgExpense) toExpense() Expense {
	expense := e.Expense
	expense.SplitBetween = []string(e.SplitBetween)
	return expense
}

type pgEvent struct {
	Event
	Attendees pq.StringArray `db:"attendees"`
}

func (e pgEvent) toEvent() Event {
	event := e.Event
	event.Attendees = []string(e.Attendees)
	return event
}

func (db *PgRepository) CreateUser(ctx context.Context, user User) (User, error) {
	_, err := db.conn.ExecContext(ctx,
		"INSERT INTO users ("+userColumns+") VALUES ($1, $2, $3, $4, $5, $6, $7, $8)",
		user.Id, user.Subject, user.Email, user.DisplayName, user.Bio, user.AvatarURL, user.CreatedAt, user.UpdatedAt,
	)
	if err != nil {
		return User{}, mapPgErr(err)
	}
	return user, nil
}

func (db *PgRepository) GetUserById(ctx context.Context, id string) (User, error) {
	var u User
	err := db.conn.GetContext(ctx, &u, "SELECT "+userColumns+" FROM users WHERE id = $1", id)
	return u, mapPgErr(err)
}

func (db *PgRepository) GetUserBySubject(ctx context.Context, subject string) (User, error) {
	var u User
	err := db.conn.GetContext(ctx, &u, "SELECT "+userColumns+" FROM users WHERE subject = $1", subject)
	return u, mapPgErr(err)
}

func (db *PgRepository) GetUsersByIds(ctx context.Context, ids []string) ([]User, error) {
	users := []User{}
	if len(ids) == 0 {
		return users, nil
	}
	err := db.conn.SelectContext(ctx, &users,
		"SELECT "+userColumns+" FROM users WHERE id = ANY($1) ORDER BY created_at", pq.Array(ids))
	return users, mapPgErr(err)
}

func (db *PgRepository) GetEarliestUser(ctx context.Context) (User, error) {
	var u User
	err := db.conn.GetContext(ctx, &u, "SELECT "+userColumns+" FROM users ORDER BY created_at LIMIT 1")
	return u, mapPgErr(err)
}

func (db *PgRepository) UpdateUserProfile(ctx context.Context, params UpdateProfileParams) (User, error) {
	var u User
	err := db.conn.GetContext(ctx, &u,
		"UPDATE users SET display_name = $2, bio = $3, avatar_url = $4, updated_at = $5 "+
			"WHERE id = $1 RETURNING "+userColumns,
		params.UserId, params.DisplayName, params.Bio, params.AvatarURL, time.Now().UTC(),
	)
	return u, mapPgErr(err)
}

func (db *PgRepository) CreateRoom(ctx context.Context, room Room) (Room, error) {
	_, err := db.conn.ExecContext(ctx,
		"INSERT INTO rooms ("+roomColumns+") VALUES ($1, $2, $3, $4, $5, $6, $7)",
		room.Id, room.Name, room.Code, room.CreatedBy, pq.Array(room.Members), room.CreatedAt, room.UpdatedAt,
	)
	if err != nil {
		return Room{}, mapPgErr(err)
	}
	return room, nil
}

func (db *PgRepository) getRoom(ctx context.Context, query string, args ...any) (Room, error) {
	var r pgRoom
	if err := db.conn.GetContext(ctx, &r, query, args...); err != nil {
		return Room{}, mapPgErr(err)
	}
	return r.toRoom(), nil
}

func (db *PgRepository) GetRoomById(ctx context.Context, id string) (Room, error) {
	return db.getRoom(ctx, "SELECT "+roomColumns+" FROM rooms WHERE id = $1", id)
}

func (db *PgRepository) GetRoomByCode(ctx context.Context, code string) (Room, error) {
	return db.getRoom(ctx, "SELECT "+roomColumns+" FROM rooms WHERE code = $1", code)
}

func (db *PgRepository) ListRoomsForUser(ctx context.Context, userId string) ([]Room, error) {
	var rows []pgRoom
	err := db.conn.SelectContext(ctx, &rows,
		"SELECT "+roomColumns+" FROM rooms WHERE $1 = ANY(members) ORDER BY created_at", userId)
	if err != nil {
		return nil, mapPgErr(err)
	}

	rooms := make([]Room, 0, len(rows))
	for _, r := range rows {
		rooms = append(rooms, r.toRoom())
	}
	return rooms, nil
}

// AddRoomMember appends userId unless already present. The row lock taken by
// UPDATE makes concurrent joins of the same user safe.
func (db *PgRepository) AddRoomMember(ctx context.Context, roomId, userId string) (Room, error) {
	return db.getRoom(ctx,
		"UPDATE rooms SET members = CASE WHEN $2 = ANY(members) THEN members ELSE array_append(members, $2) END, "+
			"updated_at = $3 WHERE id = $1 RETURNING "+roomColumns,
		roomId, userId, time.Now().UTC(),
	)
}

func (db *PgRepository) RemoveRoomMember(ctx context.Context, roomId, userId string) error {
	return expectAffected(db.conn.ExecContext(ctx,
		"UPDATE rooms SET members = array_remove(members, $2), updated_at = $3 WHERE id = $1",
		roomId, userId, time.Now().UTC(),
	))
}

func (db *PgRepository) IsRoomMember(ctx context.Context, roomId, userId string) (bool, error) {
	var isMember bool
	err := db.conn.GetContext(ctx, &isMember, "SELECT $2 = ANY(members) FROM rooms WHERE id = $1", roomId, userId)
	return isMember, mapPgErr(err)
}

func (db *PgRepository) UpdateRoomName(ctx context.Context, roomId, name string) (Room, error) {
	return db.getRoom(ctx,
		"UPDATE rooms SET name = $2, updated_at = $3 WHERE id = $1 RETURNING "+roomColumns,
		roomId, name, time.Now().UTC(),
	)
}

func (db *PgRepository) DeleteRoom(ctx context.Context, roomId string) error {
	tx, err := db.conn.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"chores", "expenses", "chat_messages", "events"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE room_id = $1", roomId); err != nil {
			return fmt.Errorf("delete %s: %w", table, err)
		}
	}

	if err := expectAffected(tx.ExecContext(ctx, "DELETE FROM rooms WHERE id = $1", roomId)); err != nil {
		return err
	}

	return tx.Commit()
}

func (db *PgRepository) CreateChore(ctx context.Context, chore Chore) (Chore, error) {
	_, err := db.conn.ExecContext(ctx,
		"INSERT INTO chores ("+choreColumns+") VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)",
		chore.Id, chore.RoomId, chore.Title, chore.AssignedTo, chore.Completed, chore.CompletedAt,
		chore.Recurrence, chore.DueDate, chore.CreatedAt, chore.UpdatedAt,
	)
	if err != nil {
		return Chore{}, mapPgErr(err)
	}
	return chore, nil
}

func (db *PgRepository) GetChore(ctx context.Context, id string) (Chore, error) {
	var c Chore
	err := db.conn.GetContext(ctx, &c, "SELECT "+choreColumns+" FROM chores WHERE id = $1", id)
	return c, mapPgErr(err)
}

func (db *PgRepository) ListChores(ctx context.Context, roomId string) ([]Chore, error) {
	chores := []Chore{}
	err := db.conn.SelectContext(ctx, &chores,
		"SELECT "+choreColumns+" FROM chores WHERE room_id = $1 ORDER BY created_at DESC", roomId)
	return chores, mapPgErr(err)
}

func (db *PgRepository) ListCompletedRecurringChores(ctx context.Context) ([]Chore, error) {
	chores := []Chore{}
	err := db.conn.SelectContext(ctx, &chores,
		"SELECT "+choreColumns+" FROM chores WHERE completed AND recurrence = ANY($1)",
		pq.Array([]string{RecurrenceDaily, RecurrenceWeekly, RecurrenceMonthly}))
	return chores, mapPgErr(err)
}

func (db *PgRepository) UpdateChore(ctx context.Context, chore Chore) (Chore, error) {
	err := expectAffected(db.conn.ExecContext(ctx,
		"UPDATE chores SET room_id = $2, title = $3, assigned_to = $4, completed = $5, completed_at = $6, "+
			"recurrence = $7, due_date = $8, updated_at = $9 WHERE id = $1",
		chore.Id, chore.RoomId, chore.Title, chore.AssignedTo, chore.Completed, chore.CompletedAt,
		chore.Recurrence, chore.DueDate, chore.UpdatedAt,
	))
	if err != nil {
		return Chore{}, err
	}
	return chore, nil
}

func (db *PgRepository) DeleteChore(ctx context.Context, id string) error {
	return expectAffected(db.conn.ExecContext(ctx, "DELETE FROM chores WHERE id = $1", id))
}

func (db *PgRepository) CreateExpense(ctx context.Context, expense Expense) (Expense, error) {
	_, err := db.conn.ExecContext(ctx,
		"INSERT INTO expenses ("+expenseColumns+") VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)",
		expense.Id, expense.RoomId, expense.Description, expense.Amount, expense.PaidBy,
		pq.Array(expense.SplitBetween), expense.Date, expense.CreatedAt, expense.UpdatedAt,
	)
	if err != nil {
		return Expense{}, mapPgErr(err)
	}
	return expense, nil
}

func (db *PgRepository) GetExpense(ctx context.Context, id string) (Expense, error) {
	var e pgExpense
	if err := db.conn.GetContext(ctx, &e, "SELECT "+expenseColumns+" FROM expenses WHERE id = $1", id); err != nil {
		return Expense{}, mapPgErr(err)
	}
	return e.toExpense(), nil
}

func (db *PgRepository) ListExpenses(ctx context.Context, roomId string) ([]Expense, error) {
	var rows []pgExpense
	err := db.conn.SelectContext(ctx, &rows,
		"SELECT "+expenseColumns+" FROM expenses WHERE room_id = $1 ORDER BY date DESC", roomId)
	if err != nil {
		return nil, mapPgErr(err)
	}

	expenses := make([]Expense, 0, len(rows))
	for _, e := range rows {
		expenses = append(expenses, e.toExpense())
	}
	return expenses, nil
}

func (db *PgRepository) UpdateExpense(ctx context.Context, expense Expense) (Expense, error) {
	err := expectAffected(db.conn.ExecContext(ctx,
		"UPDATE expenses SET room_id = $2, description = $3, amount = $4, paid_by = $5, split_between = $6, "+
			"date = $7, updated_at = $8 WHERE id = $1",
		expense.Id, expense.RoomId, expense.Description, expense.Amount, expense.PaidBy,
		pq.Array(expense.SplitBetween), expense.Date, expense.UpdatedAt,
	))
	if err != nil {
		return Expense{}, err
	}
	return expense, nil
}

func (db *PgRepository) DeleteExpense(ctx context.Context, id string) error {
	return expectAffected(db.conn.ExecContext(ctx, "DELETE FROM expenses WHERE id = $1", id))
}

func (db *PgRepository) CreateMessage(ctx context.Context, msg Message) (Message, error) {
	_, err := db.conn.ExecContext(ctx,
		"INSERT INTO chat_messages ("+messageColumns+") VALUES ($1, $2, $3, $4, $5, $6, $7)",
		msg.Id, msg.RoomId, msg.SenderId, msg.Text, msg.RelatedType, msg.RelatedId, msg.CreatedAt,
	)
	if err != nil {
		return Message{}, mapPgErr(err)
	}
	return msg, nil
}

func (db *PgRepository) ListMessages(ctx context.Context, filter MessageFilter) ([]Message, error) {
	where := "room_id = $1"
	args := []any{filter.RoomId}
	if !filter.Before.IsZero() {
		args = append(args, filter.Before)
		where += fmt.Sprintf(" AND created_at < $%d", len(args))
	}
	args = append(args, clampLimit(filter.Limit))

	query := fmt.Sprintf(
		"SELECT %s FROM (SELECT %s FROM chat_messages WHERE %s ORDER BY created_at DESC, id DESC LIMIT $%d) page "+
			"ORDER BY created_at, id",
		messageColumns, messageColumns, where, len(args),
	)

	msgs := []Message{}
	err := db.conn.SelectContext(ctx, &msgs, query, args...)
	return msgs, mapPgErr(err)
}

func (db *PgRepository) CreateEvent(ctx context.Context, event Event) (Event, error) {
	_, err := db.conn.ExecContext(ctx,
		"INSERT INTO events ("+eventColumns+") VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)",
		event.Id, event.RoomId, event.Title, event.Description, event.Type, event.StartDate, event.EndDate,
		event.AllDay, event.CreatedBy, pq.Array(event.Attendees), event.Location, event.Recurrence,
		event.BillAmount, event.IsPaid, event.CreatedAt, event.UpdatedAt,
	)
	if err != nil {
		return Event{}, mapPgErr(err)
	}
	return event, nil
}

func (db *PgRepository) GetEvent(ctx context.Context, id string) (Event, error) {
	var e pgEvent
	if err := db.conn.GetContext(ctx, &e, "SELECT "+eventColumns+" FROM events WHERE id = $1", id); err != nil {
		return Event{}, mapPgErr(err)
	}
	return e.toEvent(), nil
}

func (db *PgRepository) ListEvents(ctx context.Context, filter EventFilter) ([]Event, error) {
	conds := []string{"room_id = $1"}
	args := []any{filter.RoomId}

	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if filter.Start != nil {
		add("start_date >= $%d", *filter.Start)
	}
	if filter.End != nil {
		add("start_date <= $%d", *filter.End)
	}
	if filter.UnpaidOnly {
		add("type = $%d", EventBill)
		conds = append(conds, "NOT is_paid")
	} else if filter.Type != "" {
		add("type = $%d", filter.Type)
	}

	query := "SELECT " + eventColumns + " FROM events WHERE " + strings.Join(conds, " AND ") + " ORDER BY start_date"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	var rows []pgEvent
	if err := db.conn.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, mapPgErr(err)
	}

	events := make([]Event, 0, len(rows))
	for _, e := range rows {
		events = append(events, e.toEvent())
	}
	return events, nil
}

func (db *PgRepository) UpdateEvent(ctx context.Context, event Event) (Event, error) {
	err := expectAffected(db.conn.ExecContext(ctx,
		"UPDATE events SET room_id = $2, title = $3, description = $4, type = $5, start_date = $6, end_date = $7, "+
			"all_day = $8, attendees = $9, location = $10, recurrence = $11, bill_amount = $12, is_paid = $13, "+
			"updated_at = $14 WHERE id = $1",
		event.Id, event.RoomId, event.Title, event.Description, event.Type, event.StartDate, event.EndDate,
		event.AllDay, pq.Array(event.Attendees), event.Location, event.Recurrence, event.BillAmount,
		event.IsPaid, event.UpdatedAt,
	))
	if err != nil {
		return Event{}, err
	}
	return event, nil
}

func (db *PgRepository) DeleteEvent(ctx context.Context, id string) error {
	return expectAffected(db.conn.ExecContext(ctx, "DELETE FROM events WHERE id = $1", id))
}

func (db *PgRepository) AssignOrphans(ctx context.Context, roomId string) (int64, error) {
	var total int64
	for _, table := range []string{"chores", "expenses", "events"} {
		res, err := db.conn.ExecContext(ctx, "UPDATE "+table+" SET room_id = $1 WHERE room_id = ''", roomId)
		if err != nil {
			return total, fmt.Errorf("assign %s: %w", table, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}
