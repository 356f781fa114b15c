package database

import (
	"time"

	"github.com/shopspring/decimal"
)

type User struct {
	Id          string    `bson:"_id" db:"id"`
	Subject     string    `bson:"subject" db:"subject"`
	Email       string    `bson:"email" db:"email"`
	DisplayName string    `bson:"display_name" db:"display_name"`
	Bio         string    `bson:"bio" db:"bio"`
	AvatarURL   string    `bson:"avatar_url" db:"avatar_url"`
	CreatedAt   time.Time `bson:"created_at" db:"created_at"`
	UpdatedAt   time.Time `bson:"updated_at" db:"updated_at"`
}

type Room struct {
	Id        string    `bson:"_id" db:"id"`
	Name      string    `bson:"name" db:"name"`
	Code      string    `bson:"code" db:"code"`
	CreatedBy string    `bson:"created_by" db:"created_by"`
	Members   []string  `bson:"members" db:"-"`
	CreatedAt time.Time `bson:"created_at" db:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" db:"updated_at"`
}

const (
	RecurrenceNone    = "none"
	RecurrenceDaily   = "daily"
	RecurrenceWeekly  = "weekly"
	RecurrenceMonthly = "monthly"
	RecurrenceYearly  = "yearly"
)

type Chore struct {
	Id          string     `bson:"_id" db:"id"`
	RoomId      string     `bson:"room_id" db:"room_id"`
	Title       string     `bson:"title" db:"title"`
	AssignedTo  string     `bson:"assigned_to" db:"assigned_to"`
	Completed   bool       `bson:"completed" db:"completed"`
	CompletedAt *time.Time `bson:"completed_at" db:"completed_at"`
	Recurrence  string     `bson:"recurrence" db:"recurrence"`
	DueDate     *time.Time `bson:"due_date" db:"due_date"`
	CreatedAt   time.Time  `bson:"created_at" db:"created_at"`
	UpdatedAt   time.Time  `bson:"updated_at" db:"updated_at"`
}

type Expense struct {
	Id           string          `bson:"_id" db:"id"`
	RoomId       string          `bson:"room_id" db:"room_id"`
	Description  string          `bson:"description" db:"description"`
	Amount       decimal.Decimal `bson:"amount" db:"amount"`
	PaidBy       string          `bson:"paid_by" db:"paid_by"`
	SplitBetween []string        `bson:"split_between" db:"-"`
	Date         time.Time       `bson:"date" db:"date"`
	CreatedAt    time.Time       `bson:"created_at" db:"created_at"`
	UpdatedAt    time.Time       `bson:"updated_at" db:"updated_at"`
}

const (
	RelatedChore   = "chore"
	RelatedExpense = "expense"
)

type Message struct {
	Id          string    `bson:"_id" db:"id"`
	RoomId      string    `bson:"room_id" db:"room_id"`
	SenderId    string    `bson:"sender_id" db:"sender_id"`
	Text        string    `bson:"text" db:"text"`
	RelatedType string    `bson:"related_type" db:"related_type"`
	RelatedId   string    `bson:"related_id" db:"related_id"`
	CreatedAt   time.Time `bson:"created_at" db:"created_at"`
}

const (
	EventParty       = "party"
	EventGuest       = "guest"
	EventMaintenance = "maintenance"
	EventBill        = "bill"
	EventOther       = "other"
)

type Event struct {
	Id          string           `bson:"_id" db:"id"`
	RoomId      string           `bson:"room_id" db:"room_id"`
	Title       string           `bson:"title" db:"title"`
	Description string           `bson:"description" db:"description"`
	Type        string           `bson:"type" db:"type"`
	StartDate   time.Time        `bson:"start_date" db:"start_date"`
	EndDate     *time.Time       `bson:"end_date" db:"end_date"`
	AllDay      bool             `bson:"all_day" db:"all_day"`
	CreatedBy   string           `bson:"created_by" db:"created_by"`
	Attendees   []string         `bson:"attendees" db:"-"`
	Location    string           `bson:"location" db:"location"`
	Recurrence  string           `bson:"recurrence" db:"recurrence"`
	BillAmount  *decimal.Decimal `bson:"bill_amount" db:"bill_amount"`
	IsPaid      bool             `bson:"is_paid" db:"is_paid"`
	CreatedAt   time.Time        `bson:"created_at" db:"created_at"`
	UpdatedAt   time.Time        `bson:"updated_at" db:"updated_at"`
}

type UpdateProfileParams struct {
	UserId      string
	DisplayName string
	Bio         string
	AvatarURL   string
}

// MessageFilter selects a page of a room's history. Zero Before means the
// newest messages.
type MessageFilter struct {
	RoomId string
	Before time.Time
	Limit  int
}

type EventFilter struct {
	RoomId     string
	Start      *time.Time
	End        *time.Time
	Type       string
	UnpaidOnly bool
	Limit      int
}
