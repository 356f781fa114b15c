package types

import (
	"time"

	"github.com/shopspring/decimal"
)

type User struct {
	Id          string    `json:"id"`
	DisplayName string    `json:"display_name"`
	Email       string    `json:"email,omitempty"`
	Bio         string    `json:"bio,omitempty"`
	AvatarURL   string    `json:"avatar_url,omitempty"`
	CreatedAt   time.Time `json:"created_at,omitempty"`
	UpdatedAt   time.Time `json:"updated_at,omitempty"`
}

type Room struct {
	Id        string    `json:"id"`
	Name      string    `json:"name"`
	Code      string    `json:"code"`
	CreatedBy string    `json:"created_by"`
	Members   []string  `json:"members"`
	CreatedAt time.Time `json:"created_at,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

type Chore struct {
	Id          string     `json:"id"`
	RoomId      string     `json:"room_id"`
	Title       string     `json:"title"`
	AssignedTo  string     `json:"assigned_to,omitempty"`
	Completed   bool       `json:"completed"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Recurrence  string     `json:"recurrence"`
	DueDate     *time.Time `json:"due_date,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

type Expense struct {
	Id           string          `json:"id"`
	RoomId       string          `json:"room_id"`
	Description  string          `json:"description"`
	Amount       decimal.Decimal `json:"amount"`
	PaidBy       string          `json:"paid_by"`
	SplitBetween []string        `json:"split_between"`
	Date         time.Time       `json:"date"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

type Event struct {
	Id          string           `json:"id"`
	RoomId      string           `json:"room_id"`
	Title       string           `json:"title"`
	Description string           `json:"description"`
	Type        string           `json:"type"`
	StartDate   time.Time        `json:"start_date"`
	EndDate     *time.Time       `json:"end_date,omitempty"`
	AllDay      bool             `json:"all_day"`
	CreatedBy   string           `json:"created_by"`
	Attendees   []string         `json:"attendees"`
	Location    string           `json:"location,omitempty"`
	Recurrence  string           `json:"recurrence,omitempty"`
	BillAmount  *decimal.Decimal `json:"bill_amount,omitempty"`
	IsPaid      bool             `json:"is_paid"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

// RelatedRef points a chat message at a chore or expense. Available is false
// once the target has been deleted.
type RelatedRef struct {
	Type      string `json:"type"`
	Id        string `json:"id"`
	Title     string `json:"title,omitempty"`
	Available bool   `json:"available"`
}

type Message struct {
	Id        string      `json:"id"`
	RoomId    string      `json:"room_id"`
	Sender    User        `json:"sender"`
	Text      string      `json:"text"`
	Related   *RelatedRef `json:"related,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
}

type Balance struct {
	UserId      string          `json:"user_id"`
	DisplayName string          `json:"display_name"`
	Balance     decimal.Decimal `json:"balance"`
}

type Settlement struct {
	From   string          `json:"from"`
	To     string          `json:"to"`
	Amount decimal.Decimal `json:"amount"`
}

type BalanceSummary struct {
	Balances    []Balance    `json:"balances"`
	Settlements []Settlement `json:"settlements"`
}
