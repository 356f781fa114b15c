package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/npezzotti/fairshare/internal/database"
	"github.com/npezzotti/fairshare/internal/types"
)

const maxMessageLength = 2000

type PostMessageParams struct {
	RoomId      string
	Text        string
	RelatedType string
	RelatedId   string
}

type HistoryParams struct {
	RoomId string
	Before time.Time
	Limit  int
}

func validatePostMessage(p *PostMessageParams) error {
	p.RoomId = strings.TrimSpace(p.RoomId)
	p.Text = strings.TrimSpace(p.Text)
	p.RelatedType = strings.TrimSpace(p.RelatedType)
	p.RelatedId = strings.TrimSpace(p.RelatedId)

	v := &validator{}
	v.check(p.RoomId != "", "room_id", "is required")
	v.check(p.Text != "", "text", "is required")
	v.check(length(p.Text) <= maxMessageLength, "text", fmt.Sprintf("must be at most %d characters", maxMessageLength))

	switch {
	case p.RelatedType == "" && p.RelatedId == "":
	case p.RelatedType == "" || p.RelatedId == "":
		v.check(false, "related", "related_type and related_id must be given together")
	default:
		v.check(p.RelatedType == database.RelatedChore || p.RelatedType == database.RelatedExpense,
			"related_type", "must be chore or expense")
		v.check(isId(p.RelatedId), "related_id", "must be a valid id")
	}

	return v.err()
}

// PostMessage stores a chat message from senderId. Membership is checked at
// send time; the returned message carries the resolved sender and is what
// gets broadcast to the room.
func (s *Service) PostMessage(ctx context.Context, senderId string, params PostMessageParams) (types.Message, error) {
	if err := validatePostMessage(&params); err != nil {
		return types.Message{}, err
	}

	if err := s.requireMember(ctx, params.RoomId, senderId); err != nil {
		return types.Message{}, err
	}

	if params.RelatedType != "" {
		ref, err := s.resolveRelated(ctx, params.RoomId, params.RelatedType, params.RelatedId)
		if err != nil {
			return types.Message{}, err
		}
		if !ref.Available {
			return types.Message{}, invalid(field("related_id", "must reference a "+params.RelatedType+" in this room"))
		}
	}

	msg, err := s.db.CreateMessage(ctx, database.Message{
		Id:          s.newId(),
		RoomId:      params.RoomId,
		SenderId:    senderId,
		Text:        params.Text,
		RelatedType: params.RelatedType,
		RelatedId:   params.RelatedId,
		CreatedAt:   s.now(),
	})
	if err != nil {
		return types.Message{}, fmt.Errorf("create message: %w", err)
	}

	views, err := s.resolveMessages(ctx, []database.Message{msg})
	if err != nil {
		return types.Message{}, err
	}
	return views[0], nil
}

// History returns a page of a room's messages, oldest first. Before pages
// backwards from the given timestamp.
func (s *Service) History(ctx context.Context, userId string, params HistoryParams) ([]types.Message, error) {
	if err := s.requireMember(ctx, params.RoomId, userId); err != nil {
		return nil, err
	}

	msgs, err := s.db.ListMessages(ctx, database.MessageFilter{
		RoomId: params.RoomId,
		Before: params.Before,
		Limit:  params.Limit,
	})
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}

	return s.resolveMessages(ctx, msgs)
}

// resolveMessages attaches sender profiles and related references. A related
// chore or expense that no longer exists is marked unavailable.
func (s *Service) resolveMessages(ctx context.Context, msgs []database.Message) ([]types.Message, error) {
	senderIds := make([]string, 0, len(msgs))
	for _, m := range msgs {
		senderIds = append(senderIds, m.SenderId)
	}

	users, err := s.usersById(ctx, dedupe(senderIds))
	if err != nil {
		return nil, err
	}

	refs := make(map[string]*types.RelatedRef)
	views := make([]types.Message, 0, len(msgs))
	for _, m := range msgs {
		sender, ok := users[m.SenderId]
		if !ok {
			sender = database.User{Id: m.SenderId, DisplayName: "Former roommate"}
		}

		view := types.Message{
			Id:        m.Id,
			RoomId:    m.RoomId,
			Sender:    types.User{Id: sender.Id, DisplayName: sender.DisplayName, AvatarURL: sender.AvatarURL},
			Text:      m.Text,
			CreatedAt: m.CreatedAt,
		}

		if m.RelatedType != "" && m.RelatedId != "" {
			key := m.RoomId + ":" + m.RelatedType + ":" + m.RelatedId
			ref, ok := refs[key]
			if !ok {
				ref, err = s.resolveRelated(ctx, m.RoomId, m.RelatedType, m.RelatedId)
				if err != nil {
					return nil, err
				}
				refs[key] = ref
			}
			view.Related = ref
		}

		views = append(views, view)
	}

	return views, nil
}

// resolveRelated looks up a message's related record. Records outside
// roomId are reported as unavailable, the same as deleted ones.
func (s *Service) resolveRelated(ctx context.Context, roomId, kind, id string) (*types.RelatedRef, error) {
	ref := &types.RelatedRef{Type: kind, Id: id}

	var (
		title, owner string
		err          error
	)
	switch kind {
	case database.RelatedChore:
		var c database.Chore
		c, err = s.db.GetChore(ctx, id)
		title, owner = c.Title, c.RoomId
	case database.RelatedExpense:
		var e database.Expense
		e, err = s.db.GetExpense(ctx, id)
		title, owner = e.Description, e.RoomId
	default:
		return ref, nil
	}

	if errors.Is(err, database.ErrNotFound) {
		return ref, nil
	}
	if err != nil {
		return nil, fmt.Errorf("resolve related %s: %w", kind, err)
	}
	if owner != roomId {
		return ref, nil
	}

	ref.Title = title
	ref.Available = true
	return ref, nil
}
