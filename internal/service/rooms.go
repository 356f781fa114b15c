package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/npezzotti/fairshare/internal/database"
	"github.com/npezzotti/fairshare/internal/types"
	"go.uber.org/zap"
)

const (
	DefaultRoomCode = "DEFAULT"
	DefaultRoomName = "Default Room"

	maxRoomNameLength = 100
	createRoomRetries = 3
)

func validateRoomName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", invalid(field("name", "is required"))
	}
	if length(name) > maxRoomNameLength {
		return "", invalid(field("name", fmt.Sprintf("must be at most %d characters", maxRoomNameLength)))
	}
	return name, nil
}

// CreateRoom creates a room owned by creatorId with a fresh join code.
func (s *Service) CreateRoom(ctx context.Context, creatorId, name string) (types.Room, error) {
	name, err := validateRoomName(name)
	if err != nil {
		return types.Room{}, err
	}

	var lastErr error
	for attempt := 0; attempt < createRoomRetries; attempt++ {
		code, err := s.generateCode()
		if err != nil {
			return types.Room{}, fmt.Errorf("generate join code: %w", err)
		}

		now := s.now()
		room, err := s.db.CreateRoom(ctx, database.Room{
			Id:        s.newId(),
			Name:      name,
			Code:      code,
			CreatedBy: creatorId,
			Members:   []string{creatorId},
			CreatedAt: now,
			UpdatedAt: now,
		})
		if err == nil {
			s.log.Info("created room", zap.String("room_id", room.Id), zap.String("user_id", creatorId))
			return toRoomView(room), nil
		}
		if !errors.Is(err, database.ErrDuplicate) {
			return types.Room{}, fmt.Errorf("create room: %w", err)
		}

		s.log.Warn("join code collision", zap.String("code", code), zap.Int("attempt", attempt+1))
		lastErr = err
	}

	return types.Room{}, conflict("could not allocate a unique join code", lastErr)
}

// JoinRoom adds userId to the room with the given join code. Joining twice
// is a no-op.
func (s *Service) JoinRoom(ctx context.Context, code, userId string) (types.Room, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return types.Room{}, invalid(field("code", "is required"))
	}

	room, err := s.db.GetRoomByCode(ctx, code)
	if errors.Is(err, database.ErrNotFound) {
		return types.Room{}, notFound("room")
	}
	if err != nil {
		return types.Room{}, fmt.Errorf("get room by code: %w", err)
	}

	room, err = s.db.AddRoomMember(ctx, room.Id, userId)
	if err != nil {
		return types.Room{}, fmt.Errorf("add room member: %w", err)
	}

	return toRoomView(room), nil
}

// EnsureDefaultRoom returns the shared fallback room, creating it on first
// use, and makes userId a member. Concurrent first callers race on the
// unique join code; the loser reads the winner's room.
func (s *Service) EnsureDefaultRoom(ctx context.Context, userId string) (types.Room, error) {
	room, err := s.findOrCreateDefaultRoom(ctx, userId)
	if err != nil {
		return types.Room{}, err
	}

	if containsAll(room.Members, []string{userId}) {
		return toRoomView(room), nil
	}

	room, err = s.db.AddRoomMember(ctx, room.Id, userId)
	if err != nil {
		return types.Room{}, fmt.Errorf("add default room member: %w", err)
	}
	return toRoomView(room), nil
}

func (s *Service) findOrCreateDefaultRoom(ctx context.Context, ownerId string) (database.Room, error) {
	room, err := s.db.GetRoomByCode(ctx, DefaultRoomCode)
	if err == nil {
		return room, nil
	}
	if !errors.Is(err, database.ErrNotFound) {
		return database.Room{}, fmt.Errorf("get default room: %w", err)
	}

	now := s.now()
	room, err = s.db.CreateRoom(ctx, database.Room{
		Id:        s.newId(),
		Name:      DefaultRoomName,
		Code:      DefaultRoomCode,
		CreatedBy: ownerId,
		Members:   []string{ownerId},
		CreatedAt: now,
		UpdatedAt: now,
	})
	if errors.Is(err, database.ErrDuplicate) {
		room, err = s.db.GetRoomByCode(ctx, DefaultRoomCode)
	}
	if err != nil {
		return database.Room{}, fmt.Errorf("create default room: %w", err)
	}

	return room, nil
}

func (s *Service) ListRooms(ctx context.Context, userId string) ([]types.Room, error) {
	rooms, err := s.db.ListRoomsForUser(ctx, userId)
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}

	views := make([]types.Room, 0, len(rooms))
	for _, r := range rooms {
		views = append(views, toRoomView(r))
	}
	return views, nil
}

func (s *Service) getRoom(ctx context.Context, roomId string) (database.Room, error) {
	room, err := s.db.GetRoomById(ctx, roomId)
	if errors.Is(err, database.ErrNotFound) {
		return database.Room{}, notFound("room")
	}
	if err != nil {
		return database.Room{}, fmt.Errorf("get room: %w", err)
	}
	return room, nil
}

// GetRoom returns a room the caller belongs to.
func (s *Service) GetRoom(ctx context.Context, roomId, userId string) (types.Room, error) {
	room, err := s.getRoom(ctx, roomId)
	if err != nil {
		return types.Room{}, err
	}
	if !containsAll(room.Members, []string{userId}) {
		return types.Room{}, forbidden("not a member of this room")
	}
	return toRoomView(room), nil
}

// ListMembers returns the profiles of a room's members.
func (s *Service) ListMembers(ctx context.Context, roomId, userId string) ([]types.User, error) {
	room, err := s.getRoom(ctx, roomId)
	if err != nil {
		return nil, err
	}
	if !containsAll(room.Members, []string{userId}) {
		return nil, forbidden("not a member of this room")
	}

	users, err := s.usersById(ctx, room.Members)
	if err != nil {
		return nil, err
	}

	members := make([]types.User, 0, len(room.Members))
	for _, id := range room.Members {
		if u, ok := users[id]; ok {
			members = append(members, toUserView(u))
		}
	}
	return members, nil
}

// UpdateRoom renames a room. Only the creator may do this.
func (s *Service) UpdateRoom(ctx context.Context, roomId, userId, name string) (types.Room, error) {
	name, err := validateRoomName(name)
	if err != nil {
		return types.Room{}, err
	}

	room, err := s.getRoom(ctx, roomId)
	if err != nil {
		return types.Room{}, err
	}
	if room.CreatedBy != userId {
		return types.Room{}, forbidden("only the room creator can rename the room")
	}

	room, err = s.db.UpdateRoomName(ctx, roomId, name)
	if err != nil {
		return types.Room{}, fmt.Errorf("update room name: %w", err)
	}
	return toRoomView(room), nil
}

// DeleteRoom removes a room and everything scoped to it. Only the creator
// may do this.
func (s *Service) DeleteRoom(ctx context.Context, roomId, userId string) error {
	room, err := s.getRoom(ctx, roomId)
	if err != nil {
		return err
	}
	if room.CreatedBy != userId {
		return forbidden("only the room creator can delete the room")
	}

	if err := s.db.DeleteRoom(ctx, roomId); err != nil {
		return fmt.Errorf("delete room: %w", err)
	}

	s.log.Info("deleted room", zap.String("room_id", roomId), zap.String("user_id", userId))
	return nil
}

// LeaveRoom removes userId from the room. The creator cannot leave since the
// member set must always contain them.
func (s *Service) LeaveRoom(ctx context.Context, roomId, userId string) error {
	room, err := s.getRoom(ctx, roomId)
	if err != nil {
		return err
	}
	if !containsAll(room.Members, []string{userId}) {
		return forbidden("not a member of this room")
	}
	if room.CreatedBy == userId {
		return invalid(field("room_id", "the room creator cannot leave the room"))
	}

	if err := s.db.RemoveRoomMember(ctx, roomId, userId); err != nil {
		return fmt.Errorf("remove room member: %w", err)
	}
	return nil
}
