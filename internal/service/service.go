// Package service holds the room-scoped business rules: membership gating,
// validation and the mapping between stored records and API views.
package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"github.com/npezzotti/fairshare/internal/database"
	"github.com/npezzotti/fairshare/internal/types"
	"github.com/teris-io/shortid"
	"go.uber.org/zap"
)

var idPattern = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)

type Service struct {
	log          *zap.Logger
	db           database.Repository
	generateCode func() (string, error)
	newId        func() string
	now          func() time.Time
	sanitizer    *bluemonday.Policy
}

func New(logger *zap.Logger, db database.Repository) *Service {
	return &Service{
		log:          logger,
		db:           db,
		generateCode: shortid.Generate,
		newId:        uuid.NewString,
		now:          func() time.Time { return time.Now().UTC() },
		sanitizer:    bluemonday.UGCPolicy(),
	}
}

// Ping reports whether the backing store is reachable.
func (s *Service) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// IsMember reports whether userId belongs to roomId. A missing room is
// reported as NotFound.
func (s *Service) IsMember(ctx context.Context, roomId, userId string) (bool, error) {
	ok, err := s.db.IsRoomMember(ctx, roomId, userId)
	if errors.Is(err, database.ErrNotFound) {
		return false, notFound("room")
	}
	if err != nil {
		return false, fmt.Errorf("is room member: %w", err)
	}
	return ok, nil
}

func (s *Service) requireMember(ctx context.Context, roomId, userId string) error {
	ok, err := s.IsMember(ctx, roomId, userId)
	if err != nil {
		return err
	}
	if !ok {
		return forbidden("not a member of this room")
	}
	return nil
}

// scopeRoom returns the room a request operates on: the explicit roomId when
// given, otherwise the default room. The caller must be a member. Records
// written before rooms existed carry no room and take the same fallback.
func (s *Service) scopeRoom(ctx context.Context, userId, roomId string) (string, error) {
	if roomId == "" {
		room, err := s.EnsureDefaultRoom(ctx, userId)
		if err != nil {
			return "", err
		}
		return room.Id, nil
	}

	if err := s.requireMember(ctx, roomId, userId); err != nil {
		return "", err
	}
	return roomId, nil
}

func (s *Service) usersById(ctx context.Context, ids []string) (map[string]database.User, error) {
	users := make(map[string]database.User, len(ids))
	if len(ids) == 0 {
		return users, nil
	}

	found, err := s.db.GetUsersByIds(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("get users by ids: %w", err)
	}
	for _, u := range found {
		users[u.Id] = u
	}
	return users, nil
}

// dedupe trims ids, drops blanks and keeps the first occurrence of each.
func dedupe(ids []string) []string {
	out := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func containsAll(set []string, ids []string) bool {
	members := make(map[string]struct{}, len(set))
	for _, m := range set {
		members[m] = struct{}{}
	}
	for _, id := range ids {
		if _, ok := members[id]; !ok {
			return false
		}
	}
	return true
}

func isId(s string) bool {
	return idPattern.MatchString(s)
}

func length(s string) int {
	return utf8.RuneCountInString(s)
}

func toUserView(u database.User) types.User {
	return types.User{
		Id:          u.Id,
		DisplayName: u.DisplayName,
		Email:       u.Email,
		Bio:         u.Bio,
		AvatarURL:   u.AvatarURL,
		CreatedAt:   u.CreatedAt,
		UpdatedAt:   u.UpdatedAt,
	}
}

func toRoomView(r database.Room) types.Room {
	members := r.Members
	if members == nil {
		members = []string{}
	}
	return types.Room{
		Id:        r.Id,
		Name:      r.Name,
		Code:      r.Code,
		CreatedBy: r.CreatedBy,
		Members:   members,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}
