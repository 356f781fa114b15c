package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/npezzotti/fairshare/internal/database"
	"github.com/npezzotti/fairshare/internal/types"
)

const (
	maxDisplayNameLength = 80
	maxBioLength         = 500
	maxAvatarURLLength   = 500
)

type ProfileParams struct {
	DisplayName string
	Bio         string
	AvatarURL   string
}

func (s *Service) GetProfile(ctx context.Context, userId string) (types.User, error) {
	user, err := s.db.GetUserById(ctx, userId)
	if errors.Is(err, database.ErrNotFound) {
		return types.User{}, notFound("user")
	}
	if err != nil {
		return types.User{}, fmt.Errorf("get user: %w", err)
	}
	return toUserView(user), nil
}

func (s *Service) UpdateProfile(ctx context.Context, userId string, params ProfileParams) (types.User, error) {
	name := strings.TrimSpace(params.DisplayName)
	bio := strings.TrimSpace(params.Bio)
	avatar := strings.TrimSpace(params.AvatarURL)

	v := &validator{}
	v.check(name != "", "display_name", "is required")
	v.check(length(name) <= maxDisplayNameLength, "display_name", fmt.Sprintf("must be at most %d characters", maxDisplayNameLength))
	v.check(length(bio) <= maxBioLength, "bio", fmt.Sprintf("must be at most %d characters", maxBioLength))
	v.check(length(avatar) <= maxAvatarURLLength, "avatar_url", fmt.Sprintf("must be at most %d characters", maxAvatarURLLength))
	if err := v.err(); err != nil {
		return types.User{}, err
	}

	user, err := s.db.UpdateUserProfile(ctx, database.UpdateProfileParams{
		UserId:      userId,
		DisplayName: name,
		Bio:         bio,
		AvatarURL:   avatar,
	})
	if errors.Is(err, database.ErrNotFound) {
		return types.User{}, notFound("user")
	}
	if err != nil {
		return types.User{}, fmt.Errorf("update profile: %w", err)
	}
	return toUserView(user), nil
}
