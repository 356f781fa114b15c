package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/npezzotti/fairshare/internal/database"
	"go.uber.org/zap"
)

// MigrateLegacyResources moves chores, expenses and events created before
// rooms existed into the default room. The room is created on demand and
// owned by the earliest user. With no users there is nothing to migrate.
func (s *Service) MigrateLegacyResources(ctx context.Context) error {
	owner, err := s.db.GetEarliestUser(ctx)
	if errors.Is(err, database.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("get earliest user: %w", err)
	}

	room, err := s.findOrCreateDefaultRoom(ctx, owner.Id)
	if err != nil {
		return err
	}

	n, err := s.db.AssignOrphans(ctx, room.Id)
	if err != nil {
		return fmt.Errorf("assign orphans: %w", err)
	}

	if n > 0 {
		s.log.Info("migrated legacy records into default room", zap.String("room_id", room.Id), zap.Int64("count", n))
	}
	return nil
}
