package chat

import (
	"context"

	"github.com/CUknot/roomchat/repository"
)

// RetentionPolicy caps how many messages a room keeps.
type RetentionPolicy struct {
	// Max is the number of most recent messages kept per room. Zero keeps none.
	Max int
}

// Enforce deletes the oldest messages of roomID beyond Max. It must run in
// the same transaction as the insert it follows.
func (p RetentionPolicy) Enforce(ctx context.Context, tx *repository.Store, roomID uint) error {
	count, err := tx.CountMessages(ctx, roomID)
	if err != nil {
		return err
	}
	max := int64(p.Max)
	if max < 0 {
		max = 0
	}
	excess := count - max
	if excess <= 0 {
		return nil
	}

	oldest, err := tx.OldestMessages(ctx, roomID, int(excess))
	if err != nil {
		return err
	}
	ids := make([]uint, len(oldest))
	for i, m := range oldest {
		ids[i] = m.ID
	}
	return tx.DeleteMessages(ctx, ids)
}
