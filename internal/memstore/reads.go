package memstore

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"chat-core/internal/models"
)

// ReadStore implements repositories.ReadRepository.
type ReadStore struct{ s *Store }

func (r *ReadStore) IncrementViews(_ context.Context, ids []uuid.UUID, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, id := range ids {
		v := r.s.views[id]
		v.views++
		v.lastViewAt = at
		r.s.views[id] = v
	}
	return nil
}

func (r *ReadStore) MarkAggregate(_ context.Context, ids []uuid.UUID, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, id := range ids {
		a, ok := r.s.aggregates[id]
		if !ok || a.firstReadAt.IsZero() {
			a.firstReadAt = at
		}
		a.isRead = true
		r.s.aggregates[id] = a
	}
	return nil
}

func (r *ReadStore) MarkPerReader(_ context.Context, ids []uuid.UUID, userID uuid.UUID, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, id := range ids {
		set, ok := r.s.perReader[id]
		if !ok {
			set = make(map[uuid.UUID]time.Time)
			r.s.perReader[id] = set
		}
		set[userID] = at
	}
	return nil
}

func (r *ReadStore) CountReaders(_ context.Context, messageID uuid.UUID) (int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return len(r.s.perReader[messageID]), nil
}

func (r *ReadStore) ListReaders(_ context.Context, messageID uuid.UUID, limit int) ([]models.Reader, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	set := r.s.perReader[messageID]
	out := make([]models.Reader, 0, len(set))
	for userID, at := range set {
		out = append(out, models.Reader{UserID: userID, Username: r.s.users[userID].Username, ReadAt: at})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ReadAt.After(out[j].ReadAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *ReadStore) PurgePerReaderBefore(_ context.Context, cutoff time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var purged int64
	for messageID, set := range r.s.perReader {
		for userID, at := range set {
			if at.Before(cutoff) {
				delete(set, userID)
				purged++
			}
		}
		if len(set) == 0 {
			delete(r.s.perReader, messageID)
		}
	}
	return purged, nil
}
