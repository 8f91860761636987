package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"survey-backend/internal/metadata"
	"survey-backend/internal/store"
)

// PgRoundStore keeps rounds in Postgres.
type PgRoundStore struct {
	db *store.Store
}

func NewPgRoundStore(db *store.Store) *PgRoundStore {
	return &PgRoundStore{db: db}
}

func (s *PgRoundStore) LoadBase(ctx context.Context, baseID string) (*metadata.RosterRecord, *metadata.Snapshot, error) {
	base, err := store.GetRosterRecord(ctx, s.db.Pool, baseID)
	if err != nil {
		return nil, nil, err
	}
	snap, err := store.LoadSnapshot(ctx, s.db.Pool, base.RosterID)
	if err != nil {
		return nil, nil, err
	}
	return base, snap, nil
}

func (s *PgRoundStore) GetRound(ctx context.Context, baseID string, degree int) (*metadata.CollectionRecord, error) {
	return store.GetCollectionRecord(ctx, s.db.Pool, baseID, degree)
}

// SaveRound locks the round, creating it first when this is its first save.
// A new round inherits the assignment of base and starts from the roster's
// prefill mapping. When a concurrent transaction creates the round between
// the lock attempt and the insert, the insert yields and the round is locked
// again; a round that still cannot be found is reported as a conflict.
func (s *PgRoundStore) SaveRound(ctx context.Context, base *metadata.RosterRecord, snap *metadata.Snapshot, degree int, fn func(*metadata.CollectionRecord)) (*metadata.CollectionRecord, error) {
	var round *metadata.CollectionRecord
	err := s.db.WithTx(ctx, func(tx pgx.Tx) error {
		var err error
		round, err = store.LockCollectionRecord(ctx, tx, base.ID, degree)
		switch {
		case err == nil:
		case errors.Is(err, store.ErrNotFound):
			round, err = s.create(ctx, tx, base, snap, degree)
			if err != nil {
				return err
			}
		default:
			return err
		}

		fn(round)
		return store.UpdateCollectionRecord(ctx, tx, round)
	})
	if err != nil {
		return nil, err
	}
	return round, nil
}

func (s *PgRoundStore) create(ctx context.Context, tx pgx.Tx, base *metadata.RosterRecord, snap *metadata.Snapshot, degree int) (*metadata.CollectionRecord, error) {
	round := metadata.NewCollectionRecord(base, degree)
	if snap != nil && snap.Roster != nil {
		round.Answers = *snap.Roster.Prefill(base.ListValues, snap.CurrentForms())
	}

	err := store.InsertCollectionRecord(ctx, tx, round)
	if err == nil {
		return round, nil
	}
	if !errors.Is(err, store.ErrUniqueViolation) {
		return nil, err
	}

	round, err = store.LockCollectionRecord(ctx, tx, base.ID, degree)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: round %s/%d vanished after insert conflict", store.ErrConflict, base.ID, degree)
	}
	return round, err
}

func (s *PgRoundStore) ListRecords(ctx context.Context, f store.RecordFilter) ([]*metadata.RosterRecord, int64, error) {
	return store.ListRosterRecords(ctx, s.db.Pool, f)
}

func (s *PgRoundStore) AreaTree(ctx context.Context) (*metadata.AreaTree, error) {
	return store.LoadAreaTree(ctx, s.db.Pool)
}

func (s *PgRoundStore) ListRoundRows(ctx context.Context, rosterID string, degree int) ([]store.RoundRow, error) {
	return store.ListRoundRows(ctx, s.db.Pool, rosterID, degree)
}
