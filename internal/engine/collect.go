package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"survey-backend/internal/editing"
	"survey-backend/internal/events"
	"survey-backend/internal/instrument"
	"survey-backend/internal/logger"
	"survey-backend/internal/metadata"
	"survey-backend/internal/store"
)

const defaultMaxRetries = 3

// RoundStore is the persistence the collector needs. The Postgres
// implementation lives in collect_store.go.
type RoundStore interface {
	// LoadBase returns a base record together with the design it is
	// evaluated against.
	LoadBase(ctx context.Context, baseID string) (*metadata.RosterRecord, *metadata.Snapshot, error)
	GetRound(ctx context.Context, baseID string, degree int) (*metadata.CollectionRecord, error)
	// SaveRound fetches or creates the round under a row lock and applies
	// fn to it inside one transaction.
	SaveRound(ctx context.Context, base *metadata.RosterRecord, snap *metadata.Snapshot, degree int, fn func(*metadata.CollectionRecord)) (*metadata.CollectionRecord, error)
	ListRecords(ctx context.Context, f store.RecordFilter) ([]*metadata.RosterRecord, int64, error)
	AreaTree(ctx context.Context) (*metadata.AreaTree, error)
}

// SaveRequest is one submission of round answers.
type SaveRequest struct {
	BaseRecordID string
	Degree       int
	Answers      *metadata.AnswerSet
	Force        bool
	User         *metadata.UserContext
}

type SaveResult struct {
	State   editing.SaveState
	Outcome editing.Outcome
	Record  *metadata.CollectionRecord
}

// Collector validates submitted answers and persists the rounds that pass.
type Collector struct {
	rounds     RoundStore
	evaluator  *editing.Evaluator
	publisher  events.Publisher
	log        *logger.Logger
	maxRetries int
}

func NewCollector(rounds RoundStore, evaluator *editing.Evaluator, publisher events.Publisher, log *logger.Logger, maxRetries int) *Collector {
	if publisher == nil {
		publisher = events.Noop{}
	}
	if log == nil {
		log = logger.Nop()
	}
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}
	return &Collector{
		rounds:     rounds,
		evaluator:  evaluator,
		publisher:  publisher,
		log:        log,
		maxRetries: maxRetries,
	}
}

// loadAuthorized loads a base record and checks that user may work on it.
func (c *Collector) loadAuthorized(ctx context.Context, user *metadata.UserContext, baseID string) (*metadata.RosterRecord, *metadata.Snapshot, error) {
	base, snap, err := c.rounds.LoadBase(ctx, baseID)
	if err != nil {
		return nil, nil, MapStoreError(err, "roster_record", baseID)
	}
	if err := c.authorize(ctx, user, base); err != nil {
		return nil, nil, err
	}
	return base, snap, nil
}

func (c *Collector) authorize(ctx context.Context, user *metadata.UserContext, base *metadata.RosterRecord) error {
	err := CheckRecordAccess(user, base, nil)
	if err == nil || user == nil || len(user.Areas) == 0 || base.AreaCode == "" {
		return err
	}
	tree, err := c.rounds.AreaTree(ctx)
	if err != nil {
		return fmt.Errorf("load areas: %w", err)
	}
	return CheckRecordAccess(user, base, tree)
}

// Get returns a round. A round that was never saved comes back empty with
// status READY.
func (c *Collector) Get(ctx context.Context, user *metadata.UserContext, baseID string, degree int) (*metadata.CollectionRecord, error) {
	base, _, err := c.loadAuthorized(ctx, user, baseID)
	if err != nil {
		return nil, err
	}
	round, err := c.rounds.GetRound(ctx, baseID, degree)
	if errors.Is(err, store.ErrNotFound) {
		return metadata.NewCollectionRecord(base, degree), nil
	}
	if err != nil {
		return nil, fmt.Errorf("get round %s/%d: %w", baseID, degree, err)
	}
	return round, nil
}

// Save evaluates the submitted answers and persists them when the outcome
// allows it. Rejected and unconfirmed saves leave the store untouched.
func (c *Collector) Save(ctx context.Context, req SaveRequest) (*SaveResult, error) {
	ctx, span := instrument.GetInstrumenter(ctx).StartSpan(ctx, "engine", "collect", "round.save")
	defer span.End()
	span.SetEntity("roster_record", req.BaseRecordID)
	span.SetMetadata("degree", req.Degree)

	if req.Degree < 1 {
		span.SetStatus("error")
		return nil, BadRequestError("degree must be a positive integer")
	}
	if req.Answers == nil {
		req.Answers = &metadata.AnswerSet{}
	}

	base, snap, err := c.loadAuthorized(ctx, req.User, req.BaseRecordID)
	if err != nil {
		span.SetStatus("error")
		return nil, err
	}

	forms := confirmedForms(snap.Forms)
	outcome := c.evaluator.EvaluateAll(ctx, snap.Rules, req.Answers, editing.NewAliasTable(forms))
	result := &SaveResult{State: outcome.State(req.Force), Outcome: outcome}
	span.SetMetadata("state", string(result.State))
	instrument.RecordSave(ctx, string(result.State))

	if result.State != editing.StatePersisted {
		span.SetStatus("ok")
		return result, nil
	}

	warnings := outcome.WarningDescriptors()
	savedBy := instrument.GetUserID(ctx)
	if req.User != nil {
		savedBy = req.User.ID
	}
	apply := func(round *metadata.CollectionRecord) {
		round.Answers.Merge(req.Answers)
		round.Answers.Warnings = warnings
		round.Status = metadata.StatusIng
		round.SavedBy = savedBy
	}

	var round *metadata.CollectionRecord
	for attempt := 1; ; attempt++ {
		round, err = c.rounds.SaveRound(ctx, base, snap, req.Degree, apply)
		if err == nil {
			break
		}
		if !retryable(err) {
			span.SetStatus("error")
			return nil, fmt.Errorf("save round %s/%d: %w", req.BaseRecordID, req.Degree, err)
		}
		if attempt >= c.maxRetries {
			span.SetStatus("error")
			c.log.Warn("round save conflict, giving up", "record_id", req.BaseRecordID, "degree", req.Degree, "attempts", attempt)
			return nil, RetryableConflictError("The record is being saved by someone else, please retry")
		}
		c.log.Debug("round save conflict, retrying", "record_id", req.BaseRecordID, "degree", req.Degree, "attempt", attempt)
	}
	result.Record = round
	span.SetStatus("ok")
	instrument.GetInstrumenter(ctx).EmitBusinessEvent(ctx, "record.saved", "collection_record", round.ID, map[string]any{
		"degree":   round.Degree,
		"warnings": len(warnings),
	})

	c.publish(ctx, base, round)
	return result, nil
}

func retryable(err error) bool {
	return errors.Is(err, store.ErrConflict) || errors.Is(err, store.ErrUniqueViolation)
}

// publish notifies the external workflow. The save is already committed, so
// failures are only logged.
func (c *Collector) publish(ctx context.Context, base *metadata.RosterRecord, round *metadata.CollectionRecord) {
	ev := events.RecordSaved{
		RecordID:     round.ID,
		BaseRecordID: base.ID,
		RosterID:     base.RosterID,
		RespondentID: base.RespondentID,
		Degree:       round.Degree,
		Status:       string(round.Status),
		WarningCount: len(round.Answers.Warnings),
		SavedBy:      round.SavedBy,
		SavedAt:      round.UpdatedAt,
	}
	if ev.SavedAt.IsZero() {
		ev.SavedAt = time.Now().UTC()
	}
	if err := c.publisher.PublishRecordSaved(ctx, ev); err != nil {
		c.log.Error("publish record saved failed", "record_id", round.ID, "error", err)
	}
}

// ListRecords returns the base records user may see.
func (c *Collector) ListRecords(ctx context.Context, user *metadata.UserContext, f store.RecordFilter) ([]*metadata.RosterRecord, int64, error) {
	if user == nil {
		return nil, 0, UnauthorizedError("Authentication required")
	}
	f.All = user.CanDesign()
	if !f.All {
		f.AssigneeID = user.ID
		if len(user.Areas) > 0 {
			tree, err := c.rounds.AreaTree(ctx)
			if err != nil {
				return nil, 0, fmt.Errorf("load areas: %w", err)
			}
			f.AreaCodes = tree.Expand(user.Areas)
		}
	}
	return c.rounds.ListRecords(ctx, f)
}

func confirmedForms(forms []*metadata.FormVersion) []*metadata.FormVersion {
	out := make([]*metadata.FormVersion, 0, len(forms))
	for _, f := range forms {
		if f.IsConfirmed() {
			out = append(out, f)
		}
	}
	metadata.SortForms(out)
	return out
}
