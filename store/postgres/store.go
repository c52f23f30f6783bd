// Package postgres implements store.Store on PostgreSQL via Grove ORM.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/pgdriver"
	"github.com/xraph/grove/migrate"

	"github.com/beaconhq/beacon"
	"github.com/beaconhq/beacon/destination"
	"github.com/beaconhq/beacon/dlq"
	"github.com/beaconhq/beacon/event"
	"github.com/beaconhq/beacon/forward"
	"github.com/beaconhq/beacon/id"
	beaconstore "github.com/beaconhq/beacon/store"
)

// compile-time interface check
var _ beaconstore.Store = (*Store)(nil)

// claimLease is how long a dequeued job stays invisible to other workers.
// A worker that crashes mid-attempt loses its claim when the lease expires
// and the job resurfaces on the queue.
const claimLease = 2 * time.Minute

// Store implements store.Store using PostgreSQL via Grove ORM.
type Store struct {
	db *grove.DB
	pg *pgdriver.PgDB
}

// New creates a new PostgreSQL store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db: db,
		pg: pgdriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the required tables and indexes using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.pg)
	if err != nil {
		return fmt.Errorf("beacon/postgres: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("beacon/postgres: migration failed: %w", err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ==================== Event Store ====================

func (s *Store) InsertIfAbsent(ctx context.Context, evt *event.Event) (*event.Event, bool, error) {
	m := toEventModel(evt)

	if evt.ExternalEventID != "" {
		// The partial unique index on external_event_id is the
		// serialization point. A losing concurrent insert affects zero
		// rows and reads the winner back.
		res, err := s.pg.NewInsert(m).
			OnConflict("(external_event_id) WHERE external_event_id != '' DO NOTHING").
			Exec(ctx)
		if err != nil {
			return nil, false, err
		}
		rows, err := res.RowsAffected()
		if err != nil {
			return nil, false, err
		}
		if rows == 0 {
			existing := new(eventModel)
			if err := s.pg.NewSelect(existing).
				Where("external_event_id = $1", evt.ExternalEventID).
				Scan(ctx); err != nil {
				return nil, false, err
			}
			prev, err := fromEventModel(existing)
			if err != nil {
				return nil, false, err
			}
			return prev, false, nil
		}
		return evt, true, nil
	}

	if _, err := s.pg.NewInsert(m).Exec(ctx); err != nil {
		return nil, false, err
	}
	return evt, true, nil
}

func (s *Store) GetEvent(ctx context.Context, evtID id.ID) (*event.Event, error) {
	m := new(eventModel)
	err := s.pg.NewSelect(m).
		Where("id = $1", evtID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, beacon.ErrEventNotFound
		}
		return nil, err
	}
	return fromEventModel(m)
}

func (s *Store) ListEvents(ctx context.Context, opts event.ListOpts) ([]*event.Event, error) {
	var models []eventModel
	q := s.pg.NewSelect(&models)

	argIdx := 0
	if opts.Name != "" {
		argIdx++
		q = q.Where(fmt.Sprintf("name = $%d", argIdx), opts.Name)
	}
	if opts.From != nil {
		argIdx++
		q = q.Where(fmt.Sprintf("created_at >= $%d", argIdx), *opts.From)
	}
	if opts.To != nil {
		argIdx++
		q = q.Where(fmt.Sprintf("created_at <= $%d", argIdx), *opts.To)
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("created_at DESC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	result := make([]*event.Event, len(models))
	for i := range models {
		evt, err := fromEventModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = evt
	}
	return result, nil
}

func (s *Store) CreateConversion(ctx context.Context, conv *event.Conversion) error {
	m := toConversionModel(conv)
	_, err := s.pg.NewInsert(m).Exec(ctx)
	return err
}

func (s *Store) ListConversions(ctx context.Context, opts event.ListOpts) ([]*event.Conversion, error) {
	var models []conversionModel
	q := s.pg.NewSelect(&models)

	argIdx := 0
	if opts.From != nil {
		argIdx++
		q = q.Where(fmt.Sprintf("created_at >= $%d", argIdx), *opts.From)
	}
	if opts.To != nil {
		argIdx++
		q = q.Where(fmt.Sprintf("created_at <= $%d", argIdx), *opts.To)
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("created_at DESC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	result := make([]*event.Conversion, len(models))
	for i := range models {
		conv, err := fromConversionModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = conv
	}
	return result, nil
}

// ==================== Destination Store ====================

func (s *Store) UpsertDestination(ctx context.Context, dest *destination.Destination) error {
	m := toDestinationModel(dest)
	m.UpdatedAt = time.Now().UTC()

	_, err := s.pg.NewInsert(m).
		OnConflict("(type, name) DO UPDATE").
		Set("enabled = EXCLUDED.enabled").
		Set("config_enc = EXCLUDED.config_enc").
		Set("include_events = EXCLUDED.include_events").
		Set("exclude_events = EXCLUDED.exclude_events").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return err
	}

	// Read back the row so an updated destination keeps the ID and
	// created_at of the original.
	stored := new(destinationModel)
	if err := s.pg.NewSelect(stored).
		Where("type = $1", string(dest.Type)).
		Where("name = $2", dest.Name).
		Scan(ctx); err != nil {
		return err
	}
	storedID, err := id.ParseDestinationID(stored.ID)
	if err != nil {
		return fmt.Errorf("parse destination ID %q: %w", stored.ID, err)
	}
	dest.ID = storedID
	dest.CreatedAt = stored.CreatedAt
	dest.UpdatedAt = stored.UpdatedAt
	return nil
}

func (s *Store) GetDestination(ctx context.Context, destID id.ID) (*destination.Destination, error) {
	m := new(destinationModel)
	err := s.pg.NewSelect(m).
		Where("id = $1", destID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, beacon.ErrDestinationNotFound
		}
		return nil, err
	}
	return fromDestinationModel(m)
}

func (s *Store) DeleteDestination(ctx context.Context, destID id.ID) error {
	res, err := s.pg.NewDelete((*destinationModel)(nil)).
		Where("id = $1", destID.String()).
		Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return beacon.ErrDestinationNotFound
	}
	return nil
}

func (s *Store) ListDestinations(ctx context.Context) ([]*destination.Destination, error) {
	var models []destinationModel
	if err := s.pg.NewSelect(&models).
		OrderExpr("updated_at DESC").
		Scan(ctx); err != nil {
		return nil, err
	}

	result := make([]*destination.Destination, len(models))
	for i := range models {
		dest, err := fromDestinationModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = dest
	}
	return result, nil
}

func (s *Store) ListEnabledByType(ctx context.Context, t destination.Type) ([]*destination.Destination, error) {
	var models []destinationModel
	if err := s.pg.NewSelect(&models).
		Where("type = $1", string(t)).
		Where("enabled = true").
		OrderExpr("created_at ASC").
		Scan(ctx); err != nil {
		return nil, err
	}

	result := make([]*destination.Destination, len(models))
	for i := range models {
		dest, err := fromDestinationModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = dest
	}
	return result, nil
}

// ==================== Forward Store ====================

func (s *Store) EnqueueJob(ctx context.Context, j *forward.Job) error {
	m := toJobModel(j)
	_, err := s.pg.NewInsert(m).Exec(ctx)
	return err
}

func (s *Store) DequeueJobs(ctx context.Context, limit int) ([]*forward.Job, error) {
	if limit <= 0 {
		return nil, nil
	}

	// FOR UPDATE SKIP LOCKED claims rows without blocking concurrent
	// workers. Pushing next_attempt_at past the lease hides the claimed
	// jobs until UpdateJob rewrites them.
	var models []jobModel
	err := s.pg.NewRaw(`
		UPDATE beacon_jobs
		SET next_attempt_at = NOW() + $1::interval, updated_at = NOW()
		WHERE id IN (
			SELECT id FROM beacon_jobs
			WHERE state = 'queued' AND next_attempt_at <= NOW()
			ORDER BY next_attempt_at ASC
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		RETURNING *
	`, claimLease.String(), limit).Scan(ctx, &models)
	if err != nil {
		return nil, err
	}

	result := make([]*forward.Job, len(models))
	for i := range models {
		j, err := fromJobModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = j
	}
	return result, nil
}

func (s *Store) UpdateJob(ctx context.Context, j *forward.Job) error {
	m := toJobModel(j)
	m.UpdatedAt = time.Now().UTC()
	_, err := s.pg.NewUpdate(m).WherePK().Exec(ctx)
	return err
}

func (s *Store) GetJob(ctx context.Context, jobID id.ID) (*forward.Job, error) {
	m := new(jobModel)
	err := s.pg.NewSelect(m).
		Where("id = $1", jobID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, beacon.ErrJobNotFound
		}
		return nil, err
	}
	return fromJobModel(m)
}

func (s *Store) ListJobs(ctx context.Context, opts forward.ListOpts) ([]*forward.Job, error) {
	var models []jobModel
	q := s.pg.NewSelect(&models)

	if opts.State != nil {
		q = q.Where("state = $1", string(*opts.State))
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("created_at DESC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	result := make([]*forward.Job, len(models))
	for i := range models {
		j, err := fromJobModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = j
	}
	return result, nil
}

func (s *Store) PurgeCompletedJobs(ctx context.Context) (int, error) {
	res, err := s.pg.NewDelete((*jobModel)(nil)).
		Where("state = $1", string(forward.StateCompleted)).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(rows), nil
}

// ==================== DLQ Store ====================

func (s *Store) Push(ctx context.Context, entry *dlq.Entry) error {
	m := toDLQEntryModel(entry)
	_, err := s.pg.NewInsert(m).Exec(ctx)
	return err
}

func (s *Store) ListDLQ(ctx context.Context, opts dlq.ListOpts) ([]*dlq.Entry, error) {
	var models []dlqEntryModel
	q := s.pg.NewSelect(&models)

	argIdx := 0
	if opts.DestinationID != nil {
		argIdx++
		q = q.Where(fmt.Sprintf("destination_id = $%d", argIdx), opts.DestinationID.String())
	}
	if opts.DestinationType != nil {
		argIdx++
		q = q.Where(fmt.Sprintf("destination_type = $%d", argIdx), string(*opts.DestinationType))
	}
	if opts.From != nil {
		argIdx++
		q = q.Where(fmt.Sprintf("failed_at >= $%d", argIdx), *opts.From)
	}
	if opts.To != nil {
		argIdx++
		q = q.Where(fmt.Sprintf("failed_at <= $%d", argIdx), *opts.To)
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("failed_at DESC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	result := make([]*dlq.Entry, len(models))
	for i := range models {
		entry, err := fromDLQEntryModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = entry
	}
	return result, nil
}

func (s *Store) GetDLQ(ctx context.Context, dlqID id.ID) (*dlq.Entry, error) {
	m := new(dlqEntryModel)
	err := s.pg.NewSelect(m).
		Where("id = $1", dlqID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, beacon.ErrDLQNotFound
		}
		return nil, err
	}
	return fromDLQEntryModel(m)
}

func (s *Store) Replay(ctx context.Context, dlqID id.ID) error {
	entry, err := s.GetDLQ(ctx, dlqID)
	if err != nil {
		return err
	}
	return s.replayEntry(ctx, entry)
}

func (s *Store) ReplayBulk(ctx context.Context, from, to time.Time) (int64, error) {
	var models []dlqEntryModel
	if err := s.pg.NewSelect(&models).
		Where("failed_at >= $1", from).
		Where("failed_at <= $2", to).
		Where("replayed_at IS NULL").
		Scan(ctx); err != nil {
		return 0, err
	}

	var count int64
	for i := range models {
		entry, err := fromDLQEntryModel(&models[i])
		if err != nil {
			return count, err
		}
		if err := s.replayEntry(ctx, entry); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

// replayEntry re-enqueues a job narrowed to the entry's destination and
// stamps ReplayedAt. The entry itself is retained for audit.
func (s *Store) replayEntry(ctx context.Context, entry *dlq.Entry) error {
	now := time.Now().UTC()
	j := &forward.Job{
		ID:            id.NewJobID(),
		EventID:       entry.EventID,
		State:         forward.StateQueued,
		Intended:      []destination.Type{entry.DestinationType},
		Pending:       []id.ID{entry.DestinationID},
		MaxAttempts:   forward.DefaultMaxAttempts,
		NextAttemptAt: now,
	}
	j.CreatedAt = now
	j.UpdatedAt = now

	if err := s.EnqueueJob(ctx, j); err != nil {
		return err
	}

	_, err := s.pg.NewUpdate((*dlqEntryModel)(nil)).
		Set("replayed_at = $1", now).
		Set("updated_at = $2", now).
		Where("id = $3", entry.ID.String()).
		Exec(ctx)
	return err
}

func (s *Store) Purge(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.pg.NewDelete((*dlqEntryModel)(nil)).
		Where("failed_at < $1", before).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *Store) CountDLQ(ctx context.Context) (int64, error) {
	return s.pg.NewSelect((*dlqEntryModel)(nil)).Count(ctx)
}

// isNoRows checks for the standard sql.ErrNoRows sentinel.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
