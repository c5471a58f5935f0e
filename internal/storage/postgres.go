package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"

	"github.com/SirClappington/textintel/internal/domain"
)

const jobColumns = `id, status, mode, original_text, metadata, result, stage_errors, error,
created_at, updated_at, started_at, completed_at`

// PostgresStore is the durable Store. Postgres is the source of truth for
// job state; the queue only carries job ids.
type PostgresStore struct{ db *pgxpool.Pool }

func NewPostgresStore(db *pgxpool.Pool) *PostgresStore { return &PostgresStore{db} }

func (s *PostgresStore) Create(ctx context.Context, job *domain.Job) error {
	row, err := encodeJob(job)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx, `insert into jobs(`+jobColumns+`)
values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		job.ID, job.Status, job.Mode, job.OriginalText, row.metadata, row.result, row.stageErrors, row.err,
		job.CreatedAt, job.UpdatedAt, job.StartedAt, job.CompletedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return errors.Wrapf(domain.ErrAlreadyExists, "create %s", job.ID)
		}
		return unavailable(err, "insert job")
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*domain.Job, error) {
	row := s.db.QueryRow(ctx, `select `+jobColumns+` from jobs where id = $1`, id)
	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errors.Wrapf(domain.ErrNotFound, "get %s", id)
		}
		return nil, unavailable(err, "select job")
	}
	return job, nil
}

// Update locks the row for the duration of fn, and the final write is
// conditional on the status it read, so two writers cannot both finish a job.
func (s *PostgresStore) Update(ctx context.Context, id string, fn Mutator) (*domain.Job, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, unavailable(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	job, err := scanJob(tx.QueryRow(ctx, `select `+jobColumns+` from jobs where id = $1 for update`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errors.Wrapf(domain.ErrNotFound, "update %s", id)
		}
		return nil, unavailable(err, "select job for update")
	}
	prev := job.Status

	if err := fn(job); err != nil {
		return nil, err
	}

	row, err := encodeJob(job)
	if err != nil {
		return nil, err
	}
	tag, err := tx.Exec(ctx, `update jobs
    set status = $3, result = $4, stage_errors = $5, error = $6,
        updated_at = $7, started_at = $8, completed_at = $9
  where id = $1 and status = $2`,
		id, prev, job.Status, row.result, row.stageErrors, row.err,
		job.UpdatedAt, job.StartedAt, job.CompletedAt,
	)
	if err != nil {
		return nil, unavailable(err, "update job")
	}
	if tag.RowsAffected() != 1 {
		return nil, errors.Wrapf(domain.ErrTerminal, "job %s changed underneath update", id)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, unavailable(err, "commit")
	}
	return job, nil
}

func (s *PostgresStore) ListStalePending(ctx context.Context, olderThan time.Time, limit int) ([]*domain.Job, error) {
	rows, err := s.db.Query(ctx, `select `+jobColumns+` from jobs
   where status = 'pending' and mode = 'async' and updated_at < $1
   order by created_at asc limit $2`, olderThan, limit)
	if err != nil {
		return nil, unavailable(err, "list stale jobs")
	}
	defer rows.Close()

	var out []*domain.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, unavailable(err, "scan stale job")
		}
		out = append(out, job)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable(err, "iterate stale jobs")
	}
	return out, nil
}

// TryLead takes a session-level advisory lock on a dedicated connection.
// When ok is true the caller must call release once its work is done.
func (s *PostgresStore) TryLead(ctx context.Context, key int64) (release func(), ok bool, err error) {
	conn, err := s.db.Acquire(ctx)
	if err != nil {
		return nil, false, unavailable(err, "acquire conn")
	}
	if err := conn.QueryRow(ctx, `select pg_try_advisory_lock($1)`, key).Scan(&ok); err != nil {
		conn.Release()
		return nil, false, unavailable(err, "advisory lock")
	}
	if !ok {
		conn.Release()
		return nil, false, nil
	}
	return func() {
		_, _ = conn.Exec(context.Background(), `select pg_advisory_unlock($1)`, key)
		conn.Release()
	}, true, nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return unavailable(s.db.Ping(ctx), "ping")
}

type encodedJob struct {
	metadata, result, stageErrors, err []byte
}

func encodeJob(job *domain.Job) (encodedJob, error) {
	var out encodedJob
	var err error
	metadata := job.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	if out.metadata, err = json.Marshal(metadata); err != nil {
		return out, errors.Wrap(err, "encode metadata")
	}
	if out.result, err = json.Marshal(job.Result); err != nil {
		return out, errors.Wrap(err, "encode result")
	}
	if job.StageErrors != nil {
		if out.stageErrors, err = json.Marshal(job.StageErrors); err != nil {
			return out, errors.Wrap(err, "encode stage errors")
		}
	}
	if job.Error != nil {
		if out.err, err = json.Marshal(job.Error); err != nil {
			return out, errors.Wrap(err, "encode error")
		}
	}
	return out, nil
}

func scanJob(row pgx.Row) (*domain.Job, error) {
	var (
		job                                       domain.Job
		metadata, result, stageErrors, errPayload []byte
	)
	if err := row.Scan(
		&job.ID, &job.Status, &job.Mode, &job.OriginalText,
		&metadata, &result, &stageErrors, &errPayload,
		&job.CreatedAt, &job.UpdatedAt, &job.StartedAt, &job.CompletedAt,
	); err != nil {
		return nil, err
	}
	if err := decodeJSON(metadata, &job.Metadata); err != nil {
		return nil, errors.Wrap(err, "decode metadata")
	}
	if err := decodeJSON(result, &job.Result); err != nil {
		return nil, errors.Wrap(err, "decode result")
	}
	if err := decodeJSON(stageErrors, &job.StageErrors); err != nil {
		return nil, errors.Wrap(err, "decode stage errors")
	}
	if len(errPayload) > 0 {
		job.Error = &domain.JobError{}
		if err := json.Unmarshal(errPayload, job.Error); err != nil {
			return nil, errors.Wrap(err, "decode error")
		}
	}
	return &job, nil
}

func decodeJSON(b []byte, v any) error {
	if len(b) == 0 {
		return nil
	}
	return json.Unmarshal(b, v)
}

func unavailable(err error, op string) error {
	if err == nil {
		return nil
	}
	return errors.Wrapf(domain.ErrStoreUnavailable, "%s: %v", op, err)
}
