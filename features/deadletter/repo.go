package deadletter

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

type Repository interface {
	Save(ctx context.Context, fj *FailedJob) error
	List(ctx context.Context) ([]FailedJob, error)
	Get(ctx context.Context, id string) (*FailedJob, error)
	Delete(ctx context.Context, id string) error
	Count(ctx context.Context) (int, error)
}

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

// Save records one failure per job attempt. Saving an attempt that is already
// recorded leaves the stored row alone and loads its id into fj.
func (r *PostgresRepo) Save(ctx context.Context, fj *FailedJob) error {
	query := `INSERT INTO failed_jobs (job_id, email, error, attempt, payload) VALUES ($1, $2, $3, $4, $5) ON CONFLICT (job_id, attempt) DO NOTHING RETURNING id, created_at`
	payload := []byte(fj.Payload)
	if len(payload) == 0 {
		payload = []byte("{}")
	}
	err := r.db.QueryRowContext(ctx, query, fj.JobID, fj.Email, fj.Error, fj.Attempt, payload).Scan(&fj.ID, &fj.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		query = `SELECT id, created_at FROM failed_jobs WHERE job_id = $1 AND attempt = $2`
		err = r.db.QueryRowContext(ctx, query, fj.JobID, fj.Attempt).Scan(&fj.ID, &fj.CreatedAt)
	}
	if err != nil {
		return fmt.Errorf("insert failed job: %w", err)
	}
	return nil
}

func (r *PostgresRepo) List(ctx context.Context) ([]FailedJob, error) {
	query := `SELECT id, job_id, email, error, attempt, payload, created_at FROM failed_jobs ORDER BY created_at DESC`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []FailedJob
	for rows.Next() {
		var fj FailedJob
		var payload []byte
		if err := rows.Scan(&fj.ID, &fj.JobID, &fj.Email, &fj.Error, &fj.Attempt, &payload, &fj.CreatedAt); err != nil {
			return nil, err
		}
		fj.Payload = json.RawMessage(payload)
		jobs = append(jobs, fj)
	}
	return jobs, rows.Err()
}

func (r *PostgresRepo) Get(ctx context.Context, id string) (*FailedJob, error) {
	fj := &FailedJob{}
	var payload []byte
	query := `SELECT id, job_id, email, error, attempt, payload, created_at FROM failed_jobs WHERE id = $1`
	err := r.db.QueryRowContext(ctx, query, id).Scan(&fj.ID, &fj.JobID, &fj.Email, &fj.Error, &fj.Attempt, &payload, &fj.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	fj.Payload = json.RawMessage(payload)
	return fj, nil
}

func (r *PostgresRepo) Delete(ctx context.Context, id string) error {
	query := `DELETE FROM failed_jobs WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id)
	return err
}

func (r *PostgresRepo) Count(ctx context.Context) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM failed_jobs`
	err := r.db.QueryRowContext(ctx, query).Scan(&count)
	return count, err
}
