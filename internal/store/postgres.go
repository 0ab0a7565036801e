// Package store persists verify.Result rows in PostgreSQL. Persistence
// is an external collaborator, outside the core verifier's tested
// contract.
package store

import (
	"context"
	"database/sql"

	_ "github.com/lib/pq"

	"smtpverify/internal/verify"
)

// Postgres is the ResultSink internal/queue.JobQueue writes through.
type Postgres struct {
	db *sql.DB
}

// Open connects to PostgreSQL at dbURL and verifies it is reachable.
func Open(dbURL string) (*Postgres, error) {
	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}
	return &Postgres{db: db}, nil
}

// Close releases the underlying connection pool.
func (p *Postgres) Close() error {
	return p.db.Close()
}

// Save records the verification outcome against the existing
// EmailCheck row for jobID/result.Email; the row itself is created
// elsewhere when the job is first enqueued.
func (p *Postgres) Save(ctx context.Context, jobID string, result verify.Result) error {
	const query = `
		UPDATE "EmailCheck"
		SET status = $1,
		    "smtpCode" = $2,
		    "bounceReason" = $3,
		    "mxServer" = $4,
		    attempts = $5,
		    "isCatchAll" = $6,
		    "isTemporaryError" = $7
		WHERE "jobId" = $8 AND email = $9
	`
	_, err := p.db.ExecContext(ctx, query,
		result.Status, result.SMTPCode, result.Reason, result.MXServer,
		result.Attempts, result.IsCatchAll, result.IsTemporaryError,
		jobID, result.Email,
	)
	return err
}
