package store

import (
	"context"
	"database/sql"

	"github.com/kj800x/cicd-controller/internal/apperr"
	"github.com/kj800x/cicd-controller/internal/domain"
)

// UpsertBuild is idempotent on (RepoID, CommitID, CheckName).
func (s *Store) UpsertBuild(ctx context.Context, b domain.Build) error {
	var startedAt, settledAt any
	if b.StartedAt != nil {
		startedAt = b.StartedAt.UnixMilli()
	}
	if b.SettledAt != nil {
		settledAt = b.SettledAt.UnixMilli()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO git_commit_build (repo_id, commit_id, check_name, status, url, started_at_ms, settled_at_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(repo_id, commit_id, check_name) DO UPDATE SET
			status = excluded.status,
			url = excluded.url,
			started_at_ms = COALESCE(excluded.started_at_ms, git_commit_build.started_at_ms),
			settled_at_ms = COALESCE(excluded.settled_at_ms, git_commit_build.settled_at_ms)
	`, b.RepoID, b.CommitID, b.CheckName, string(b.Status), b.URL, startedAt, settledAt)
	if err != nil {
		return apperr.Wrap(apperr.KindStore, "upsert build", err)
	}
	return nil
}

// GetBuild fetches a build row by its (RepoID, CommitID, CheckName) key.
func (s *Store) GetBuild(ctx context.Context, repoID, commitID int64, checkName string) (domain.Build, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT repo_id, commit_id, check_name, status, url, started_at_ms, settled_at_ms
		FROM git_commit_build WHERE repo_id = ? AND commit_id = ? AND check_name = ?
	`, repoID, commitID, checkName)

	var b domain.Build
	var status string
	var startedAt, settledAt sql.NullInt64
	if err := row.Scan(&b.RepoID, &b.CommitID, &b.CheckName, &status, &b.URL, &startedAt, &settledAt); err != nil {
		if err == sql.ErrNoRows {
			return domain.Build{}, apperr.Wrap(apperr.KindNotFound, "build not found", err)
		}
		return domain.Build{}, apperr.Wrap(apperr.KindStore, "get build", err)
	}
	b.Status = domain.BuildStatus(status)
	if startedAt.Valid {
		t := msToTime(startedAt.Int64)
		b.StartedAt = &t
	}
	if settledAt.Valid {
		t := msToTime(settledAt.Int64)
		b.SettledAt = &t
	}
	return b, nil
}
