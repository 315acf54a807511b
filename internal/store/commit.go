package store

import (
	"context"
	"database/sql"

	"github.com/kj800x/cicd-controller/internal/apperr"
	"github.com/kj800x/cicd-controller/internal/domain"
)

// UpsertCommit is idempotent on (SHA, RepoID): repeated calls with the same
// key update mutable fields and return the stable row ID.
func (s *Store) UpsertCommit(ctx context.Context, c domain.Commit) (int64, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO git_commit (sha, repo_id, message, author, committer, timestamp_ms)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(sha, repo_id) DO UPDATE SET
			message = excluded.message,
			author = excluded.author,
			committer = excluded.committer,
			timestamp_ms = excluded.timestamp_ms
	`, c.SHA, c.RepoID, c.Message, c.Author, c.Committer, c.TimestampMillis)
	if err != nil {
		return 0, apperr.Wrap(apperr.KindStore, "upsert commit", err)
	}

	var id int64
	row := s.db.QueryRowContext(ctx, `SELECT id FROM git_commit WHERE sha = ? AND repo_id = ?`, c.SHA, c.RepoID)
	if err := row.Scan(&id); err != nil {
		return 0, apperr.Wrap(apperr.KindStore, "fetch commit id after upsert", err)
	}
	return id, nil
}

// GetCommitByRepoAndSHA looks up a commit by (RepoID, SHA), returning a
// NotFound apperr.Error if absent.
func (s *Store) GetCommitByRepoAndSHA(ctx context.Context, repoID int64, sha string) (domain.Commit, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, sha, repo_id, message, author, committer, timestamp_ms
		FROM git_commit WHERE repo_id = ? AND sha = ?
	`, repoID, sha)
	var c domain.Commit
	if err := row.Scan(&c.ID, &c.SHA, &c.RepoID, &c.Message, &c.Author, &c.Committer, &c.TimestampMillis); err != nil {
		if err == sql.ErrNoRows {
			return domain.Commit{}, apperr.Wrap(apperr.KindNotFound, "commit not found", err)
		}
		return domain.Commit{}, apperr.Wrap(apperr.KindStore, "get commit", err)
	}
	return c, nil
}

// AddParentSHAs records parent-commit edges for a commit, ignoring
// duplicates.
func (s *Store) AddParentSHAs(ctx context.Context, commitID int64, parentSHAs []string) error {
	for _, sha := range parentSHAs {
		if _, err := s.db.ExecContext(ctx, `
			INSERT INTO git_commit_parent (commit_id, parent_sha) VALUES (?, ?)
			ON CONFLICT(commit_id, parent_sha) DO NOTHING
		`, commitID, sha); err != nil {
			return apperr.Wrap(apperr.KindStore, "add parent sha", err)
		}
	}
	return nil
}
