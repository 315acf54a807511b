package store

import (
	"context"
	"database/sql"

	"github.com/kj800x/cicd-controller/internal/apperr"
	"github.com/kj800x/cicd-controller/internal/domain"
)

// UpsertBranch is idempotent on (RepoID, Name): a second call with a new
// HeadCommitSHA updates the row in place and keeps the same branch ID.
func (s *Store) UpsertBranch(ctx context.Context, repoID int64, name, headCommitSHA string) (int64, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO git_branch (repo_id, name, head_commit_sha, active)
		VALUES (?, ?, ?, 1)
		ON CONFLICT(repo_id, name) DO UPDATE SET
			head_commit_sha = excluded.head_commit_sha,
			active = 1
	`, repoID, name, headCommitSHA)
	if err != nil {
		return 0, apperr.Wrap(apperr.KindStore, "upsert branch", err)
	}

	var id int64
	row := s.db.QueryRowContext(ctx, `SELECT id FROM git_branch WHERE repo_id = ? AND name = ?`, repoID, name)
	if err := row.Scan(&id); err != nil {
		return 0, apperr.Wrap(apperr.KindStore, "fetch branch id after upsert", err)
	}
	return id, nil
}

// MarkBranchInactive marks a branch inactive on a branch-delete event,
// without physically removing the row.
func (s *Store) MarkBranchInactive(ctx context.Context, repoID int64, name string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE git_branch SET active = 0 WHERE repo_id = ? AND name = ?
	`, repoID, name)
	if err != nil {
		return apperr.Wrap(apperr.KindStore, "mark branch inactive", err)
	}
	return nil
}

// GetBranch fetches a branch by (RepoID, Name).
func (s *Store) GetBranch(ctx context.Context, repoID int64, name string) (domain.Branch, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, repo_id, name, head_commit_sha, active FROM git_branch WHERE repo_id = ? AND name = ?
	`, repoID, name)
	var b domain.Branch
	var active int
	if err := row.Scan(&b.ID, &b.RepoID, &b.Name, &b.HeadCommitSHA, &active); err != nil {
		if err == sql.ErrNoRows {
			return domain.Branch{}, apperr.Wrap(apperr.KindNotFound, "branch not found", err)
		}
		return domain.Branch{}, apperr.Wrap(apperr.KindStore, "get branch", err)
	}
	b.Active = active != 0
	return b, nil
}

// LatestSuccessfulCommit returns the most recent commit on branch name whose
// build status is Success for at least one check, used by the Deploy Action
// Executor's DeployLatest action.
func (s *Store) LatestSuccessfulCommit(ctx context.Context, repoID int64, branchName string) (domain.Commit, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT c.id, c.sha, c.repo_id, c.message, c.author, c.committer, c.timestamp_ms
		FROM git_commit c
		JOIN git_commit_branch cb ON cb.commit_id = c.id
		JOIN git_branch b ON b.id = cb.branch_id
		JOIN git_commit_build cbu ON cbu.commit_id = c.id AND cbu.repo_id = c.repo_id
		WHERE b.repo_id = ? AND b.name = ? AND cbu.status = 'Success'
		ORDER BY c.timestamp_ms DESC
		LIMIT 1
	`, repoID, branchName)
	var c domain.Commit
	if err := row.Scan(&c.ID, &c.SHA, &c.RepoID, &c.Message, &c.Author, &c.Committer, &c.TimestampMillis); err != nil {
		if err == sql.ErrNoRows {
			return domain.Commit{}, apperr.Wrap(apperr.KindNotFound, "no successful commit found on branch", err)
		}
		return domain.Commit{}, apperr.Wrap(apperr.KindStore, "latest successful commit", err)
	}
	return c, nil
}

// AddBranchMembership records that commitID belongs to branchID.
func (s *Store) AddBranchMembership(ctx context.Context, commitID, branchID int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO git_commit_branch (commit_id, branch_id) VALUES (?, ?)
		ON CONFLICT(commit_id, branch_id) DO NOTHING
	`, commitID, branchID)
	if err != nil {
		return apperr.Wrap(apperr.KindStore, "add branch membership", err)
	}
	return nil
}
