package store

import (
	"context"
	"database/sql"

	"github.com/kj800x/cicd-controller/internal/apperr"
	"github.com/kj800x/cicd-controller/internal/domain"
)

// UpsertRepo inserts or updates a Repo by its forge-assigned ID. Repos are
// never deleted, so this is the only write operation on git_repo.
func (s *Store) UpsertRepo(ctx context.Context, r domain.Repo) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO git_repo (id, owner, name, default_branch, private, language)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			owner = excluded.owner,
			name = excluded.name,
			default_branch = excluded.default_branch,
			private = excluded.private,
			language = excluded.language
	`, r.ID, r.Owner, r.Name, r.DefaultBranch, boolToInt(r.Private), r.Language)
	if err != nil {
		return apperr.Wrap(apperr.KindStore, "upsert repo", err)
	}
	return nil
}

// GetRepo fetches a Repo by ID.
func (s *Store) GetRepo(ctx context.Context, id int64) (domain.Repo, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, owner, name, default_branch, private, language FROM git_repo WHERE id = ?
	`, id)
	var r domain.Repo
	var private int
	if err := row.Scan(&r.ID, &r.Owner, &r.Name, &r.DefaultBranch, &private, &r.Language); err != nil {
		if err == sql.ErrNoRows {
			return domain.Repo{}, apperr.Wrap(apperr.KindNotFound, "repo not found", err)
		}
		return domain.Repo{}, apperr.Wrap(apperr.KindStore, "get repo", err)
	}
	r.Private = private != 0
	return r, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
