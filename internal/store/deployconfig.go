package store

import (
	"context"
	"database/sql"

	"github.com/kj800x/cicd-controller/internal/apperr"
	"github.com/kj800x/cicd-controller/internal/domain"
)

// DeployConfigRow mirrors the deploy_config table; it does not carry the
// full domain.DeployConfig (no Specs, no Status — those live only in the
// orchestrator, this table only mirrors identity and lifecycle state).
type DeployConfigRow struct {
	Name           string
	Team           string
	Kind           string
	Namespace      string
	ConfigRepoID   int64
	ArtifactRepoID *int64
	Active         bool
}

// UpsertDeployConfig inserts or updates the store's mirror of a DeployConfig
// definition, keyed by (name, config_repo_id).
func (s *Store) UpsertDeployConfig(ctx context.Context, r DeployConfigRow) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO deploy_config (name, team, kind, namespace, config_repo_id, artifact_repo_id, active)
		VALUES (?, ?, ?, ?, ?, ?, 1)
		ON CONFLICT(name, config_repo_id) DO UPDATE SET
			team = excluded.team,
			kind = excluded.kind,
			namespace = excluded.namespace,
			artifact_repo_id = excluded.artifact_repo_id,
			active = 1
	`, r.Name, r.Team, r.Kind, r.Namespace, r.ConfigRepoID, r.ArtifactRepoID)
	if err != nil {
		return apperr.Wrap(apperr.KindStore, "upsert deploy config", err)
	}
	return nil
}

// MarkDeployConfigInactive marks a deploy_config row inactive when its
// defining .deploy/<name>.yaml disappears from the default branch.
func (s *Store) MarkDeployConfigInactive(ctx context.Context, name string, configRepoID int64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE deploy_config SET active = 0 WHERE name = ? AND config_repo_id = ?
	`, name, configRepoID)
	if err != nil {
		return apperr.Wrap(apperr.KindStore, "mark deploy config inactive", err)
	}
	return nil
}

// ListDeployConfigsByConfigRepo returns every DeployConfig (active and
// inactive) whose config repo ID equals configRepoID.
func (s *Store) ListDeployConfigsByConfigRepo(ctx context.Context, configRepoID int64) ([]DeployConfigRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, team, kind, namespace, config_repo_id, artifact_repo_id, active
		FROM deploy_config WHERE config_repo_id = ?
	`, configRepoID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStore, "list deploy configs by config repo", err)
	}
	defer rows.Close()

	var out []DeployConfigRow
	for rows.Next() {
		var r DeployConfigRow
		var artifactRepoID sql.NullInt64
		var active int
		if err := rows.Scan(&r.Name, &r.Team, &r.Kind, &r.Namespace, &r.ConfigRepoID, &artifactRepoID, &active); err != nil {
			return nil, apperr.Wrap(apperr.KindStore, "scan deploy config row", err)
		}
		if artifactRepoID.Valid {
			v := artifactRepoID.Int64
			r.ArtifactRepoID = &v
		}
		r.Active = active != 0
		out = append(out, r)
	}
	return out, rows.Err()
}

// GetDeployConfigByName fetches the store's mirror of a DeployConfig by its
// qualified name, used by the Deploy Action Executor to resolve repo IDs for
// the audit row. Ambiguous across config repos only in the pathological case
// of two repos independently using the same team+name pair; the first match
// wins.
func (s *Store) GetDeployConfigByName(ctx context.Context, name string) (DeployConfigRow, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT name, team, kind, namespace, config_repo_id, artifact_repo_id, active
		FROM deploy_config WHERE name = ? LIMIT 1
	`, name)
	var r DeployConfigRow
	var artifactRepoID sql.NullInt64
	var active int
	if err := row.Scan(&r.Name, &r.Team, &r.Kind, &r.Namespace, &r.ConfigRepoID, &artifactRepoID, &active); err != nil {
		if err == sql.ErrNoRows {
			return DeployConfigRow{}, apperr.Wrap(apperr.KindNotFound, "deploy config not found", err)
		}
		return DeployConfigRow{}, apperr.Wrap(apperr.KindStore, "get deploy config by name", err)
	}
	if artifactRepoID.Valid {
		v := artifactRepoID.Int64
		r.ArtifactRepoID = &v
	}
	r.Active = active != 0
	return r, nil
}

// UpsertDeployConfigVersion records a content hash of a DeployConfig's spec
// at (name, config repo, config commit SHA), for drift detection.
func (s *Store) UpsertDeployConfigVersion(ctx context.Context, v domain.DeployConfigVersion) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO deploy_config_version (name, config_repo_id, config_commit_sha, hash)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(name, config_repo_id, config_commit_sha) DO UPDATE SET
			hash = excluded.hash
	`, v.Name, v.ConfigRepoID, v.ConfigCommitSHA, v.Hash)
	if err != nil {
		return apperr.Wrap(apperr.KindStore, "upsert deploy config version", err)
	}
	return nil
}

// GetDeployConfigVersion fetches the stored hash for (name, config repo,
// config commit SHA), used to decide whether a spec's content changed.
func (s *Store) GetDeployConfigVersion(ctx context.Context, name string, configRepoID int64, configCommitSHA string) (domain.DeployConfigVersion, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT name, config_repo_id, config_commit_sha, hash
		FROM deploy_config_version WHERE name = ? AND config_repo_id = ? AND config_commit_sha = ?
	`, name, configRepoID, configCommitSHA)
	var v domain.DeployConfigVersion
	if err := row.Scan(&v.Name, &v.ConfigRepoID, &v.ConfigCommitSHA, &v.Hash); err != nil {
		if err == sql.ErrNoRows {
			return domain.DeployConfigVersion{}, apperr.Wrap(apperr.KindNotFound, "deploy config version not found", err)
		}
		return domain.DeployConfigVersion{}, apperr.Wrap(apperr.KindStore, "get deploy config version", err)
	}
	return v, nil
}
