package store

import (
	"context"

	"github.com/kj800x/cicd-controller/internal/apperr"
	"github.com/kj800x/cicd-controller/internal/domain"
)

// InsertDeployEvent appends an audit row, written whenever a deploy action
// mutates a DeployConfig.
func (s *Store) InsertDeployEvent(ctx context.Context, e domain.DeployEvent) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO deploy_event (
			name, timestamp_ms, initiator,
			artifact_sha, artifact_branch, config_sha, config_branch,
			prev_artifact_sha, prev_config_sha,
			artifact_repo_id, config_repo_id
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, e.Name, e.Timestamp.UnixMilli(), e.Initiator,
		e.ArtifactSHA, e.ArtifactBranch, e.ConfigSHA, e.ConfigBranch,
		e.PrevArtifactSHA, e.PrevConfigSHA,
		nullableID(e.ArtifactRepoID), nullableID(e.ConfigRepoID))
	if err != nil {
		return 0, apperr.Wrap(apperr.KindStore, "insert deploy event", err)
	}
	return res.LastInsertId()
}

func nullableID(id int64) any {
	if id == 0 {
		return nil
	}
	return id
}
