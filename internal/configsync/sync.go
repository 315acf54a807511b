package configsync

import (
	"context"
	"strings"
	"time"

	"github.com/google/go-github/v66/github"

	"github.com/kj800x/cicd-controller/internal/apperr"
	"github.com/kj800x/cicd-controller/internal/domain"
	"github.com/kj800x/cicd-controller/internal/metrics"
	"github.com/kj800x/cicd-controller/internal/orchestrator"
	"github.com/kj800x/cicd-controller/internal/sourceapi"
	"github.com/kj800x/cicd-controller/internal/store"
)

// sync reconciles repo's .deploy/ directory at sha against the store and
// the orchestrator, following the fetch -> diff -> push pipeline. A failure
// on one config is logged and does not abort the rest.
func (h *Handler) sync(ctx context.Context, repo domain.Repo, sha string) error {
	start := time.Now()
	defer func() { metrics.ConfigSyncDuration.Observe(time.Since(start).Seconds()) }()

	client, err := h.pool.ClientFor(ctx, repo.Owner, repo.Name)
	if err != nil {
		return apperr.Wrap(apperr.KindSourceForge, "configsync: no client available for "+repo.FullName(), err)
	}

	desired, err := h.fetchDesired(ctx, client, repo, sha)
	if err != nil {
		return apperr.Wrap(apperr.KindSourceForge, "configsync: fetch desired deploy configs", err)
	}

	current, err := h.store.ListDeployConfigsByConfigRepo(ctx, repo.ID)
	if err != nil {
		return apperr.Wrap(apperr.KindStore, "configsync: list current deploy configs", err)
	}
	currentByName := make(map[string]store.DeployConfigRow, len(current))
	for _, row := range current {
		currentByName[row.Name] = row
	}

	for name, dc := range desired {
		if err := h.upsertDesired(ctx, repo, sha, dc); err != nil {
			h.logger.Error("configsync: upsert desired config failed",
				"name", name, "error", apperr.FormatChain(err))
		}
	}

	var deletedNames []string
	for name := range currentByName {
		if _, ok := desired[name]; !ok {
			deletedNames = append(deletedNames, name)
			if err := h.store.MarkDeployConfigInactive(ctx, name, repo.ID); err != nil {
				h.logger.Error("configsync: mark deploy config inactive failed",
					"name", name, "error", apperr.FormatChain(err))
			}
		}
	}

	for name, dc := range desired {
		existed := false
		if _, ok := currentByName[name]; ok {
			existed = true
		}
		if err := h.pushDesired(ctx, dc, sha); err != nil {
			h.logger.Error("configsync: push desired config to orchestrator failed",
				"name", name, "error", apperr.FormatChain(err))
			continue
		}
		if existed {
			metrics.ConfigSyncDeployConfigsTotal.WithLabelValues("updated").Inc()
		} else {
			metrics.ConfigSyncDeployConfigsTotal.WithLabelValues("created").Inc()
		}
	}
	for _, name := range deletedNames {
		row := currentByName[name]
		outcome, err := h.pushDeleted(ctx, row)
		if err != nil {
			h.logger.Error("configsync: push deleted config to orchestrator failed",
				"name", name, "error", apperr.FormatChain(err))
			continue
		}
		if outcome != "" {
			metrics.ConfigSyncDeployConfigsTotal.WithLabelValues(outcome).Inc()
		}
	}

	return nil
}

// fetchDesired reads .deploy/*.yaml plus each sibling .deploy/<name>/
// directory at sha and returns the desired DeployConfig set, keyed by
// qualified name.
func (h *Handler) fetchDesired(ctx context.Context, client *github.Client, repo domain.Repo, sha string) (map[string]domain.DeployConfig, error) {
	entries, err := sourceapi.ListDirectory(ctx, client, repo.Owner, repo.Name, deployDir, sha)
	if err != nil {
		if isNotFound(err) {
			return map[string]domain.DeployConfig{}, nil
		}
		return nil, err
	}

	desired := make(map[string]domain.DeployConfig)
	for _, entry := range entries {
		if entry.IsDir {
			continue
		}
		stem := strings.TrimSuffix(entry.Name, ".yaml")
		if stem == entry.Name {
			continue // not a .yaml file
		}

		content, err := sourceapi.GetFileContent(ctx, client, repo.Owner, repo.Name, entry.Path, sha)
		if err != nil {
			h.logger.Error("configsync: fetch deploy yaml failed", "path", entry.Path, "error", apperr.FormatChain(err))
			continue
		}
		y, err := parseDeployYAML([]byte(content))
		if err != nil {
			h.logger.Error("configsync: parse deploy yaml failed", "path", entry.Path, "error", err)
			continue
		}

		dc := domain.DeployConfig{
			Name:      domain.QualifiedName(y.Team, stem),
			Namespace: y.Namespace,
			Team:      y.Team,
			Kind:      y.Kind,
			Config:    domain.ConfigRef{Owner: repo.Owner, Repo: repo.Name},
		}
		if y.ArtifactRepo != nil {
			dc.Artifact = &domain.ArtifactRef{
				Owner:  y.ArtifactRepo.Owner,
				Repo:   y.ArtifactRepo.Repo,
				Branch: y.ArtifactRepo.Branch,
			}
		}

		specs, err := h.fetchChildSpecs(ctx, client, repo, stem, sha)
		if err != nil {
			h.logger.Error("configsync: fetch child specs failed", "name", stem, "error", apperr.FormatChain(err))
		}
		dc.Specs = specs

		desired[dc.Name] = dc
	}
	return desired, nil
}

// fetchChildSpecs reads every file under .deploy/<name>/ at sha, each parsed
// as one opaque child resource spec. A missing directory is not an error:
// plenty of DeployConfigs have no child resources of their own yet.
func (h *Handler) fetchChildSpecs(ctx context.Context, client *github.Client, repo domain.Repo, name, sha string) ([]map[string]any, error) {
	entries, err := sourceapi.ListDirectory(ctx, client, repo.Owner, repo.Name, deployDir+"/"+name, sha)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, err
	}

	var specs []map[string]any
	for _, e := range entries {
		if e.IsDir {
			continue
		}
		content, err := sourceapi.GetFileContent(ctx, client, repo.Owner, repo.Name, e.Path, sha)
		if err != nil {
			h.logger.Error("configsync: fetch child spec failed", "path", e.Path, "error", apperr.FormatChain(err))
			continue
		}
		spec, err := parseChildSpec([]byte(content))
		if err != nil {
			h.logger.Error("configsync: parse child spec failed", "path", e.Path, "error", err)
			continue
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

// upsertDesired writes dc into the store and records its content-hash
// DeployConfigVersion for (config repo, config commit sha).
func (h *Handler) upsertDesired(ctx context.Context, repo domain.Repo, sha string, dc domain.DeployConfig) error {
	var artifactRepoID *int64
	if dc.Artifact != nil {
		id, err := h.ensureRepoSeen(ctx, dc.Artifact.Owner, dc.Artifact.Repo)
		if err != nil {
			return err
		}
		artifactRepoID = &id
	}

	if err := h.store.UpsertDeployConfig(ctx, store.DeployConfigRow{
		Name:           dc.Name,
		Team:           dc.Team,
		Kind:           dc.Kind,
		Namespace:      dc.Namespace,
		ConfigRepoID:   repo.ID,
		ArtifactRepoID: artifactRepoID,
	}); err != nil {
		return apperr.Wrap(apperr.KindStore, "upsert deploy config row", err)
	}

	hash, err := orchestrator.SpecHash(dc)
	if err != nil {
		return apperr.Wrap(apperr.KindStore, "hash deploy config spec", err)
	}
	if err := h.store.UpsertDeployConfigVersion(ctx, domain.DeployConfigVersion{
		Name:            dc.Name,
		ConfigRepoID:    repo.ID,
		ConfigCommitSHA: sha,
		Hash:            hash,
	}); err != nil {
		return apperr.Wrap(apperr.KindStore, "upsert deploy config version", err)
	}
	return nil
}

// ensureRepoSeen resolves owner/name to its forge-assigned repo ID and
// upserts a git_repo row for it, for an artifact repo this process has not
// otherwise observed through a webhook event yet — deploy_config's foreign
// key needs a real row to point at.
func (h *Handler) ensureRepoSeen(ctx context.Context, owner, name string) (int64, error) {
	client, err := h.pool.ClientFor(ctx, owner, name)
	if err != nil {
		return 0, apperr.Wrap(apperr.KindSourceForge, "no client available for "+owner+"/"+name, err)
	}
	ghRepo, _, err := client.Repositories.Get(ctx, owner, name)
	if err != nil {
		return 0, apperr.Wrap(apperr.KindSourceForge, "get repo metadata for "+owner+"/"+name, err)
	}

	repo := domain.Repo{
		ID:            ghRepo.GetID(),
		Owner:         owner,
		Name:          name,
		DefaultBranch: ghRepo.GetDefaultBranch(),
		Private:       ghRepo.GetPrivate(),
		Language:      ghRepo.GetLanguage(),
	}
	if err := h.store.UpsertRepo(ctx, repo); err != nil {
		return 0, apperr.Wrap(apperr.KindStore, "upsert artifact repo", err)
	}
	return repo.ID, nil
}

// pushDesired applies the create-or-update half of the orchestrator
// decision table for one desired DeployConfig. sha is the config repo
// commit this sync is running at; it is recorded in status.config.sha so
// the Deploy Action Executor knows which commit to re-fetch child specs
// from when a deploy is later requested.
func (h *Handler) pushDesired(ctx context.Context, dc domain.DeployConfig, sha string) error {
	existing, err := h.orchestrator.GetDeployConfig(ctx, dc.Namespace, dc.Name)
	if err != nil && !isNotFound(err) {
		return apperr.Wrap(apperr.KindOrchestrator, "get existing deployconfig", err)
	}

	if existing == nil {
		// Created with empty child specs: specs are only ever written by the
		// Deploy Action Executor applying a deploy, never by sync.
		create := dc
		create.Specs = nil
		obj := orchestrator.ToUnstructured(create)
		if _, err := h.orchestrator.CreateDeployConfig(ctx, dc.Namespace, obj); err != nil {
			return apperr.Wrap(apperr.KindOrchestrator, "create deployconfig", err)
		}
	} else {
		specPatch := map[string]any{
			"team":   dc.Team,
			"kind":   dc.Kind,
			"config": map[string]any{"owner": dc.Config.Owner, "repo": dc.Config.Repo},
		}
		if dc.Artifact != nil {
			specPatch["artifact"] = map[string]any{
				"owner": dc.Artifact.Owner, "repo": dc.Artifact.Repo, "branch": dc.Artifact.Branch,
			}
		}
		if _, err := h.orchestrator.PatchSpec(ctx, dc.Namespace, dc.Name, specPatch); err != nil {
			return apperr.Wrap(apperr.KindOrchestrator, "patch deployconfig spec", err)
		}
	}

	statusPatch := map[string]any{
		"orphaned": false,
		"config": map[string]any{
			"owner": dc.Config.Owner,
			"repo":  dc.Config.Repo,
			"sha":   sha,
		},
	}
	if _, err := h.orchestrator.PatchStatus(ctx, dc.Namespace, dc.Name, statusPatch); err != nil {
		return apperr.Wrap(apperr.KindOrchestrator, "patch deployconfig status", err)
	}
	return nil
}

// pushDeleted applies the delete-or-orphan half of the orchestrator
// decision table for one DeployConfig no longer present in .deploy/, and
// reports which branch fired for metrics.
func (h *Handler) pushDeleted(ctx context.Context, row store.DeployConfigRow) (string, error) {
	obj, err := h.orchestrator.GetDeployConfig(ctx, row.Namespace, row.Name)
	if err != nil {
		if isNotFound(err) {
			return "", nil // never reached the orchestrator, nothing to do
		}
		return "", apperr.Wrap(apperr.KindOrchestrator, "get deployconfig for deletion", err)
	}

	dc := orchestrator.DeployConfigFromUnstructured(*obj)
	if dc.Status.ArtifactCurrentSHA == "" {
		if err := h.orchestrator.Delete(ctx, row.Namespace, row.Name, orchestrator.DeployConfigGVR); err != nil {
			return "", apperr.Wrap(apperr.KindOrchestrator, "delete undeployed deployconfig", err)
		}
		return "deleted", nil
	}

	if _, err := h.orchestrator.PatchStatus(ctx, row.Namespace, row.Name, map[string]any{"orphaned": true}); err != nil {
		return "", apperr.Wrap(apperr.KindOrchestrator, "patch deployconfig status orphaned=true", err)
	}
	return "orphaned", nil
}

func isNotFound(err error) bool {
	kind, ok := apperr.KindOf(err)
	return ok && kind == apperr.KindNotFound
}
