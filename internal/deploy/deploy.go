// Package deploy translates a user-initiated deploy action into a
// DeployConfig status mutation plus an audit row, without touching any child
// resource directly — the DeployConfig Controller observes the mutation and
// reacts.
package deploy

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/go-github/v66/github"
	"gopkg.in/yaml.v3"

	"github.com/kj800x/cicd-controller/internal/apperr"
	"github.com/kj800x/cicd-controller/internal/domain"
	"github.com/kj800x/cicd-controller/internal/metrics"
	"github.com/kj800x/cicd-controller/internal/orchestrator"
	"github.com/kj800x/cicd-controller/internal/sourceapi"
	"github.com/kj800x/cicd-controller/internal/store"
)

const deployChildSpecDir = ".deploy"

// Action is one of the five actions a user can invoke against a DeployConfig.
type Action int

const (
	ActionDeployLatest Action = iota
	ActionDeployBranch
	ActionDeployCommit
	ActionUndeploy
	ActionToggleAutodeploy
)

// Request names the DeployConfig to act on plus whatever parameter the
// action needs (Branch for ActionDeployBranch, SHA for ActionDeployCommit).
type Request struct {
	Namespace string
	Name      string
	Initiator string
	Branch    string
	SHA       string
}

// Executor applies deploy actions against the orchestrator and records an
// audit trail in the store.
type Executor struct {
	orchestrator *orchestrator.Client
	store        *store.Store
	pool         *sourceapi.Pool
	logger       *slog.Logger
}

// New builds an Executor. pool is used to re-fetch a DeployConfig's child
// specs from its config repo at deploy time.
func New(orch *orchestrator.Client, s *store.Store, pool *sourceapi.Pool, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{orchestrator: orch, store: s, pool: pool, logger: logger}
}

// Execute applies action against the named DeployConfig. ToggleAutodeploy
// records no audit event; every other action does.
func (e *Executor) Execute(ctx context.Context, action Action, req Request) error {
	err := e.execute(ctx, action, req)
	metrics.DeployActionsTotal.WithLabelValues(actionLabel(action), outcomeLabel(err)).Inc()
	return err
}

func (e *Executor) execute(ctx context.Context, action Action, req Request) error {
	obj, err := e.orchestrator.GetDeployConfig(ctx, req.Namespace, req.Name)
	if err != nil {
		return apperr.Wrap(apperr.KindOrchestrator, "deploy: get deployconfig "+req.Name, err)
	}
	dc := orchestrator.DeployConfigFromUnstructured(*obj)

	if dc.Status.Orphaned && action != ActionUndeploy {
		return apperr.New(apperr.KindInvalidInput, "deployconfig "+req.Name+" is orphaned; only Undeploy is permitted")
	}

	switch action {
	case ActionDeployLatest:
		return e.deployLatest(ctx, dc, req, dc.Status.ArtifactBranch)
	case ActionDeployBranch:
		return e.deployLatest(ctx, dc, req, req.Branch)
	case ActionDeployCommit:
		return e.deployCommit(ctx, dc, req)
	case ActionUndeploy:
		return e.undeploy(ctx, dc, req)
	case ActionToggleAutodeploy:
		return e.toggleAutodeploy(ctx, dc, req)
	default:
		return apperr.New(apperr.KindInvalidInput, "deploy: unknown action")
	}
}

func actionLabel(a Action) string {
	switch a {
	case ActionDeployLatest:
		return "deploy_latest"
	case ActionDeployBranch:
		return "deploy_branch"
	case ActionDeployCommit:
		return "deploy_commit"
	case ActionUndeploy:
		return "undeploy"
	case ActionToggleAutodeploy:
		return "toggle_autodeploy"
	default:
		return "unknown"
	}
}

func outcomeLabel(err error) string {
	if err == nil {
		return "ok"
	}
	if kind, ok := apperr.KindOf(err); ok && kind == apperr.KindInvalidInput {
		return "refused"
	}
	return "error"
}

// deployLatest resolves branch's latest successful commit in the artifact
// repo and patches wantedSha/branch to it. Backs both DeployLatest (branch
// is the config's existing tracked branch) and DeployBranch (branch is
// supplied by the caller).
func (e *Executor) deployLatest(ctx context.Context, dc domain.DeployConfig, req Request, branch string) error {
	if dc.Artifact == nil {
		return apperr.New(apperr.KindInvalidInput, "deployconfig "+dc.Name+" has no artifact repo to deploy from")
	}
	if branch == "" {
		return apperr.New(apperr.KindInvalidInput, "deployconfig "+dc.Name+" has no branch to resolve a latest commit from")
	}

	row, err := e.store.GetDeployConfigByName(ctx, dc.Name)
	if err != nil {
		return apperr.Wrap(apperr.KindStore, "deploy: resolve artifact repo for "+dc.Name, err)
	}
	if row.ArtifactRepoID == nil {
		return apperr.New(apperr.KindInvalidInput, "deployconfig "+dc.Name+" has no artifact repo recorded in the store")
	}

	commit, err := e.store.LatestSuccessfulCommit(ctx, *row.ArtifactRepoID, branch)
	if err != nil {
		return apperr.Wrap(apperr.KindStore, "deploy: find latest successful commit on "+branch, err)
	}

	if _, err := e.orchestrator.PatchStatus(ctx, dc.Namespace, dc.Name, map[string]any{
		"artifact": map[string]any{"wantedSha": commit.SHA, "branch": branch},
	}); err != nil {
		return apperr.Wrap(apperr.KindOrchestrator, "deploy: patch wantedSha", err)
	}
	e.refreshSpecs(ctx, dc)

	return e.recordEvent(ctx, dc, req, commit.SHA, branch, row)
}

// deployCommit patches wantedSha directly and clears the tracked branch,
// since a pinned commit is not associated with any one branch going forward.
func (e *Executor) deployCommit(ctx context.Context, dc domain.DeployConfig, req Request) error {
	if req.SHA == "" {
		return apperr.New(apperr.KindInvalidInput, "deploy commit requires a SHA")
	}

	row, err := e.store.GetDeployConfigByName(ctx, dc.Name)
	if err != nil {
		return apperr.Wrap(apperr.KindStore, "deploy: resolve artifact repo for "+dc.Name, err)
	}

	if _, err := e.orchestrator.PatchStatus(ctx, dc.Namespace, dc.Name, map[string]any{
		"artifact": map[string]any{"wantedSha": req.SHA, "branch": nil},
	}); err != nil {
		return apperr.Wrap(apperr.KindOrchestrator, "deploy: patch wantedSha", err)
	}
	e.refreshSpecs(ctx, dc)

	return e.recordEvent(ctx, dc, req, req.SHA, "", row)
}

// undeploy clears wantedSha and, if the DeployConfig was orphaned, deletes
// it outright once the clear has been recorded.
func (e *Executor) undeploy(ctx context.Context, dc domain.DeployConfig, req Request) error {
	row, err := e.store.GetDeployConfigByName(ctx, dc.Name)
	if err != nil {
		return apperr.Wrap(apperr.KindStore, "deploy: resolve artifact repo for "+dc.Name, err)
	}

	if _, err := e.orchestrator.PatchStatus(ctx, dc.Namespace, dc.Name, map[string]any{
		"artifact": map[string]any{"wantedSha": nil},
	}); err != nil {
		return apperr.Wrap(apperr.KindOrchestrator, "deploy: patch wantedSha for undeploy", err)
	}
	if _, err := e.orchestrator.PatchSpec(ctx, dc.Namespace, dc.Name, map[string]any{"specs": []any{}}); err != nil {
		return apperr.Wrap(apperr.KindOrchestrator, "deploy: clear specs for undeploy", err)
	}

	if err := e.recordEvent(ctx, dc, req, "", dc.Status.ArtifactBranch, row); err != nil {
		return err
	}

	if dc.Status.Orphaned {
		if err := e.orchestrator.Delete(ctx, dc.Namespace, dc.Name, orchestrator.DeployConfigGVR); err != nil {
			return apperr.Wrap(apperr.KindOrchestrator, "deploy: delete orphaned deployconfig after undeploy", err)
		}
	}
	return nil
}

// toggleAutodeploy flips status.autodeploy. No audit event is recorded.
func (e *Executor) toggleAutodeploy(ctx context.Context, dc domain.DeployConfig, req Request) error {
	_, err := e.orchestrator.PatchStatus(ctx, dc.Namespace, dc.Name, map[string]any{
		"autodeploy": !dc.Status.Autodeploy,
	})
	if err != nil {
		return apperr.Wrap(apperr.KindOrchestrator, "deploy: toggle autodeploy", err)
	}
	return nil
}

// refreshSpecs re-fetches dc's child resource specs from its config repo at
// status.config.sha — the commit the Config Sync Handler last recorded —
// and writes them onto spec.specs. Specs only ever change through a deploy
// action; sync itself always creates/updates with specs left untouched.
// A fetch failure is logged and does not fail the deploy: the previous
// specs are left in place rather than blocking the artifact rollout.
func (e *Executor) refreshSpecs(ctx context.Context, dc domain.DeployConfig) {
	if dc.Status.ConfigOwner == "" || dc.Status.ConfigRepo == "" || dc.Status.ConfigSHA == "" {
		e.logger.Warn("deploy: no recorded config commit to refresh specs from", "name", dc.Name)
		return
	}
	if e.pool == nil {
		return
	}

	client, err := e.pool.ClientFor(ctx, dc.Status.ConfigOwner, dc.Status.ConfigRepo)
	if err != nil {
		e.logger.Error("deploy: no source client for config repo", "name", dc.Name, "error", apperr.FormatChain(err))
		return
	}

	stem := strings.TrimPrefix(dc.Name, dc.Team+"-")
	specs, err := fetchChildSpecs(ctx, client, dc.Status.ConfigOwner, dc.Status.ConfigRepo, stem, dc.Status.ConfigSHA)
	if err != nil {
		e.logger.Error("deploy: fetch child specs failed", "name", dc.Name, "error", apperr.FormatChain(err))
		return
	}

	specsAny := make([]any, len(specs))
	for i, s := range specs {
		specsAny[i] = s
	}
	if _, err := e.orchestrator.PatchSpec(ctx, dc.Namespace, dc.Name, map[string]any{"specs": specsAny}); err != nil {
		e.logger.Error("deploy: patch refreshed specs failed", "name", dc.Name, "error", apperr.FormatChain(err))
	}
}

// fetchChildSpecs reads every file under .deploy/<name>/ at sha in
// owner/repo, each parsed as one opaque child resource spec. Mirrors the
// Config Sync Handler's own fetch so a deploy picks up exactly the specs
// that were present in the config repo at the commit it last synced.
func fetchChildSpecs(ctx context.Context, client *github.Client, owner, repo, name, sha string) ([]map[string]any, error) {
	entries, err := sourceapi.ListDirectory(ctx, client, owner, repo, deployChildSpecDir+"/"+name, sha)
	if err != nil {
		if kind, ok := apperr.KindOf(err); ok && kind == apperr.KindNotFound {
			return nil, nil
		}
		return nil, err
	}

	var specs []map[string]any
	for _, e := range entries {
		if e.IsDir {
			continue
		}
		content, err := sourceapi.GetFileContent(ctx, client, owner, repo, e.Path, sha)
		if err != nil {
			return nil, err
		}
		var spec map[string]any
		if err := yaml.Unmarshal([]byte(content), &spec); err != nil {
			return nil, err
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

// recordEvent inserts the audit row shared by every action but
// ToggleAutodeploy. newSHA/newBranch are the values just written to
// status.artifact; the "previous" values are read from dc, captured before
// this call's patch landed.
func (e *Executor) recordEvent(ctx context.Context, dc domain.DeployConfig, req Request, newSHA, newBranch string, row store.DeployConfigRow) error {
	event := domain.DeployEvent{
		Name:            dc.Name,
		Timestamp:       time.Now(),
		Initiator:       req.Initiator,
		ArtifactSHA:     newSHA,
		ArtifactBranch:  newBranch,
		ConfigSHA:       dc.Status.ConfigSHA,
		PrevArtifactSHA: dc.Status.ArtifactWantedSHA,
		PrevConfigSHA:   dc.Status.ConfigSHA,
		ConfigRepoID:    row.ConfigRepoID,
	}
	if row.ArtifactRepoID != nil {
		event.ArtifactRepoID = *row.ArtifactRepoID
	}

	if _, err := e.store.InsertDeployEvent(ctx, event); err != nil {
		return apperr.Wrap(apperr.KindStore, "deploy: insert deploy event for "+dc.Name, err)
	}
	return nil
}
