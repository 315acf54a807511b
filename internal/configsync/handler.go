// Package configsync reconciles the orchestrator's DeployConfigs defined by
// a config repository's .deploy/ directory against what is pushed to its
// default branch.
package configsync

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/kj800x/cicd-controller/internal/apperr"
	"github.com/kj800x/cicd-controller/internal/domain"
	"github.com/kj800x/cicd-controller/internal/orchestrator"
	"github.com/kj800x/cicd-controller/internal/sourceapi"
	"github.com/kj800x/cicd-controller/internal/store"
	"github.com/kj800x/cicd-controller/internal/webhook"
)

const deployDir = ".deploy"

// Handler implements webhook.Handler, syncing DeployConfigs on pushes to a
// repository's default branch; every other event family is a no-op.
type Handler struct {
	pool         *sourceapi.Pool
	orchestrator *orchestrator.Client
	store        *store.Store
	logger       *slog.Logger
}

func New(pool *sourceapi.Pool, orch *orchestrator.Client, s *store.Store, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{pool: pool, orchestrator: orch, store: s, logger: logger}
}

func (h *Handler) Name() string { return "configsync" }

func (h *Handler) OnPush(ctx context.Context, payload webhook.PushPayload) error {
	branchName, ok := branchNameFromRef(payload.Ref)
	if !ok || branchName != payload.Repository.DefaultBranch {
		return nil
	}
	if payload.HeadCommit == nil {
		return nil
	}

	repo := domain.Repo{
		ID:            payload.Repository.ID,
		Owner:         payload.Repository.Owner.Login,
		Name:          payload.Repository.Name,
		DefaultBranch: payload.Repository.DefaultBranch,
		Private:       payload.Repository.Private,
		Language:      payload.Repository.Language,
	}
	if err := h.store.UpsertRepo(ctx, repo); err != nil {
		return apperr.Wrap(apperr.KindStore, "configsync: upsert config repo", err)
	}

	return h.sync(ctx, repo, payload.HeadCommit.ID)
}

func (h *Handler) OnCheckRun(context.Context, webhook.CheckRunPayload) error     { return nil }
func (h *Handler) OnCheckSuite(context.Context, webhook.CheckSuitePayload) error { return nil }
func (h *Handler) OnDelete(context.Context, webhook.DeletePayload) error         { return nil }
func (h *Handler) OnUnknown(context.Context, string, json.RawMessage) error      { return nil }

func branchNameFromRef(ref string) (string, bool) {
	const prefix = "refs/heads/"
	if !strings.HasPrefix(ref, prefix) {
		return "", false
	}
	return strings.TrimPrefix(ref, prefix), true
}
