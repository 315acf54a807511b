// Package persistence implements the webhook handler that keeps the Repo
// Store in sync with push, check_run, check_suite and delete events.
package persistence

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/kj800x/cicd-controller/internal/apperr"
	"github.com/kj800x/cicd-controller/internal/domain"
	"github.com/kj800x/cicd-controller/internal/store"
	"github.com/kj800x/cicd-controller/internal/webhook"
)

// Handler upserts repos, commits, branches and build rows as webhook events
// arrive. It never touches DeployConfigs; that is configsync's job.
type Handler struct {
	store  *store.Store
	logger *slog.Logger
}

// New builds a Handler writing through to s.
func New(s *store.Store, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{store: s, logger: logger}
}

func (h *Handler) Name() string { return "persistence" }

func (h *Handler) OnPush(ctx context.Context, payload webhook.PushPayload) error {
	repo := repoFromPayload(payload.Repository)
	if err := h.store.UpsertRepo(ctx, repo); err != nil {
		return apperr.Wrap(apperr.KindStore, "persistence: upsert repo on push", err)
	}

	if payload.HeadCommit == nil {
		return nil
	}

	commitID, err := h.store.UpsertCommit(ctx, domain.Commit{
		SHA:             payload.HeadCommit.ID,
		RepoID:          repo.ID,
		Message:         payload.HeadCommit.Message,
		Author:          payload.HeadCommit.Author.Name,
		Committer:       payload.HeadCommit.Committer.Name,
		TimestampMillis: commitTimestampMillis(payload.HeadCommit.Timestamp, h.logger),
	})
	if err != nil {
		return apperr.Wrap(apperr.KindStore, "persistence: upsert commit on push", err)
	}
	if err := h.store.AddParentSHAs(ctx, commitID, payload.HeadCommit.ParentIDs); err != nil {
		return apperr.Wrap(apperr.KindStore, "persistence: add parent shas", err)
	}

	branchName, ok := branchNameFromRef(payload.Ref)
	if !ok {
		return nil
	}
	branchID, err := h.store.UpsertBranch(ctx, repo.ID, branchName, payload.HeadCommit.ID)
	if err != nil {
		return apperr.Wrap(apperr.KindStore, "persistence: upsert branch on push", err)
	}
	if err := h.store.AddBranchMembership(ctx, commitID, branchID); err != nil {
		return apperr.Wrap(apperr.KindStore, "persistence: add branch membership", err)
	}
	return nil
}

func (h *Handler) OnCheckRun(ctx context.Context, payload webhook.CheckRunPayload) error {
	if payload.Action != "created" {
		return nil
	}

	repo := repoFromPayload(payload.Repository)
	if err := h.store.UpsertRepo(ctx, repo); err != nil {
		return apperr.Wrap(apperr.KindStore, "persistence: upsert repo on check_run", err)
	}

	commit, err := h.store.GetCommitByRepoAndSHA(ctx, repo.ID, payload.CheckRun.HeadSHA)
	if err != nil {
		if kind, ok := apperr.KindOf(err); ok && kind == apperr.KindNotFound {
			h.logger.Debug("check_run for unknown commit, skipping",
				"repo", repo.FullName(), "sha", payload.CheckRun.HeadSHA)
			return nil
		}
		return apperr.Wrap(apperr.KindStore, "persistence: look up commit for check_run", err)
	}

	return h.store.UpsertBuild(ctx, domain.Build{
		RepoID:    repo.ID,
		CommitID:  commit.ID,
		CheckName: payload.CheckRun.Name,
		Status:    domain.BuildStatusPending,
		URL:       payload.CheckRun.DetailsURL,
	})
}

func (h *Handler) OnCheckSuite(ctx context.Context, payload webhook.CheckSuitePayload) error {
	if payload.Action != "completed" {
		return nil
	}

	repo := repoFromPayload(payload.Repository)
	if err := h.store.UpsertRepo(ctx, repo); err != nil {
		return apperr.Wrap(apperr.KindStore, "persistence: upsert repo on check_suite", err)
	}

	commit, err := h.store.GetCommitByRepoAndSHA(ctx, repo.ID, payload.CheckSuite.HeadSHA)
	if err != nil {
		if kind, ok := apperr.KindOf(err); ok && kind == apperr.KindNotFound {
			h.logger.Debug("check_suite for unknown commit, skipping",
				"repo", repo.FullName(), "sha", payload.CheckSuite.HeadSHA)
			return nil
		}
		return apperr.Wrap(apperr.KindStore, "persistence: look up commit for check_suite", err)
	}

	status := domain.BuildStatusOf(payload.CheckSuite.Status, payload.CheckSuite.Conclusion)
	return h.store.UpsertBuild(ctx, domain.Build{
		RepoID:    repo.ID,
		CommitID:  commit.ID,
		CheckName: "check_suite",
		Status:    status,
	})
}

func (h *Handler) OnDelete(ctx context.Context, payload webhook.DeletePayload) error {
	if payload.RefType != "branch" {
		return nil
	}
	repo := repoFromPayload(payload.Repository)
	if err := h.store.MarkBranchInactive(ctx, repo.ID, payload.Ref); err != nil {
		return apperr.Wrap(apperr.KindStore, "persistence: mark branch inactive", err)
	}
	return nil
}

func (h *Handler) OnUnknown(context.Context, string, json.RawMessage) error { return nil }

func repoFromPayload(r webhook.Repository) domain.Repo {
	return domain.Repo{
		ID:            r.ID,
		Owner:         r.Owner.Login,
		Name:          r.Name,
		DefaultBranch: r.DefaultBranch,
		Private:       r.Private,
		Language:      r.Language,
	}
}

// commitTimestampMillis parses a head_commit.timestamp ISO-8601 string (as
// sent by GitHub push events) into epoch milliseconds. A malformed or empty
// timestamp is logged and falls back to 0 rather than failing the push.
func commitTimestampMillis(timestamp string, logger *slog.Logger) int64 {
	if timestamp == "" {
		return 0
	}
	t, err := time.Parse(time.RFC3339, timestamp)
	if err != nil {
		logger.Warn("persistence: malformed commit timestamp, defaulting to 0", "timestamp", timestamp, "error", err)
		return 0
	}
	return t.UnixMilli()
}

// branchNameFromRef extracts "main" from "refs/heads/main"; tag refs and
// anything else are not branches.
func branchNameFromRef(ref string) (string, bool) {
	const prefix = "refs/heads/"
	if len(ref) <= len(prefix) || ref[:len(prefix)] != prefix {
		return "", false
	}
	return ref[len(prefix):], true
}
