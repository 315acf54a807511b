package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/kj800x/cicd-controller/internal/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "cicd.db")
	s, err := Open(ctx, path, nil)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestCommitUpsertIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.UpsertRepo(ctx, domain.Repo{ID: 1, Owner: "acme", Name: "widgets"}); err != nil {
		t.Fatalf("UpsertRepo() error = %v", err)
	}

	c := domain.Commit{SHA: "abc123", RepoID: 1, Message: "first", Author: "alice"}
	id1, err := s.UpsertCommit(ctx, c)
	if err != nil {
		t.Fatalf("UpsertCommit() error = %v", err)
	}

	c.Message = "first, edited"
	id2, err := s.UpsertCommit(ctx, c)
	if err != nil {
		t.Fatalf("UpsertCommit() second call error = %v", err)
	}

	if id1 != id2 {
		t.Errorf("upsert commit ids differ: %d != %d", id1, id2)
	}

	got, err := s.GetCommitByRepoAndSHA(ctx, 1, "abc123")
	if err != nil {
		t.Fatalf("GetCommitByRepoAndSHA() error = %v", err)
	}
	if got.Message != "first, edited" {
		t.Errorf("Message = %q, want updated value", got.Message)
	}

	var count int
	row := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM git_commit WHERE sha = ?`, "abc123")
	if err := row.Scan(&count); err != nil {
		t.Fatalf("count query error = %v", err)
	}
	if count != 1 {
		t.Errorf("expected exactly one row, got %d", count)
	}
}

func TestBranchUpsertKeepsRowID(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	if err := s.UpsertRepo(ctx, domain.Repo{ID: 1, Owner: "acme", Name: "widgets"}); err != nil {
		t.Fatalf("UpsertRepo() error = %v", err)
	}

	id1, err := s.UpsertBranch(ctx, 1, "main", "sha1")
	if err != nil {
		t.Fatalf("UpsertBranch() error = %v", err)
	}
	id2, err := s.UpsertBranch(ctx, 1, "main", "sha2")
	if err != nil {
		t.Fatalf("UpsertBranch() second call error = %v", err)
	}
	if id1 != id2 {
		t.Errorf("branch row id changed: %d != %d", id1, id2)
	}

	b, err := s.GetBranch(ctx, 1, "main")
	if err != nil {
		t.Fatalf("GetBranch() error = %v", err)
	}
	if b.HeadCommitSHA != "sha2" {
		t.Errorf("HeadCommitSHA = %q, want sha2", b.HeadCommitSHA)
	}
}

func TestBuildStatusMapping(t *testing.T) {
	cases := []struct {
		status     string
		conclusion string
		want       domain.BuildStatus
	}{
		{"queued", "", domain.BuildStatusPending},
		{"in_progress", "", domain.BuildStatusPending},
		{"completed", "success", domain.BuildStatusSuccess},
		{"completed", "failure", domain.BuildStatusFailure},
		{"completed", "timed_out", domain.BuildStatusFailure},
		{"completed", "action_required", domain.BuildStatusFailure},
		{"completed", "neutral", domain.BuildStatusSuccess},
		{"completed", "cancelled", domain.BuildStatusSuccess},
		{"completed", "skipped", domain.BuildStatusSuccess},
		{"completed", "stale", domain.BuildStatusNone},
		{"requested", "", domain.BuildStatusNone},
	}
	for _, c := range cases {
		got := domain.BuildStatusOf(c.status, c.conclusion)
		if got != c.want {
			t.Errorf("BuildStatusOf(%q, %q) = %q, want %q", c.status, c.conclusion, got, c.want)
		}
	}
}

func TestBuildUpsertIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	if err := s.UpsertRepo(ctx, domain.Repo{ID: 1, Owner: "acme", Name: "widgets"}); err != nil {
		t.Fatalf("UpsertRepo() error = %v", err)
	}
	commitID, err := s.UpsertCommit(ctx, domain.Commit{SHA: "abc123", RepoID: 1})
	if err != nil {
		t.Fatalf("UpsertCommit() error = %v", err)
	}

	b := domain.Build{RepoID: 1, CommitID: commitID, CheckName: "ci/test", Status: domain.BuildStatusPending, URL: "https://ci/1"}
	if err := s.UpsertBuild(ctx, b); err != nil {
		t.Fatalf("UpsertBuild() error = %v", err)
	}
	b.Status = domain.BuildStatusSuccess
	if err := s.UpsertBuild(ctx, b); err != nil {
		t.Fatalf("UpsertBuild() second call error = %v", err)
	}

	got, err := s.GetBuild(ctx, 1, commitID, "ci/test")
	if err != nil {
		t.Fatalf("GetBuild() error = %v", err)
	}
	if got.Status != domain.BuildStatusSuccess {
		t.Errorf("Status = %q, want Success", got.Status)
	}

	var count int
	row := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM git_commit_build WHERE repo_id = ? AND commit_id = ? AND check_name = ?`, 1, commitID, "ci/test")
	if err := row.Scan(&count); err != nil {
		t.Fatalf("count query error = %v", err)
	}
	if count != 1 {
		t.Errorf("expected exactly one build row, got %d", count)
	}
}
