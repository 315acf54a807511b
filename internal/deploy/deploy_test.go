package deploy

import (
	"context"
	"path/filepath"
	"testing"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"
	discoveryfake "k8s.io/client-go/discovery/fake"
	dynamicfake "k8s.io/client-go/dynamic/fake"
	clienttesting "k8s.io/client-go/testing"

	"github.com/kj800x/cicd-controller/internal/domain"
	"github.com/kj800x/cicd-controller/internal/orchestrator"
	"github.com/kj800x/cicd-controller/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "cicd.db")
	s, err := store.Open(ctx, path, nil)
	if err != nil {
		t.Fatalf("store.Open() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func newTestOrchestrator(t *testing.T, objects ...runtime.Object) *orchestrator.Client {
	t.Helper()
	scheme := runtime.NewScheme()
	listKinds := map[schema.GroupVersionResource]string{
		orchestrator.DeployConfigGVR: "DeployConfigList",
	}
	dyn := dynamicfake.NewSimpleDynamicClientWithCustomListKinds(scheme, listKinds, objects...)
	disco := &discoveryfake.FakeDiscovery{Fake: &clienttesting.Fake{}}
	return orchestrator.New(dyn, disco, "cicd-controller", nil)
}

func deployConfigObject(namespace, name string, status map[string]any) *unstructured.Unstructured {
	return &unstructured.Unstructured{Object: map[string]any{
		"apiVersion": orchestrator.DeployConfigAPIVersion,
		"kind":       orchestrator.DeployConfigKind,
		"metadata": map[string]any{
			"name":      name,
			"namespace": namespace,
		},
		"spec": map[string]any{
			"team": "team-a",
			"kind": "service",
			"config": map[string]any{"owner": "acme", "repo": "config"},
			"artifact": map[string]any{
				"owner": "acme", "repo": "widgets", "branch": "master",
			},
		},
		"status": status,
	}}
}

func seedStoreForDeploy(t *testing.T, s *store.Store, name string) {
	t.Helper()
	ctx := context.Background()
	if err := s.UpsertRepo(ctx, domain.Repo{ID: 1, Owner: "acme", Name: "config"}); err != nil {
		t.Fatalf("seed config repo: %v", err)
	}
	if err := s.UpsertRepo(ctx, domain.Repo{ID: 2, Owner: "acme", Name: "widgets"}); err != nil {
		t.Fatalf("seed artifact repo: %v", err)
	}
	artifactID := int64(2)
	if err := s.UpsertDeployConfig(ctx, store.DeployConfigRow{
		Name: name, Team: "team-a", Kind: "service", Namespace: "default",
		ConfigRepoID: 1, ArtifactRepoID: &artifactID,
	}); err != nil {
		t.Fatalf("seed deploy config: %v", err)
	}

	commitID, err := s.UpsertCommit(ctx, domain.Commit{SHA: "deadbeef", RepoID: 2, Message: "ship it"})
	if err != nil {
		t.Fatalf("seed commit: %v", err)
	}
	branchID, err := s.UpsertBranch(ctx, 2, "master", "deadbeef")
	if err != nil {
		t.Fatalf("seed branch: %v", err)
	}
	if err := s.AddBranchMembership(ctx, commitID, branchID); err != nil {
		t.Fatalf("seed branch membership: %v", err)
	}
	if err := s.UpsertBuild(ctx, domain.Build{
		RepoID: 2, CommitID: commitID, CheckName: "ci", Status: domain.BuildStatusSuccess,
	}); err != nil {
		t.Fatalf("seed build: %v", err)
	}
}

func TestExecuteDeployLatestPatchesWantedSHAAndRecordsEvent(t *testing.T) {
	dc := deployConfigObject("default", "team-a-svc", map[string]any{
		"artifact": map[string]any{"branch": "master"},
	})
	orch := newTestOrchestrator(t, dc)
	s := newTestStore(t)
	seedStoreForDeploy(t, s, "team-a-svc")

	e := New(orch, s, nil, nil)
	err := e.Execute(context.Background(), ActionDeployLatest, Request{
		Namespace: "default", Name: "team-a-svc", Initiator: "alice",
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	obj, err := orch.GetDeployConfig(context.Background(), "default", "team-a-svc")
	if err != nil {
		t.Fatalf("GetDeployConfig() error = %v", err)
	}
	got := orchestrator.DeployConfigFromUnstructured(*obj)
	if got.Status.ArtifactWantedSHA != "deadbeef" {
		t.Fatalf("wantedSha = %q, want deadbeef", got.Status.ArtifactWantedSHA)
	}
}

func TestExecuteDeployCommitClearsBranch(t *testing.T) {
	dc := deployConfigObject("default", "team-a-svc", map[string]any{
		"artifact": map[string]any{"branch": "master", "wantedSha": "old"},
	})
	orch := newTestOrchestrator(t, dc)
	s := newTestStore(t)
	seedStoreForDeploy(t, s, "team-a-svc")

	e := New(orch, s, nil, nil)
	err := e.Execute(context.Background(), ActionDeployCommit, Request{
		Namespace: "default", Name: "team-a-svc", Initiator: "alice", SHA: "cafef00d",
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	obj, err := orch.GetDeployConfig(context.Background(), "default", "team-a-svc")
	if err != nil {
		t.Fatalf("GetDeployConfig() error = %v", err)
	}
	got := orchestrator.DeployConfigFromUnstructured(*obj)
	if got.Status.ArtifactWantedSHA != "cafef00d" {
		t.Fatalf("wantedSha = %q, want cafef00d", got.Status.ArtifactWantedSHA)
	}
	if got.Status.ArtifactBranch != "" {
		t.Fatalf("branch = %q, want cleared", got.Status.ArtifactBranch)
	}
}

func TestExecuteUndeployOrphanedDeletesDeployConfig(t *testing.T) {
	dc := deployConfigObject("default", "team-a-svc", map[string]any{
		"artifact": map[string]any{"wantedSha": "deadbeef"},
		"orphaned": true,
	})
	orch := newTestOrchestrator(t, dc)
	s := newTestStore(t)
	seedStoreForDeploy(t, s, "team-a-svc")

	e := New(orch, s, nil, nil)
	err := e.Execute(context.Background(), ActionUndeploy, Request{
		Namespace: "default", Name: "team-a-svc", Initiator: "alice",
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	if _, err := orch.GetDeployConfig(context.Background(), "default", "team-a-svc"); err == nil {
		t.Fatal("expected orphaned deployconfig to be deleted after undeploy")
	}
}

func TestExecuteRefusesNonUndeployWhenOrphaned(t *testing.T) {
	dc := deployConfigObject("default", "team-a-svc", map[string]any{
		"artifact": map[string]any{"wantedSha": "deadbeef"},
		"orphaned": true,
	})
	orch := newTestOrchestrator(t, dc)
	s := newTestStore(t)
	seedStoreForDeploy(t, s, "team-a-svc")

	e := New(orch, s, nil, nil)
	err := e.Execute(context.Background(), ActionToggleAutodeploy, Request{
		Namespace: "default", Name: "team-a-svc", Initiator: "alice",
	})
	if err == nil {
		t.Fatal("expected an error toggling autodeploy on an orphaned deployconfig")
	}
}

func TestExecuteToggleAutodeployFlipsFlag(t *testing.T) {
	dc := deployConfigObject("default", "team-a-svc", map[string]any{
		"autodeploy": false,
	})
	orch := newTestOrchestrator(t, dc)
	s := newTestStore(t)
	seedStoreForDeploy(t, s, "team-a-svc")

	e := New(orch, s, nil, nil)
	if err := e.Execute(context.Background(), ActionToggleAutodeploy, Request{
		Namespace: "default", Name: "team-a-svc", Initiator: "alice",
	}); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	obj, err := orch.GetDeployConfig(context.Background(), "default", "team-a-svc")
	if err != nil {
		t.Fatalf("GetDeployConfig() error = %v", err)
	}
	got := orchestrator.DeployConfigFromUnstructured(*obj)
	if !got.Status.Autodeploy {
		t.Fatal("expected autodeploy to flip to true")
	}
}
