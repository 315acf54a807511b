package controller

import (
	"context"
	"testing"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"
	discoveryfake "k8s.io/client-go/discovery/fake"
	dynamicfake "k8s.io/client-go/dynamic/fake"
	clienttesting "k8s.io/client-go/testing"

	"github.com/kj800x/cicd-controller/internal/orchestrator"
)

const testController = "cicd-controller"

func newTestClient(t *testing.T, objects ...runtime.Object) (*orchestrator.Client, *dynamicfake.FakeDynamicClient) {
	t.Helper()
	scheme := runtime.NewScheme()
	listKinds := map[schema.GroupVersionResource]string{
		orchestrator.DeployConfigGVR: "DeployConfigList",
		{Group: "", Version: "v1", Resource: "configmaps"}: "ConfigMapList",
	}
	dyn := dynamicfake.NewSimpleDynamicClientWithCustomListKinds(scheme, listKinds, objects...)

	disco := &discoveryfake.FakeDiscovery{Fake: &clienttesting.Fake{
		Resources: []*metav1.APIResourceList{
			{
				GroupVersion: "v1",
				APIResources: []metav1.APIResource{
					{Name: "configmaps", Namespaced: true, Kind: "ConfigMap", Verbs: metav1.Verbs{"list", "get", "create", "update", "patch", "delete"}},
				},
			},
		},
	}}

	return orchestrator.New(dyn, disco, testController, nil), dyn
}

func deployConfigObject(namespace, name, uid string, status map[string]any) *unstructured.Unstructured {
	return &unstructured.Unstructured{Object: map[string]any{
		"apiVersion": orchestrator.DeployConfigAPIVersion,
		"kind":       orchestrator.DeployConfigKind,
		"metadata": map[string]any{
			"name":      name,
			"namespace": namespace,
			"uid":       uid,
		},
		"spec": map[string]any{
			"team": "team-a",
			"kind": "service",
			"config": map[string]any{
				"owner": "acme",
				"repo":  "widgets",
			},
			"specs": []any{
				map[string]any{
					"apiVersion": "v1",
					"kind":       "ConfigMap",
					"metadata":   map[string]any{"name": "cfg-$SHA"},
					"data":       map[string]any{"version": "$SHA"},
				},
			},
		},
		"status": status,
	}}
}

func TestReconcileFirstDeployAppliesAndStampsCurrentSHA(t *testing.T) {
	dc := deployConfigObject("default", "team-a-svc", "uid-1", map[string]any{
		"artifact": map[string]any{"wantedSha": "abc123"},
	})
	orch, dyn := newTestClient(t, dc)
	c := &Controller{orchestrator: orch, controllerName: testController}

	if err := c.reconcile(context.Background(), "default/team-a-svc"); err != nil {
		t.Fatalf("reconcile() error = %v", err)
	}

	cm, err := dyn.Resource(schema.GroupVersionResource{Group: "", Version: "v1", Resource: "configmaps"}).
		Namespace("default").Get(context.Background(), "cfg-abc123", metav1.GetOptions{})
	if err != nil {
		t.Fatalf("expected ConfigMap to be applied: %v", err)
	}
	if !orchestrator.OwnedBy(*cm, "uid-1") {
		t.Fatal("applied ConfigMap should carry an owner reference to the DeployConfig")
	}

	updated, err := orch.GetDeployConfig(context.Background(), "default", "team-a-svc")
	if err != nil {
		t.Fatalf("GetDeployConfig() error = %v", err)
	}
	got := orchestrator.DeployConfigFromUnstructured(*updated)
	if got.Status.ArtifactCurrentSHA != "abc123" {
		t.Fatalf("currentSha = %q, want abc123", got.Status.ArtifactCurrentSHA)
	}
}

func TestReconcileRollForwardPrunesOldVersion(t *testing.T) {
	dc := deployConfigObject("default", "team-a-svc", "uid-1", map[string]any{
		"artifact": map[string]any{"wantedSha": "def456", "currentSha": "abc123"},
	})
	staleChild := &unstructured.Unstructured{Object: map[string]any{
		"apiVersion": "v1",
		"kind":       "ConfigMap",
		"metadata": map[string]any{
			"name":      "cfg-abc123",
			"namespace": "default",
			"labels":    map[string]any{orchestrator.ManagedByLabel: testController},
			"annotations": map[string]any{
				orchestrator.VersionAnnotation: "abc123",
			},
			"ownerReferences": []any{
				map[string]any{
					"apiVersion":         orchestrator.DeployConfigAPIVersion,
					"kind":               orchestrator.DeployConfigKind,
					"name":               "team-a-svc",
					"uid":                "uid-1",
					"controller":         true,
					"blockOwnerDeletion": true,
				},
			},
		},
	}}

	orch, dyn := newTestClient(t, dc, staleChild)
	c := &Controller{orchestrator: orch, controllerName: testController}

	if err := c.reconcile(context.Background(), "default/team-a-svc"); err != nil {
		t.Fatalf("reconcile() error = %v", err)
	}

	cmRes := dyn.Resource(schema.GroupVersionResource{Group: "", Version: "v1", Resource: "configmaps"}).Namespace("default")

	if _, err := cmRes.Get(context.Background(), "cfg-def456", metav1.GetOptions{}); err != nil {
		t.Fatalf("expected new ConfigMap to be applied: %v", err)
	}
	if _, err := cmRes.Get(context.Background(), "cfg-abc123", metav1.GetOptions{}); err == nil {
		t.Fatal("expected stale ConfigMap to be pruned")
	}

	updated, err := orch.GetDeployConfig(context.Background(), "default", "team-a-svc")
	if err != nil {
		t.Fatalf("GetDeployConfig() error = %v", err)
	}
	got := orchestrator.DeployConfigFromUnstructured(*updated)
	if got.Status.ArtifactCurrentSHA != "def456" {
		t.Fatalf("currentSha = %q, want def456", got.Status.ArtifactCurrentSHA)
	}
}

func TestReconcileQuiescentDoesNothing(t *testing.T) {
	dc := deployConfigObject("default", "team-a-svc", "uid-1", map[string]any{})
	orch, _ := newTestClient(t, dc)
	c := &Controller{orchestrator: orch, controllerName: testController}

	if err := c.reconcile(context.Background(), "default/team-a-svc"); err != nil {
		t.Fatalf("reconcile() error = %v", err)
	}
}

func TestReconcileMissingDeployConfigIsNotAnError(t *testing.T) {
	orch, _ := newTestClient(t)
	c := &Controller{orchestrator: orch, controllerName: testController}

	if err := c.reconcile(context.Background(), "default/gone"); err != nil {
		t.Fatalf("reconcile() error = %v, want nil for an already-deleted object", err)
	}
}
