package orchestrator

import (
	"testing"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
)

func TestStampOwnershipDoesNotDuplicate(t *testing.T) {
	obj := &unstructured.Unstructured{Object: map[string]any{
		"apiVersion": "v1",
		"kind":       "ConfigMap",
		"metadata":   map[string]any{"name": "cfg-abc"},
	}}

	StampOwnership(obj, "team-a-api", "uid-1", "cicd-controller", "abc123")
	StampOwnership(obj, "team-a-api", "uid-1", "cicd-controller", "abc123")

	refs := obj.GetOwnerReferences()
	if len(refs) != 1 {
		t.Fatalf("expected exactly one owner reference, got %d", len(refs))
	}
	if string(refs[0].UID) != "uid-1" {
		t.Errorf("owner ref UID = %q", refs[0].UID)
	}
	if !OwnedBy(*obj, "uid-1") {
		t.Errorf("OwnedBy should report true for uid-1")
	}
	if OwnedBy(*obj, "uid-2") {
		t.Errorf("OwnedBy should report false for uid-2")
	}
	if obj.GetLabels()[ManagedByLabel] != "cicd-controller" {
		t.Errorf("managed-by label = %q", obj.GetLabels()[ManagedByLabel])
	}
	if VersionOf(*obj) != "abc123" {
		t.Errorf("version annotation = %q", VersionOf(*obj))
	}
}
