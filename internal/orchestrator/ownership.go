package orchestrator

import (
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/types"
)

// VersionAnnotation records which wanted SHA produced an applied object.
const VersionAnnotation = "cicd.coolkev.com/version"

// DeployConfigAPIVersion is the owner-reference apiVersion stamped on every
// child resource.
const DeployConfigAPIVersion = "cicd.coolkev.com/v1"

// DeployConfigKind is the owner-reference kind stamped on every child
// resource.
const DeployConfigKind = "DeployConfig"

// StampOwnership ensures obj carries an owner reference to dc (kind+name+UID,
// controller=true, blockOwnerDeletion=true), the managed-by label, and the
// version annotation — without duplicating an existing owner-reference entry
// for the same UID. Safe to call repeatedly: stamp(stamp(obj)) == stamp(obj).
func StampOwnership(obj *unstructured.Unstructured, dcName, dcUID, controllerName, sha string) {
	refs := obj.GetOwnerReferences()
	found := false
	for i, ref := range refs {
		if ref.UID == types.UID(dcUID) {
			refs[i].Name = dcName
			refs[i].Kind = DeployConfigKind
			refs[i].APIVersion = DeployConfigAPIVersion
			refs[i].Controller = boolPtr(true)
			refs[i].BlockOwnerDeletion = boolPtr(true)
			found = true
		}
	}
	if !found {
		refs = append(refs, metav1.OwnerReference{
			APIVersion:         DeployConfigAPIVersion,
			Kind:               DeployConfigKind,
			Name:               dcName,
			UID:                types.UID(dcUID),
			Controller:         boolPtr(true),
			BlockOwnerDeletion: boolPtr(true),
		})
	}
	obj.SetOwnerReferences(refs)

	labels := obj.GetLabels()
	if labels == nil {
		labels = map[string]string{}
	}
	labels[ManagedByLabel] = controllerName
	obj.SetLabels(labels)

	annotations := obj.GetAnnotations()
	if annotations == nil {
		annotations = map[string]string{}
	}
	annotations[VersionAnnotation] = sha
	obj.SetAnnotations(annotations)
}

// OwnedBy reports whether obj carries an owner reference whose UID matches
// dcUID.
func OwnedBy(obj unstructured.Unstructured, dcUID string) bool {
	for _, ref := range obj.GetOwnerReferences() {
		if ref.UID == types.UID(dcUID) {
			return true
		}
	}
	return false
}

// VersionOf returns the version annotation of obj, or "" if absent.
func VersionOf(obj unstructured.Unstructured) string {
	return obj.GetAnnotations()[VersionAnnotation]
}
