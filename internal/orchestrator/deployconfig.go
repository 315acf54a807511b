package orchestrator

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"

	"github.com/kj800x/cicd-controller/internal/domain"
)

// ToUnstructured renders a domain.DeployConfig as the custom resource shape
// the orchestrator expects. Specs is rendered as an empty list when nil, so
// callers creating a brand new object get an empty spec.specs list rather
// than a missing field.
func ToUnstructured(dc domain.DeployConfig) *unstructured.Unstructured {
	spec := map[string]any{
		"team": dc.Team,
		"kind": dc.Kind,
		"config": map[string]any{
			"owner": dc.Config.Owner,
			"repo":  dc.Config.Repo,
		},
	}
	if dc.Artifact != nil {
		spec["artifact"] = map[string]any{
			"owner":  dc.Artifact.Owner,
			"repo":   dc.Artifact.Repo,
			"branch": dc.Artifact.Branch,
		}
	}
	if dc.Specs != nil {
		specs := make([]any, len(dc.Specs))
		for i, s := range dc.Specs {
			specs[i] = s
		}
		spec["specs"] = specs
	} else {
		spec["specs"] = []any{}
	}

	obj := &unstructured.Unstructured{Object: map[string]any{
		"apiVersion": DeployConfigAPIVersion,
		"kind":       DeployConfigKind,
		"metadata": map[string]any{
			"name":      dc.Name,
			"namespace": dc.Namespace,
		},
		"spec": spec,
	}}
	return obj
}

// DeployConfigFromUnstructured reads the orchestrator's view of a
// DeployConfig back into the domain type.
func DeployConfigFromUnstructured(obj unstructured.Unstructured) domain.DeployConfig {
	dc := domain.DeployConfig{
		UID:       string(obj.GetUID()),
		Name:      obj.GetName(),
		Namespace: obj.GetNamespace(),
	}

	spec, _, _ := unstructured.NestedMap(obj.Object, "spec")
	dc.Team, _ = stringField(spec, "team")
	dc.Kind, _ = stringField(spec, "kind")

	if cfg, ok := spec["config"].(map[string]any); ok {
		owner, _ := stringField(cfg, "owner")
		repo, _ := stringField(cfg, "repo")
		dc.Config = domain.ConfigRef{Owner: owner, Repo: repo}
	}
	if art, ok := spec["artifact"].(map[string]any); ok {
		owner, _ := stringField(art, "owner")
		repo, _ := stringField(art, "repo")
		branch, _ := stringField(art, "branch")
		dc.Artifact = &domain.ArtifactRef{Owner: owner, Repo: repo, Branch: branch}
	}
	if specs, ok := spec["specs"].([]any); ok {
		for _, s := range specs {
			if m, ok := s.(map[string]any); ok {
				dc.Specs = append(dc.Specs, m)
			}
		}
	}

	status, _, _ := unstructured.NestedMap(obj.Object, "status")
	if artifact, ok := status["artifact"].(map[string]any); ok {
		dc.Status.ArtifactCurrentSHA, _ = stringField(artifact, "currentSha")
		dc.Status.ArtifactWantedSHA, _ = stringField(artifact, "wantedSha")
		dc.Status.ArtifactLatestSHA, _ = stringField(artifact, "latestSha")
		dc.Status.ArtifactBranch, _ = stringField(artifact, "branch")
	}
	if cfg, ok := status["config"].(map[string]any); ok {
		dc.Status.ConfigOwner, _ = stringField(cfg, "owner")
		dc.Status.ConfigRepo, _ = stringField(cfg, "repo")
		dc.Status.ConfigSHA, _ = stringField(cfg, "sha")
	}
	if autodeploy, ok := status["autodeploy"].(bool); ok {
		dc.Status.Autodeploy = autodeploy
	}
	if orphaned, ok := status["orphaned"].(bool); ok {
		dc.Status.Orphaned = orphaned
	}

	return dc
}

func stringField(m map[string]any, key string) (string, bool) {
	v, ok := m[key].(string)
	return v, ok
}

// SpecHash returns the SHA256 content hash of a DeployConfig's spec fields
// (team, kind, artifact, config, specs), used to detect drift between a
// config-sourced desired spec and what was last recorded.
func SpecHash(dc domain.DeployConfig) (string, error) {
	obj := ToUnstructured(dc)
	spec, _, _ := unstructured.NestedMap(obj.Object, "spec")
	data, err := json.Marshal(canonicalize(spec))
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// canonicalize produces a value whose json.Marshal output is stable
// regardless of map iteration order, by relying on encoding/json's own
// sorted-map-key behavior for map[string]any — nested slices are walked so
// their element maps are canonicalized too.
func canonicalize(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = canonicalize(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = canonicalize(val)
		}
		return out
	default:
		return t
	}
}
