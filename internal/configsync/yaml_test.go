package configsync

import "testing"

func TestParseDeployYAMLDefaultsArtifactBranch(t *testing.T) {
	data := []byte(`
team: team-a
kind: service
namespace: default
artifactRepo:
  owner: acme
  repo: widgets
`)
	y, err := parseDeployYAML(data)
	if err != nil {
		t.Fatalf("parseDeployYAML() error = %v", err)
	}
	if y.ArtifactRepo.Branch != defaultArtifactBranch {
		t.Fatalf("branch = %q, want %q", y.ArtifactRepo.Branch, defaultArtifactBranch)
	}
}

func TestParseDeployYAMLKeepsExplicitBranch(t *testing.T) {
	data := []byte(`
team: team-a
kind: service
namespace: default
artifactRepo:
  owner: acme
  repo: widgets
  branch: develop
`)
	y, err := parseDeployYAML(data)
	if err != nil {
		t.Fatalf("parseDeployYAML() error = %v", err)
	}
	if y.ArtifactRepo.Branch != "develop" {
		t.Fatalf("branch = %q, want develop", y.ArtifactRepo.Branch)
	}
}

func TestParseDeployYAMLNoArtifactRepo(t *testing.T) {
	data := []byte(`
team: team-a
kind: service
namespace: default
`)
	y, err := parseDeployYAML(data)
	if err != nil {
		t.Fatalf("parseDeployYAML() error = %v", err)
	}
	if y.ArtifactRepo != nil {
		t.Fatal("expected nil ArtifactRepo when omitted")
	}
}

func TestParseChildSpec(t *testing.T) {
	data := []byte(`
apiVersion: v1
kind: ConfigMap
metadata:
  name: cfg-$SHA
data:
  v: "$SHA"
`)
	spec, err := parseChildSpec(data)
	if err != nil {
		t.Fatalf("parseChildSpec() error = %v", err)
	}
	if spec["kind"] != "ConfigMap" {
		t.Fatalf("kind = %v, want ConfigMap", spec["kind"])
	}
}
