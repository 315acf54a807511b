package configsync

import "gopkg.in/yaml.v3"

// deployYAML is the shape of a `.deploy/<name>.yaml` file.
type deployYAML struct {
	Team         string            `yaml:"team"`
	Kind         string            `yaml:"kind"`
	Namespace    string            `yaml:"namespace"`
	ArtifactRepo *artifactRepoYAML `yaml:"artifactRepo"`
}

type artifactRepoYAML struct {
	Owner  string `yaml:"owner"`
	Repo   string `yaml:"repo"`
	Branch string `yaml:"branch"`
}

const defaultArtifactBranch = "master"

func parseDeployYAML(data []byte) (deployYAML, error) {
	var d deployYAML
	if err := yaml.Unmarshal(data, &d); err != nil {
		return deployYAML{}, err
	}
	if d.ArtifactRepo != nil && d.ArtifactRepo.Branch == "" {
		d.ArtifactRepo.Branch = defaultArtifactBranch
	}
	return d, nil
}

func parseChildSpec(data []byte) (map[string]any, error) {
	var m map[string]any
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}
