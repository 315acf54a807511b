package orchestrator

import (
	"os"
	"path/filepath"

	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"

	"github.com/kj800x/cicd-controller/internal/apperr"
)

// LoadRESTConfig resolves a *rest.Config the way any controller binary
// would: an explicit KUBECONFIG path or ~/.kube/config when running outside
// a cluster, falling back to the in-cluster service account config when
// neither is present.
func LoadRESTConfig() (*rest.Config, error) {
	if path := kubeconfigPath(); path != "" {
		cfg, err := clientcmd.BuildConfigFromFlags("", path)
		if err == nil {
			return cfg, nil
		}
	}

	cfg, err := rest.InClusterConfig()
	if err != nil {
		return nil, apperr.Wrap(apperr.KindOrchestrator, "load kubernetes config", err)
	}
	return cfg, nil
}

func kubeconfigPath() string {
	if p := os.Getenv("KUBECONFIG"); p != "" {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	path := filepath.Join(home, ".kube", "config")
	if _, err := os.Stat(path); err != nil {
		return ""
	}
	return path
}
