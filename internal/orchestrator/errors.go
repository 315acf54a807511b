package orchestrator

import (
	k8serrors "k8s.io/apimachinery/pkg/api/errors"
)

func isNotFound(err error) bool {
	return k8serrors.IsNotFound(err)
}

func isConflict(err error) bool {
	return k8serrors.IsConflict(err)
}

func isMethodNotAllowed(err error) bool {
	return k8serrors.IsMethodNotSupported(err)
}
