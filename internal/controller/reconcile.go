package controller

import (
	"context"
	"fmt"
	"time"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/client-go/tools/cache"

	"github.com/kj800x/cicd-controller/internal/apperr"
	"github.com/kj800x/cicd-controller/internal/domain"
	"github.com/kj800x/cicd-controller/internal/metrics"
	"github.com/kj800x/cicd-controller/internal/orchestrator"
)

// reconcile resolves one DeployConfig's (namespace, name) key against the
// orchestrator's current view and drives it toward the decision table: first
// deploy, resync, roll forward, undeploy, or quiescent.
func (c *Controller) reconcile(ctx context.Context, key string) error {
	start := time.Now()
	err := c.doReconcile(ctx, key)
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	metrics.ReconcileDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
	return err
}

func (c *Controller) doReconcile(ctx context.Context, key string) error {
	namespace, name, err := cache.SplitMetaNamespaceKey(key)
	if err != nil {
		return apperr.Wrap(apperr.KindOrchestrator, "split queue key "+key, err)
	}

	obj, err := c.orchestrator.GetDeployConfig(ctx, namespace, name)
	if err != nil {
		if isNotFound(err) {
			return nil // deleted before we got to it; nothing left to reconcile
		}
		return err
	}
	dc := orchestrator.DeployConfigFromUnstructured(*obj)

	wanted := dc.Status.ArtifactWantedSHA
	current := dc.Status.ArtifactCurrentSHA

	switch {
	case wanted != "" && current == "":
		metrics.ReconcileDecisionsTotal.WithLabelValues("first_deploy").Inc()
		return c.firstDeploy(ctx, dc)
	case wanted != "" && current == wanted:
		metrics.ReconcileDecisionsTotal.WithLabelValues("resync").Inc()
		return c.resync(ctx, dc)
	case wanted != "" && current != wanted:
		metrics.ReconcileDecisionsTotal.WithLabelValues("roll_forward").Inc()
		return c.rollForward(ctx, dc)
	case wanted == "" && current != "":
		metrics.ReconcileDecisionsTotal.WithLabelValues("undeploy").Inc()
		return c.undeploy(ctx, dc)
	default:
		metrics.ReconcileDecisionsTotal.WithLabelValues("quiescent").Inc()
		return nil // quiescent: nothing wanted, nothing deployed
	}
}

// firstDeploy applies every child spec at the wanted SHA and records it as
// current.
func (c *Controller) firstDeploy(ctx context.Context, dc domain.DeployConfig) error {
	if err := c.applySpecs(ctx, dc, dc.Status.ArtifactWantedSHA); err != nil {
		return err
	}
	_, err := c.orchestrator.PatchStatus(ctx, dc.Namespace, dc.Name, map[string]any{
		"artifact": map[string]any{"currentSha": dc.Status.ArtifactWantedSHA},
	})
	return err
}

// resync re-applies every child spec at the already-current SHA (picking up
// any drift in the child specs themselves) and prunes children left over from
// an older wanted SHA.
func (c *Controller) resync(ctx context.Context, dc domain.DeployConfig) error {
	sha := dc.Status.ArtifactCurrentSHA
	if err := c.applySpecs(ctx, dc, sha); err != nil {
		return err
	}
	return c.prune(ctx, dc, sha)
}

// rollForward applies specs at the new wanted SHA, prunes anything left at
// the old SHA, and only then advances currentSha — so a crash mid-rollout
// resumes as another rollForward rather than silently completing.
func (c *Controller) rollForward(ctx context.Context, dc domain.DeployConfig) error {
	wanted := dc.Status.ArtifactWantedSHA
	if err := c.applySpecs(ctx, dc, wanted); err != nil {
		return err
	}
	if err := c.prune(ctx, dc, wanted); err != nil {
		return err
	}
	_, err := c.orchestrator.PatchStatus(ctx, dc.Namespace, dc.Name, map[string]any{
		"artifact": map[string]any{"currentSha": wanted},
	})
	return err
}

// undeploy deletes every child this DeployConfig owns and clears currentSha.
func (c *Controller) undeploy(ctx context.Context, dc domain.DeployConfig) error {
	if err := c.pruneAll(ctx, dc); err != nil {
		return err
	}
	_, err := c.orchestrator.PatchStatus(ctx, dc.Namespace, dc.Name, map[string]any{
		"artifact": map[string]any{"currentSha": nil},
	})
	return err
}

// applySpecs interpolates $SHA into every child spec, stamps ownership, and
// server-side-applies each one. One spec's failure aborts the rest so a
// partial rollout is retried whole on the next reconcile.
func (c *Controller) applySpecs(ctx context.Context, dc domain.DeployConfig, sha string) error {
	specs := orchestrator.InterpolateSpecs(dc.Specs, sha)
	for i, spec := range specs {
		obj := &unstructured.Unstructured{Object: spec}
		gvk := obj.GroupVersionKind()
		if gvk.Kind == "" {
			return apperr.New(apperr.KindOrchestrator, fmt.Sprintf("deployconfig %s: spec %d has no apiVersion/kind", dc.Name, i))
		}

		orchestrator.StampOwnership(obj, dc.Name, dc.UID, c.controllerName, sha)
		if obj.GetNamespace() == "" {
			obj.SetNamespace(dc.Namespace)
		}

		gvr, err := c.orchestrator.ResourceFor(gvk)
		if err != nil {
			return err
		}
		if _, err := c.orchestrator.Apply(ctx, obj.GetNamespace(), gvr, obj); err != nil {
			return err
		}
	}
	return nil
}

// prune deletes every child owned by dc whose version annotation is not
// currentSHA, i.e. left over from an earlier rollout.
func (c *Controller) prune(ctx context.Context, dc domain.DeployConfig, currentSHA string) error {
	owned, err := c.listOwned(ctx, dc)
	if err != nil {
		return err
	}
	for _, obj := range owned {
		if orchestrator.VersionOf(obj) == currentSHA {
			continue
		}
		if err := c.deleteChild(ctx, obj); err != nil {
			return err
		}
	}
	return nil
}

// pruneAll deletes every child owned by dc, regardless of version.
func (c *Controller) pruneAll(ctx context.Context, dc domain.DeployConfig) error {
	owned, err := c.listOwned(ctx, dc)
	if err != nil {
		return err
	}
	for _, obj := range owned {
		if err := c.deleteChild(ctx, obj); err != nil {
			return err
		}
	}
	return nil
}

func (c *Controller) listOwned(ctx context.Context, dc domain.DeployConfig) ([]unstructured.Unstructured, error) {
	selector := orchestrator.ManagedByLabel + "=" + c.controllerName
	objs, err := c.orchestrator.ListNamespaceObjects(ctx, dc.Namespace, selector)
	if err != nil {
		return nil, err
	}
	owned := objs[:0]
	for _, obj := range objs {
		if orchestrator.OwnedBy(obj, dc.UID) {
			owned = append(owned, obj)
		}
	}
	return owned, nil
}

func (c *Controller) deleteChild(ctx context.Context, obj unstructured.Unstructured) error {
	gvr, err := c.orchestrator.ResourceFor(obj.GroupVersionKind())
	if err != nil {
		return err
	}
	if err := c.orchestrator.Delete(ctx, obj.GetNamespace(), obj.GetName(), gvr); err != nil {
		return err
	}
	metrics.ChildObjectsPrunedTotal.Inc()
	return nil
}

func isNotFound(err error) bool {
	kind, ok := apperr.KindOf(err)
	return ok && kind == apperr.KindNotFound
}
