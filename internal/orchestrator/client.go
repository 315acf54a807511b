// Package orchestrator wraps the Kubernetes dynamic client into a thin REST
// surface: apply, delete, paginated namespace-object listing, and
// DeployConfig status patching.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/client-go/discovery"
	"k8s.io/client-go/dynamic"
	"k8s.io/client-go/restmapper"

	"github.com/kj800x/cicd-controller/internal/apperr"
)

// DeployConfigGVR is the GroupVersionResource for the cicd.coolkev.com/v1
// DeployConfig custom resource.
var DeployConfigGVR = schema.GroupVersionResource{
	Group:    "cicd.coolkev.com",
	Version:  "v1",
	Resource: "deployconfigs",
}

// ManagedByLabel is the fixed label identifying objects this controller owns.
const ManagedByLabel = "app.kubernetes.io/managed-by"

// Client is a thin wrapper over the orchestrator's REST surface.
type Client struct {
	dynamicClient  dynamic.Interface
	discovery      discovery.DiscoveryInterface
	controllerName string
	logger         *slog.Logger

	gvrCacheMu sync.RWMutex
	gvrCache   map[schema.GroupVersionKind]schema.GroupVersionResource
}

// New builds a Client from an already-constructed rest.Config-derived
// dynamic.Interface and discovery.DiscoveryInterface, so tests can supply
// fakes without touching in-cluster/kubeconfig loading.
func New(dynamicClient dynamic.Interface, disco discovery.DiscoveryInterface, controllerName string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		dynamicClient:  dynamicClient,
		discovery:      disco,
		controllerName: controllerName,
		logger:         logger,
		gvrCache:       make(map[schema.GroupVersionKind]schema.GroupVersionResource),
	}
}

// ResourceFor maps a GroupVersionKind (read off a child resource spec's
// apiVersion/kind) to the GroupVersionResource the dynamic client needs,
// caching the result since discovery is comparatively expensive.
func (c *Client) ResourceFor(gvk schema.GroupVersionKind) (schema.GroupVersionResource, error) {
	c.gvrCacheMu.RLock()
	gvr, ok := c.gvrCache[gvk]
	c.gvrCacheMu.RUnlock()
	if ok {
		return gvr, nil
	}

	groupResources, err := restmapper.GetAPIGroupResources(c.discovery)
	if err != nil {
		return schema.GroupVersionResource{}, apperr.Wrap(apperr.KindOrchestrator, "discover api group resources", err)
	}
	mapper := restmapper.NewDiscoveryRESTMapper(groupResources)
	mapping, err := mapper.RESTMapping(gvk.GroupKind(), gvk.Version)
	if err != nil {
		return schema.GroupVersionResource{}, apperr.Wrap(apperr.KindOrchestrator, fmt.Sprintf("map %s to a resource", gvk), err)
	}

	c.gvrCacheMu.Lock()
	c.gvrCache[gvk] = mapping.Resource
	c.gvrCacheMu.Unlock()
	return mapping.Resource, nil
}

// Apply performs a server-side-apply upsert of an arbitrary typed object.
func (c *Client) Apply(ctx context.Context, namespace string, gvr schema.GroupVersionResource, obj *unstructured.Unstructured) (*unstructured.Unstructured, error) {
	data, err := json.Marshal(obj.Object)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindOrchestrator, "marshal object for apply", err)
	}

	res := c.dynamicClient.Resource(gvr).Namespace(namespace)
	applied, err := res.Patch(ctx, obj.GetName(), types.ApplyPatchType, data, metav1.PatchOptions{
		FieldManager: c.controllerName,
		Force:        boolPtr(true),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, apperr.Wrap(apperr.KindNotFound, fmt.Sprintf("apply %s/%s: namespace missing", gvr.Resource, obj.GetName()), err)
		}
		if isConflict(err) {
			return nil, apperr.Wrap(apperr.KindOrchestrator, fmt.Sprintf("apply %s/%s: field-ownership conflict", gvr.Resource, obj.GetName()), err)
		}
		return nil, apperr.Wrap(apperr.KindOrchestrator, fmt.Sprintf("apply %s/%s", gvr.Resource, obj.GetName()), err)
	}
	return applied, nil
}

// Delete best-effort deletes an object by namespace+name+kind.
func (c *Client) Delete(ctx context.Context, namespace, name string, gvr schema.GroupVersionResource) error {
	err := c.dynamicClient.Resource(gvr).Namespace(namespace).Delete(ctx, name, metav1.DeleteOptions{})
	if err != nil && !isNotFound(err) {
		return apperr.Wrap(apperr.KindOrchestrator, fmt.Sprintf("delete %s/%s", gvr.Resource, name), err)
	}
	return nil
}

// PatchStatus merge-patches the .status subresource of a DeployConfig.
func (c *Client) PatchStatus(ctx context.Context, namespace, name string, statusPatch map[string]any) (*unstructured.Unstructured, error) {
	patch := map[string]any{"status": statusPatch}
	data, err := json.Marshal(patch)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindOrchestrator, "marshal status patch", err)
	}
	res, err := c.dynamicClient.Resource(DeployConfigGVR).Namespace(namespace).Patch(ctx, name, types.MergePatchType, data, metav1.PatchOptions{FieldManager: c.controllerName}, "status")
	if err != nil {
		if isNotFound(err) {
			return nil, apperr.Wrap(apperr.KindNotFound, fmt.Sprintf("patch status of deployconfig %s", name), err)
		}
		return nil, apperr.Wrap(apperr.KindOrchestrator, fmt.Sprintf("patch status of deployconfig %s", name), err)
	}
	return res, nil
}

// PatchSpec merge-patches the given .spec fields of a DeployConfig. Only
// the keys present in specPatch change; a patch without a "specs" key leaves
// the existing .spec.specs as it is.
func (c *Client) PatchSpec(ctx context.Context, namespace, name string, specPatch map[string]any) (*unstructured.Unstructured, error) {
	patch := map[string]any{"spec": specPatch}
	data, err := json.Marshal(patch)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindOrchestrator, "marshal spec patch", err)
	}
	res, err := c.dynamicClient.Resource(DeployConfigGVR).Namespace(namespace).Patch(ctx, name, types.MergePatchType, data, metav1.PatchOptions{FieldManager: c.controllerName})
	if err != nil {
		if isNotFound(err) {
			return nil, apperr.Wrap(apperr.KindNotFound, fmt.Sprintf("patch spec of deployconfig %s", name), err)
		}
		return nil, apperr.Wrap(apperr.KindOrchestrator, fmt.Sprintf("patch spec of deployconfig %s", name), err)
	}
	return res, nil
}

// CreateDeployConfig creates a DeployConfig object.
func (c *Client) CreateDeployConfig(ctx context.Context, namespace string, obj *unstructured.Unstructured) (*unstructured.Unstructured, error) {
	res, err := c.dynamicClient.Resource(DeployConfigGVR).Namespace(namespace).Create(ctx, obj, metav1.CreateOptions{FieldManager: c.controllerName})
	if err != nil {
		return nil, apperr.Wrap(apperr.KindOrchestrator, fmt.Sprintf("create deployconfig %s", obj.GetName()), err)
	}
	return res, nil
}

// GetDeployConfig fetches a single DeployConfig, returning a NotFound
// apperr.Error if it does not exist.
func (c *Client) GetDeployConfig(ctx context.Context, namespace, name string) (*unstructured.Unstructured, error) {
	res, err := c.dynamicClient.Resource(DeployConfigGVR).Namespace(namespace).Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		if isNotFound(err) {
			return nil, apperr.Wrap(apperr.KindNotFound, fmt.Sprintf("get deployconfig %s", name), err)
		}
		return nil, apperr.Wrap(apperr.KindOrchestrator, fmt.Sprintf("get deployconfig %s", name), err)
	}
	return res, nil
}

// ListDeployConfigs lists every DeployConfig cluster-wide.
func (c *Client) ListDeployConfigs(ctx context.Context) (*unstructured.UnstructuredList, error) {
	res, err := c.dynamicClient.Resource(DeployConfigGVR).Namespace("").List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, apperr.Wrap(apperr.KindOrchestrator, "list deployconfigs", err)
	}
	return res, nil
}

func boolPtr(b bool) *bool { return &b }
