package orchestrator

import (
	"context"
	"fmt"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"
)

// ListNamespaceObjects returns every top-level namespaced object visible to
// the controller's credentials carrying labelSelector, across every
// namespaced, listable resource kind the API server exposes. Kinds that
// return MethodNotAllowed for list are skipped; any other error aborts only
// that kind.
func (c *Client) ListNamespaceObjects(ctx context.Context, namespace, labelSelector string) ([]unstructured.Unstructured, error) {
	resources, err := discoverNamespacedListableResources(c.discovery)
	if err != nil {
		return nil, err
	}

	var out []unstructured.Unstructured
	for _, gvr := range resources {
		objs, err := c.listOneKind(ctx, gvr, namespace, labelSelector)
		if err != nil {
			if isMethodNotAllowed(err) {
				continue
			}
			c.logger.Warn("listing one kind failed, skipping that kind",
				"resource", gvr.Resource, "group", gvr.Group, "version", gvr.Version, "error", err)
			continue
		}
		out = append(out, objs...)
	}
	return out, nil
}

func (c *Client) listOneKind(ctx context.Context, gvr schema.GroupVersionResource, namespace, labelSelector string) ([]unstructured.Unstructured, error) {
	var out []unstructured.Unstructured
	continueToken := ""
	for {
		list, err := c.dynamicClient.Resource(gvr).Namespace(namespace).List(ctx, metav1.ListOptions{
			LabelSelector: labelSelector,
			Continue:      continueToken,
			Limit:         200,
		})
		if err != nil {
			return nil, err
		}
		out = append(out, list.Items...)
		continueToken = list.GetContinue()
		if continueToken == "" {
			break
		}
	}
	return out, nil
}

// discoverNamespacedListableResources enumerates every namespaced,
// non-subresource resource the API server serves that supports "list".
func discoverNamespacedListableResources(disco interface {
	ServerPreferredNamespacedResources() ([]*metav1.APIResourceList, error)
}) ([]schema.GroupVersionResource, error) {
	lists, err := disco.ServerPreferredNamespacedResources()
	if err != nil && len(lists) == 0 {
		return nil, fmt.Errorf("discover namespaced resources: %w", err)
	}

	var out []schema.GroupVersionResource
	for _, list := range lists {
		gv, err := schema.ParseGroupVersion(list.GroupVersion)
		if err != nil {
			continue
		}
		for _, r := range list.APIResources {
			if !r.Namespaced {
				continue
			}
			if containsSlash(r.Name) {
				continue // subresource, e.g. deployconfigs/status
			}
			if !containsVerb(r.Verbs, "list") {
				continue
			}
			out = append(out, gv.WithResource(r.Name))
		}
	}
	return out, nil
}

func containsSlash(s string) bool {
	for _, r := range s {
		if r == '/' {
			return true
		}
	}
	return false
}

func containsVerb(verbs metav1.Verbs, verb string) bool {
	for _, v := range verbs {
		if v == verb {
			return true
		}
	}
	return false
}
