// Package controller watches every DeployConfig across all namespaces and
// reconciles each against its wanted/current artifact SHA, applying and
// pruning child resources as needed.
package controller

import (
	"context"
	"log/slog"
	"time"

	"k8s.io/client-go/dynamic"
	"k8s.io/client-go/dynamic/dynamicinformer"
	"k8s.io/client-go/tools/cache"
	"k8s.io/client-go/util/workqueue"

	"github.com/kj800x/cicd-controller/internal/apperr"
	"github.com/kj800x/cicd-controller/internal/orchestrator"
)

// resyncPeriod is how often the informer re-lists, as a backstop against a
// missed watch event.
const resyncPeriod = 10 * time.Minute

// Controller is the DeployConfig reconciler: an informer feeding a
// rate-limited workqueue, processed by a configurable number of workers.
type Controller struct {
	orchestrator   *orchestrator.Client
	controllerName string
	workers        int
	requeueAfter   time.Duration
	logger         *slog.Logger

	informer cache.SharedIndexInformer
	queue    workqueue.RateLimitingInterface
}

// New builds a Controller watching dynamicClient for DeployConfig changes.
// requeueAfter is the safety-net interval every reconcile schedules itself
// for again, regardless of outcome.
func New(dynamicClient dynamic.Interface, orch *orchestrator.Client, controllerName string, workers int, requeueAfter time.Duration, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	if workers <= 0 {
		workers = 2
	}
	if requeueAfter <= 0 {
		requeueAfter = 5 * time.Second
	}

	factory := dynamicinformer.NewFilteredDynamicSharedInformerFactory(dynamicClient, resyncPeriod, "", nil)
	informer := factory.ForResource(orchestrator.DeployConfigGVR).Informer()

	c := &Controller{
		orchestrator:   orch,
		controllerName: controllerName,
		workers:        workers,
		requeueAfter:   requeueAfter,
		logger:         logger,
		informer:       informer,
		queue:          workqueue.NewRateLimitingQueue(workqueue.DefaultControllerRateLimiter()),
	}

	informer.AddEventHandler(cache.ResourceEventHandlerFuncs{
		AddFunc:    c.enqueue,
		UpdateFunc: func(_, obj any) { c.enqueue(obj) },
		DeleteFunc: c.enqueue,
	})

	return c
}

func (c *Controller) enqueue(obj any) {
	key, err := cache.DeletionHandlingMetaNamespaceKeyFunc(obj)
	if err != nil {
		c.logger.Error("controller: could not compute queue key", "error", err)
		return
	}
	c.queue.Add(key)
}

// Run starts the informer, waits for its initial cache sync, and runs
// workers until ctx is cancelled.
func (c *Controller) Run(ctx context.Context) error {
	defer c.queue.ShutDown()

	go c.informer.Run(ctx.Done())

	if !cache.WaitForCacheSync(ctx.Done(), c.informer.HasSynced) {
		return apperr.New(apperr.KindOrchestrator, "controller: timed out waiting for informer cache sync")
	}

	for i := 0; i < c.workers; i++ {
		go c.runWorker(ctx)
	}

	<-ctx.Done()
	return ctx.Err()
}

func (c *Controller) runWorker(ctx context.Context) {
	for c.processNextItem(ctx) {
	}
}

func (c *Controller) processNextItem(ctx context.Context) bool {
	key, shutdown := c.queue.Get()
	if shutdown {
		return false
	}
	defer c.queue.Done(key)

	if err := c.reconcile(ctx, key.(string)); err != nil {
		c.logger.Error("controller: reconcile failed, requeueing",
			"key", key, "error", apperr.FormatChain(err))
	}
	c.queue.AddAfter(key, c.requeueAfter)
	return true
}
