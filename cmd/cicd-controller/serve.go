package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"k8s.io/client-go/discovery"
	"k8s.io/client-go/dynamic"

	"github.com/kj800x/cicd-controller/internal/config"
	"github.com/kj800x/cicd-controller/internal/configsync"
	"github.com/kj800x/cicd-controller/internal/controller"
	"github.com/kj800x/cicd-controller/internal/orchestrator"
	"github.com/kj800x/cicd-controller/internal/persistence"
	"github.com/kj800x/cicd-controller/internal/sourceapi"
	"github.com/kj800x/cicd-controller/internal/store"
	"github.com/kj800x/cicd-controller/internal/webhook"
	"github.com/kj800x/cicd-controller/pkg/logger"
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the webhook transport, config sync, deploy controller and ambient HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context())
		},
	}
}

// serve wires every component together and supervises the process's
// top-level tasks: the Webhook Transport loop, the DeployConfig Controller
// (when enabled), and the ambient health/metrics HTTP server. A fatal error
// in any one of them cancels the shared context and tears the rest down.
func serve(parentCtx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := logger.NewLogger(logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, Output: cfg.Log.Output})

	ctx, stop := signal.NotifyContext(parentCtx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	s, err := store.Open(ctx, cfg.DatabasePath, log)
	if err != nil {
		return err
	}
	defer s.Close()

	pool := sourceapi.NewPool(cfg.GithubPATs)

	restConfig, err := orchestrator.LoadRESTConfig()
	if err != nil {
		return err
	}
	dynamicClient, err := dynamic.NewForConfig(restConfig)
	if err != nil {
		return err
	}
	discoveryClient, err := discovery.NewDiscoveryClientForConfig(restConfig)
	if err != nil {
		return err
	}
	orch := orchestrator.New(dynamicClient, discoveryClient, cfg.ControllerName, log)

	persistenceHandler := persistence.New(s, log)
	configsyncHandler := configsync.New(pool, orch, s, log)
	dispatcher := webhook.NewDispatcher(log, persistenceHandler, configsyncHandler)
	transport := webhook.NewTransport(cfg.WebsocketURL, cfg.ClientSecret, dispatcher, log)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", healthHandler)
	mux.Handle("/metrics", promhttp.Handler())
	httpServer := &http.Server{Addr: cfg.HTTPAddr, Handler: mux}

	group, gctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		return transport.Run(gctx)
	})

	if cfg.EnableK8sController {
		ctrl := controller.New(dynamicClient, orch, cfg.ControllerName, cfg.ControllerWorkers, cfg.ReconcileRequeue, log)
		group.Go(func() error {
			return ctrl.Run(gctx)
		})
	} else {
		log.Info("deployconfig controller disabled", "env", "ENABLE_K8S_CONTROLLER")
	}

	group.Go(func() error {
		log.Info("ambient http server starting", "addr", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-gctx.Done()
		return httpServer.Shutdown(context.Background())
	})

	if err := group.Wait(); err != nil && ctx.Err() == nil {
		return err
	}
	log.Info("shutdown complete")
	return nil
}
