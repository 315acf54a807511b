// Package metrics defines the process's Prometheus metrics, registered at
// package init via promauto so every component just calls a package-level
// var rather than threading a registry through constructors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// WebhookEventsTotal counts webhook deliveries by event type and outcome.
	//
	// Labels:
	//   - event: push, check_run, check_suite, delete, unknown
	//   - outcome: dispatched, decode_error
	WebhookEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cicd_webhook_events_total",
			Help: "Total number of webhook events received, by type and outcome",
		},
		[]string{"event", "outcome"},
	)

	// WebhookHandlerErrorsTotal counts handler failures, isolated per handler
	// so one broken handler doesn't starve the others' visibility.
	//
	// Labels:
	//   - handler: persistence, configsync, ...
	//   - event: push, check_run, check_suite, delete, unknown
	WebhookHandlerErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cicd_webhook_handler_errors_total",
			Help: "Total number of webhook handler failures, by handler and event type",
		},
		[]string{"handler", "event"},
	)

	// TransportReconnectsTotal counts Webhook Transport reconnect attempts.
	//
	// Labels:
	//   - reason: watchdog_timeout, read_error, dial_error, other
	TransportReconnectsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cicd_webhook_transport_reconnects_total",
			Help: "Total number of Webhook Transport reconnect attempts, by reason",
		},
		[]string{"reason"},
	)

	// ConfigSyncDuration observes how long one push's .deploy/ sync took.
	ConfigSyncDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cicd_configsync_duration_seconds",
			Help:    "Duration of one config-repo sync pass",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
	)

	// ConfigSyncDeployConfigsTotal counts desired/deleted DeployConfigs
	// observed per sync pass.
	//
	// Labels:
	//   - outcome: created, updated, orphaned, deleted
	ConfigSyncDeployConfigsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cicd_configsync_deployconfigs_total",
			Help: "Total number of DeployConfigs created, updated, orphaned or deleted by config sync",
		},
		[]string{"outcome"},
	)

	// ReconcileDuration observes one DeployConfig reconcile's wall time.
	//
	// Labels:
	//   - outcome: ok, error
	ReconcileDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cicd_controller_reconcile_duration_seconds",
			Help:    "Duration of one DeployConfig reconcile pass",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"outcome"},
	)

	// ReconcileDecisionsTotal counts which branch of the reconcile decision
	// table fired.
	//
	// Labels:
	//   - decision: first_deploy, resync, roll_forward, undeploy, quiescent
	ReconcileDecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cicd_controller_reconcile_decisions_total",
			Help: "Total number of reconciles, by decision table branch",
		},
		[]string{"decision"},
	)

	// ChildObjectsPrunedTotal counts child resources deleted by the
	// controller: on a resync or roll forward because their version
	// annotation no longer matched the wanted SHA, and on undeploy.
	ChildObjectsPrunedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cicd_controller_child_objects_pruned_total",
			Help: "Total number of child objects deleted by the DeployConfig controller during prune",
		},
	)

	// DeployActionsTotal counts Deploy Action Executor invocations.
	//
	// Labels:
	//   - action: deploy_latest, deploy_branch, deploy_commit, undeploy, toggle_autodeploy
	//   - outcome: ok, refused, error
	DeployActionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cicd_deploy_actions_total",
			Help: "Total number of deploy actions executed, by action and outcome",
		},
		[]string{"action", "outcome"},
	)

	// SourceAPIRequestDuration observes latency of calls through the Source
	// API Client Pool, including retried probes against a secondary client.
	//
	// Labels:
	//   - operation: list_directory, get_file, get_repo
	SourceAPIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cicd_sourceapi_request_duration_seconds",
			Help:    "Duration of Source API Client Pool requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)
)
