package metrics

const (
	WebhooksMetricName        = "kryodeploy_webhooks_total"
	WebhooksMetricDescription = "The total number of webhook deliveries by outcome"
	WebhooksMetricLabelResult = "result"

	DeploysMetricName        = "kryodeploy_deploys_total"
	DeploysMetricDescription = "The total number of finished deploys by status"
	DeploysMetricLabelStatus = "status"

	DeployDurationMetricName        = "kryodeploy_deploy_duration_seconds"
	DeployDurationMetricDescription = "Wall time of finished deploys"

	DeployInProgressMetricName        = "kryodeploy_deploy_in_progress"
	DeployInProgressMetricDescription = "Whether a deploy is currently running"
)

// Webhook results.
const (
	ResultAccepted  = "accepted"
	ResultIgnored   = "ignored"
	ResultRejected  = "rejected"
	ResultMalformed = "malformed"
	ResultBusy      = "busy"
	ResultError     = "error"
)
