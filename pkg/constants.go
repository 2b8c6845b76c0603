package shared

const (
	ProjectID = "fitnessllm-project" // Can be overridden by env var in main if needed

	TopicPipelineRuns = "topic-pipeline-runs"

	CollectionUsers      = "users"
	CollectionStream     = "stream"
	CollectionExecutions = "executions"

	MetricsTable = "metrics"
)

// BronzeDataset returns the bronze dataset name for an environment and data source.
func BronzeDataset(env, dataSource string) string {
	return env + "_bronze_" + dataSource
}

// SilverDataset returns the silver dataset name for an environment and data source.
func SilverDataset(env, dataSource string) string {
	return env + "_silver_" + dataSource
}

// MetricsDataset returns the metrics dataset name for an environment.
func MetricsDataset(env string) string {
	return env + "_metrics"
}
