package api

// errorResponse is the body for every non-200 answer. Internal failure
// details stay in the log; the body carries only a safe message.
type errorResponse struct {
	Error string `json:"error"`
}

// healthResponse answers the liveness probe.
type healthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
	Version string `json:"version"`
}

// readyResponse answers the readiness probe, one entry per dependency.
type readyResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// dlqResponse reports current dead-letter queue depths.
type dlqResponse struct {
	Hits        int64 `json:"hits"`
	Screenshots int64 `json:"screenshots"`
}

// statsResponse reports runtime load for operators.
type statsResponse struct {
	InflightTasks        int   `json:"inflight_tasks"`
	HitQueueDepth        int   `json:"hit_queue_depth"`
	ScreenshotQueueDepth int   `json:"screenshot_queue_depth"`
	DLQHits              int64 `json:"dlq_hits"`
	DLQScreenshots       int64 `json:"dlq_screenshots"`
}
