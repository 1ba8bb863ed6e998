package types

// Health is the body of GET /healthz.
type Health struct {
	Status                     string `json:"status"`
	Running                    bool   `json:"running"`
	Phase                      string `json:"phase"`
	PublisherHealthy           bool   `json:"publisher_healthy"`
	ConsecutivePublishFailures int    `json:"consecutive_publish_failures"`
	LastError                  string `json:"last_error,omitempty"`
}

// Health status values.
const (
	HealthOK       = "ok"
	HealthDegraded = "degraded"
)
