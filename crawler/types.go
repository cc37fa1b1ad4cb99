package crawler

import (
	"time"
)

// Config holds crawler settings.
type Config struct {
	// Concurrency caps simultaneous fetches and probes.
	Concurrency int `json:"concurrency" yaml:"concurrency"`
	// ProbeTimeout bounds each capability probe.
	ProbeTimeout time.Duration `json:"probe_timeout" yaml:"probe_timeout"`
	// Interval between passes started by Run. Zero disables periodic passes.
	Interval time.Duration `json:"interval" yaml:"interval"`
	// CleanupInterval between TTL cleanups started by Run. Zero disables cleanup.
	CleanupInterval time.Duration `json:"cleanup_interval" yaml:"cleanup_interval"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Concurrency:     5,
		ProbeTimeout:    10 * time.Second,
		Interval:        6 * time.Hour,
		CleanupInterval: 24 * time.Hour,
	}
}

// Pass status values reported on Result and metrics.
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Result summarizes one crawl pass.
type Result struct {
	PassID     string    `json:"pass_id"`
	Status     string    `json:"status"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	TotalAgents      int `json:"total_agents"`
	SuccessfulAgents int `json:"successful_agents"`
	FailedAgents     int `json:"failed_agents"`

	// TotalPublishers counts distinct domains claimed by agents this pass.
	TotalPublishers int `json:"total_publishers"`
	// PublisherDomains maps each claimed domain to the agents claiming it.
	PublisherDomains map[string][]string `json:"publisher_domains,omitempty"`

	Populate *PopulateResult `json:"populate,omitempty"`
	Probe    *ProbeResult    `json:"probe,omitempty"`

	Errors []string `json:"errors,omitempty"`
	Error  string   `json:"error,omitempty"`
}

// Duration is how long the pass ran.
func (r *Result) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// PopulateResult summarizes PopulateFederatedIndex.
type PopulateResult struct {
	DomainsProcessed   int `json:"domains_processed"`
	DomainsValid       int `json:"domains_valid"`
	DomainsInvalid     int `json:"domains_invalid"`
	DomainsFailed      int `json:"domains_failed"`
	AgentsRecorded     int `json:"agents_recorded"`
	PropertiesRecorded int `json:"properties_recorded"`
	ClaimsRecorded     int `json:"claims_recorded"`
	ClaimsSkipped      int `json:"claims_skipped"`
}

// ProbeResult summarizes ProbeAndUpdateAgentTypes.
type ProbeResult struct {
	Skipped  int `json:"skipped"`
	Probed   int `json:"probed"`
	Updated  int `json:"updated"`
	Unknown  int `json:"unknown"`
	Failed   int `json:"failed"`
	TimedOut int `json:"timed_out"`
}
