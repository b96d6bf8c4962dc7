// Package health provides loader health monitoring and status reporting.
package health

// SystemStatus represents the overall health state of the system or a component.
type SystemStatus string

const (
	StatusHealthy  SystemStatus = "healthy"
	StatusDegraded SystemStatus = "degraded"
	StatusCritical SystemStatus = "critical"
)

// rank orders statuses so the worst one wins when aggregating.
func (s SystemStatus) rank() int {
	switch s {
	case StatusCritical:
		return 2
	case StatusDegraded:
		return 1
	default:
		return 0
	}
}

// ComponentHealth is the status of one dependency.
type ComponentHealth struct {
	Status SystemStatus `json:"status"`
	Error  string       `json:"error,omitempty"`
}

// HealthReport contains the full system health report.
type HealthReport struct {
	SystemStatus    SystemStatus               `json:"system_status"`
	Circuit         string                     `json:"circuit"`
	CircuitFailures int                        `json:"circuit_failures"`
	DeadLetters     int                        `json:"dead_letters"`
	Components      map[string]ComponentHealth `json:"components,omitempty"`
}
