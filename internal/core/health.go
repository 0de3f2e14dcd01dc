package core

import (
	"context"
	"net/http"
	"time"
)

// healthCheckTimeout caps the time allowed for all health probes.
const healthCheckTimeout = 2 * time.Second

// HealthProbe is a liveness check for a critical dependency (the database,
// the Stripe API). A probe must respect the context deadline.
type HealthProbe interface {
	Name() string
	Check(ctx context.Context) error
}

type componentStatus struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

type healthResponse struct {
	Status     string                     `json:"status"`
	Components map[string]componentStatus `json:"components,omitempty"`
}

// HandleHealth runs all registered probes and returns 200 when every probe
// passes, 503 otherwise. Public, no authentication.
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	if len(s.HealthProbes) == 0 {
		JSON(w, r, http.StatusOK, healthResponse{Status: "healthy"})
		return
	}

	components := make(map[string]componentStatus, len(s.HealthProbes))
	healthy := true
	for _, probe := range s.HealthProbes {
		if err := probe.Check(ctx); err != nil {
			healthy = false
			components[probe.Name()] = componentStatus{Status: "unhealthy", Message: err.Error()}
		} else {
			components[probe.Name()] = componentStatus{Status: "healthy"}
		}
	}

	status := http.StatusOK
	resp := healthResponse{Status: "healthy", Components: components}
	if !healthy {
		status = http.StatusServiceUnavailable
		resp.Status = "unhealthy"
	}

	JSON(w, r, status, resp)
}
