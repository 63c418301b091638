package api

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ignite/tubefeed/internal/pkg/httputil"
)

// HealthStatus is the overall health of the process and its dependencies.
type HealthStatus struct {
	Status string                    `json:"status"` // "healthy", "degraded", "unhealthy"
	Uptime string                    `json:"uptime"`
	Checks map[string]ComponentCheck `json:"checks"`
	Queues map[string]int            `json:"queue_depth,omitempty"`
}

// ComponentCheck is the health of a single dependency.
type ComponentCheck struct {
	Status  string `json:"status"` // "up", "down", "degraded"
	Latency string `json:"latency,omitempty"`
	Message string `json:"message,omitempty"`
}

// QueueDepther reports pending job counts per queue.
type QueueDepther interface {
	Depth(ctx context.Context) (map[string]int, error)
}

// HealthChecker probes the store, Redis, and queue depth. Redis may be nil;
// the check then reports not configured without failing health.
type HealthChecker struct {
	db        *sql.DB
	redis     *redis.Client
	queues    QueueDepther
	startTime time.Time
}

// NewHealthChecker creates a health checker.
func NewHealthChecker(db *sql.DB, redisClient *redis.Client, queues QueueDepther) *HealthChecker {
	return &HealthChecker{db: db, redis: redisClient, queues: queues, startTime: time.Now()}
}

// HandleHealth reports the aggregate status. Always 200; the body conveys
// health so dashboards can read degraded states.
//
//	GET /health
func (hc *HealthChecker) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	checks := map[string]ComponentCheck{
		"database": hc.checkDatabase(ctx),
		"redis":    hc.checkRedis(ctx),
	}

	status := HealthStatus{
		Status: overallStatus(checks),
		Uptime: time.Since(hc.startTime).Round(time.Second).String(),
		Checks: checks,
	}
	if hc.queues != nil {
		if depth, err := hc.queues.Depth(ctx); err == nil {
			status.Queues = depth
		}
	}
	httputil.OK(w, status)
}

// HandleLiveness always returns 200 while the process runs.
//
//	GET /health/live
func (hc *HealthChecker) HandleLiveness(w http.ResponseWriter, _ *http.Request) {
	httputil.OK(w, map[string]string{
		"status": "alive",
		"uptime": time.Since(hc.startTime).Round(time.Second).String(),
	})
}

func (hc *HealthChecker) checkDatabase(ctx context.Context) ComponentCheck {
	if hc.db == nil {
		return ComponentCheck{Status: "down", Message: "not configured"}
	}
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	start := time.Now()
	err := hc.db.PingContext(pingCtx)
	latency := time.Since(start)
	if err != nil {
		return ComponentCheck{Status: "down", Latency: latency.String(),
			Message: fmt.Sprintf("ping failed: %v", err)}
	}
	if latency > time.Second {
		return ComponentCheck{Status: "degraded", Latency: latency.String(),
			Message: "slow response"}
	}
	return ComponentCheck{Status: "up", Latency: latency.String()}
}

func (hc *HealthChecker) checkRedis(ctx context.Context) ComponentCheck {
	if hc.redis == nil {
		return ComponentCheck{Status: "down", Message: "not configured"}
	}
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	start := time.Now()
	err := hc.redis.Ping(pingCtx).Err()
	latency := time.Since(start)
	if err != nil {
		return ComponentCheck{Status: "down", Latency: latency.String(),
			Message: fmt.Sprintf("ping failed: %v", err)}
	}
	return ComponentCheck{Status: "up", Latency: latency.String()}
}

// overallStatus derives the aggregate. The database is the only hard
// dependency; Redis down degrades (caches and limits fail open) but does
// not take the service down.
func overallStatus(checks map[string]ComponentCheck) string {
	if db, ok := checks["database"]; ok && db.Status == "down" && db.Message != "not configured" {
		return "unhealthy"
	}
	for _, c := range checks {
		if c.Status == "degraded" {
			return "degraded"
		}
		if c.Status == "down" && c.Message != "not configured" {
			return "degraded"
		}
	}
	return "healthy"
}
