// Package metrics emits application counters and gauges through the global
// telemetry system. All helpers are safe to call before telemetry is
// initialized; they become no-ops.
package metrics

import (
	"time"

	"github.com/replysmith/replysmith/internal/observability"
)

// Metric names, Prometheus conventions
var (
	GenerateTotal         = "app_generate_total"
	GenerateDuration      = "app_generate_duration_ms"
	RateLimitRejections   = "app_rate_limit_rejections_total"
	CaptchaVerifications  = "app_captcha_verifications_total"
	UpstreamRequestsTotal = "app_upstream_requests_total"

	// Health check metrics
	HealthCheckTotal    = "app_health_check_total"
	HealthCheckDuration = "app_health_check_duration_ms"

	// Server lifecycle metrics
	ServerStartTime = "app_server_start_time_seconds"
	ServerUptime    = "app_server_uptime_seconds"
)

// RecordGenerate records one generate request and its end-to-end duration.
func RecordGenerate(success bool, duration time.Duration) {
	status := "success"
	if !success {
		status = "failure"
	}

	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(
			GenerateTotal,
			1,
			map[string]string{"status": status},
		)

		_ = observability.TelemetrySystem.Histogram(
			GenerateDuration,
			duration,
			map[string]string{"status": status},
		)
	}
}

// RecordRejection records a limiter rejection by reason (rate_limited or daily_cap).
func RecordRejection(reason string) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(
			RateLimitRejections,
			1,
			map[string]string{"reason": reason},
		)
	}
}

// RecordCaptcha records a CAPTCHA verification outcome.
func RecordCaptcha(passed bool) {
	status := "passed"
	if !passed {
		status = "failed"
	}

	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(
			CaptchaVerifications,
			1,
			map[string]string{"status": status},
		)
	}
}

// RecordUpstream records one provider call by driver name and outcome.
func RecordUpstream(provider string, success bool) {
	status := "success"
	if !success {
		status = "failure"
	}

	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(
			UpstreamRequestsTotal,
			1,
			map[string]string{
				"provider": provider,
				"status":   status,
			},
		)
	}
}

// RecordHealthCheck records a health check execution
func RecordHealthCheck(checkName string, healthy bool, duration time.Duration) {
	status := "healthy"
	if !healthy {
		status = "unhealthy"
	}

	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(
			HealthCheckTotal,
			1,
			map[string]string{
				"check":  checkName,
				"status": status,
			},
		)

		_ = observability.TelemetrySystem.Histogram(
			HealthCheckDuration,
			duration,
			map[string]string{
				"check": checkName,
			},
		)
	}
}

// SetServerStartTime records the server start time (Unix timestamp)
func SetServerStartTime(timestamp int64) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Gauge(
			ServerStartTime,
			float64(timestamp),
			nil,
		)
	}
}

// SetServerUptime records the server uptime in seconds
func SetServerUptime(seconds int64) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Gauge(
			ServerUptime,
			float64(seconds),
			nil,
		)
	}
}
