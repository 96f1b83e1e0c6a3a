package telemetry

import (
	"os"
	"strings"
)

// resourceAttrs builds the OTEL_RESOURCE_ATTRIBUTES value for the server
// child. Empty values are skipped.
func resourceAttrs(installID, source string) string {
	var attrs []string
	if installID != "" {
		attrs = append(attrs, "pawlaunch.install_id="+installID)
	}
	if source != "" {
		attrs = append(attrs, "pawlaunch.source="+source)
	}
	if existing := os.Getenv("OTEL_RESOURCE_ATTRIBUTES"); existing != "" {
		attrs = append(attrs, existing)
	}
	return strings.Join(attrs, ",")
}

// ServerEnv returns OTEL variables to append to the supervised server's
// environment so it exports to the same collector as the launcher.
//
// The launcher's endpoint variables are mirrored into the standard
// OTEL_EXPORTER_OTLP_*_ENDPOINT names the application's SDK reads.
//
// Returns nil when telemetry is not enabled.
func ServerEnv(installID, source string) []string {
	if !Enabled() {
		return nil
	}
	var env []string
	if attrs := resourceAttrs(installID, source); attrs != "" {
		env = append(env, "OTEL_RESOURCE_ATTRIBUTES="+attrs)
	}
	if u := os.Getenv(EnvMetricsURL); u != "" {
		env = append(env, "OTEL_EXPORTER_OTLP_METRICS_ENDPOINT="+u)
	}
	if u := os.Getenv(EnvLogsURL); u != "" {
		env = append(env, "OTEL_EXPORTER_OTLP_LOGS_ENDPOINT="+u)
	}
	return env
}
