package metrics

import "time"

// Metric name prefix shared by every collector in this package.
const namespace = "audiostream"

// ShutdownTimeout is the timeout for graceful shutdown of the metrics endpoint.
const ShutdownTimeout = 5 * time.Second
