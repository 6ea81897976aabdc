package telemetry

import "go.opentelemetry.io/otel/attribute"

// Attribute keys carried by ledger spans and metrics alike
const (
	AttrTenantID      = attribute.Key("tenant_id")
	AttrReceivableID  = attribute.Key("receivable_id")
	AttrPaymentID     = attribute.Key("payment_id")
	AttrAmount        = attribute.Key("amount")
	AttrPaymentMethod = attribute.Key("payment_method")
	AttrStatus        = attribute.Key("receivable_status")
	AttrAttempt       = attribute.Key("attempt")
	AttrSettled       = attribute.Key("settled")
	AttrRetried       = attribute.Key("retried")
	AttrOutcome       = attribute.Key("outcome")
	AttrRepair        = attribute.Key("repair")

	AttrHTTPMethod     = attribute.Key("http.method")
	AttrHTTPStatusCode = attribute.Key("http.status_code")
	AttrHTTPRoute      = attribute.Key("http.route")

	AttrDBOperation = attribute.Key("db.operation")
	AttrDBTable     = attribute.Key("db.table")
	AttrDBState     = attribute.Key("db.pool.state")
)

// Histogram boundaries
var (
	// HTTPDurationBuckets are request latencies in seconds
	HTTPDurationBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}

	// DBDurationBuckets are statement latencies in seconds
	DBDurationBuckets = []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5}

	// AmountBuckets are payment amounts in currency units
	AmountBuckets = []float64{10, 50, 100, 500, 1000, 5000, 10000, 50000, 100000}

	// ByteSizeBuckets are HTTP body sizes
	ByteSizeBuckets = []float64{100, 500, 1000, 5000, 10000, 50000, 100000, 500000, 1000000, 5000000}
)
