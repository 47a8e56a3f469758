package api

import "time"

// Metrics receives per-request observations from the router. A nil
// Metrics disables instrumentation with zero overhead.
//
// route is the chi route pattern ("/case/{caseNumber}"), not the raw
// URL path, to keep label cardinality bounded.
type Metrics interface {
	ObserveRequest(method, route string, status int, duration time.Duration)
}
