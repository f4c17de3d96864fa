package middleware

import (
	"encoding/json"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"
)

// Metrics stores application metrics
type Metrics struct {
	RequestsTotal      uint64
	RequestsInProgress uint64
	RequestsSuccess    uint64
	RequestsFailed     uint64
	DatasetsUploaded   uint64
	DatasetsImported   uint64
	AnalysesServed     uint64
	ExportsServed      uint64
	CommentsAdded      uint64
	ReviewsRequested   uint64
	ReviewsFailed      uint64
	StartTime          time.Time
}

var globalMetrics = &Metrics{
	StartTime: time.Now(),
}

// IncrementRequests increments total request counter
func IncrementRequests() {
	atomic.AddUint64(&globalMetrics.RequestsTotal, 1)
}

// IncrementInProgress increments in-progress request counter
func IncrementInProgress() {
	atomic.AddUint64(&globalMetrics.RequestsInProgress, 1)
}

// DecrementInProgress decrements in-progress request counter
func DecrementInProgress() {
	atomic.AddUint64(&globalMetrics.RequestsInProgress, ^uint64(0))
}

func IncrementSuccess() { atomic.AddUint64(&globalMetrics.RequestsSuccess, 1) }
func IncrementFailed()  { atomic.AddUint64(&globalMetrics.RequestsFailed, 1) }

// IncrementDatasetsUploaded counts datasets uploaded over HTTP
func IncrementDatasetsUploaded() {
	atomic.AddUint64(&globalMetrics.DatasetsUploaded, 1)
}

// AddDatasetsImported counts datasets picked up by the inbox importer
func AddDatasetsImported(n int) {
	atomic.AddUint64(&globalMetrics.DatasetsImported, uint64(n))
}

// IncrementAnalyses counts summary/duplicate/ratio views served
func IncrementAnalyses() {
	atomic.AddUint64(&globalMetrics.AnalysesServed, 1)
}

func IncrementExports() {
	atomic.AddUint64(&globalMetrics.ExportsServed, 1)
}

func IncrementComments() {
	atomic.AddUint64(&globalMetrics.CommentsAdded, 1)
}

func IncrementReviews() {
	atomic.AddUint64(&globalMetrics.ReviewsRequested, 1)
}

func IncrementReviewsFailed() {
	atomic.AddUint64(&globalMetrics.ReviewsFailed, 1)
}

// GetMetrics returns current metrics
func GetMetrics() map[string]interface{} {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	return map[string]interface{}{
		"requests_total":       atomic.LoadUint64(&globalMetrics.RequestsTotal),
		"requests_in_progress": atomic.LoadUint64(&globalMetrics.RequestsInProgress),
		"requests_success":     atomic.LoadUint64(&globalMetrics.RequestsSuccess),
		"requests_failed":      atomic.LoadUint64(&globalMetrics.RequestsFailed),
		"datasets_uploaded":    atomic.LoadUint64(&globalMetrics.DatasetsUploaded),
		"datasets_imported":    atomic.LoadUint64(&globalMetrics.DatasetsImported),
		"analyses_served":      atomic.LoadUint64(&globalMetrics.AnalysesServed),
		"exports_served":       atomic.LoadUint64(&globalMetrics.ExportsServed),
		"comments_added":       atomic.LoadUint64(&globalMetrics.CommentsAdded),
		"reviews_requested":    atomic.LoadUint64(&globalMetrics.ReviewsRequested),
		"reviews_failed":       atomic.LoadUint64(&globalMetrics.ReviewsFailed),
		"uptime_seconds":       time.Since(globalMetrics.StartTime).Seconds(),
		"memory": map[string]interface{}{
			"alloc_bytes":       m.Alloc,
			"total_alloc_bytes": m.TotalAlloc,
			"sys_bytes":         m.Sys,
			"num_gc":            m.NumGC,
		},
		"goroutines": runtime.NumGoroutine(),
	}
}

// MetricsMiddleware tracks request metrics
func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		IncrementRequests()
		IncrementInProgress()
		defer DecrementInProgress()

		wrapped := wrapWriter(w)
		next.ServeHTTP(wrapped, r)

		// Track success/failure based on status code
		if wrapped.statusCode >= 200 && wrapped.statusCode < 400 {
			IncrementSuccess()
		} else {
			IncrementFailed()
		}
	})
}

// MetricsHandler returns metrics as JSON
func MetricsHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(GetMetrics())
}
