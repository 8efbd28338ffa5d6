// Package backend is the JSON HTTP client for the download server API:
// format discovery, job submission, server-side file management, and health.
//
// Every request carries a User-Agent and an X-Request-ID for correlation with
// server logs. Short calls are bounded by the configured request timeout and
// job submission by its own timeout; file bodies opened for local retrieval are
// bounded only by the caller's context. Non-2xx answers surface as *APIError.
package backend
