// Package api hosts the HTTP server, middleware, and handlers. Notable routes:
//   - GET /healthz for liveness probes.
//   - GET /metrics for Prometheus scraping.
//   - POST /v1/scrape streams a listing scan as NDJSON.
//   - POST /v1/extract deep-crawls a single URL.
//   - POST /v1/deep-crawl runs the batch extractor over stored items.
package api
