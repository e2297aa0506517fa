// Package progress carries crawl progress events from the orchestrator to
// pluggable sinks. Events are buffered by a Hub and delivered in batches on a
// background goroutine, so reporting never slows the crawl down.
package progress
