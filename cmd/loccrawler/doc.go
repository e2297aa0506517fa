// Command loccrawler incrementally crawls a Library of Congress style JSON
// catalog into a resumable record document.
//
// Subcommands:
//   - crawl walks the configured collections, fetches every item page not
//     yet captured and saves the record through the configured backend
//     (local file, GCS object or S3-compatible object). Re-running it only
//     fetches what earlier runs missed. SIGINT and SIGTERM stop the crawl
//     between items and still save the record.
//   - manifest writes a CSV of every captured image with the key the image
//     downloader caches it under.
//   - pages prints the listing page paths of the given collections without
//     touching the record.
//
// Configuration comes from the file given with --config and CRAWLER_*
// environment variables, for example CRAWLER_RECORD_PATH or
// CRAWLER_HTTP_MAX_RETRIES. When api.listen_addr is set, /healthz, /readyz,
// /metrics and /v1/status are served while the crawl runs. When
// pubsub.topic_name is set, a run notice is published when the crawl ends.
package main
