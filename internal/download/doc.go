// Package download implements the resilient download pipeline: parsing targets,
// driving one target through bounded retries with a fixed backoff schedule
// (Orchestrator), running many targets through a fixed pool of worker slots
// (Service) and sequential batches with an inter-job delay (RunBatch).
//
// Byte transfer itself is delegated to a Fetcher; internal/platform provides
// one backed by github.com/ytget/ytdlp/v2.
package download
