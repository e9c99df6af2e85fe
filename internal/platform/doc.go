// Package platform contains OS integration and external tooling glue:
// filesystem helpers, target list parsing, playlist expansion and the
// yt-dlp backed Fetcher.
package platform
