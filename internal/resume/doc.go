// Package resume persists the resumable state of individual download targets in
// JSON sidecar files stored next to the output file, and scans directories for
// those sidecars to decide which partial download should be resumed next.
//
// A sidecar exists only while its transfer is incomplete or failed but still
// resumable; a confirmed successful download removes it. Persistence is best
// effort: read and write failures are logged as ErrPersistenceDegraded and never
// abort a transfer.
//
// All file access goes through a billy.Filesystem so callers can use osfs in
// production and memfs in tests.
package resume
