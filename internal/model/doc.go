// Package model defines the domain data structures shared across the app: queued
// job status snapshots, lifecycle states, download outcomes and playlist entries
// used for batch expansion. Structures are plain values so snapshots can be
// handed to callers without exposing internal locks.
package model
