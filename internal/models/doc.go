// Package models defines the persisted entities of the backup service and the generic repository interface.
//
// A [Run] tracks one pass through the authorization state machine:
//
//	awaiting_callback -> exchanging -> exporting -> done
//	        \               \              \
//	         +---------------+--------------+-> failed
//
// [Run.Transition] rejects any other move with [ErrInvalidTransition]. Per-playlist outcomes are kept as
// [RunPlaylist] entries on the run.
package models
