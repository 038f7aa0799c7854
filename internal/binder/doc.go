// Package binder binds trackable labels to a fixed pool of pre-spawned
// entities and mirrors tracking state onto them.
//
// Setup spawns one hidden entity per template and subscribes to a
// tracking.Source. Each change record then runs through a single
// idempotent update: limited/none hides the bound entity, tracking shows it
// and copies the pose. Removed records hide without releasing the binding.
//
// Configuration errors (missing source, duplicate labels, unknown live
// labels) are logged through monitoring.Logf and returned; they never panic
// into the host loop.
package binder
