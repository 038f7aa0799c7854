// Package interact aggregates overlap notifications into a per-entity
// idle/active status.
//
// Each Interactable keeps the set of peers it currently overlaps. The
// status is derived from the set size rather than stored. When an entity
// leaves the scene, Teardown notifies every peer through the peer's own
// EndOverlap before clearing its own set, so no peer keeps a dangling
// reference.
//
// Overlap detection itself belongs to an external collision service; the
// Registry only reacts to its begin/end notifications.
package interact
