// Package scene owns the in-process entity arena that trackables are bound
// to.
//
// Entities are allocated once from templates and addressed by a uuid handle
// or by name. Visibility and pose are the only mutable attributes; no
// rendering or asset loading happens here.
package scene
