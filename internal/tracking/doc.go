// Package tracking describes trackables as reported by an external sensing
// service and the batches in which their changes arrive.
//
// Responsibilities: the Trackable/Batch data model, the Source contract
// consumed by the binder, an in-process synchronous Feed, and the
// line-delimited JSON wire codec used on the sensor link.
//
// Detection and recognition of markers is out of scope; this package only
// carries what the sensing service reports.
package tracking
