// Package pipeline drives records through the enabled modules. For every
// (record, module) pair it decides between reconstructing a cached result from
// a previous run's archive and computing a fresh one, applies the result to
// the record, and hands each finished record to the output gateway. Records
// are processed by a bounded worker pool; modules within a record run in a
// fixed dependency-respecting order.
package pipeline
