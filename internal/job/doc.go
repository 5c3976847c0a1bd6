// Package job holds the in-memory model of every pipeline the shell has
// launched: one Process per pipeline stage, one Job per pipeline, and the
// Table that owns them until their completion has been reported.
//
// The model is mutated only from the shell's control loop, so none of the
// types here carry locks.
package job
