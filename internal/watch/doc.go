// Package watch implements the trigger sources that call into the sync
// engine (C6) without an explicit caller: a memory-document watcher, a
// session-transcript byte/message delta tracker, and a fixed-interval
// timer. None of the three holds index state of its own — each
// just decides when to ask the engine to run, and the engine's own
// diff-by-hash logic decides what actually needs re-indexing.
package watch
