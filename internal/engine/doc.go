// Package engine binds loops to workers and drives the workers through the
// join, mute, talk and leave verbs.
//
// # State
//
// Each loop of the active catalog has a LoopState: OFF with no worker, or
// LISTEN/TALK holding exactly one worker whose assignment names the loop. At
// most one loop is in TALK across the whole engine.
//
// # Commands
//
// Toggle, Off, SetDelay, SetVolume and Reload each run as one unit: the new
// state is decided and committed under a single lock, producing a plan of
// worker calls. Plans are then executed outside that lock, one plan at a time
// and in commit order, so status snapshots never wait behind network calls
// and a worker always sees the verbs of two commands in the order the
// commands were committed.
//
// # Failure policy
//
// Local state is committed before any call is made and is never rolled back.
// A worker that misses a call stays out of step until the operator's next
// action on that loop; the status aggregator shows what the worker itself
// reports in the meantime.
package engine
