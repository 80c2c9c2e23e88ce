// Package testutil provides shared test utilities for voiceloops.
//
// # Fakes
//
//   - NewFakeWorker(t, name) - an httptest worker that records every verb it
//     receives and serves a configurable /status report
//   - NewRecordingSender() - an in-memory worker.Sender and
//     worker.StatusFetcher for engine and aggregator tests
//
// # Fixtures
//
//   - SampleLoops(), SampleCatalog() - a FLIGHT catalog covering every
//     capability combination
//   - SampleWorkerSpecs(n) - n pool specs named BOT1..BOTn
//   - WriteCatalog(t, dir, role, loops) - writes a loops_<ROLE>.txt file
//
// # Assertions
//
//   - AssertVerbs(t, sender, worker, verbs...) - ordered verbs sent to a worker
//   - AssertNoCalls(t, sender) - nothing was sent
//
// # Timeouts
//
//   - ContextWithTestDeadline(t, fallback), ContextWithTimeout(t, d)
package testutil
