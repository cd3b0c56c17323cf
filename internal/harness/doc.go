// Package harness is the test-execution engine: it drives actuator
// targets through a commanded waveform at a fixed sample rate and
// records time-aligned command/response series.
//
// The core pieces are:
//
//   - [Spec]: immutable descriptor of one test (waveform kind,
//     parameters, duration, sample rate, log pad)
//   - [Scheduler]: single-target fixed-rate tick loop
//   - [Runner]: runs the sim and real units concurrently under one
//     shared start epoch
//   - [Series] / [Result]: the recorded outcome handed to storage,
//     metrics and plotting
//
// # Failure model
//
// A failed command or readback skips that tick; three consecutive
// failures abort that target's series without touching the other
// unit. Only an invalid spec or a run with no reachable target is
// reported as an error to the caller.
package harness
