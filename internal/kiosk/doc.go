// Package kiosk wires the controller together and runs its main loop.
//
// The App owns the store, the serial link, the sequence engine, the QR
// input reader, the sync service, and the optional telemetry sink, started
// in dependency order and supervised under one errgroup:
//   - the QR reader goroutine feeding the engine's scan channel
//   - the ~1 Hz tick loop driving the engine and the sync service inline
//
// Shutdown is cooperative: cancelling the context stops both goroutines,
// lights are commanded off best-effort, and the link, store, and telemetry
// sink are closed in reverse order.
package kiosk
