// Package fetch implements the shared fetch operation: one network transfer for one
// resource, observed by any number of subscribers that can attach and detach while the
// transfer is in flight.
//
// An Operation is created by a coordinator (see package download), started by a
// scheduler, and fed network events by a Transport through the Sink interface. Every
// event is fanned out to the subscribers registered at the moment of delivery.
// Cancelling the last subscription aborts the transfer.
//
// Callback contract:
//   - progress callbacks run on the transfer goroutine and must not assume any
//     particular context;
//   - successful completions run on the operation's Main dispatcher;
//   - failed and cancelled completions run on the goroutine that detected the outcome;
//   - each subscriber receives at most one completion, never before its last progress
//     callback, and no callback starts after its Cancel has returned.
package fetch
