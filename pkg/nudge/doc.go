// Package nudge provides a high-level library API for the nudge deferral and
// enforcement scheduler.
//
// Open wires configuration, the deferral ledger, event sinks and the
// enforcement controller into a Client. Presentation layers (the CLI, or
// any UI embedding this package) call Status to render the current
// EnforcementState and route every user action through Defer or UpdateNow.
//
// # Concurrency Safety
//
//   - A Client is safe for concurrent use. Controller methods are
//     serialized internally.
//
//   - Several processes may open Clients on the same state directory. Quit
//     deferrals are committed under the ledger's cross-process lock, so
//     none are lost.
//
//   - Events are delivered asynchronously. Close flushes buffered events
//     to the audit log before returning.
//
// # Usage
//
//	client, err := nudge.Open(nudge.Options{})
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	st := client.Status()
//	if st.QuitExposed {
//	    _, err = client.Defer(enforce.DeferralRequest{Kind: model.DeferralQuit, Until: st.DeferralRange.Latest})
//	}
package nudge
