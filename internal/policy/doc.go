// Package policy holds the pure enforcement decisions: how many days are
// left, whether an update is required, whether quitting is allowed, and how
// far into the future a deferral may reach.
//
// Nothing here reads the clock, touches storage or logs. Callers pass the
// current time in, which keeps every enforcement decision reproducible from
// its inputs alone.
package policy
