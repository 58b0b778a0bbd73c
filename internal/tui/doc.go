// Package tui is the interactive FrostLux terminal client.
//
// The Model never waits on I/O. Commands run as tea.Cmds on their own
// goroutines and report back with messages; the light list is redrawn
// from store snapshots on a short tick, skipped when the store's version
// has not changed. Status messages fade after a few seconds.
package tui
