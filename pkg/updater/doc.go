// Package updater orchestrates package update runs. A [Runner] resolves the
// active managers for the current host via rules, lists their outdated
// packages, and updates them with bounded concurrency, broadcasting progress
// events to subscribers such as the journal and the TUI.
package updater
