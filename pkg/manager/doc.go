// Package manager models package managers as configuration. Each [Manager]
// describes the commands used to list outdated packages, update a single
// package, and clean superseded versions, plus a [Parser] that turns list
// output into [Package] values.
package manager
