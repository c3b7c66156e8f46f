// Package execs provides utilities for executing external commands, as defined
// by configuration.
//
// It is primarily consumed by the `manager` package, which describes each
// package manager's probe, list, update, and clean invocations as commands.
package execs
