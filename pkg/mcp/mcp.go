// Package mcp serves the environment state over the Model Context Protocol.
//
// The server is read-only. It reports outdated packages and dotfile
// deployment states, but applying updates or deploying files stays behind
// the dotup CLI.
package mcp

const (
	name         = "dotup"
	instructions = `MCP Server 'dotup' exposes the state of a dotfiles-managed development environment: pending package updates and deployed dotfile entries.

Available tools:
- 'list_packages' reports outdated packages across the configured package managers. Enumeration shells out to each manager, so the first call may take a while; later calls reuse the cached inventory unless refresh=true is passed.
- 'get_status' reports the deployment state of every configured dotfile entry (ok, missing, drifted, conflict, skipped).

These tools never modify the machine. To apply updates or deploy files, run 'dotup update' or 'dotup apply' directly.`
)
