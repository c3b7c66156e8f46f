// Package expr provides CEL (Common Expression Language) functionality
// for evaluating activation conditions against host facts.
//
// It creates CEL environments with custom functions for:
//   - Executable probing (hasExec)
//   - Environment variable lookup (env)
//   - File path operations (pathBase, pathDir, pathExt)
//   - YAML content extraction (yamlPath)
//
// CEL expressions have access to variables:
//   - `os` (string): GOOS of the running binary
//   - `arch` (string): GOARCH of the running binary
//   - `hostname` (string): The machine hostname
//   - `user` (string): The current username
//   - `home` (string): The user's home directory
package expr
