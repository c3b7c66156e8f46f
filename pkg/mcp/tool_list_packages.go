package mcp

import (
	"fmt"
	"sort"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/macropower/dotup/pkg/manager"
	"github.com/macropower/dotup/pkg/updater"
)

// ListPackagesParams defines parameters for the list_packages tool.
type ListPackagesParams struct {
	Manager string `json:"manager,omitempty" jsonschema:"restrict the output to one manager by name"`
	Refresh bool   `json:"refresh,omitempty" jsonschema:"re-enumerate instead of serving the cached inventory"`
}

// ListPackagesResult contains the result of listing outdated packages.
type ListPackagesResult struct {
	ManagerErrors map[string]string `json:"managerErrors,omitempty"`
	Message       string            `json:"message"`
	Packages      []manager.Package `json:"packages"`
	PackageCount  int               `json:"packageCount"`
}

// createListPackagesResult creates the MCP tool result from ListPackagesResult.
func createListPackagesResult(result ListPackagesResult) *mcp.CallToolResultFor[ListPackagesResult] {
	msg := fmt.Sprintf("Found %d outdated packages.", result.PackageCount)
	if len(result.ManagerErrors) > 0 {
		msg += fmt.Sprintf(" %d managers failed to list.", len(result.ManagerErrors))
	}

	result.Message = msg

	if result.Packages == nil {
		result.Packages = []manager.Package{}
	}

	return &mcp.CallToolResultFor[ListPackagesResult]{
		Content: []mcp.Content{
			&mcp.TextContent{
				Text: msg,
			},
		},
		StructuredContent: result,
	}
}

// populateResultFromRun flattens an enumeration run into the result. The
// enumeration is a dry-run, so every package result is a skipped entry
// carrying the outdated package it found.
func populateResultFromRun(result *ListPackagesResult, run *updater.RunResult, managerFilter string) {
	for name, mr := range run.Managers {
		if managerFilter != "" && name != managerFilter {
			continue
		}

		if mr.Err != nil {
			if result.ManagerErrors == nil {
				result.ManagerErrors = make(map[string]string)
			}

			result.ManagerErrors[name] = mr.Err.Error()

			continue
		}

		for _, pr := range mr.Packages {
			result.Packages = append(result.Packages, pr.Package)
		}
	}

	// Managers is a map, so impose a stable order.
	sort.Slice(result.Packages, func(i, j int) bool {
		if result.Packages[i].Manager != result.Packages[j].Manager {
			return result.Packages[i].Manager < result.Packages[j].Manager
		}

		return result.Packages[i].Name < result.Packages[j].Name
	})

	result.PackageCount = len(result.Packages)
}
