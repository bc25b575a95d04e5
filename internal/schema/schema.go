// Package schema knows which document schemas belong together. A completed
// report type owns a fixed family of schema variants that are purged as a
// unit, and a fixed set of core types gates secondary report generation.
package schema

import "strings"

var dependents = map[string][]string{
	"input-control": {
		"raw-input-control-sheet",
		"input-control",
	},
	"operational-data": {
		"raw-operational-data",
		"partial-operational-data",
		"revenue-operational-data",
		"operational-data",
	},
	"income-statement": {
		"raw-income-statement",
		"partial-income-statement",
		"percentage-change-income-statement",
		"income-statement",
	},
	"balance-sheet": {
		"raw-balance-sheet",
		"balance-sheet",
	},
}

// requiredCoreTypes must all be present for a business key before secondary
// reports can be generated.
var requiredCoreTypes = []string{
	"input-control",
	"operational-data",
	"income-statement",
	"balance-sheet",
	"cash-flow-statement",
	"share-info",
}

// notifyingTypes are the processed types whose arrival re-evaluates the
// completeness gate.
var notifyingTypes = map[string]struct{}{
	"operational-data":    {},
	"income-statement":    {},
	"balance-sheet":       {},
	"cash-flow-statement": {},
	"share-info":          {},
}

// Schemas accepted by the store beyond the purge families.
var standalone = []string{
	"raw-cash-flow-statement",
	"cash-flow-statement",
	"raw-share-info",
	"share-info",
	"revenue-analysis",
	"supplementary-info",
}

// Dependents returns, in purge order, every schema to delete when
// completedType is finalised. Unknown types yield an empty slice. The
// result is a copy.
func Dependents(completedType string) []string {
	deps := dependents[strings.ToLower(completedType)]
	out := make([]string, len(deps))
	copy(out, deps)
	return out
}

func RequiredCoreTypes() []string {
	out := make([]string, len(requiredCoreTypes))
	copy(out, requiredCoreTypes)
	return out
}

// Notifies reports whether storing a processed document of schemaID should
// run the completeness gate.
func Notifies(schemaID string) bool {
	_, ok := notifyingTypes[schemaID]
	return ok
}

// Known lists every schema id the service accepts, purge families first.
func Known() []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(ids ...string) {
		for _, id := range ids {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	for _, typ := range []string{"input-control", "operational-data", "income-statement", "balance-sheet"} {
		add(dependents[typ]...)
	}
	add(standalone...)
	return out
}

// IndexSchema is the report type under which a document of schemaID in
// currency is indexed. Currency variants are not separate schemas: every
// currency is stored and looked up under the native schema id.
func IndexSchema(schemaID, currency string) string {
	return schemaID
}
