// Package harness assembles a workspace from layered directories and runs
// every protocol found in it.
//
// # Assembly
//
// A suite names three groups of sources. Each group is merged with the same
// exclusion motifs:
//
//	base + overlays  →  destination
//	inputs           →  destination/inputs
//	protocols        →  destination/protocols
//
// A group with no sources is skipped.
//
// # Execution
//
// Protocols are discovered under destination/protocols and run one at a
// time in lexical order. A failing protocol does not stop the suite: its
// error is collected in Result.Errors and the next protocol runs. Only a
// cancelled context stops the loop early.
//
// Each script execution is recorded in the run ledger when a store is
// configured. Protocols skipped because they already have an exit code are
// reported but not recorded.
package harness
