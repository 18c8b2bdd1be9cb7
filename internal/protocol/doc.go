// Package protocol models one test case ("protocol") of a strata suite: its
// metadata, the single execution of its script, and the outcome records that
// execution leaves on disk.
//
// # On-disk Layout
//
// A protocol is identified by its root directory:
//
//	<root>/meta.ini               optional overrides of the default metadata
//	<root>/<log_dir>/EXIT_CODE    exit status of the script, plain integer text
//	<root>/<log_dir>/SUCCESS_CODE verdict written by the script itself
//	<root>/<log_dir>/stdout.log   captured standard output
//	<root>/<log_dir>/stderr.log   captured standard error
//
// All durable state lives in the log directory. A Protocol value is a cache
// over it: outcome accessors fall back to the records on disk, so a fresh
// process sees the results of an earlier one.
//
// # Metadata
//
// meta.ini holds a [Protocol] section. Keys are case-insensitive:
//
//	[Protocol]
//	name    = human readable name (defaults to the root path)
//	script  = program to run, relative to the root or looked up in PATH
//	log_dir = directory for run artifacts, relative to the root
//	timeout = optional Go duration bounding the run, e.g. 90s
//
// Keys missing from meta.ini take their value from Defaults.
//
// # Idempotency
//
// Run executes the script only when no exit code is known yet. Re-running a
// suite therefore skips completed protocols unless the run is forced.
package protocol
