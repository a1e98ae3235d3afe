// Package coststore keeps the cost graphs of cluster runs in SQLite so that
// runs of a graph before and after rewriting can be compared.
//
// Every run is stored under its run ID and a caller-chosen label, such as
// "baseline" or "optimized". Node outputs are stored as YAML text.
package coststore
