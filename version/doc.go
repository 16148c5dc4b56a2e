// Package version computes the next semantic version of an application from
// its conventional-commit history.
//
// Resolver is the pure core: given the previous release and the commits made
// since, it returns the next version or a NoOp resolution. Service applies
// the per-environment rules on top and reads history through a HistorySource
// such as GitHistory.
package version
