// Package pipeline runs the stages of a release in a fixed order:
// classify, version, build, chart update and chart release.
//
// Stages are strictly sequential. The first failure halts the run and is
// recorded with its stage and error code; completed stages are never rolled
// back. A run whose history holds no releasable commit finishes after the
// version stage. The per-environment policy from configuration may skip the
// chart update and the chart release; skipped stages are recorded as such.
// A latest run that completes is tagged in the source repository when a
// Tagger is configured.
package pipeline
