// Package domain provides the canonical types exchanged between pipeline stages.
//
// A run starts from a PipelineRequest supplied by the CI system. Each stage
// consumes explicit inputs and produces one of the value types defined here:
//
//	PipelineRequest -> Environment -> version -> BuildArtifact -> ChartUpdate -> ReleaseArtifact
//
// The orchestrator reports the outcome of a run as a RunResult, which
// serialises to JSON for the CLI.
package domain
