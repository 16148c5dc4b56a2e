// Package schema embeds the CUE schema for pipeline configuration and the Go
// types it decodes into.
//
// User configuration (by default .forge/pipeline.cue) is unified with the
// #Pipeline definition from pipeline.cue, which supplies defaults and
// rejects unknown fields. The forgeVersion field is checked against
// SchemaVersion with IsCompatible.
package schema
