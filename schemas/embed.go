package schema

import "embed"

// PipelineFile is the name of the embedded pipeline schema.
const PipelineFile = "pipeline.cue"

// PipelineDefinition is the CUE definition user configuration is unified with.
const PipelineDefinition = "#Pipeline"

// CueModule holds the embedded CUE schemas.
//
//go:embed pipeline.cue
var CueModule embed.FS

// PipelineSchema returns the source of the pipeline schema.
func PipelineSchema() []byte {
	data, err := CueModule.ReadFile(PipelineFile)
	if err != nil {
		// The file is embedded at build time.
		panic(err)
	}
	return data
}
