package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildArtifactReference(t *testing.T) {
	a := BuildArtifact{Registry: "ghcr.io", Repository: "bcit-ltc/web", Tags: []string{"1.2.4", "latest"}}
	assert.Equal(t, "ghcr.io/bcit-ltc/web:1.2.4", a.Reference())
	assert.Equal(t, "1.2.4", a.PrimaryTag())

	assert.Equal(t, "web", BuildArtifact{Repository: "web"}.Reference())
}

func TestParseEnvironment(t *testing.T) {
	for _, env := range Environments {
		got, err := ParseEnvironment(env.String())
		require.NoError(t, err)
		assert.Equal(t, env, got)
	}

	_, err := ParseEnvironment("production")
	require.Error(t, err)
}

func TestStageTerminal(t *testing.T) {
	assert.True(t, StageDone.Terminal())
	assert.True(t, StageFailed.Terminal())
	for _, s := range Stages {
		assert.False(t, s.Terminal(), s)
	}
}

func TestRunResultJSON(t *testing.T) {
	res := RunResult{
		Status:      RunStatusFailed,
		Stage:       StageBuilt,
		Environment: EnvironmentLatest,
		Version:     &VersionInfo{Version: "1.2.4", Previous: "1.2.3", Bump: "patch"},
		Error:       &RunError{Stage: StageBuilt, Code: "BUILD_FAILED", Message: "docker build failed"},
		Stages: []StageRecord{
			{Stage: StageClassified, Status: StageStatusOK},
			{Stage: StageBuilt, Status: StageStatusFailed},
		},
	}

	data, err := json.Marshal(res)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "failed", decoded["status"])
	assert.Equal(t, "built", decoded["stage"])
	assert.Equal(t, "latest", decoded["environment"])
	assert.NotContains(t, decoded, "build")
	assert.Equal(t, "BUILD_FAILED", decoded["error"].(map[string]any)["code"])
	assert.True(t, res.Failed())
}
