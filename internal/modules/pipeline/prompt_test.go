package pipeline

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBuildShotPromptDeterministic(t *testing.T) {
	shot := Shot{Framing: "close-up", Movement: "pan", Focus: "fabric texture"}
	analysis := ProductAnalysis{ProductName: "linen tote bag", Colors: []string{"beige"}, Materials: []string{"linen"}}

	want := "close-up shot, focusing on fabric texture, slow horizontal pan, linen tote bag in beige made of linen, " +
		"white background, professional product videography, soft studio lighting, sharp focus, 4k"
	for i := 0; i < 10; i++ {
		got := BuildShotPrompt(1, shot, analysis, "white", 5)
		require.Equal(t, want, got.Prompt)
		require.Equal(t, 5, got.Duration)
		require.Equal(t, "close-up", got.Framing)
		require.Equal(t, "pan", got.Movement)
	}
}

func TestBuildShotPromptSkipsEmptyParts(t *testing.T) {
	got := BuildShotPrompt(2, Shot{Framing: "Wide", Movement: "unknown", Duration: 10}, ProductAnalysis{}, "", 5)
	require.Equal(t, "wide establishing shot, static camera, "+promptSuffix, got.Prompt)
	require.Equal(t, 10, got.Duration)
	require.Equal(t, 2, got.Index)
}

func TestBuildShotPromptBackgroundFallback(t *testing.T) {
	got := BuildShotPrompt(1, Shot{Focus: "handle"}, ProductAnalysis{ProductName: "mug", Background: "marble"}, "", 5)
	require.Equal(t, "medium shot, focusing on handle, static camera, mug, marble background, "+promptSuffix, got.Prompt)
}

func TestNormalizeClasses(t *testing.T) {
	require.Equal(t, "close-up", NormalizeFraming("Close Up"))
	require.Equal(t, "close-up", NormalizeFraming("closeup"))
	require.Equal(t, "overhead", NormalizeFraming("top_down"))
	require.Equal(t, "medium", NormalizeFraming("dutch angle"))
	require.Equal(t, "zoom-in", NormalizeMovement("Zoom In"))
	require.Equal(t, "dolly", NormalizeMovement("push in"))
	require.Equal(t, "static", NormalizeMovement(""))
}
