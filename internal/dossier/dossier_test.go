package dossier

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validDossier = `{
  "opener": "Loved your talk on edge inference at KubeCon.",
  "questions": [
    {"q": "What pushed you toward on-device models?", "why": "Shows the pivot from cloud work."},
    {"q": "How do you staff platform teams?", "why": "Recent hiring posts mention it."},
    {"q": "What would you build with a free quarter?", "why": "Opens up personal goals."}
  ],
  "analytics": {
    "careerTimeline": [{"title": "Staff Engineer", "period": "2021-present", "company": "Acme"}],
    "focusBreakdown": [
      {"label": "ML infra", "value": 50},
      {"label": "Hiring", "value": 30},
      {"label": "Speaking", "value": 20}
    ],
    "meetingFlow": [
      {"label": "Warm up", "value": 5},
      {"label": "Deep dive", "value": 20},
      {"label": "Next steps", "value": 5}
    ]
  },
  "visualizations": [
    {"type": "sankey", "title": "Career flow", "data": {"nodes": [{"name": "Acme"}, {"name": "Beta"}], "links": [{"source": 0, "target": 1, "value": 3}]}},
    {"type": "bar", "title": "Focus", "data": [{"label": "ML", "value": 4}]}
  ]
}`

func TestValidateAcceptsCompleteDossier(t *testing.T) {
	d, err := Validate(json.RawMessage(validDossier))
	require.NoError(t, err)
	assert.Len(t, d.Questions, 3)
	require.NotNil(t, d.Analytics)
	assert.Len(t, d.Analytics.MeetingFlow, 3)

	sankey, err := d.Visualizations[0].Sankey()
	require.NoError(t, err)
	assert.Equal(t, "Beta", sankey.Nodes[1].Name)

	series, err := d.Visualizations[1].Series()
	require.NoError(t, err)
	assert.Equal(t, 4.0, series[0].Value)

	_, err = d.Visualizations[1].Timeline()
	assert.Error(t, err)
}

func TestValidateMinimalDossier(t *testing.T) {
	raw := `{"opener":"Hi","questions":[{"q":"a","why":"b"},{"q":"c","why":"d"},{"q":"e","why":"f"}]}`
	d, err := Validate(json.RawMessage(raw))
	require.NoError(t, err)
	assert.Nil(t, d.Analytics)
	assert.Equal(t, StatusComplete, d.Complete().Status)
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]string{
		"empty":         ``,
		"not json":      `{"opener":`,
		"two questions": `{"opener":"Hi","questions":[{"q":"a","why":"b"},{"q":"c","why":"d"}]}`,
		"blank opener":  `{"opener":"   ","questions":[{"q":"a","why":"b"},{"q":"c","why":"d"},{"q":"e","why":"f"}]}`,
		"blank why":     `{"opener":"Hi","questions":[{"q":"a","why":" "},{"q":"c","why":"d"},{"q":"e","why":"f"}]}`,
		"bad status":    `{"status":"draft","opener":"Hi","questions":[{"q":"a","why":"b"},{"q":"c","why":"d"},{"q":"e","why":"f"}]}`,
		"partial analytics": `{"opener":"Hi","questions":[{"q":"a","why":"b"},{"q":"c","why":"d"},{"q":"e","why":"f"}],
			"analytics":{"careerTimeline":[{"title":"x","period":"y"}]}}`,
		"sankey out of range": `{"opener":"Hi","questions":[{"q":"a","why":"b"},{"q":"c","why":"d"},{"q":"e","why":"f"}],
			"visualizations":[{"type":"sankey","title":"t","data":{"nodes":[{"name":"a"}],"links":[{"source":0,"target":2,"value":1}]}}]}`,
		"series wrong shape": `{"opener":"Hi","questions":[{"q":"a","why":"b"},{"q":"c","why":"d"},{"q":"e","why":"f"}],
			"visualizations":[{"type":"pie","title":"t","data":{"nodes":[]}}]}`,
		"timeline missing period": `{"opener":"Hi","questions":[{"q":"a","why":"b"},{"q":"c","why":"d"},{"q":"e","why":"f"}],
			"visualizations":[{"type":"timeline","title":"t","data":[{"title":"x"}]}]}`,
		"too many visualizations": `{"opener":"Hi","questions":[{"q":"a","why":"b"},{"q":"c","why":"d"},{"q":"e","why":"f"}],
			"visualizations":[{"type":"bar","title":"a","data":[{"label":"x","value":1}]},{"type":"bar","title":"b","data":[{"label":"x","value":1}]},{"type":"bar","title":"c","data":[{"label":"x","value":1}]}]}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Validate(json.RawMessage(raw))
			require.Error(t, err)
			var shape *ShapeError
			require.True(t, errors.As(err, &shape), "expected ShapeError, got %T", err)
			assert.NotEmpty(t, shape.Problems)
			assert.True(t, strings.HasPrefix(err.Error(), "dossier shape invalid: "))
		})
	}
}

func TestValidateDossierReportsEveryProblem(t *testing.T) {
	err := ValidateDossier(Dossier{Opener: "", Questions: []Question{{Q: "", Why: "x"}}})
	var shape *ShapeError
	require.True(t, errors.As(err, &shape))
	assert.GreaterOrEqual(t, len(shape.Problems), 3)
}

func TestExtractFromText(t *testing.T) {
	t.Run("fenced", func(t *testing.T) {
		text := "Here you go:\n```json\n" + validDossier + "\n```\nLet me know."
		d, ok := ExtractFromText(text)
		require.True(t, ok)
		assert.Equal(t, "Loved your talk on edge inference at KubeCon.", d.Opener)
	})
	t.Run("bare", func(t *testing.T) {
		_, ok := ExtractFromText(validDossier)
		assert.True(t, ok)
	})
	t.Run("embedded with braces in strings", func(t *testing.T) {
		raw := `{"opener":"Ask about {curly} things","questions":[{"q":"a}","why":"b"},{"q":"c","why":"d"},{"q":"e","why":"f"}]}`
		d, ok := ExtractFromText("Result: {not json} then " + raw + " done")
		require.True(t, ok)
		assert.Equal(t, "a}", d.Questions[0].Q)
	})
	t.Run("invalid candidate", func(t *testing.T) {
		_, ok := ExtractFromText(`{"opener":"Hi","questions":[]}`)
		assert.False(t, ok)
	})
	t.Run("empty", func(t *testing.T) {
		_, ok := ExtractFromText("   ")
		assert.False(t, ok)
	})
}

func TestFingerprintIgnoresAnalytics(t *testing.T) {
	a := Dossier{Opener: "Hi", Questions: []Question{{Q: "a", Why: "b"}}}
	b := a
	b.Analytics = &Analytics{}
	assert.Equal(t, a.Fingerprint(), b.Fingerprint())
	b.Opener = "Hello"
	assert.NotEqual(t, a.Fingerprint(), b.Fingerprint())
}
