package workflow

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIntegrityCleanFixture(t *testing.T) {
	doc := loadFixture(t)
	assert.Empty(t, doc.Integrity())
}

func TestIntegrityFindsProblems(t *testing.T) {
	doc := loadFixture(t)

	doc.Nodes = append(doc.Nodes, &Node{Name: "Settings1", Type: "n8n-nodes-base.set"})
	doc.Nodes = append(doc.Nodes, &Node{Name: "Sticky Note", Type: TypeStickyNote})
	_, idx := doc.NodeByName("Phase Router")
	doc.Nodes = append(doc.Nodes[:idx], doc.Nodes[idx+1:]...)

	issues := doc.Integrity()
	require.Len(t, issues, 3)

	assert.Equal(t, Issue{Kind: IssueDuplicateName, Node: "Settings1"}, issues[0])
	assert.Equal(t, Issue{Kind: IssueDanglingSource, Node: "Phase Router"}, issues[1])
	assert.Equal(t, Issue{Kind: IssueDanglingTarget, Node: "Webhook Trigger", Target: "Phase Router"}, issues[2])

	assert.Contains(t, issues[2].String(), "missing node")
}

func TestNodeField(t *testing.T) {
	doc := loadFixture(t)
	profiles, _ := doc.NodeByName("Get COLLABORATE Profiles")
	trigger, _ := doc.NodeByName("Webhook Trigger")

	tests := []struct {
		name   string
		node   *Node
		path   string
		want   any
		wantOK bool
	}{
		{"name", trigger, "name", "Webhook Trigger", true},
		{"webhook id", trigger, "webhookId", "ugc-start", true},
		{"parameter", trigger, "parameters.path", "ugc-start", true},
		{"missing parameter", trigger, "parameters.nope", nil, false},
		{"type version", trigger, "typeVersion", json.Number("2"), true},
		{"absent webhook id", profiles, "webhookId", "", false},
		{"extra", profiles, "alwaysOutputData", true, true},
		{"nested extra", profiles, "credentials.supabaseApi.name", "Supabase account", true},
		{"unknown", profiles, "nothing", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := tt.node.Field(tt.path)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestSetParameterCreatesIntermediateObjects(t *testing.T) {
	n := &Node{Name: "A"}
	n.SetParameter("options.rawBody", true)
	n.SetParameter("path", "x")

	got, ok := n.Field("parameters.options.rawBody")
	require.True(t, ok)
	assert.Equal(t, true, got)
	assert.Equal(t, "x", n.Parameters["path"])
}

func TestValuesEqual(t *testing.T) {
	assert.True(t, ValuesEqual(1700, json.Number("1700")))
	assert.True(t, ValuesEqual(1700.0, 1700))
	assert.True(t, ValuesEqual([]float64{-6752, 304}, []any{json.Number("-6752"), 304}))
	assert.True(t, ValuesEqual(map[string]any{"a": 1}, map[string]any{"a": json.Number("1")}))
	assert.False(t, ValuesEqual("1700", 1700))
	assert.False(t, ValuesEqual(nil, "x"))
}
