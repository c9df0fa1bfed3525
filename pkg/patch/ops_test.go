package patch

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dd0wney/flowpatch/pkg/workflow"
)

func loadFixture(t *testing.T) *workflow.Document {
	t.Helper()
	doc, err := workflow.Load(filepath.Join("..", "workflow", "testdata", "ugc.json"))
	require.NoError(t, err)
	return doc
}

func parseDoc(t *testing.T, data string) *workflow.Document {
	t.Helper()
	doc, err := workflow.Parse([]byte(data))
	require.NoError(t, err)
	return doc
}

func snapshot(t *testing.T, doc *workflow.Document) string {
	t.Helper()
	data, err := doc.Marshal()
	require.NoError(t, err)
	return string(data)
}

func TestRenameNode(t *testing.T) {
	doc := parseDoc(t, `{
		"nodes": [{"name": "Webhook Trigger", "type": "n8n-nodes-base.webhook", "parameters": {"path": "old"}}],
		"connections": {}
	}`)

	err := RenameNode(doc, "Webhook Trigger", "Phase 1: Discovery", FieldUpdates{
		Parameters: map[string]any{"path": "phase-1"},
	})
	require.NoError(t, err)

	node, _ := doc.NodeByName("Phase 1: Discovery")
	require.NotNil(t, node)
	assert.Equal(t, "phase-1", node.Parameters["path"])
	assert.Equal(t, 0, doc.CountNamed("Webhook Trigger"))
}

func TestRenameNodeUpdatesWebhookAndPosition(t *testing.T) {
	doc := loadFixture(t)
	hook := "phase-1"

	err := RenameNode(doc, "Webhook Trigger", "Phase 1: Discovery", FieldUpdates{
		Parameters: map[string]any{"path": "phase-1", "options.rawBody": true},
		WebhookID:  &hook,
		Position:   []float64{-6752, 304},
	})
	require.NoError(t, err)

	node, _ := doc.NodeByName("Phase 1: Discovery")
	require.NotNil(t, node)
	assert.Equal(t, "phase-1", node.WebhookID)
	assert.Equal(t, []float64{-6752, 304}, node.Position)
	assert.Equal(t, "a1b2c3d4-0001", node.ID, "id must survive a rename")

	raw, ok := node.Field("parameters.options.rawBody")
	require.True(t, ok)
	assert.Equal(t, true, raw)
}

func TestRenameNodeLeavesConnectionKey(t *testing.T) {
	doc := loadFixture(t)

	require.NoError(t, RenameNode(doc, "Webhook Trigger", "Phase 1: Discovery", FieldUpdates{}))

	_, stale := doc.Connections["Webhook Trigger"]
	assert.True(t, stale, "rename must not migrate connection keys")

	issues := doc.Integrity()
	require.Len(t, issues, 1)
	assert.Equal(t, workflow.IssueDanglingSource, issues[0].Kind)
	assert.Equal(t, "Webhook Trigger", issues[0].Node)
}

func TestRenameMissingNode(t *testing.T) {
	doc := loadFixture(t)
	before := snapshot(t, doc)

	err := RenameNode(doc, "Nope", "Still Nope", FieldUpdates{Parameters: map[string]any{"path": "x"}})
	require.Error(t, err)
	assert.True(t, workflow.IsNotFound(err))
	assert.Equal(t, before, snapshot(t, doc))
}

func TestRemoveNode(t *testing.T) {
	doc := parseDoc(t, `{
		"nodes": [{"name": "X", "type": "t"}, {"name": "Router", "type": "t"}, {"name": "Y", "type": "t"}],
		"connections": {
			"X": {"main": [[{"node": "Router", "type": "main", "index": 0}]]},
			"Router": {"main": [[{"node": "Y", "type": "main", "index": 0}]]}
		}
	}`)

	require.NoError(t, RemoveNode(doc, "Router", RemoveOptions{}))

	assert.False(t, doc.HasNode("Router"))
	assert.Len(t, doc.Nodes, 2)
	_, ok := doc.Connections["Router"]
	assert.False(t, ok)
	assert.Equal(t, []string{"Router"}, doc.Connections.Targets("X"), "inbound edges are kept without PruneInbound")
}

func TestRemoveNodeIsIdempotent(t *testing.T) {
	doc := loadFixture(t)

	require.NoError(t, RemoveNode(doc, "Phase Router", RemoveOptions{}))
	after := snapshot(t, doc)

	err := RemoveNode(doc, "Phase Router", RemoveOptions{})
	assert.True(t, workflow.IsNotFound(err))
	assert.Equal(t, after, snapshot(t, doc))
}

func TestRemoveNodeWithoutNodeButWithEntry(t *testing.T) {
	doc := parseDoc(t, `{
		"nodes": [{"name": "A", "type": "t"}],
		"connections": {"Ghost": {"main": [[{"node": "A", "type": "main", "index": 0}]]}}
	}`)

	require.NoError(t, RemoveNode(doc, "Ghost", RemoveOptions{}))
	assert.Empty(t, doc.Connections)
}

func TestRemoveNodePruneInbound(t *testing.T) {
	doc := loadFixture(t)

	require.NoError(t, RemoveNode(doc, "Phase Router", RemoveOptions{PruneInbound: true}))

	slots := doc.Connections["Webhook Trigger"][workflow.ChannelMain]
	require.Len(t, slots, 1, "slots are kept so other indexes do not shift")
	assert.Empty(t, slots[0])
	assert.Empty(t, doc.Integrity())
}

func TestRemoveNodeRemovesOnlyFirstDuplicate(t *testing.T) {
	doc := parseDoc(t, `{
		"nodes": [{"id": "1", "name": "Dup", "type": "t"}, {"id": "2", "name": "Dup", "type": "t"}],
		"connections": {"A": {"main": [[{"node": "Dup", "type": "main", "index": 0}]]}}
	}`)

	require.NoError(t, RemoveNode(doc, "Dup", RemoveOptions{PruneInbound: true}))

	require.Len(t, doc.Nodes, 1)
	assert.Equal(t, "2", doc.Nodes[0].ID)
	assert.Equal(t, []string{"Dup"}, doc.Connections.Targets("A"), "edges into a surviving namesake stay")
}

func TestAddNode(t *testing.T) {
	doc := loadFixture(t)
	count := len(doc.Nodes)

	node := &workflow.Node{
		Name:        "Phase 2: Video Analysis",
		Type:        workflow.TypeWebhook,
		TypeVersion: "2",
		Position:    []float64{-6752, 784},
		Parameters:  map[string]any{"path": "phase-2"},
		WebhookID:   "phase-2",
	}
	require.NoError(t, AddNode(doc, node, AddOptions{}))

	require.Len(t, doc.Nodes, count+1)
	assert.Same(t, node, doc.Nodes[count])
	assert.NotEmpty(t, node.ID, "a missing id is generated")
}

func TestAddNodeDuplicates(t *testing.T) {
	tests := []struct {
		name    string
		opts    AddOptions
		wantErr error
		added   bool
	}{
		{"permissive", AddOptions{}, nil, true},
		{"strict", AddOptions{Strict: true}, workflow.ErrDuplicateName, false},
		{"skip existing", AddOptions{SkipExisting: true}, ErrUnchanged, false},
		{"skip wins over strict", AddOptions{Strict: true, SkipExisting: true}, ErrUnchanged, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := loadFixture(t)
			count := len(doc.Nodes)

			err := AddNode(doc, &workflow.Node{Name: "Settings1", Type: "t"}, tt.opts)
			if tt.wantErr != nil {
				assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
			} else {
				assert.NoError(t, err)
			}
			if tt.added {
				assert.Len(t, doc.Nodes, count+1)
			} else {
				assert.Len(t, doc.Nodes, count)
			}
		})
	}
}

func TestAddNodeRequiresName(t *testing.T) {
	doc := loadFixture(t)
	assert.Error(t, AddNode(doc, &workflow.Node{Type: "t"}, AddOptions{}))
	assert.Error(t, AddNode(doc, nil, AddOptions{}))
}

func TestSetConnectionOverwrites(t *testing.T) {
	doc := loadFixture(t)

	err := SetConnection(doc, "Phase Router", []Target{{Node: "Merge"}})
	require.NoError(t, err)

	conn := doc.Connections["Phase Router"]
	require.Len(t, conn[workflow.ChannelMain], 1, "previous slots are discarded")
	assert.Equal(t, workflow.Slot{{Node: "Merge", Type: "main", Index: 0}}, conn[workflow.ChannelMain][0])
}

func TestSetConnectionWarnsOnMissingSource(t *testing.T) {
	doc := loadFixture(t)

	err := SetConnection(doc, "Phase 2: Video Analysis", []Target{{Node: "Get COLLABORATE Profiles"}})

	var warning *Warning
	require.True(t, errors.As(err, &warning))
	assert.Equal(t, []string{"Get COLLABORATE Profiles"}, doc.Connections.Targets("Phase 2: Video Analysis"))
}

func TestRemoveConnection(t *testing.T) {
	doc := loadFixture(t)

	require.NoError(t, RemoveConnection(doc, "Webhook Trigger"))
	assert.True(t, workflow.IsNotFound(RemoveConnection(doc, "Webhook Trigger")))
}

func TestAddEdge(t *testing.T) {
	doc := loadFixture(t)

	require.NoError(t, AddEdge(doc, "Settings1", 0, Target{Node: "Get COLLABORATE Profiles"}))
	assert.Equal(t, []string{"Merge", "Get COLLABORATE Profiles"}, doc.Connections.Targets("Settings1"))

	before := snapshot(t, doc)
	err := AddEdge(doc, "Settings1", 0, Target{Node: "Get COLLABORATE Profiles"})
	assert.True(t, errors.Is(err, ErrUnchanged))
	assert.Equal(t, before, snapshot(t, doc))
}

func TestAddEdgeGrowsSlots(t *testing.T) {
	doc := loadFixture(t)

	require.NoError(t, AddEdge(doc, "Merge", 2, Target{Node: "Settings1"}))

	slots := doc.Connections["Merge"][workflow.ChannelMain]
	require.Len(t, slots, 3)
	assert.Empty(t, slots[0])
	assert.Empty(t, slots[1])
	assert.Equal(t, "Settings1", slots[2][0].Node)

	assert.Error(t, AddEdge(doc, "Merge", -1, Target{Node: "Settings1"}))
}

func TestEdgeOpsOnNullConnectionEntry(t *testing.T) {
	const data = `{
  "nodes": [
    {"name": "X", "type": "n8n-nodes-base.set"},
    {"name": "A", "type": "n8n-nodes-base.set"}
  ],
  "connections": {"X": null}
}`

	doc := parseDoc(t, data)
	require.NotPanics(t, func() {
		require.NoError(t, AddEdge(doc, "X", 0, Target{Node: "A"}))
	})
	assert.Equal(t, []string{"A"}, doc.Connections.Targets("X"))

	doc = parseDoc(t, data)
	assert.NotPanics(t, func() {
		assert.True(t, workflow.IsNotFound(RemoveEdge(doc, "X", "A")))
		assert.Zero(t, PruneInbound(doc, "A"))
	})
}

func TestRemoveEdge(t *testing.T) {
	doc := loadFixture(t)

	require.NoError(t, RemoveEdge(doc, "Phase Router", "Settings1"))
	assert.Equal(t, []string{"Get COLLABORATE Profiles"}, doc.Connections.Targets("Phase Router"))
	assert.Len(t, doc.Connections["Phase Router"][workflow.ChannelMain], 2)

	assert.True(t, workflow.IsNotFound(RemoveEdge(doc, "Phase Router", "Settings1")))
	assert.True(t, workflow.IsNotFound(RemoveEdge(doc, "Nobody", "Settings1")))
}

func TestUpdateAnnotation(t *testing.T) {
	doc := loadFixture(t)

	err := UpdateAnnotation(doc, ByPosition(-6832, -64), map[string]any{
		"content": "## PHASE 1",
		"height":  1700,
	})
	require.NoError(t, err)

	note, _ := doc.NodeByID("a1b2c3d4-0006")
	require.NotNil(t, note)
	assert.Equal(t, "## PHASE 1", note.Parameters["content"])
	assert.Equal(t, 1700, note.Parameters["height"])
}

func TestUpdateAnnotationIgnoresOtherNodes(t *testing.T) {
	doc := loadFixture(t)
	before := snapshot(t, doc)

	// The webhook sits at this exact position but is not an annotation.
	err := UpdateAnnotation(doc, ByPosition(-6752, 400), map[string]any{"content": "x"})
	assert.True(t, workflow.IsNotFound(err))
	assert.Equal(t, before, snapshot(t, doc))
}

func TestUpdateAnnotationNoMatchLeavesDocument(t *testing.T) {
	doc := loadFixture(t)
	before := snapshot(t, doc)

	err := UpdateAnnotation(doc, ByPosition(1, 2), map[string]any{"content": "x", "height": 10})

	require.Error(t, err)
	var nf *workflow.NotFoundError
	require.True(t, errors.As(err, &nf))
	assert.Equal(t, "annotation", nf.Kind)
	assert.Equal(t, before, snapshot(t, doc))
}

func TestUpdateAnnotationAt(t *testing.T) {
	tests := []struct {
		name string
		sel  workflow.Selector
	}{
		{"by id", workflow.Selector{ID: "a1b2c3d4-0006"}},
		{"by name", workflow.Selector{Name: "Sticky Note"}},
		{"by position", workflow.Selector{Position: []float64{-6832, -64}}},
		{"id wins over stale position", workflow.Selector{ID: "a1b2c3d4-0006", Position: []float64{0, 0}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := loadFixture(t)
			require.NoError(t, UpdateAnnotationAt(doc, tt.sel, map[string]any{"content": "updated"}))

			note, _ := doc.NodeByID("a1b2c3d4-0006")
			assert.Equal(t, "updated", note.Parameters["content"])
		})
	}
}

func TestAppendAnnotations(t *testing.T) {
	doc := loadFixture(t)
	count := len(doc.Nodes)

	added := AppendAnnotations(doc, []AnnotationSpec{
		{Name: "S1", Content: "hello", Position: []float64{0, 0}, Width: 100, Height: 100, Color: 1},
	})

	require.Len(t, doc.Nodes, count+1)
	require.Len(t, added, 1)
	note := doc.Nodes[count]
	assert.Same(t, added[0], note)
	assert.Equal(t, "hello", note.Parameters["content"])
	assert.True(t, note.IsAnnotation())
	assert.NotEmpty(t, note.ID)
}

func TestAppendAnnotationsUniqueIDs(t *testing.T) {
	doc := loadFixture(t)

	specs := make([]AnnotationSpec, 4)
	for i := range specs {
		specs[i] = AnnotationSpec{Name: "Phase 2 Note", Content: "c", Position: []float64{0, float64(i)}}
	}
	added := AppendAnnotations(doc, specs)

	ids := map[string]bool{}
	for _, n := range added {
		assert.False(t, ids[n.ID], "duplicate id %s", n.ID)
		ids[n.ID] = true
	}
	assert.Len(t, ids, 4)
}

func TestSyncCode(t *testing.T) {
	doc := loadFixture(t)

	require.NoError(t, SyncCode(doc, "Merge", "return items.slice(0, 1);"))
	node, _ := doc.NodeByName("Merge")
	assert.Equal(t, "return items.slice(0, 1);", node.Parameters["jsCode"])

	assert.True(t, errors.Is(SyncCode(doc, "Merge", "return items.slice(0, 1);"), ErrUnchanged))
	assert.True(t, errors.Is(SyncCode(doc, "Settings1", "x"), ErrNoCodeParameter))
	assert.True(t, workflow.IsNotFound(SyncCode(doc, "Nope", "x")))
}

func TestPredicates(t *testing.T) {
	note := &workflow.Node{ID: "n1", Name: "Sticky Note", Type: workflow.TypeStickyNote, Position: []float64{1, 2}}

	assert.True(t, ByID("n1").Match(note))
	assert.True(t, ByName("Sticky Note").Match(note))
	assert.True(t, ByPosition(1, 2).Match(note))
	assert.True(t, ByType(workflow.TypeStickyNote).Match(note))
	assert.True(t, All(ByName("Sticky Note"), ByPosition(1, 2)).Match(note))
	assert.False(t, All(ByName("Sticky Note"), ByPosition(2, 1)).Match(note))
	assert.False(t, Predicate{}.Match(note))
	assert.Equal(t, `name="Sticky Note" position=[1 2]`, All(ByName("Sticky Note"), ByPosition(1, 2)).String())
}
