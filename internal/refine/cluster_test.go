package refine

import (
	"bytes"
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const clustersBody = `[
  [{"v": "Los Angeles", "c": 10}, {"v": "los angeles", "c": 3}, {"v": "LOS ANGELES ", "c": 1}],
  [{"v": "New York", "c": 5}, {"v": "new york", "c": 2}],
  [{"v": "Lonely", "c": 1}]
]`

func TestComputeClusters_Defaults(t *testing.T) {
	f := newFakeRefine(t, map[string]http.HandlerFunc{
		"get-models":       jsonHandler(modelsBody),
		"compute-clusters": jsonHandler(clustersBody),
	})
	p := openTestProject(t, f)

	clusters, err := p.ComputeClusters(context.Background(), "name", ClusterOptions{})
	require.NoError(t, err)
	require.Len(t, clusters, 3)
	assert.Equal(t, ClusterValue{Value: "Los Angeles", Count: 10}, clusters[0][0])

	var c map[string]any
	decodeFormJSON(t, f.last(t, "compute-clusters").Form, "clusterer", &c)
	assert.Equal(t, "binning", c["type"])
	assert.Equal(t, "fingerprint", c["function"])
	assert.Equal(t, "name", c["column"])
	assert.Equal(t, map[string]any{}, c["params"])
}

func TestComputeClusters_KNN(t *testing.T) {
	f := newFakeRefine(t, map[string]http.HandlerFunc{
		"get-models":       jsonHandler(modelsBody),
		"compute-clusters": jsonHandler(`[]`),
	})
	p := openTestProject(t, f)

	clusters, err := p.ComputeClusters(context.Background(), "name", ClusterOptions{Type: ClustererKNN})
	require.NoError(t, err)
	assert.Empty(t, clusters)

	var c map[string]any
	decodeFormJSON(t, f.last(t, "compute-clusters").Form, "clusterer", &c)
	assert.Equal(t, "knn", c["type"])
	assert.Equal(t, "levenshtein", c["function"])
	assert.Equal(t, map[string]any{"radius": 1.0, "blocking-ngram-size": 6.0}, c["params"])
}

func TestComputeClusters_UnknownType(t *testing.T) {
	p := NewProject(NewServer("http://unused"), "1")
	_, err := p.ComputeClusters(context.Background(), "name", ClusterOptions{Type: "magic"})
	assert.Error(t, err)
}

func TestClusterEdits(t *testing.T) {
	clusters := [][]ClusterValue{
		{{Value: "A", Count: 3}, {Value: "a", Count: 1}, {Value: "a ", Count: 1}},
		{{Value: "single", Count: 9}},
		{{Value: "B", Count: 2}, {Value: "b", Count: 1}},
	}

	edits := ClusterEdits(clusters, 0)
	require.Len(t, edits, 2)
	assert.Equal(t, Edit{From: []string{"a", "a "}, To: "A"}, edits[0])
	assert.Equal(t, Edit{From: []string{"b"}, To: "B"}, edits[1])

	limited := ClusterEdits(clusters, 1)
	assert.Len(t, limited, 1)
	assert.Equal(t, "A", limited[0].To)

	assert.Empty(t, ClusterEdits(nil, 0))
}

func TestClusterEdit(t *testing.T) {
	f := newFakeRefine(t, map[string]http.HandlerFunc{
		"get-models":       jsonHandler(modelsBody),
		"compute-clusters": jsonHandler(clustersBody),
		"mass-edit":        jsonHandler(`{"code":"ok","historyEntry":{"id":3,"description":"Mass edit 6 cells"}}`),
	})
	p := openTestProject(t, f)

	result, err := p.ClusterEdit(context.Background(), "name", ClusterOptions{}, 0)
	require.NoError(t, err)

	assert.Equal(t, 3, result.Clusters)
	assert.Len(t, result.Edits, 2)
	require.NotNil(t, result.Status)
	assert.Equal(t, "ok", result.Status.Code)
	assert.Equal(t, 1, f.count("mass-edit"), "all edits go in one request")

	req := f.last(t, "mass-edit")
	assert.Equal(t, "name", req.Form.Get("columnName"))
	assert.Equal(t, "value", req.Form.Get("expression"))

	var edits []Edit
	decodeFormJSON(t, req.Form, "edits", &edits)
	require.Len(t, edits, 2)
	assert.Equal(t, "Los Angeles", edits[0].To)
	assert.Equal(t, []string{"los angeles", "LOS ANGELES "}, edits[0].From)
}

func TestClusterEdit_NothingToMerge(t *testing.T) {
	f := newFakeRefine(t, map[string]http.HandlerFunc{
		"get-models":       jsonHandler(modelsBody),
		"compute-clusters": jsonHandler(`[[{"v":"x","c":1}]]`),
	})
	p := openTestProject(t, f)

	result, err := p.ClusterEdit(context.Background(), "name", ClusterOptions{}, 0)
	require.NoError(t, err)
	assert.Empty(t, result.Edits)
	assert.Nil(t, result.Status)
	assert.Zero(t, f.count("mass-edit"))
}

func TestWriteClustersTSV(t *testing.T) {
	var buf bytes.Buffer
	err := WriteClustersTSV(&buf, [][]ClusterValue{
		{{Value: "A"}, {Value: "a\tb"}},
		{{Value: "line\nbreak"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "A\ta b\nline break\n", buf.String())
}
