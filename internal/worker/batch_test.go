package worker

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/codebook/internal/model"
)

type stubEvaluator struct {
	failOn string
}

func (m *stubEvaluator) EvaluateFiles(ctx context.Context, annotatedPath, groundTruthPath string) (*model.EvaluationReport, error) {
	time.Sleep(5 * time.Millisecond)
	if m.failOn != "" && strings.Contains(annotatedPath, m.failOn) {
		return nil, errors.New("evaluate error")
	}
	return &model.EvaluationReport{
		Annotated:   annotatedPath,
		GroundTruth: groundTruthPath,
	}, nil
}

func writeFiles(t *testing.T, dir string, names ...string) {
	t.Helper()
	for _, name := range names {
		path := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte("{}"), 0o644))
	}
}

func TestBatchEvaluator_ProcessFiles(t *testing.T) {
	b := NewBatchEvaluator(&stubEvaluator{failOn: "bad"}, 2)
	paths := []string{"runs/c.json", "runs/a.json", "runs/bad.json", "gt.json"}

	results := b.ProcessFiles(context.Background(), "gt.json", paths)
	require.Len(t, results, 3, "the ground truth file is skipped")

	var got []string
	for _, r := range results {
		got = append(got, r.Path)
	}
	assert.Equal(t, []string{"runs/a.json", "runs/bad.json", "runs/c.json"}, got)

	assert.Error(t, results[1].GetError())
	assert.Nil(t, results[1].Report)
	require.NotNil(t, results[0].Report)
	assert.Equal(t, "gt.json", results[0].Report.GroundTruth)
}

func TestBatchEvaluator_Empty(t *testing.T) {
	b := NewBatchEvaluator(&stubEvaluator{}, 2)
	assert.Empty(t, b.ProcessFiles(context.Background(), "gt.json", nil))
}

func TestDiscover(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir,
		"runs/gpt-4/pass1.json",
		"runs/gpt-4/pass2.yaml",
		"runs/qwen/pass1.json",
		"runs/notes.txt",
	)
	base := filepath.ToSlash(dir)

	files, err := Discover(base+"/runs/**/*.json", base+"/runs/gpt-4/*")
	require.NoError(t, err)

	assert.Equal(t, []string{
		filepath.Join(dir, "runs", "gpt-4", "pass1.json"),
		filepath.Join(dir, "runs", "gpt-4", "pass2.yaml"),
		filepath.Join(dir, "runs", "qwen", "pass1.json"),
	}, files)
}

func TestDiscover_InvalidPattern(t *testing.T) {
	_, err := Discover("runs/[a-")
	assert.Error(t, err)
}

func TestReadPathsFromFile(t *testing.T) {
	content := "runs/a.json\n# comment\nruns/**/*.yaml\n   \nruns/a.json   \n"

	path := filepath.Join(t.TempDir(), "list.txt")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	paths, err := ReadPathsFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"runs/a.json", "runs/**/*.yaml"}, paths)
}

func TestReadPathsFromFile_NonExistent(t *testing.T) {
	_, err := ReadPathsFromFile("non_existent_file.txt")
	assert.Error(t, err)
}
