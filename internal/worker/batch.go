package worker

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/ppiankov/codebook/internal/model"
)

// Evaluator scores one annotated file against a ground-truth file.
type Evaluator interface {
	EvaluateFiles(ctx context.Context, annotatedPath, groundTruthPath string) (*model.EvaluationReport, error)
}

// EvaluateJob scores a single annotated file.
type EvaluateJob struct {
	Path        string
	GroundTruth string
	Evaluator   Evaluator
}

func (j *EvaluateJob) Execute(ctx context.Context) Result {
	report, err := j.Evaluator.EvaluateFiles(ctx, j.Path, j.GroundTruth)
	return &FileResult{
		Path:   j.Path,
		Report: report,
		Error:  err,
	}
}

// FileResult is the outcome of an EvaluateJob.
type FileResult struct {
	Path   string
	Report *model.EvaluationReport
	Error  error
}

func (r *FileResult) GetError() error {
	return r.Error
}

// BatchEvaluator scores many annotated files against one ground truth.
type BatchEvaluator struct {
	evaluator   Evaluator
	concurrency int
}

// NewBatchEvaluator creates a batch evaluator running at most concurrency
// files at once.
func NewBatchEvaluator(evaluator Evaluator, concurrency int) *BatchEvaluator {
	return &BatchEvaluator{
		evaluator:   evaluator,
		concurrency: concurrency,
	}
}

// ProcessFiles evaluates every path and returns results sorted by path.
// The ground-truth file itself is skipped if it appears in paths.
func (b *BatchEvaluator) ProcessFiles(ctx context.Context, groundTruth string, paths []string) []*FileResult {
	if len(paths) == 0 {
		return []*FileResult{}
	}

	pool := NewPool(ctx, b.concurrency)
	pool.Start()

	gtAbs, _ := filepath.Abs(groundTruth)
	for _, path := range paths {
		if abs, _ := filepath.Abs(path); abs == gtAbs {
			continue
		}
		job := &EvaluateJob{
			Path:        path,
			GroundTruth: groundTruth,
			Evaluator:   b.evaluator,
		}
		if !pool.Submit(job) {
			break
		}
	}

	results := pool.Wait()

	out := make([]*FileResult, len(results))
	for i, result := range results {
		out[i] = result.(*FileResult)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// Discover expands doublestar patterns ("runs/**/*.json") into a sorted,
// de-duplicated list of regular files. A pattern without glob syntax is
// taken as a literal path.
func Discover(patterns ...string) ([]string, error) {
	seen := make(map[string]bool)
	var files []string

	for _, pattern := range patterns {
		pattern = filepath.ToSlash(pattern)
		if !doublestar.ValidatePattern(pattern) {
			return nil, fmt.Errorf("invalid pattern %q", pattern)
		}

		base, rel := doublestar.SplitPattern(pattern)
		matches, err := doublestar.Glob(os.DirFS(base), rel, doublestar.WithFilesOnly())
		if err != nil {
			return nil, fmt.Errorf("glob %q: %w", pattern, err)
		}

		for _, m := range matches {
			path := filepath.Join(filepath.FromSlash(base), filepath.FromSlash(m))
			if !seen[path] {
				seen[path] = true
				files = append(files, path)
			}
		}
	}

	sort.Strings(files)
	return files, nil
}

// ReadPathsFromFile reads one path or pattern per line. Blank lines and
// lines starting with # are ignored.
func ReadPathsFromFile(filePath string) ([]string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer func() { _ = file.Close() }()

	var paths []string
	seen := make(map[string]bool)

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if !seen[line] {
			seen[line] = true
			paths = append(paths, line)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan file: %w", err)
	}

	return paths, nil
}
