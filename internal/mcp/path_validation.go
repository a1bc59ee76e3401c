package mcp

import (
	"fmt"
	"path/filepath"
	"strings"
)

// resolveRunPath maps a run ID to its directory under outputDir. Run IDs are
// single path elements.
func resolveRunPath(outputDir, runID string) (string, error) {
	if strings.TrimSpace(runID) == "" {
		return "", fmt.Errorf("run_id is required")
	}
	if strings.ContainsAny(runID, `/\`) || strings.Contains(runID, string(filepath.Separator)) {
		return "", fmt.Errorf("path separators are not allowed")
	}
	if runID == "." || runID == ".." {
		return "", fmt.Errorf("path traversal is not allowed")
	}
	return resolvePathWithinBase(outputDir, runID)
}

// resolveResultFilePath maps a strategy results file to an absolute path
// inside outputDir.
func resolveResultFilePath(outputDir, resultsFile string) (string, error) {
	if strings.TrimSpace(resultsFile) == "" {
		return "", fmt.Errorf("results_file is required")
	}
	if filepath.Ext(resultsFile) != ".json" {
		return "", fmt.Errorf("results_file must be a .json strategy results file")
	}
	if filepath.Base(resultsFile) == runMetadataFile || strings.HasSuffix(resultsFile, scoresSuffix) {
		return "", fmt.Errorf("%s is not a strategy results file", filepath.Base(resultsFile))
	}
	return resolvePathWithinBase(outputDir, resultsFile)
}

// resolvePathWithinBase joins pathValue onto baseDir and rejects results
// that escape it. Absolute paths are accepted when they lie inside baseDir.
func resolvePathWithinBase(baseDir, pathValue string) (string, error) {
	baseAbs, err := filepath.Abs(baseDir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve base directory: %w", err)
	}
	rel := pathValue
	if filepath.IsAbs(rel) {
		if rel, err = filepath.Rel(baseAbs, filepath.Clean(rel)); err != nil {
			return "", fmt.Errorf("failed to resolve relative path: %w", err)
		}
	}
	if !filepath.IsLocal(rel) {
		return "", fmt.Errorf("path must be within output directory")
	}
	return filepath.Join(baseAbs, rel), nil
}

func joinRunFile(runPath, name string) string {
	return filepath.Join(runPath, filepath.Base(name))
}
