package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const stepJSON = `{"title": "Limits", "slides": [{"blocks": [{"id": "b1", "type": "text", "content": {"paragraphs": ["Close to a."]}}]}]}`

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer
	cmd := newRootCommand()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
}

func TestBuildAndValidateNeedNoConfig(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	src := t.TempDir()
	writeFile(t, filepath.Join(src, "course.json"), `{"slug": "limits", "title": "Limits"}`)
	writeFile(t, filepath.Join(src, "chapters", "01", "chapter.json"), `{"title": "Intuition"}`)
	writeFile(t, filepath.Join(src, "chapters", "01", "steps", "01.json"), stepJSON)
	target := filepath.Join(t.TempDir(), "courses")

	out, err := execute(t, "build", src, "--target", target)
	require.NoError(t, err)
	assert.Contains(t, out, "(1 chapters, 1 steps)")
	assert.FileExists(t, filepath.Join(target, "limits.json"))

	out, err = execute(t, "validate", target)
	require.NoError(t, err)
	assert.Contains(t, out, "files checked: 1, errors: 0")
}

func TestValidateReportsFailures(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "steps", "bad.json"), `{"slides": []}`)

	out, err := execute(t, "validate", dir)
	require.Error(t, err)
	assert.Contains(t, out, "bad.json: step title is required")
	assert.Contains(t, out, "errors: 1")
}
