package content

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Course folder layout read by BuildCourse.
const (
	courseFile  = "course.json"
	chapterFile = "chapter.json"
	chaptersDir = "chapters"
	stepsDir    = "steps"
)

// BuildResult describes a course file written by BuildCourse.
type BuildResult struct {
	Path     string
	Slug     string
	Chapters int
	Steps    int
	// Unchanged is true when the target already held identical content.
	Unchanged bool
}

// BuildCourse assembles a course folder into targetDir/<slug>.json, the shape Import reads
// from courses/. The folder holds course.json plus chapters/<dir>/chapter.json and
// chapters/<dir>/steps/*.json; chapters and steps are ordered by name. src may also be a
// single course file, which is validated and rewritten as is.
func BuildCourse(src, targetDir string) (*BuildResult, error) {
	info, err := os.Stat(src)
	if err != nil {
		return nil, fmt.Errorf("failed to read course source: %w", err)
	}

	var doc *CourseDocument
	if info.IsDir() {
		doc, err = readCourseFolder(src)
	} else {
		doc, err = readCourseFile(src)
	}
	if err != nil {
		return nil, err
	}
	if err := doc.Validate(); err != nil {
		return nil, fmt.Errorf("invalid course %s: %w", src, err)
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode course: %w", err)
	}
	data = append(data, '\n')

	result := &BuildResult{
		Path:     filepath.Join(targetDir, doc.Slug+".json"),
		Slug:     doc.Slug,
		Chapters: len(doc.Chapters),
	}
	for _, ch := range doc.Chapters {
		result.Steps += len(ch.Steps)
	}

	if existing, err := os.ReadFile(result.Path); err == nil && bytes.Equal(existing, data) {
		result.Unchanged = true
		return result, nil
	}

	if err := os.MkdirAll(targetDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create target directory: %w", err)
	}
	if err := os.WriteFile(result.Path, data, 0o644); err != nil { //nolint:gosec // course files are world-readable
		return nil, fmt.Errorf("failed to write %s: %w", result.Path, err)
	}
	return result, nil
}

func readCourseFile(path string) (*CourseDocument, error) {
	var doc CourseDocument
	if err := readJSON(path, &doc); err != nil {
		return nil, fmt.Errorf("failed to read course: %w", err)
	}
	return &doc, nil
}

func readCourseFolder(dir string) (*CourseDocument, error) {
	doc, err := readCourseFile(filepath.Join(dir, courseFile))
	if err != nil {
		return nil, err
	}
	// chapters come from the folder tree, never from course.json
	doc.Chapters = nil

	entries, err := os.ReadDir(filepath.Join(dir, chaptersDir))
	if errors.Is(err, fs.ErrNotExist) {
		return doc, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list chapters: %w", err)
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		chapterDir := filepath.Join(dir, chaptersDir, entry.Name())

		var chapter ChapterDocument
		err := readJSON(filepath.Join(chapterDir, chapterFile), &chapter)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, err
		}

		if chapter.Steps, err = readSteps(filepath.Join(chapterDir, stepsDir)); err != nil {
			return nil, err
		}
		doc.Chapters = append(doc.Chapters, chapter)
	}
	return doc, nil
}

func readSteps(dir string) ([]StepDocument, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return nil, fmt.Errorf("failed to list steps: %w", err)
	}
	sort.Strings(files)

	steps := make([]StepDocument, 0, len(files))
	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", file, err)
		}
		step, err := ParseStepDocument(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", file, err)
		}
		steps = append(steps, *step)
	}
	return steps, nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return nil
}

// FileError is a content file that failed validation.
type FileError struct {
	Path string
	Err  error
}

// ValidationReport is the outcome of ValidateDir.
type ValidationReport struct {
	Checked  int
	Failures []FileError
}

// OK reports whether every checked file is valid.
func (r *ValidationReport) OK() bool {
	return len(r.Failures) == 0
}

// ValidateDir checks every .json file under dir by its role:
//   - categories.json lists categories with a name and slug
//   - chapter.json needs a title
//   - course.json and files directly under a courses directory are complete courses
//   - any other file is a step document
//
// A file that fails is recorded in the report; only a walk failure returns an error.
func ValidateDir(dir string) (*ValidationReport, error) {
	report := &ValidationReport{}

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(path), ".json") {
			return nil
		}

		report.Checked++
		if err := validateFile(path); err != nil {
			report.Failures = append(report.Failures, FileError{Path: path, Err: err})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", dir, err)
	}
	return report, nil
}

func validateFile(path string) error {
	switch name := filepath.Base(path); {
	case name == "categories.json":
		var docs []CategoryDocument
		if err := readJSON(path, &docs); err != nil {
			return err
		}
		for i, doc := range docs {
			if doc.Name == "" || doc.Slug == "" {
				return fmt.Errorf("category %d: name and slug are required", i+1)
			}
		}
		return nil

	case name == chapterFile:
		var doc ChapterDocument
		if err := readJSON(path, &doc); err != nil {
			return err
		}
		if strings.TrimSpace(doc.Title) == "" {
			return errors.New("chapter title is required")
		}
		return nil

	case name == courseFile || filepath.Base(filepath.Dir(path)) == "courses":
		var doc CourseDocument
		if err := readJSON(path, &doc); err != nil {
			return err
		}
		if name == courseFile {
			// folder metadata; steps live in chapters/
			doc.Chapters = nil
		}
		return doc.Validate()

	default:
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		_, err = ParseStepDocument(data)
		return err
	}
}
