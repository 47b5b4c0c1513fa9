package course

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	appLog "timetable/internal/log"
	"timetable/internal/model"
)

// ErrNoCourses is returned by Find when a directory has no course files.
var ErrNoCourses = errors.New("no course files found")

// Find walks dir and returns every *.yml / *.yaml file, in lexical order.
// Unreadable subdirectories are skipped.
func Find(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return err
			}
			appLog.Debug("course discovery: skipping unreadable entry", "path", path, "err", err)
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".yml", ".yaml":
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoCourses, dir)
	}
	return files, nil
}

// Parse decodes every YAML document in body as a course and validates it.
// source is recorded on each course and used in error messages.
func Parse(source string, body []byte) ([]model.Course, error) {
	dec := yaml.NewDecoder(bytes.NewReader(body))
	dec.KnownFields(true)

	var out []model.Course
	for doc := 0; ; doc++ {
		var c model.Course
		err := dec.Decode(&c)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%s: document %d: %w", source, doc, err)
		}
		if err := Validate(c); err != nil {
			return nil, fmt.Errorf("%s: document %d: %w", source, doc, err)
		}
		c.Source = source
		out = append(out, c)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%s: empty course file", source)
	}
	return out, nil
}

// Validate checks the invariants a course must satisfy before it is handed
// to the resolver.
func Validate(c model.Course) error {
	if strings.TrimSpace(c.Name) == "" {
		return errors.New("course name is empty")
	}
	if err := c.Slot.Validate(); err != nil {
		return fmt.Errorf("course %q: %w", c.Name, err)
	}
	return nil
}

// LoadFile reads and parses a single course file.
func LoadFile(path string) ([]model.Course, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(path, data)
}

// LoadDir loads every course file under dir. Files that fail to parse are
// logged and skipped; their errors are returned alongside the courses that
// did load.
func LoadDir(dir string) ([]model.Course, []error) {
	files, err := Find(dir)
	if err != nil {
		return nil, []error{err}
	}

	courses := make([]model.Course, 0, len(files))
	errs := make([]error, 0)
	for _, f := range files {
		cs, err := LoadFile(f)
		if err != nil {
			appLog.Error("course load failed", err, "path", f)
			errs = append(errs, err)
			continue
		}
		courses = append(courses, cs...)
	}

	appLog.Debug("courses loaded", "dir", dir, "files", len(files), "courses", len(courses), "errors", len(errs))
	return courses, errs
}
