package harness

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"

	yaml "gopkg.in/yaml.v3"
)

// LoadSuite loads the suite in dir. Dir is reported relative to root when
// root is not empty.
func LoadSuite(dir, root string) (*Suite, error) {
	yamlPath := filepath.Join(dir, SuiteFile)

	data, err := os.ReadFile(yamlPath)
	if err != nil {
		return nil, err
	}

	s := &Suite{}
	if err := yaml.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("%s: %w", yamlPath, err)
	}
	if s.Rule == "" {
		return nil, fmt.Errorf("%s: missing rule", yamlPath)
	}

	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("absolute path of %s: %w", dir, err)
	}
	s.Path = abs

	if project := s.Config.ParserOptions.Project; project != "" && !filepath.IsAbs(project) {
		s.Config.ParserOptions.Project = filepath.Join(abs, project)
	}

	// Use relative path from testdata root if provided.
	s.Dir = filepath.Base(dir)
	if root != "" {
		if relPath, err := filepath.Rel(root, dir); err == nil {
			s.Dir = relPath
		}
	}
	return s, nil
}

// DiscoverSuites returns the directories below root that contain a suite
// file, sorted.
func DiscoverSuites(root string) ([]string, error) {
	var dirs []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && d.Name() == SuiteFile {
			dirs = append(dirs, filepath.Dir(path))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("discovering suites in %s: %w", root, err)
	}
	slices.Sort(dirs)
	return dirs, nil
}
