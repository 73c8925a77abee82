// Package publish lists the files of a module that would be published.
package publish

import (
	"bufio"
	"bytes"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5/plumbing/format/gitignore"
)

// IgnoreFiles are read in every directory, in increasing order of
// precedence.
var IgnoreFiles = []string{".gitignore", ".ignore", ".cpmignore"}

// List walks root and returns every regular file that is neither hidden nor
// excluded by an ignore file, in lexical walk order. Patterns of an ignore
// file apply to its directory and everything below it; a deeper file
// overrides a shallower one.
func List(root string) ([]string, error) {
	root = filepath.Clean(root)
	fi, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !fi.IsDir() {
		return nil, &fs.PathError{Op: "publish", Path: root, Err: errors.New("not a directory")}
	}

	patterns := map[string][]gitignore.Pattern{}
	var files []string
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		if rel == "." {
			ps, err := readPatterns(path, nil, nil)
			patterns[path] = ps
			return err
		}

		if strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		inherited := patterns[filepath.Dir(path)]
		parts := strings.Split(filepath.ToSlash(rel), "/")
		if gitignore.NewMatcher(inherited).Match(parts, d.IsDir()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if d.IsDir() {
			ps, err := readPatterns(path, parts, inherited)
			patterns[path] = ps
			return err
		}
		if d.Type().IsRegular() {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

// readPatterns returns inherited followed by the patterns of the ignore
// files in dir. domain is dir relative to the walk root.
func readPatterns(dir string, domain []string, inherited []gitignore.Pattern) ([]gitignore.Pattern, error) {
	ps := inherited[:len(inherited):len(inherited)]
	for _, name := range IgnoreFiles {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, err
		}
		s := bufio.NewScanner(bytes.NewReader(data))
		for s.Scan() {
			line := strings.TrimRight(s.Text(), "\r")
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			ps = append(ps, gitignore.ParsePattern(line, domain))
		}
		if err := s.Err(); err != nil {
			return nil, err
		}
	}
	return ps, nil
}
