// Package spec implements the scanner and in-memory representation of
// the local spec tree (spec.md §4.1). No teacher file walks a
// directory tree like this — the teacher discovers issues from a
// network API, not the filesystem — so this package is grounded
// directly on spec.md's scanning rules, using the same os.ReadDir /
// atomic-rename-on-write style the teacher uses elsewhere for file I/O.
package spec

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/jra3/specsync/internal/frontmatter"
)

// RecognizedFilenames are the top-level file kinds spec.md §4.1 names
// explicitly. Any other top-level "*.md" file is still included, keyed
// by its filename.
var RecognizedFilenames = []string{
	"spec.md", "plan.md", "research.md", "data-model.md", "quickstart.md", "tasks.md",
}

// SpecFile is a single Markdown file inside a spec directory, with
// optional YAML front-matter (spec.md §3 SpecFile).
type SpecFile struct {
	Path        string // absolute/relative path on disk
	Filename    string // key in SpecDocument.Files, e.g. "spec.md" or "contracts/api.yaml"
	Content     []byte
	Frontmatter *frontmatter.Frontmatter
	Markdown    string
}

// SpecDocument is a named spec directory and its typed files
// (spec.md §3 SpecDocument).
type SpecDocument struct {
	Name        string
	Path        string
	Files       map[string]*SpecFile
	IssueNumber *int
}

var dirIssuePrefix = regexp.MustCompile(`^(\d+)-`)

// Scanner produces a deterministic, typed view of a local spec tree
// rooted at Root (default "specs/").
type Scanner struct {
	Root string
}

// New creates a Scanner rooted at root.
func New(root string) *Scanner {
	return &Scanner{Root: root}
}

// ScanAll walks Root and returns one SpecDocument per qualifying
// immediate subdirectory, ordered by directory name.
func (s *Scanner) ScanAll() ([]*SpecDocument, error) {
	entries, err := os.ReadDir(s.Root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading spec root %q: %w", s.Root, err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	var docs []*SpecDocument
	for _, name := range names {
		doc, err := s.ScanDirectory(filepath.Join(s.Root, name))
		if err != nil {
			return nil, err
		}
		if doc != nil {
			docs = append(docs, doc)
		}
	}
	return docs, nil
}

// ScanDirectory reads a single spec directory. It returns (nil, nil)
// when the directory doesn't exist or contains no Markdown file.
func (s *Scanner) ScanDirectory(dir string) (*SpecDocument, error) {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return nil, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading spec directory %q: %w", dir, err)
	}

	files := make(map[string]*SpecFile)
	hasMarkdown := false

	for _, e := range entries {
		name := e.Name()
		if e.Type()&os.ModeSymlink != 0 {
			continue // symlinks are not followed
		}

		if e.IsDir() && name == "contracts" {
			contractFiles, err := scanContracts(filepath.Join(dir, "contracts"))
			if err != nil {
				return nil, err
			}
			for key, sf := range contractFiles {
				files[key] = sf
				if strings.HasSuffix(key, ".md") {
					hasMarkdown = true
				}
			}
			continue
		}

		if !e.Type().IsRegular() {
			continue
		}
		if !strings.HasSuffix(name, ".md") {
			continue
		}

		sf, err := readSpecFile(filepath.Join(dir, name), name)
		if err != nil {
			return nil, err
		}
		files[name] = sf
		hasMarkdown = true
	}

	if !hasMarkdown {
		return nil, nil
	}

	doc := &SpecDocument{
		Name:  filepath.Base(dir),
		Path:  dir,
		Files: files,
	}
	if m := dirIssuePrefix.FindStringSubmatch(doc.Name); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			doc.IssueNumber = &n
		}
	}

	return doc, nil
}

func scanContracts(dir string) (map[string]*SpecFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading contracts directory %q: %w", dir, err)
	}

	files := make(map[string]*SpecFile)
	for _, e := range entries {
		if e.Type()&os.ModeSymlink != 0 || !e.Type().IsRegular() {
			continue
		}
		key := "contracts/" + e.Name()
		sf, err := readSpecFile(filepath.Join(dir, e.Name()), key)
		if err != nil {
			return nil, err
		}
		files[key] = sf
	}
	return files, nil
}

func readSpecFile(path, key string) (*SpecFile, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading spec file %q: %w", path, err)
	}

	fm, body, err := frontmatter.Parse(content)
	if err != nil {
		// Front-matter shape errors are recoverable (spec.md §7
		// VALIDATION_FAILED): surface the file with empty frontmatter and
		// the raw body rather than failing the whole scan.
		fm = &frontmatter.Frontmatter{}
		body = string(content)
	}

	return &SpecFile{
		Path:        path,
		Filename:    key,
		Content:     content,
		Frontmatter: fm,
		Markdown:    body,
	}, nil
}

// FindSpecByIssueNumber returns the first SpecDocument whose directory
// prefix matches n, preferring that over a front-matter match
// (spec.md §4.1, §8 property 9).
func (s *Scanner) FindSpecByIssueNumber(n int) (*SpecDocument, error) {
	docs, err := s.ScanAll()
	if err != nil {
		return nil, err
	}

	for _, d := range docs {
		if d.IssueNumber != nil && *d.IssueNumber == n {
			return d, nil
		}
	}
	for _, d := range docs {
		sf, ok := d.Files["spec.md"]
		if !ok || sf.Frontmatter == nil || sf.Frontmatter.GitHub == nil {
			continue
		}
		if sf.Frontmatter.GitHub.IssueNumber == n {
			return d, nil
		}
	}
	return nil, nil
}

// GetSpecFile reads a single file from dir, keyed by filename
// (e.g. "spec.md" or "contracts/api.yaml").
func (s *Scanner) GetSpecFile(dir, filename string) (*SpecFile, error) {
	path := filepath.Join(dir, filename)
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	if !info.Mode().IsRegular() {
		return nil, nil
	}
	return readSpecFile(path, filename)
}

// WriteSpecFile atomically replaces a file's content on disk: write to
// a sibling temp file, then rename (spec.md §9 "rename is the commit
// point"). Parent directories are created as needed.
func (s *Scanner) WriteSpecFile(file *SpecFile, newContent []byte) error {
	if err := os.MkdirAll(filepath.Dir(file.Path), 0755); err != nil {
		return fmt.Errorf("creating parent directory for %q: %w", file.Path, err)
	}

	tmp := file.Path + ".tmp"
	if err := os.WriteFile(tmp, newContent, 0644); err != nil {
		return fmt.Errorf("writing temp file %q: %w", tmp, err)
	}
	if err := os.Rename(tmp, file.Path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("renaming %q to %q: %w", tmp, file.Path, err)
	}

	file.Content = newContent
	return nil
}

// CreateSpecDirectory idempotently creates a directory under Root.
func (s *Scanner) CreateSpecDirectory(relative string) error {
	return os.MkdirAll(filepath.Join(s.Root, relative), 0755)
}

var nonFeatureChars = regexp.MustCompile(`[^a-z0-9-]`)

// GetFeatureName strips an optional "NNN-" prefix from a spec
// directory name and Title-Cases the remaining hyphen-separated words
// (spec.md §4.1).
func GetFeatureName(specName string) string {
	name := dirIssuePrefix.ReplaceAllString(specName, "")
	words := strings.Split(name, "-")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

// SlugifyFeatureName is the inverse direction of GetFeatureName, using
// the same slug rules as the mapper's issue-title-to-directory-name
// conversion (spec.md §4.2 issueToSpec): lowercase, whitespace runs
// become "-", characters outside [a-z0-9-] are dropped. Unlike the
// mapper, it does not strip a title prefix first.
func SlugifyFeatureName(title string) string {
	lower := strings.ToLower(title)
	fields := strings.Fields(lower)
	joined := strings.Join(fields, "-")
	return nonFeatureChars.ReplaceAllString(joined, "")
}
