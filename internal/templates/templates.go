// Package templates holds the static catalog of targets tasks run against.
// Each template owns an isolated working directory under the sandbox root.
package templates

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ErrUnknownTemplate is returned when a template ID is not in the catalog.
var ErrUnknownTemplate = errors.New("unknown template")

// Template is a named parameter set a task runs against.
type Template struct {
	ID     string
	Name   string
	Params map[string]string
}

// Catalog is a read-only mapping from template ID to Template.
type Catalog struct {
	root  string
	byID  map[string]Template
	byDir map[string]string
}

// DefaultSandboxDir returns the default root for template working directories.
func DefaultSandboxDir() string {
	wd, err := os.Getwd()
	if err != nil {
		return "sandbox"
	}
	return filepath.Join(wd, "sandbox")
}

// NewCatalog builds a catalog rooted at root. Duplicate IDs and IDs whose
// working directories would collide are rejected.
func NewCatalog(root string, list []Template) (*Catalog, error) {
	if root == "" {
		root = DefaultSandboxDir()
	}
	c := &Catalog{
		root:  root,
		byID:  make(map[string]Template, len(list)),
		byDir: make(map[string]string, len(list)),
	}
	for _, t := range list {
		if strings.TrimSpace(t.ID) == "" {
			return nil, fmt.Errorf("template has empty id")
		}
		if _, dup := c.byID[t.ID]; dup {
			return nil, fmt.Errorf("duplicate template id %q", t.ID)
		}
		dir := Sanitize(t.ID)
		if other, clash := c.byDir[dir]; clash {
			return nil, fmt.Errorf("templates %q and %q share working directory %q", other, t.ID, dir)
		}
		if t.Name == "" {
			t.Name = t.ID
		}
		c.byID[t.ID] = t
		c.byDir[dir] = t.ID
	}
	return c, nil
}

// Root returns the sandbox root.
func (c *Catalog) Root() string {
	return c.root
}

// Lookup returns the template registered under id.
func (c *Catalog) Lookup(id string) (Template, error) {
	t, ok := c.byID[id]
	if !ok {
		return Template{}, fmt.Errorf("%w: %s", ErrUnknownTemplate, id)
	}
	return t, nil
}

// WorkingDir returns the working directory for a template ID.
func (c *Catalog) WorkingDir(id string) string {
	return filepath.Join(c.root, Sanitize(id))
}

// IDs returns all template IDs sorted.
func (c *Catalog) IDs() []string {
	ids := make([]string, 0, len(c.byID))
	for id := range c.byID {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Len returns the number of templates.
func (c *Catalog) Len() int {
	return len(c.byID)
}

// Sanitize turns a template ID into a single path element.
func Sanitize(id string) string {
	r := strings.NewReplacer("/", "-", `\`, "-")
	s := r.Replace(strings.TrimSpace(id))
	if s == "." || s == ".." {
		s = strings.ReplaceAll(s, ".", "_")
	}
	return s
}
