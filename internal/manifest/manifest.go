// Package manifest reads repository manifests: a root element holding remote and project
// elements, as used by multi-repository checkout tools.
package manifest

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"

	"github.com/jlucaspains/manifest2gh/internal/models"
)

// Error is returned for a manifest that is missing, unreadable or malformed.
// No projects are usable when it is returned.
type Error struct {
	Path string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("manifest %s: %v", e.Path, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

type document struct {
	Remotes  []remoteElement  `xml:"remote"`
	Projects []projectElement `xml:"project"`
}

type remoteElement struct {
	Name  string `xml:"name,attr"`
	Fetch string `xml:"fetch,attr"`
}

type projectElement struct {
	Path     string `xml:"path,attr"`
	Name     string `xml:"name,attr"`
	Remote   string `xml:"remote,attr"`
	Revision string `xml:"revision,attr"`
}

// Parse reads the manifest at path and returns its projects in document order.
// sourceBase is the source host used when a project's remote is unknown or not an absolute URL.
func Parse(path, sourceBase string) ([]models.Project, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &Error{Path: path, Err: err}
	}
	defer f.Close()

	dec := xml.NewDecoder(f)
	var doc document
	if err := dec.Decode(&doc); err != nil {
		return nil, &Error{Path: path, Err: fmt.Errorf("malformed document: %w", err)}
	}
	if err := checkTrailing(dec); err != nil {
		return nil, &Error{Path: path, Err: fmt.Errorf("malformed document: %w", err)}
	}

	// Duplicate remote names: the last definition wins
	remotes := make(map[string]models.RemoteDefinition, len(doc.Remotes))
	for _, r := range doc.Remotes {
		remotes[r.Name] = models.RemoteDefinition{Name: r.Name, Fetch: r.Fetch}
	}

	projects := make([]models.Project, 0, len(doc.Projects))
	for i, p := range doc.Projects {
		if p.Name == "" {
			return nil, &Error{Path: path, Err: fmt.Errorf("project %d has no name attribute", i+1)}
		}

		project := models.Project{
			Path:     p.Path,
			Name:     p.Name,
			Remote:   p.Remote,
			Revision: p.Revision,
		}
		if project.Remote == "" {
			project.Remote = models.DefaultRemote
		}
		if project.Revision == "" {
			project.Revision = models.DefaultRevision
		}
		project.SourceURL = ResolveSourceURL(remotes, project, sourceBase)

		projects = append(projects, project)
	}

	return projects, nil
}

// checkTrailing consumes the rest of the input; only comments, processing
// instructions and whitespace may follow the root element.
func checkTrailing(dec *xml.Decoder) error {
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			return fmt.Errorf("unexpected element <%s> after root element", t.Name.Local)
		case xml.CharData:
			if len(bytes.TrimSpace(t)) > 0 {
				return fmt.Errorf("unexpected text after root element")
			}
		}
	}
}

// ResolveSourceURL computes {base}/{name}.git, where base is the fetch URL of the project's
// remote when that remote is declared with an absolute URL, and sourceBase otherwise.
func ResolveSourceURL(remotes map[string]models.RemoteDefinition, project models.Project, sourceBase string) string {
	base := sourceBase
	if remote, ok := remotes[project.Remote]; ok && isAbsoluteURL(remote.Fetch) {
		base = remote.Fetch
	}
	return fmt.Sprintf("%s/%s.git", strings.TrimRight(base, "/"), strings.Trim(project.Name, "/"))
}

func isAbsoluteURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return u.IsAbs() && u.Host != ""
}
