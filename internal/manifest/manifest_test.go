package manifest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jlucaspains/manifest2gh/internal/models"
)

const sourceBase = "https://gitlab.com"

func writeManifest(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "manifest.xml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestParse(t *testing.T) {
	t.Run("preserves document order and count", func(t *testing.T) {
		path := writeManifest(t, `<?xml version="1.0" encoding="UTF-8"?>
<manifest>
  <remote name="origin" fetch="https://gitlab.com/" />
  <project path="c" name="group/charlie" />
  <project path="a" name="group/alpha" />
  <default revision="main" />
  <project path="b" name="group/bravo" />
</manifest>`)

		projects, err := Parse(path, sourceBase)
		require.NoError(t, err)
		require.Len(t, projects, 3)
		assert.Equal(t, "group/charlie", projects[0].Name)
		assert.Equal(t, "group/alpha", projects[1].Name)
		assert.Equal(t, "group/bravo", projects[2].Name)
	})

	t.Run("applies default remote and revision", func(t *testing.T) {
		path := writeManifest(t, `<manifest><project path="x" name="x" /></manifest>`)

		projects, err := Parse(path, sourceBase)
		require.NoError(t, err)
		require.Len(t, projects, 1)
		assert.Equal(t, models.DefaultRemote, projects[0].Remote)
		assert.Equal(t, models.DefaultRevision, projects[0].Revision)
		assert.Equal(t, "x", projects[0].Path)
	})

	t.Run("resolves source urls", func(t *testing.T) {
		path := writeManifest(t, `<manifest>
  <remote name="origin" fetch="https://gitlab.com/" />
  <remote name="mirror" fetch="https://git.example.com/base" />
  <remote name="relative" fetch=".." />
  <project path="libfoo" name="teamA/libfoo" remote="origin" revision="main" />
  <project path="libbar" name="teamA/libbar" remote="upstream" revision="develop" />
  <project path="libbaz" name="teamB/libbaz" remote="mirror" />
  <project path="libqux" name="teamB/libqux" remote="relative" />
</manifest>`)

		projects, err := Parse(path, "https://gitlab.example.org/")
		require.NoError(t, err)
		require.Len(t, projects, 4)

		assert.Equal(t, "https://gitlab.com/teamA/libfoo.git", projects[0].SourceURL)
		// upstream is not declared
		assert.Equal(t, "https://gitlab.example.org/teamA/libbar.git", projects[1].SourceURL)
		assert.Equal(t, "develop", projects[1].Revision)
		assert.Equal(t, "https://git.example.com/base/teamB/libbaz.git", projects[2].SourceURL)
		// relative fetch falls back like an undeclared remote
		assert.Equal(t, "https://gitlab.example.org/teamB/libqux.git", projects[3].SourceURL)
	})

	t.Run("last duplicate remote wins", func(t *testing.T) {
		path := writeManifest(t, `<manifest>
  <remote name="origin" fetch="https://first.example.com" />
  <remote name="origin" fetch="https://second.example.com" />
  <project name="a/b" />
</manifest>`)

		projects, err := Parse(path, sourceBase)
		require.NoError(t, err)
		assert.Equal(t, "https://second.example.com/a/b.git", projects[0].SourceURL)
	})

	t.Run("empty manifest has no projects", func(t *testing.T) {
		path := writeManifest(t, `<manifest></manifest>`)

		projects, err := Parse(path, sourceBase)
		require.NoError(t, err)
		assert.Empty(t, projects)
	})
}

func TestParse_TrailingComment(t *testing.T) {
	path := writeManifest(t, "<manifest><project name=\"a/b\"/></manifest>\n<!-- generated -->\n")

	projects, err := Parse(path, sourceBase)

	require.NoError(t, err)
	require.Len(t, projects, 1)
	assert.Equal(t, "a/b", projects[0].Name)
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content *string
	}{
		{name: "missing file"},
		{name: "malformed xml", content: strPtr(`<manifest><project name="a"></manifest>`)},
		{name: "not xml", content: strPtr(`just some text`)},
		{name: "empty file", content: strPtr(``)},
		{name: "project without name", content: strPtr(`<manifest><project path="a" /></manifest>`)},
		{name: "unclosed element after root", content: strPtr(`<manifest><project name="a/b"/></manifest><project name="c/d"`)},
		{name: "second root element", content: strPtr(`<manifest><project name="a/b"/></manifest><manifest/>`)},
		{name: "text after root", content: strPtr(`<manifest><project name="a/b"/></manifest>trailing`)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "missing.xml")
			if tt.content != nil {
				path = writeManifest(t, *tt.content)
			}

			projects, err := Parse(path, sourceBase)
			require.Error(t, err)
			assert.Empty(t, projects)

			var manifestErr *Error
			require.ErrorAs(t, err, &manifestErr)
			assert.Equal(t, path, manifestErr.Path)
		})
	}
}

func TestResolveSourceURL(t *testing.T) {
	remotes := map[string]models.RemoteDefinition{
		"origin": {Name: "origin", Fetch: "https://gitlab.com/"},
		"ssh":    {Name: "ssh", Fetch: "git@gitlab.com:"},
		"empty":  {Name: "empty", Fetch: ""},
	}

	tests := []struct {
		name    string
		project models.Project
		want    string
	}{
		{"known absolute remote", models.Project{Name: "a/b", Remote: "origin"}, "https://gitlab.com/a/b.git"},
		{"unknown remote", models.Project{Name: "a/b", Remote: "nope"}, "https://src.example.com/a/b.git"},
		{"scp style remote is not absolute", models.Project{Name: "a/b", Remote: "ssh"}, "https://src.example.com/a/b.git"},
		{"empty fetch", models.Project{Name: "a/b", Remote: "empty"}, "https://src.example.com/a/b.git"},
		{"nested namespace", models.Project{Name: "g/s/repo", Remote: "origin"}, "https://gitlab.com/g/s/repo.git"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ResolveSourceURL(remotes, tt.project, "https://src.example.com/"))
		})
	}
}

func strPtr(s string) *string {
	return &s
}
