package models

const (
	// DefaultRemote is used when a project element has no remote attribute
	DefaultRemote = "origin"
	// DefaultRevision is used when a project element has no revision attribute
	DefaultRevision = "main"
)

// RemoteDefinition represents a remote element of a manifest
type RemoteDefinition struct {
	Name  string `json:"name"`
	Fetch string `json:"fetch"`
}

// Project represents one project element of a manifest with its source URL resolved
type Project struct {
	Path      string `json:"path"`
	Name      string `json:"name"`
	Remote    string `json:"remote"`
	Revision  string `json:"revision"`
	SourceURL string `json:"source_url"`
}

// RepoRequest describes a repository to create on the destination
type RepoRequest struct {
	// Organization is empty when the repository belongs to the authenticated user
	Organization string
	Owner        string
	Name         string
	Description  string
	Private      bool
}

// RepoRef identifies a repository on the destination
type RepoRef struct {
	Owner    string `json:"owner"`
	Name     string `json:"name"`
	CloneURL string `json:"clone_url,omitempty"`
	HTMLURL  string `json:"html_url,omitempty"`
}

// FullName returns owner/name
func (r RepoRef) FullName() string {
	if r.Owner == "" {
		return r.Name
	}
	return r.Owner + "/" + r.Name
}

// CreateStatus is the destination-side outcome of a create call
type CreateStatus int

const (
	CreateFailed CreateStatus = iota
	Created
	AlreadyExists
)

func (s CreateStatus) String() string {
	switch s {
	case Created:
		return "created"
	case AlreadyExists:
		return "already_exists"
	default:
		return "failed"
	}
}

// CreateResult is returned by repository creation. Repo is set for Created and AlreadyExists.
type CreateResult struct {
	Status CreateStatus
	Repo   RepoRef
}

// Usable reports whether a mirror can be pushed to the result
func (r CreateResult) Usable() bool {
	return r.Status == Created || r.Status == AlreadyExists
}
