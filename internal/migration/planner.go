package migration

import (
	"sort"
	"strings"

	"github.com/jlucaspains/manifest2gh/internal/models"
)

// PlanEntry pairs a manifest project with the destination repository name it will be mirrored to
type PlanEntry struct {
	Project         models.Project
	DestinationName string
}

// LastPathSegment returns the final component of a slash-separated project name
func LastPathSegment(name string) string {
	name = strings.TrimRight(name, "/")
	if idx := strings.LastIndex(name, "/"); idx >= 0 {
		return name[idx+1:]
	}
	return name
}

// DeriveName computes {prefix}{custom name or last path segment of the project name}
func DeriveName(prefix string, names map[string]string, project models.Project) string {
	base, ok := names[project.Name]
	if !ok || base == "" {
		base = LastPathSegment(project.Name)
	}
	return prefix + base
}

// Plan maps every project, in order, to its destination repository name
func Plan(projects []models.Project, prefix string, names map[string]string) []PlanEntry {
	plan := make([]PlanEntry, 0, len(projects))
	for _, p := range projects {
		plan = append(plan, PlanEntry{
			Project:         p,
			DestinationName: DeriveName(prefix, names, p),
		})
	}
	return plan
}

// Collisions returns destination names shared by more than one project, mapped to those projects.
// Such projects would be pushed on top of each other.
func Collisions(plan []PlanEntry) map[string][]string {
	byName := map[string][]string{}
	for _, entry := range plan {
		byName[entry.DestinationName] = append(byName[entry.DestinationName], entry.Project.Name)
	}

	collisions := map[string][]string{}
	for name, projects := range byName {
		if len(projects) > 1 {
			sort.Strings(projects)
			collisions[name] = projects
		}
	}
	return collisions
}
