package model

import "strings"

// DefaultIDPrefix marks seeded projects so they can be told apart
// from user-created ones and re-seeded without duplication.
const DefaultIDPrefix = "default-"

// SeedProjects returns the default project set.
func SeedProjects() []Project {
	return []Project{
		{ID: "default-general", Name: "General", Client: "Internal", Color: "#64748b"},
		{ID: "default-admin", Name: "Administration", Client: "Internal", Color: "#f59e0b"},
		{ID: "default-consulting", Name: "Consulting", Client: "Various", HourlyRate: ptrFloat(100), Color: "#3b82f6"},
	}
}

// SeedCategories returns the default category set.
func SeedCategories() []Category {
	return []Category{
		{ID: "default-development", Name: "Development", Color: "#22c55e"},
		{ID: "default-meeting", Name: "Meeting", Color: "#a855f7"},
		{ID: "default-support", Name: "Support", Color: "#ef4444", Description: "Maintenance and incident work"},
	}
}

// IsDefaultProject reports whether the project came from the seed set.
func IsDefaultProject(p Project) bool {
	return strings.HasPrefix(p.ID, DefaultIDPrefix)
}

// MergeDefaultProjects adds any missing seeded projects to the list
// without duplicating ones already present. User projects are left
// untouched.
func MergeDefaultProjects(existing []Project) []Project {
	seen := make(map[string]bool, len(existing))
	for _, p := range existing {
		seen[p.ID] = true
	}
	out := append([]Project{}, existing...)
	for _, p := range SeedProjects() {
		if !seen[p.ID] {
			out = append(out, p)
		}
	}
	return out
}

// MergeDefaultCategories is the category counterpart of
// MergeDefaultProjects.
func MergeDefaultCategories(existing []Category) []Category {
	seen := make(map[string]bool, len(existing))
	for _, c := range existing {
		seen[c.ID] = true
	}
	out := append([]Category{}, existing...)
	for _, c := range SeedCategories() {
		if !seen[c.ID] {
			out = append(out, c)
		}
	}
	return out
}

func ptrFloat(f float64) *float64 { return &f }
