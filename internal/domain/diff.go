package domain

// ChangeKind says what happened to a path in the working tree
type ChangeKind string

const (
	ChangeCreated  ChangeKind = "created"
	ChangeModified ChangeKind = "modified"
	ChangeDeleted  ChangeKind = "deleted"
)

// Change is one touched path in a diff
type Change struct {
	Path string     `json:"path"`
	Kind ChangeKind `json:"kind"`
}

// Diff is the authoritative set of changes the agent left in the tree,
// computed from the tree itself rather than from the agent's report.
type Diff []Change

// Empty returns true if the agent produced no changes at all
func (d Diff) Empty() bool {
	return len(d) == 0
}

// Created returns the paths of newly created files
func (d Diff) Created() []string {
	var paths []string
	for _, c := range d {
		if c.Kind == ChangeCreated {
			paths = append(paths, c.Path)
		}
	}
	return paths
}

// Touched returns the paths of files that existed before the agent ran,
// whether edited or deleted
func (d Diff) Touched() []string {
	var paths []string
	for _, c := range d {
		if c.Kind != ChangeCreated {
			paths = append(paths, c.Path)
		}
	}
	return paths
}

// Paths returns every path in the diff
func (d Diff) Paths() []string {
	paths := make([]string, len(d))
	for i, c := range d {
		paths[i] = c.Path
	}
	return paths
}
