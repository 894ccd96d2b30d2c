package output

import (
	"github.com/disiqueira/gotree/v3"
)

// VisualTree renders nested labels. Branches are addressed by caller-chosen keys.
type VisualTree struct {
	tree     gotree.Tree
	branches map[string]gotree.Tree
}

func NewVisualTree(rootLabel string) VisualTree {
	return VisualTree{tree: gotree.New(rootLabel), branches: make(map[string]gotree.Tree)}
}

func (t VisualTree) getBranch(key string) gotree.Tree {
	if key == "" {
		return t.tree
	}
	branch := t.branches[key]
	if branch == nil {
		panic("unknown tree branch: " + key)
	}
	return branch
}

// AddBranch inserts a labeled node below the parent (root if parentKey is empty) that can be referenced by key later.
func (t VisualTree) AddBranch(parentKey string, key string, label string) {
	t.branches[key] = t.getBranch(parentKey).Add(label)
}

func (t VisualTree) HasBranch(key string) bool {
	_, exists := t.branches[key]
	return exists
}

// AddLeaf inserts a labeled node below the parent.
func (t VisualTree) AddLeaf(parentKey string, label string) {
	t.getBranch(parentKey).Add(label)
}

func (t VisualTree) Render() string {
	return t.tree.Print()
}
