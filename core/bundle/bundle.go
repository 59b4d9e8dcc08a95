// Package bundle derives parent/child bundle groups from a cart's flat line
// items and removes bundles as a unit.
package bundle

import (
	"fmt"
	"sort"

	"github.com/irsalhamdi/storefront-checkout/core/cart"
	"github.com/irsalhamdi/storefront-checkout/core/failure"
)

type Group struct {
	Parent   cart.LineItem   `json:"parent"`
	Children []cart.LineItem `json:"children"`
}

func (g Group) BundleID() string { return g.Parent.Metadata.BundleID }

// Total is the parent line total plus every child line total. No bundle level
// price exists.
func (g Group) Total() int64 {
	t := g.Parent.Total()
	for _, c := range g.Children {
		t += c.Total()
	}
	return t
}

type Grouping struct {
	Regular []cart.LineItem `json:"regular_items"`
	Bundles []Group         `json:"bundle_groups"`
}

var (
	ErrOrphan          = failure.New(failure.Integrity, "orphaned_bundle_item", "bundle item without its bundle")
	ErrDuplicateParent = failure.New(failure.Integrity, "duplicate_bundle_parent", "bundle with more than one parent")
)

// Build groups items keeping their order: bundles appear in the order of their
// parents, children in the order they were added. An item carrying both
// bundle_id and bundled_by is treated as a parent.
func Build(items []cart.LineItem) (Grouping, error) {
	var g Grouping
	index := make(map[string]int)

	for _, it := range items {
		id := it.Metadata.BundleID
		if id == "" {
			continue
		}
		if _, ok := index[id]; ok {
			return Grouping{}, ErrDuplicateParent.WithFields(map[string]string{
				it.ID: fmt.Sprintf("bundle_id %s already has a parent", id),
			})
		}
		index[id] = len(g.Bundles)
		g.Bundles = append(g.Bundles, Group{Parent: it})
	}

	orphans := make(map[string]string)
	for _, it := range items {
		switch {
		case it.Metadata.BundleID != "":
		case it.Metadata.BundledBy != "":
			i, ok := index[it.Metadata.BundledBy]
			if !ok {
				orphans[it.ID] = fmt.Sprintf("bundled_by %s matches no bundle", it.Metadata.BundledBy)
				continue
			}
			g.Bundles[i].Children = append(g.Bundles[i].Children, it)
		default:
			g.Regular = append(g.Regular, it)
		}
	}

	if len(orphans) > 0 {
		return Grouping{}, ErrOrphan.WithFields(orphans)
	}
	return g, nil
}

// Members returns every item belonging to the bundle, parent included.
func Members(items []cart.LineItem, bundleID string) []cart.LineItem {
	var out []cart.LineItem
	for _, it := range items {
		if it.Metadata.BundleID == bundleID || it.Metadata.BundledBy == bundleID {
			out = append(out, it)
		}
	}
	return out
}

func ids(items []cart.LineItem) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, it.ID)
	}
	sort.Strings(out)
	return out
}
