package survey

import (
	"gofactor/domain/core"
)

// Partition splits a table into one ItemMatrix per group spec, columns
// restricted to the ordered item set, auxiliary columns dropped.
//
// Every spec is evaluated against the full input row set - there is no
// cascading filter between groups, so specs that are mutually exclusive and
// jointly exhaustive produce groups whose row counts sum exactly to the
// input's row count with zero overlap.
//
// An empty group is returned as-is; the caller reports it and skips the
// group's downstream analyses rather than aborting siblings.
func Partition(t *Table, items []core.ItemKey, specs []GroupSpec) ([]FormatGroup, error) {
	if len(specs) == 0 {
		return nil, core.NewConfigurationError("groups", "must not be empty")
	}

	groups := make([]FormatGroup, 0, len(specs))
	for _, spec := range specs {
		subset, err := t.Filter(spec.All)
		if err != nil {
			return nil, err
		}
		matrix, err := subset.SelectItems(items)
		if err != nil {
			return nil, err
		}
		groups = append(groups, FormatGroup{Key: spec.Key, Label: spec.Label, Matrix: matrix})
	}
	return groups, nil
}
