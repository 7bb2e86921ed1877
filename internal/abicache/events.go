package abicache

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"

	"github.com/goran-ethernal/ComplianceScanner/pkg/abicache"
)

type descriptor struct {
	Type   string `json:"type"`
	Name   string `json:"name"`
	Inputs []struct {
		Name string `json:"name"`
	} `json:"inputs"`
}

// EventColumns lists the events of doc matching targetEvents and the union of their argument names.
// An empty targetEvents selects every event. Both results are sorted and free of duplicates.
// A target event the ABI does not declare is a configuration error.
func EventColumns(doc abicache.ABI, targetEvents []string) (events []string, columns []string, err error) {
	declared := make(map[string]struct{})
	args := make(map[string]struct{})

	wanted := make(map[string]struct{}, len(targetEvents))
	for _, name := range targetEvents {
		wanted[name] = struct{}{}
	}

	for i, raw := range doc {
		var d descriptor
		if err := json.Unmarshal(raw, &d); err != nil {
			return nil, nil, fmt.Errorf("abi entry %d: %w", i, err)
		}
		if d.Type != "event" {
			continue
		}
		if _, ok := wanted[d.Name]; len(wanted) > 0 && !ok {
			continue
		}

		declared[d.Name] = struct{}{}
		for _, input := range d.Inputs {
			if input.Name != "" {
				args[input.Name] = struct{}{}
			}
		}
	}

	for _, name := range targetEvents {
		if _, ok := declared[name]; !ok {
			return nil, nil, fmt.Errorf("event %q is not declared in the ABI", name)
		}
	}

	return slices.Sorted(maps.Keys(declared)), slices.Sorted(maps.Keys(args)), nil
}
