package graph

// DefaultSearchBudget is the approximate pre-compression byte budget for one
// parent-map round trip. The per-entry cost estimate tracks the serialized
// line length, which correlates well enough with compressed size. Tuned
// empirically; override per deployment via configuration rather than here.
var DefaultSearchBudget = 250000

// MissingPrefix marks a queried-but-absent key in an expansion result when
// the caller asked for missing keys to be reported.
const MissingPrefix = "missing:"

// Expand performs bounded frontier expansion from the queried keys: it
// collects (key, parents) entries the client has not seen, widening one full
// frontier at a time. A frontier is never split, so after the first layer the
// budget check happens only between layers; the layer that crosses the budget
// is still returned whole. When includeMissing is set, queried keys absent
// from the graph appear in the result under MissingPrefix with no parents.
func Expand(provider ParentsProvider, queried []string, clientSeen map[string]bool, includeMissing bool, budget int) (map[string][]string, error) {
	queriedSet := make(map[string]bool, len(queried))
	for _, k := range queried {
		queriedSet[k] = true
	}

	result := make(map[string][]string)
	next := make(map[string]bool, len(queried))
	for _, k := range queried {
		next[k] = true
	}

	cost := 0
	firstLayerDone := false

	for len(next) > 0 {
		if firstLayerDone && cost > budget {
			break
		}

		query := make([]string, 0, len(next))
		for k := range next {
			query = append(query, k)
		}
		parentMap, err := provider.GetParentMap(query)
		if err != nil {
			return nil, err
		}

		current := next
		next = make(map[string]bool)
		for k := range current {
			parents, present := parentMap[k]
			if !present {
				if includeMissing && queriedSet[k] {
					result[MissingPrefix+k] = nil
				}
				continue
			}
			if !clientSeen[k] {
				if _, dup := result[k]; !dup {
					result[k] = parents
					cost += entryCost(k, parents)
				}
			}
			for _, p := range parents {
				if clientSeen[p] {
					continue
				}
				if _, done := result[p]; done {
					continue
				}
				next[p] = true
			}
		}
		firstLayerDone = true
	}

	return result, nil
}

func entryCost(key string, parents []string) int {
	cost := 2 + len(key)
	for _, p := range parents {
		cost += len(p)
	}
	return cost
}
