package schema

// SortByImports orders models so that every model comes after the models
// declaring the namespaces it imports. Models are otherwise kept in input
// order; models caught in an import cycle are appended in input order.
func SortByImports(models []*Model) []*Model {
	declaredBy := make(map[string]int)
	for i, m := range models {
		for _, ns := range m.Namespaces {
			if _, taken := declaredBy[ns.URI]; !taken {
				declaredBy[ns.URI] = i
			}
		}
	}

	deps := make([]map[int]bool, len(models))
	for i, m := range models {
		deps[i] = make(map[int]bool)
		for _, imp := range m.Imports {
			if j, ok := declaredBy[imp.URI]; ok && j != i {
				deps[i][j] = true
			}
		}
	}

	out := make([]*Model, 0, len(models))
	placed := make([]bool, len(models))
	for progress := true; progress; {
		progress = false
		for i := range models {
			if placed[i] || !ready(deps[i], placed) {
				continue
			}
			placed[i] = true
			out = append(out, models[i])
			progress = true
		}
	}
	for i := range models {
		if !placed[i] {
			out = append(out, models[i])
		}
	}
	return out
}

func ready(deps map[int]bool, placed []bool) bool {
	for j := range deps {
		if !placed[j] {
			return false
		}
	}
	return true
}
