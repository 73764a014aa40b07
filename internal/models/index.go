package models

// Index holds the derived lookup sets used to navigate a transcript.
type Index struct {
	Headings []string `json:"headings"`
	Names    []string `json:"names"`
}

// Project computes the distinct non-empty headings and speaker names across
// blocks, in first-seen order. It is always recomputed from the full block
// sequence.
func Project(blocks []Block) Index {
	idx := Index{Headings: []string{}, Names: []string{}}
	seenHeading := make(map[string]struct{}, len(blocks))
	seenName := make(map[string]struct{})

	for _, b := range blocks {
		if b.Heading != "" {
			if _, ok := seenHeading[b.Heading]; !ok {
				seenHeading[b.Heading] = struct{}{}
				idx.Headings = append(idx.Headings, b.Heading)
			}
		}
		for _, u := range b.Body {
			if u.Name == "" {
				continue
			}
			if _, ok := seenName[u.Name]; !ok {
				seenName[u.Name] = struct{}{}
				idx.Names = append(idx.Names, u.Name)
			}
		}
	}
	return idx
}
