package vector

// NormalizeCosine maps a raw cosine similarity from [-1,1] to [0,1].
// Every score leaving this package goes through this mapping; the
// retrieval relevance floor is calibrated against it, so it must stay
// consistent across embedding backends.
func NormalizeCosine(cos float64) float64 {
	s := (cos + 1) / 2
	if s < 0 {
		return 0
	}
	if s > 1 {
		return 1
	}
	return s
}
