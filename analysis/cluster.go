package analysis

import (
	"math"
	"time"

	"eve.evalgo.org/workflow/kanban"
	"eve.evalgo.org/workflow/prerequisite"
	"eve.evalgo.org/workflow/repository"
)

// FeatureVector is a compact, numeric summary of one process used for
// clustering. Deliberately small — there is no trainable model here, only
// feature extraction and a k-means-style grouping used for reporting.
// Grounded on _examples/original_source/src/workflow/{ml_feature_engineering.py,workflow_ml_model.py}.
type FeatureVector struct {
	ProcessID                  string
	Completeness                float64
	DurationHours                float64
	PrerequisiteSatisfactionRatio float64
	TransitionCount               float64
}

func (f FeatureVector) values() []float64 {
	return []float64{f.Completeness, f.DurationHours, f.PrerequisiteSatisfactionRatio, f.TransitionCount}
}

// ExtractFeatures builds a FeatureVector for p: field completeness, elapsed
// hours since creation, the fraction of its current state's prerequisites
// satisfied, and its historical transition count.
func ExtractFeatures(p repository.Process, k kanban.Kanban, checker *prerequisite.Checker, transitionCount int) FeatureVector {
	completeness := fieldCompleteness(p, k)
	durationHours := time.Since(p.CreatedAt).Hours()

	satisfactionRatio := 1.0
	if state, ok := k.StateByID(p.CurrentState); ok && len(state.Prerequisites) > 0 {
		ctx := prerequisite.Context{Process: p, Kanban: k}
		results := checker.CheckAll(state.Prerequisites, ctx)
		satisfied := 0
		for _, r := range results {
			if r.Satisfied {
				satisfied++
			}
		}
		satisfactionRatio = float64(satisfied) / float64(len(results))
	}

	return FeatureVector{
		ProcessID:                     p.ProcessID,
		Completeness:                  completeness,
		DurationHours:                 durationHours,
		PrerequisiteSatisfactionRatio: satisfactionRatio,
		TransitionCount:               float64(transitionCount),
	}
}

func fieldCompleteness(p repository.Process, k kanban.Kanban) float64 {
	if len(k.FieldMapping) == 0 {
		if len(p.FieldValues) == 0 {
			return 0
		}
		filled := 0
		for _, v := range p.FieldValues {
			if v != nil && v != "" {
				filled++
			}
		}
		return float64(filled) / float64(len(p.FieldValues))
	}
	filled := 0
	for _, processField := range k.FieldMapping {
		if v, ok := p.FieldValues[processField]; ok && v != nil && v != "" {
			filled++
		}
	}
	return float64(filled) / float64(len(k.FieldMapping))
}

// Cluster is one k-means group of processes.
type Cluster struct {
	ID         int
	ProcessIDs []string
	Centroid   []float64
}

// KMeans groups feature vectors into k clusters using Euclidean distance and
// at most 20 Lloyd's-algorithm iterations, stopping earlier once no
// assignment changes. Initial centroids are evenly spaced input vectors, so
// the routine has no nondeterministic seeding.
func KMeans(vectors []FeatureVector, k int) []Cluster {
	if k <= 0 || len(vectors) == 0 {
		return nil
	}
	if k > len(vectors) {
		k = len(vectors)
	}

	points := make([][]float64, len(vectors))
	for i, v := range vectors {
		points[i] = v.values()
	}

	centroids := make([][]float64, k)
	for i := range centroids {
		centroids[i] = append([]float64(nil), points[i*len(points)/k]...)
	}

	assignments := make([]int, len(points))
	const iterations = 20
	for iter := 0; iter < iterations; iter++ {
		changed := false
		for i, p := range points {
			best, bestDist := 0, math.Inf(1)
			for c, centroid := range centroids {
				d := euclidean(p, centroid)
				if d < bestDist {
					best, bestDist = c, d
				}
			}
			if assignments[i] != best {
				assignments[i] = best
				changed = true
			}
		}

		sums := make([][]float64, k)
		counts := make([]int, k)
		for i := range sums {
			sums[i] = make([]float64, len(points[0]))
		}
		for i, p := range points {
			c := assignments[i]
			counts[c]++
			for d, val := range p {
				sums[c][d] += val
			}
		}
		for c := range centroids {
			if counts[c] == 0 {
				continue
			}
			for d := range centroids[c] {
				centroids[c][d] = sums[c][d] / float64(counts[c])
			}
		}
		if !changed && iter > 0 {
			break
		}
	}

	clusters := make([]Cluster, k)
	for c := range clusters {
		clusters[c] = Cluster{ID: c, Centroid: centroids[c]}
	}
	for i, v := range vectors {
		c := assignments[i]
		clusters[c].ProcessIDs = append(clusters[c].ProcessIDs, v.ProcessID)
	}
	return clusters
}

func euclidean(a, b []float64) float64 {
	sum := 0.0
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}
