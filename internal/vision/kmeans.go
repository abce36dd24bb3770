package vision

import "sort"

// kmeans3 runs 1-D k-means with k=3, seeded at the 10th/50th/90th
// percentiles of values, iterating until centroid motion drops below
// 0.5 or 20 iterations elapse. Returns the three centroids in ascending
// order.
func kmeans3(values []float64) [3]float64 {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	pct := func(p float64) float64 {
		if len(sorted) == 0 {
			return 0
		}
		idx := int(p * float64(len(sorted)-1))
		return sorted[idx]
	}
	centroids := [3]float64{pct(0.10), pct(0.50), pct(0.90)}

	for iter := 0; iter < 20; iter++ {
		var sums [3]float64
		var counts [3]int
		for _, v := range values {
			best, bestDist := 0, absF(v-centroids[0])
			for k := 1; k < 3; k++ {
				if d := absF(v - centroids[k]); d < bestDist {
					best, bestDist = k, d
				}
			}
			sums[best] += v
			counts[best]++
		}

		var next [3]float64
		maxMotion := 0.0
		for k := 0; k < 3; k++ {
			if counts[k] == 0 {
				next[k] = centroids[k]
				continue
			}
			next[k] = sums[k] / float64(counts[k])
			if m := absF(next[k] - centroids[k]); m > maxMotion {
				maxMotion = m
			}
		}
		centroids = next
		if maxMotion < 0.5 {
			break
		}
	}

	sort.Float64s(centroids[:])
	return centroids
}

func absF(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
