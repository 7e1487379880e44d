package analysis

import "math"

// defaultBins is the discretization width for mutual information.
const defaultBins = 10

// MutualInformation estimates normalized mutual information between two
// equal-length numeric series. Continuous values are discretized into bins
// and the result is normalized to [0, 1] by min(H(X), H(Y)), so it detects
// non-linear dependencies that Pearson misses.
func MutualInformation(x, y []float64) float64 {
	if len(x) == 0 || len(x) != len(y) {
		return 0
	}

	bins1 := discretize(x, defaultBins)
	bins2 := discretize(y, defaultBins)

	jointProb := make(map[[2]int]float64)
	prob1 := make(map[int]float64)
	prob2 := make(map[int]float64)

	n := float64(len(bins1))
	for i := 0; i < len(bins1); i++ {
		jointProb[[2]int{bins1[i], bins2[i]}]++
		prob1[bins1[i]]++
		prob2[bins2[i]]++
	}
	for key := range jointProb {
		jointProb[key] /= n
	}
	for key := range prob1 {
		prob1[key] /= n
	}
	for key := range prob2 {
		prob2[key] /= n
	}

	mi := 0.0
	for key, pxy := range jointProb {
		px := prob1[key[0]]
		py := prob2[key[1]]
		if pxy > 0 && px > 0 && py > 0 {
			mi += pxy * math.Log2(pxy/(px*py))
		}
	}

	// Max MI is min(H(X), H(Y)).
	maxMI := math.Min(binEntropy(prob1), binEntropy(prob2))
	if maxMI == 0 {
		return 0
	}
	return math.Min(1, mi/maxMI)
}

func discretize(values []float64, numBins int) []int {
	if len(values) == 0 {
		return nil
	}

	minVal, maxVal := values[0], values[0]
	for _, v := range values {
		if v < minVal {
			minVal = v
		}
		if v > maxVal {
			maxVal = v
		}
	}

	binWidth := (maxVal - minVal) / float64(numBins)
	if binWidth == 0 {
		binWidth = 1
	}

	bins := make([]int, len(values))
	for i, v := range values {
		bin := int((v - minVal) / binWidth)
		if bin >= numBins {
			bin = numBins - 1
		}
		bins[i] = bin
	}
	return bins
}

func binEntropy(prob map[int]float64) float64 {
	h := 0.0
	for _, p := range prob {
		if p > 0 {
			h -= p * math.Log2(p)
		}
	}
	return h
}
