package replay

import "sort"

// AUC is the area under the ROC curve of scores against labels (true is the
// positive class), computed from the Mann-Whitney rank sum with tied scores
// sharing their average rank. ok is false unless both classes are present.
func AUC(scores []float64, labels []bool) (float64, bool) {
	n := len(scores)
	if n == 0 || n != len(labels) {
		return 0, false
	}

	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(a, b int) bool { return scores[idx[a]] < scores[idx[b]] })

	var positives, negatives, rankSum float64
	for i := 0; i < n; {
		j := i
		for j+1 < n && scores[idx[j+1]] == scores[idx[i]] {
			j++
		}
		// ranks are 1-based
		rank := float64(i+j)/2 + 1
		for k := i; k <= j; k++ {
			if labels[idx[k]] {
				positives++
				rankSum += rank
			} else {
				negatives++
			}
		}
		i = j + 1
	}

	if positives == 0 || negatives == 0 {
		return 0, false
	}
	return (rankSum - positives*(positives+1)/2) / (positives * negatives), true
}
