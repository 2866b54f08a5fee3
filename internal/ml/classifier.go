package ml

import "github.com/u7k4rs6/threat-intelligence-engine/pkg/models"

// treeRule is one "tree" of the classifier ensemble: a conjunctive
// threshold rule contributing a fixed malicious-probability estimate when
// every condition holds.
type treeRule struct {
	name  string
	prob  float64
	conds []cond
}

// cond requires the normalized feature at idx to exceed min.
type cond struct {
	idx int
	min float64
}

const maliciousThreshold = 0.5

func defaultTrees() []treeRule {
	return []treeRule{
		{
			name: "volume_burst",
			prob: 0.9,
			conds: []cond{
				{idx: models.IdxEventFrequency, min: 0.7},
				{idx: models.IdxEventRatePerMinute, min: 0.5},
			},
		},
		{
			name: "denylisted_entity",
			prob: 0.95,
			conds: []cond{
				{idx: models.IdxBlacklistScore, min: 0.8},
			},
		},
		{
			name: "port_sweep",
			prob: 0.85,
			conds: []cond{
				{idx: models.IdxPortScanEntropy, min: 0.6},
				{idx: models.IdxUniquePorts, min: 0.4},
			},
		},
		{
			name: "dns_abuse",
			prob: 0.8,
			conds: []cond{
				{idx: models.IdxDNSEntropy, min: 0.85},
				{idx: models.IdxEventFrequency, min: 0.3},
			},
		},
		{
			name: "geo_outlier",
			prob: 0.7,
			conds: []cond{
				{idx: models.IdxGeoRiskScore, min: 0.7},
			},
		},
		{
			name: "mixed_vectors",
			prob: 0.75,
			conds: []cond{
				{idx: models.IdxEventTypeDiversity, min: 0.6},
				{idx: models.IdxEventFrequency, min: 0.4},
			},
		},
		{
			name: "bulk_transfer",
			prob: 0.8,
			conds: []cond{
				{idx: models.IdxAvgPayloadSize, min: 0.6},
			},
		},
		{
			name: "count_anomaly",
			prob: 0.85,
			conds: []cond{
				{idx: models.IdxEventCountZScore, min: 0.8},
				{idx: models.IdxEventFrequency, min: 0.2},
			},
		},
		{
			name: "rapid_fire",
			prob: 0.75,
			conds: []cond{
				{idx: models.IdxTimeBetweenEvents, min: 0.4},
				{idx: models.IdxEventFrequency, min: 0.15},
			},
		},
	}
}

// classify returns the mean probability across triggered trees, 0 when
// none trigger.
func classify(trees []treeRule, v []float64) (float64, []string) {
	sum := 0.0
	var fired []string
	for _, tree := range trees {
		triggered := true
		for _, c := range tree.conds {
			if v[c.idx] <= c.min {
				triggered = false
				break
			}
		}
		if triggered {
			sum += tree.prob
			fired = append(fired, tree.name)
		}
	}
	if len(fired) == 0 {
		return 0, nil
	}
	return sum / float64(len(fired)), fired
}
