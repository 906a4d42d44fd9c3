// Package model implements the OneRule classifier and its evaluation.
package model

import "creditrule/pkg/etl"

// Model bundles everything needed to score and decode a cleaned dataset.
type Model struct {
	Pipeline     *etl.FittedPipeline
	Rule         *Rule
	ScoreColumn  string
	TargetColumn string
}

// FeatureImportance summarises the fitted rule.
type FeatureImportance struct {
	BestFeature  string
	Rules        map[string]RuleEntry
	DefaultClass int
}

func (r *Rule) Importance() FeatureImportance {
	return FeatureImportance{
		BestFeature:  r.BestFeature,
		Rules:        r.Rules,
		DefaultClass: r.DefaultClass,
	}
}
