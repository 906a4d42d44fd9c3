package model

import (
	"errors"
	"fmt"
	"sort"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"creditrule/pkg/table"
)

var (
	// ErrSingleClass is returned when the training labels hold fewer than two classes,
	// so no feature can be informative.
	ErrSingleClass    = errors.New("training labels contain a single class")
	ErrNoFeatures     = errors.New("no feature columns to learn from")
	ErrLengthMismatch = errors.New("feature rows and labels differ in length")
)

// OneRule learns a single-feature decision rule: every value of the chosen feature
// predicts the majority class seen with it during training.
type OneRule struct {
	// Verbose logs the rule and error of every candidate feature at info level
	// instead of debug.
	Verbose bool
}

// RuleEntry is the prediction for one feature value.
type RuleEntry struct {
	Class int
	// Confidence is the fraction of training rows with this value that have Class.
	Confidence float64
	Support    int
}

// Rule is a fitted OneRule model. It is never modified after Fit.
type Rule struct {
	BestFeature  string
	Rules        map[string]RuleEntry
	DefaultClass int
	// Errors is the number of training rows the rule misclassifies.
	Errors    int
	ErrorRate float64
	// ClassDistribution is the share of each label in the training set.
	ClassDistribution map[int]float64
}

// Fit picks the column of features whose value to majority class mapping makes the
// fewest errors on labels. Ties go to the earliest column. Rows where a feature is
// missing count as predicted with the default class, as they are at prediction time.
func (o OneRule) Fit(features table.Table, labels []int) (*Rule, error) {
	if features.Rows() != len(labels) {
		return nil, fmt.Errorf("%w: %d rows, %d labels", ErrLengthMismatch, features.Rows(), len(labels))
	}
	counts := countLabels(labels)
	if len(counts) < 2 {
		return nil, ErrSingleClass
	}
	if len(features.Columns()) == 0 {
		return nil, ErrNoFeatures
	}

	defaultClass, _ := majority(counts)
	distribution := make(map[int]float64, len(counts))
	for label, n := range counts {
		distribution[label] = float64(n) / float64(len(labels))
	}

	var best *Rule
	for _, feature := range features.Columns() {
		values, err := features.Column(feature)
		if err != nil {
			return nil, err
		}
		rules, errCount := ruleFor(values, labels)

		event := log.Debug()
		if o.Verbose {
			event = log.Info()
		}
		event.Str("Feature", feature).
			Int("Errors", errCount).
			Float64("ErrorRate", float64(errCount)/float64(len(labels))).
			Dict("Rule", ruleDict(rules)).
			Msg("candidate")

		if best == nil || errCount < best.Errors {
			best = &Rule{
				BestFeature: feature,
				Rules:       rules,
				Errors:      errCount,
			}
		}
	}

	best.DefaultClass = defaultClass
	best.ErrorRate = float64(best.Errors) / float64(len(labels))
	best.ClassDistribution = distribution

	log.Debug().Str("BestFeature", best.BestFeature).
		Int("Errors", best.Errors).
		Int("DefaultClass", best.DefaultClass).
		Msg("rule selected")
	return best, nil
}

// ruleFor maps every distinct value to its majority label. Missing cells are not
// grouped and do not count as errors; they fall back to the default class at prediction.
func ruleFor(values []table.Cell, labels []int) (map[string]RuleEntry, int) {
	groups := map[string]map[int]int{}
	errCount := 0
	for i, c := range values {
		if c.IsMissing() {
			continue
		}
		key := c.String()
		if groups[key] == nil {
			groups[key] = map[int]int{}
		}
		groups[key][labels[i]]++
	}

	rules := make(map[string]RuleEntry, len(groups))
	for value, counts := range groups {
		class, n := majority(counts)
		total := 0
		for _, c := range counts {
			total += c
		}
		rules[value] = RuleEntry{
			Class:      class,
			Confidence: float64(n) / float64(total),
			Support:    total,
		}
		errCount += total - n
	}
	return rules, errCount
}

func ruleDict(rules map[string]RuleEntry) *zerolog.Event {
	dict := zerolog.Dict()
	for value, entry := range rules {
		dict = dict.Int(value, entry.Class)
	}
	return dict
}

func countLabels(labels []int) map[int]int {
	counts := map[int]int{}
	for _, l := range labels {
		counts[l]++
	}
	return counts
}

// majority returns the most frequent label and its count. Ties go to the smallest label.
func majority(counts map[int]int) (int, int) {
	labels := make([]int, 0, len(counts))
	for l := range counts {
		labels = append(labels, l)
	}
	sort.Ints(labels)

	best, bestCount := 0, -1
	for _, l := range labels {
		if counts[l] > bestCount {
			best, bestCount = l, counts[l]
		}
	}
	return best, bestCount
}

// PredictValue returns the class for a single value of the best feature.
func (r *Rule) PredictValue(c table.Cell) int {
	if c.IsMissing() {
		return r.DefaultClass
	}
	if entry, ok := r.Rules[c.String()]; ok {
		return entry.Class
	}
	return r.DefaultClass
}

// Predict returns a class for every row of t. Only the best feature is read.
func (r *Rule) Predict(t table.Table) ([]int, error) {
	values, err := t.Column(r.BestFeature)
	if err != nil {
		return nil, fmt.Errorf("error reading best feature: %w", err)
	}
	predictions := make([]int, len(values))
	for i, c := range values {
		predictions[i] = r.PredictValue(c)
	}
	return predictions, nil
}

// Evaluate compares the predictions for t with labels.
func (r *Rule) Evaluate(t table.Table, labels []int) (Report, error) {
	predictions, err := r.Predict(t)
	if err != nil {
		return Report{}, err
	}
	if len(predictions) != len(labels) {
		return Report{}, fmt.Errorf("%w: %d rows, %d labels", ErrLengthMismatch, len(predictions), len(labels))
	}
	return NewReport(labels, predictions), nil
}
