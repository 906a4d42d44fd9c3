package model

import (
	"math"
	"sort"
	"strconv"

	"github.com/nlpodyssey/spago/pkg/ml/stats"
	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/stat"
)

type ClassReport struct {
	Class     int
	Precision float64
	Recall    float64
	F1        float64
	Support   int
}

type Average struct {
	Precision float64
	Recall    float64
	F1        float64
}

// Report holds accuracy and per-class precision, recall and F1 for a set of predictions.
// Undefined ratios (no predicted or no true rows for a class) are reported as 0.
type Report struct {
	Accuracy float64
	Classes  []ClassReport
	Macro    Average
	Weighted Average
	Total    int
}

// NewReport builds a report from true labels and predictions of equal length.
func NewReport(labels, predictions []int) Report {
	metrics := map[int]*stats.ClassMetrics{}
	counter := func(class int) *stats.ClassMetrics {
		m, ok := metrics[class]
		if !ok {
			m = stats.NewMetricCounter()
			metrics[class] = m
		}
		return m
	}

	hits := make([]float64, len(labels))
	for i := range labels {
		label, predicted := counter(labels[i]), counter(predictions[i])
		if labels[i] == predictions[i] {
			label.IncTruePos()
			hits[i] = 1
		} else {
			label.IncFalseNeg()
			predicted.IncFalsePos()
		}
	}

	report := Report{Total: len(labels)}
	if len(labels) > 0 {
		report.Accuracy = stat.Mean(hits, nil)
	}

	for _, class := range sortClasses(metrics) {
		m := metrics[class]
		c := ClassReport{
			Class:     class,
			Precision: defined(m.Precision()),
			Recall:    defined(m.Recall()),
			F1:        defined(m.F1Score()),
			Support:   m.TruePos + m.FalseNeg,
		}
		report.Classes = append(report.Classes, c)

		report.Macro.Precision += c.Precision
		report.Macro.Recall += c.Recall
		report.Macro.F1 += c.F1
		if report.Total > 0 {
			w := float64(c.Support) / float64(report.Total)
			report.Weighted.Precision += w * c.Precision
			report.Weighted.Recall += w * c.Recall
			report.Weighted.F1 += w * c.F1
		}
	}
	if n := float64(len(report.Classes)); n > 0 {
		report.Macro.Precision /= n
		report.Macro.Recall /= n
		report.Macro.F1 /= n
	}
	return report
}

// Class returns the report line of a class.
func (r Report) Class(class int) (ClassReport, bool) {
	for _, c := range r.Classes {
		if c.Class == class {
			return c, true
		}
	}
	return ClassReport{}, false
}

// Log writes the report at info level, one line per class.
func (r Report) Log(partition string) {
	log.Info().Str("Partition", partition).Float64("Accuracy", r.Accuracy).Int("Rows", r.Total).Msg("evaluation")
	for _, c := range r.Classes {
		log.Info().Str("Partition", partition).
			Str("Class", strconv.Itoa(c.Class)).
			Float64("Precision", c.Precision).
			Float64("Recall", c.Recall).
			Float64("F1", c.F1).
			Int("Support", c.Support).
			Msg("")
	}
	log.Info().Str("Partition", partition).
		Float64("MacroF1", r.Macro.F1).
		Float64("WeightedF1", r.Weighted.F1).
		Msg("")
}

func defined(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

func sortClasses(metrics map[int]*stats.ClassMetrics) []int {
	result := make([]int, 0, len(metrics))
	for class := range metrics {
		result = append(result, class)
	}
	sort.Ints(result)
	return result
}
