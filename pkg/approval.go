package pkg

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"creditrule/pkg/etl"
	"creditrule/pkg/io"
	"creditrule/pkg/metrics"
	"creditrule/pkg/model"
	"creditrule/pkg/table"
)

// ErrMissingColumn is returned when a dataset lacks a column the model needs.
var ErrMissingColumn = errors.New("required column missing")

// ApprovedScore is the score level that counts as an approval.
const ApprovedScore = "0"

type ApprovalParameters struct {
	ScoreColumn        string
	TargetColumn       string
	PredictionColumn   string
	TestSize           float64
	Seed               uint64
	ImbalanceThreshold float64
	Verbose            bool
}

// Balance is the label distribution of a dataset.
type Balance struct {
	Counts        map[int]int
	MajorityShare float64
	Imbalanced    bool
}

// CreditApproval trains and evaluates a OneRule classifier that predicts credit
// approval from a cleaned dataset. The phases run in order: LoadAndPrepare, Train,
// then optionally Process.
type CreditApproval struct {
	params     ApprovalParameters
	store      io.Store
	metrics    *metrics.Metrics
	classifier model.OneRule

	data    table.Table
	labels  []int
	balance Balance
	split   io.Split

	rule        *model.Rule
	trainReport model.Report
	testReport  model.Report
}

// NewCreditApproval creates the model. m may be nil.
func NewCreditApproval(params ApprovalParameters, store io.Store, m *metrics.Metrics) *CreditApproval {
	return &CreditApproval{
		params:     params,
		store:      store,
		metrics:    m,
		classifier: model.OneRule{Verbose: params.Verbose},
	}
}

// DeriveTarget maps every score to an approval label: the approved level gives 1,
// anything else, a missing score included, gives 0.
func DeriveTarget(scores []table.Cell) []int {
	labels := make([]int, len(scores))
	for i, s := range scores {
		if !s.IsMissing() && s.String() == ApprovedScore {
			labels[i] = 1
		}
	}
	return labels
}

// CheckBalance reports the label distribution and whether the majority class holds
// more than threshold of all rows.
func CheckBalance(labels []int, threshold float64) Balance {
	b := Balance{Counts: map[int]int{}}
	for _, l := range labels {
		b.Counts[l]++
	}
	if len(labels) == 0 {
		return b
	}
	largest := 0
	for _, n := range b.Counts {
		if n > largest {
			largest = n
		}
	}
	b.MajorityShare = float64(largest) / float64(len(labels))
	b.Imbalanced = b.MajorityShare > threshold
	return b
}

// LoadAndPrepare loads the dataset, derives the target, checks the class balance
// and splits the rows into train and test partitions.
func (c *CreditApproval) LoadAndPrepare(location string) error {
	data, err := c.store.Load(location)
	if err != nil {
		return fmt.Errorf("error loading dataset %s: %w", location, err)
	}
	return c.Prepare(data)
}

// Prepare runs the LoadAndPrepare phases on an already loaded table.
func (c *CreditApproval) Prepare(data table.Table) error {
	scores, err := data.Column(c.params.ScoreColumn)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrMissingColumn, c.params.ScoreColumn)
	}

	c.labels = DeriveTarget(scores)
	targets := make([]table.Cell, len(c.labels))
	for i, l := range c.labels {
		targets[i] = table.Int(l)
	}
	if c.data, err = data.WithColumn(c.params.TargetColumn, targets); err != nil {
		return fmt.Errorf("error adding target column: %w", err)
	}

	c.balance = CheckBalance(c.labels, c.params.ImbalanceThreshold)
	classes := make([]int, 0, len(c.balance.Counts))
	for class := range c.balance.Counts {
		classes = append(classes, class)
	}
	sort.Ints(classes)
	for _, class := range classes {
		log.Info().Str("Class", strconv.Itoa(class)).Int("Count", c.balance.Counts[class]).Msg("class distribution")
	}
	if c.balance.Imbalanced {
		log.Warn().Float64("MajorityShare", c.balance.MajorityShare).
			Float64("Threshold", c.params.ImbalanceThreshold).
			Msg("significant class imbalance detected")
		if c.metrics != nil {
			c.metrics.ImbalanceWarnings.Inc()
		}
	}

	if c.split, err = io.StratifiedSplit(c.labels, c.params.TestSize, c.params.Seed); err != nil {
		return fmt.Errorf("error splitting dataset: %w", err)
	}
	log.Info().Int("Train", len(c.split.Train)).Int("Test", len(c.split.Test)).Msg("dataset split")
	return nil
}

func (c *CreditApproval) features() table.Table {
	return c.data.Drop(c.params.ScoreColumn, c.params.TargetColumn)
}

func selectLabels(labels []int, indices []int) []int {
	out := make([]int, len(indices))
	for i, idx := range indices {
		out[i] = labels[idx]
	}
	return out
}

// Train fits the classifier on the train partition and evaluates it on both.
func (c *CreditApproval) Train() error {
	if c.labels == nil {
		return fmt.Errorf("dataset not prepared")
	}
	features := c.features()
	trainX, testX := features.Select(c.split.Train), features.Select(c.split.Test)
	trainY, testY := selectLabels(c.labels, c.split.Train), selectLabels(c.labels, c.split.Test)

	start := time.Now()
	rule, err := c.classifier.Fit(trainX, trainY)
	if err != nil {
		return fmt.Errorf("error fitting classifier: %w", err)
	}
	c.rule = rule
	if c.metrics != nil {
		c.metrics.FitDuration.Observe(time.Since(start).Seconds())
		c.metrics.TrainingErrors.Set(float64(rule.Errors))
	}
	log.Info().Str("BestFeature", rule.BestFeature).
		Int("Errors", rule.Errors).
		Float64("ErrorRate", rule.ErrorRate).
		Int("DefaultClass", rule.DefaultClass).
		Msg("rule fitted")

	if c.trainReport, err = rule.Evaluate(trainX, trainY); err != nil {
		return err
	}
	c.trainReport.Log("train")
	if c.testReport, err = rule.Evaluate(testX, testY); err != nil {
		return err
	}
	c.testReport.Log("test")

	if c.metrics != nil {
		c.metrics.Accuracy.WithLabelValues("train").Set(c.trainReport.Accuracy)
		c.metrics.Accuracy.WithLabelValues("test").Set(c.testReport.Accuracy)
	}
	return nil
}

// FeatureImportance returns the fitted rule summary, or false before Train.
func (c *CreditApproval) FeatureImportance() (model.FeatureImportance, bool) {
	if c.rule == nil {
		return model.FeatureImportance{}, false
	}
	return c.rule.Importance(), true
}

func (c *CreditApproval) Rule() *model.Rule {
	return c.rule
}

func (c *CreditApproval) Balance() Balance {
	return c.balance
}

func (c *CreditApproval) Split() io.Split {
	return c.split
}

func (c *CreditApproval) Reports() (train, test model.Report) {
	return c.trainReport, c.testReport
}

// Process predicts every row and appends the predictions. With a fitted pipeline
// the categorical columns are decoded back to their canonical text.
func (c *CreditApproval) Process(pipeline *etl.FittedPipeline) (table.Table, error) {
	if c.rule == nil {
		return table.Table{}, fmt.Errorf("classifier not trained")
	}
	predictions, err := c.rule.Predict(c.data)
	if err != nil {
		return table.Table{}, err
	}
	cells := make([]table.Cell, len(predictions))
	for i, p := range predictions {
		cells[i] = table.Int(p)
	}
	out, err := c.data.WithColumn(c.params.PredictionColumn, cells)
	if err != nil {
		return table.Table{}, fmt.Errorf("error adding prediction column: %w", err)
	}
	if pipeline == nil {
		return out, nil
	}
	decoded, err := pipeline.Decode(out)
	if err != nil {
		return table.Table{}, fmt.Errorf("error decoding processed dataset: %w", err)
	}
	return decoded, nil
}

// RunPipeline loads, prepares and trains, and returns the feature importance.
func (c *CreditApproval) RunPipeline(location string) (model.FeatureImportance, error) {
	if err := c.LoadAndPrepare(location); err != nil {
		return model.FeatureImportance{}, err
	}
	if err := c.Train(); err != nil {
		return model.FeatureImportance{}, err
	}
	importance, _ := c.FeatureImportance()
	return importance, nil
}
