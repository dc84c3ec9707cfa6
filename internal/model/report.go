package model

import "time"

// Counts are the raw matching outcomes for one key or aggregate.
type Counts struct {
	TP int `json:"tp" yaml:"tp"`
	FP int `json:"fp" yaml:"fp"`
	FN int `json:"fn" yaml:"fn"`
}

// Add accumulates o into c.
func (c *Counts) Add(o Counts) {
	c.TP += o.TP
	c.FP += o.FP
	c.FN += o.FN
}

// Metrics are precision, recall and F1 derived from Counts. A zero
// denominator yields 0, never NaN.
type Metrics struct {
	Counts    `yaml:",inline"`
	Precision float64 `json:"precision" yaml:"precision"`
	Recall    float64 `json:"recall" yaml:"recall"`
	F1        float64 `json:"f1_score" yaml:"f1_score"`
}

// MetricsFrom computes Metrics for c.
func MetricsFrom(c Counts) Metrics {
	return Metrics{
		Counts:    c,
		Precision: safeDiv(c.TP, c.TP+c.FP),
		Recall:    safeDiv(c.TP, c.TP+c.FN),
		F1:        safeDiv(2*c.TP, 2*c.TP+c.FP+c.FN),
	}
}

func safeDiv(num, denom int) float64 {
	if denom <= 0 {
		return 0
	}
	return float64(num) / float64(denom)
}

// Match is one matched pair of records.
type Match struct {
	Theme    string  `json:"theme" yaml:"theme"`
	Code     string  `json:"code" yaml:"code"`
	IndexA   int     `json:"index_a" yaml:"index_a"`
	IndexB   int     `json:"index_b" yaml:"index_b"`
	SectionA string  `json:"section_a" yaml:"section_a"`
	SectionB string  `json:"section_b" yaml:"section_b"`
	Overlap  float64 `json:"overlap" yaml:"overlap"`
}

// AgreementReport compares two annotation trees of the same answer.
// Overall is micro-averaged over all keys.
type AgreementReport struct {
	Overall  Metrics                       `json:"global" yaml:"global"`
	PerTheme map[string]Metrics            `json:"per_theme" yaml:"per_theme"`
	PerCode  map[string]map[string]Metrics `json:"per_code" yaml:"per_code"`
	Matches  []Match                       `json:"matches,omitempty" yaml:"matches,omitempty"`
}

// AnswerReport is the agreement for a single aligned answer.
type AnswerReport struct {
	ID     int             `json:"id" yaml:"id"`
	Report AgreementReport `json:"report" yaml:"report"`
}

// EvaluationReport compares an annotated dataset against ground truth.
type EvaluationReport struct {
	RunID       string    `json:"run_id" yaml:"run_id"`
	Subject     string    `json:"subject" yaml:"subject"`
	CreatedAt   time.Time `json:"created_at" yaml:"created_at"`
	Annotated   string    `json:"annotated,omitempty" yaml:"annotated,omitempty"`
	GroundTruth string    `json:"ground_truth,omitempty" yaml:"ground_truth,omitempty"`

	Options ScoringConfig `json:"options" yaml:"options"`

	Evaluated       int      `json:"evaluated_entries" yaml:"evaluated_entries"`
	Skipped         []int    `json:"skipped_ids,omitempty" yaml:"skipped_ids,omitempty"`
	TextMismatches  []int    `json:"text_mismatch_ids,omitempty" yaml:"text_mismatch_ids,omitempty"`
	QuestionMatches bool     `json:"question_matches" yaml:"question_matches"`
	Warnings        []string `json:"warnings,omitempty" yaml:"warnings,omitempty"`

	Overall  Metrics                       `json:"global" yaml:"global"`
	PerTheme map[string]Metrics            `json:"per_theme" yaml:"per_theme"`
	PerCode  map[string]map[string]Metrics `json:"per_code" yaml:"per_code"`
	Answers  []AnswerReport                `json:"answers,omitempty" yaml:"answers,omitempty"`
}
