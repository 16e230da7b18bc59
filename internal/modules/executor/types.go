package executor

import "time"

// StepType identifies the contract a step fulfils.
type StepType string

const (
	StepTableSelection    StepType = "table_selection"
	StepDataValidation    StepType = "data_validation"
	StepJoinValidation    StepType = "join_validation"
	StepFilterApplication StepType = "filter_application"
	StepAggregation       StepType = "aggregation"
	StepSampling          StepType = "sampling"
	StepResultFormatting  StepType = "result_formatting"
)

// Steps whose ultimate failure aborts the whole run.
func (t StepType) Critical() bool {
	return t == StepTableSelection || t == StepDataValidation
}

// ResultKind declares what a step's validation query yields.
type ResultKind string

const (
	KindRows   ResultKind = "rows"
	KindCount  ResultKind = "count"
	KindExists ResultKind = "exists"
)

// StepStatus tracks a step through the run loop.
type StepStatus string

const (
	StatusPending    StepStatus = "pending"
	StatusInProgress StepStatus = "in_progress"
	StatusCompleted  StepStatus = "completed"
	StatusFailed     StepStatus = "failed"
	StatusSkipped    StepStatus = "skipped"
)

// Step is one node of the execution DAG.
type Step struct {
	ID            string        `json:"id"`
	Type          StepType      `json:"type"`
	Description   string        `json:"description"`
	SQL           string        `json:"sql,omitempty"`
	DependsOn     []string      `json:"depends_on,omitempty"`
	ValidationSQL string        `json:"validation_sql,omitempty"`
	Expect        ResultKind    `json:"expect"`
	Timeout       time.Duration `json:"timeout"`
	RetryBudget   int           `json:"retry_budget"`
	Status        StepStatus    `json:"status"`

	// Filled in during the run
	Recovered bool   `json:"recovered,omitempty"`
	Hint      string `json:"hint,omitempty"`
}

// Template families, selected by keyword scan.
type Template string

const (
	TemplatePriceComparison Template = "price_comparison"
	TemplateDiscountSearch  Template = "discount_search"
	TemplateProductSearch   Template = "product_search"
)

// MultiStepResult aggregates the outcome of a full run.
type MultiStepResult struct {
	Template        Template         `json:"template"`
	Rows            []map[string]any `json:"rows"`
	TotalTime       time.Duration    `json:"total_time"`
	StepsExecuted   int              `json:"steps_executed"`
	StepsFailed     int              `json:"steps_failed"`
	RecoveryApplied bool             `json:"recovery_applied"`
	Suggestions     []string         `json:"suggestions,omitempty"`
	Steps           []*Step          `json:"steps"`
	Aborted         bool             `json:"aborted"`
}
