package model

// OperationType defines the operation a replay step performs
type OperationType string

const (
	OperationTypeOverwrite   OperationType = "overwrite"
	OperationTypeNoOverwrite OperationType = "no_overwrite"
	OperationTypeUpdate      OperationType = "update" // uses the script or configured default policy
	OperationTypeRetract     OperationType = "retract"
	OperationTypeGet         OperationType = "get"
)

// IsWrite reports whether the operation binds a value
func (o OperationType) IsWrite() bool {
	switch o {
	case OperationTypeOverwrite, OperationTypeNoOverwrite, OperationTypeUpdate:
		return true
	}
	return false
}

// Outcomes recorded for steps and accepted in Step.Expect
const (
	OutcomeOK                  = "ok"
	OutcomeNonMonotonicContext = "non_monotonic_context"
	OutcomeValueAlreadyOwned   = "value_already_owned"
	OutcomeLive                = "live"
	OutcomeRetracted           = "retracted"
	OutcomeUnrecorded          = "unrecorded"
)

// Script is a named sequence of operations replayed against a fresh index
type Script struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description,omitempty"`
	Policy      string `yaml:"policy,omitempty"` // Policy for "update" steps, overrides config
	Steps       []Step `yaml:"steps"`

	Source   string `yaml:"-"` // File the script was read from, if any
	Checksum uint32 `yaml:"-"` // CRC32 of the raw script bytes
}

// Step is one operation of a script. Key strings and values are opaque
// identities; contexts are logical sequence numbers.
type Step struct {
	Op      OperationType `yaml:"op"`
	Key     string        `yaml:"key"`
	Context int64         `yaml:"context"`
	Value   string        `yaml:"value,omitempty"` // Written value, or expected value for a live get
	Expect  string        `yaml:"expect,omitempty"`
}

// StepResult records what happened when a step was replayed
type StepResult struct {
	Index    int           `yaml:"index"`
	Op       OperationType `yaml:"op"`
	Key      string        `yaml:"key"`
	Context  int64         `yaml:"context"`
	Value    string        `yaml:"value,omitempty"`
	Outcome  string        `yaml:"outcome"`
	Status   string        `yaml:"status,omitempty"` // gRPC status code of a write
	Expected string        `yaml:"expected,omitempty"`
	Passed   bool          `yaml:"passed"`
	Detail   string        `yaml:"detail,omitempty"`
}

// Report summarizes one script replay
type Report struct {
	Script      string       `yaml:"script"`
	Source      string       `yaml:"source,omitempty"`
	Checksum    string       `yaml:"checksum"`
	Steps       []StepResult `yaml:"steps"`
	Passed      int          `yaml:"passed"`
	Failed      int          `yaml:"failed"`
	Aborted     bool         `yaml:"aborted,omitempty"`
	Keys        int          `yaml:"keys"`
	OwnedValues int          `yaml:"owned_values"`
}

// OK reports whether every replayed step met its expectation
func (r *Report) OK() bool {
	return r.Failed == 0 && !r.Aborted
}
