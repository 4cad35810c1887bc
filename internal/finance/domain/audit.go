package finance

import (
	"sync"
	"time"
)

const (
	// DefaultAuditCapacity is the ring buffer bound.
	DefaultAuditCapacity = 500
	// DefaultAuditRetain is how many of the newest records survive a trim.
	DefaultAuditRetain = 450

	// PrecisionLossThreshold is the relative rounding error reported as a warning.
	PrecisionLossThreshold = 1e-4
)

// Step is one intermediate value of a calculation.
type Step struct {
	Operation string  `json:"operation"`
	Value     float64 `json:"value"`
}

// CalculationAudit records the inputs, steps and outcome of a single calculation.
type CalculationAudit struct {
	ID                string             `json:"id"`
	Operation         string             `json:"operation"`
	InputValues       map[string]float64 `json:"inputValues"`
	IntermediateSteps []Step             `json:"intermediateSteps"`
	FinalResult       float64            `json:"finalResult"`
	PrecisionLoss     float64            `json:"precisionLoss"`
	Validation        ValidationResult   `json:"validation"`
	RecoveryActions   []string           `json:"recoveryActions,omitempty"`
	CreatedAt         time.Time          `json:"createdAt"`
}

// LostPrecision reports whether rounding moved the result past PrecisionLossThreshold.
func (a CalculationAudit) LostPrecision() bool {
	return a.PrecisionLoss > PrecisionLossThreshold
}

func (a *CalculationAudit) step(operation string, value float64) {
	a.IntermediateSteps = append(a.IntermediateSteps, Step{Operation: operation, Value: value})
}

// AuditLog is a bounded buffer of calculation audits. When more than
// capacity records are held, only the newest retain records are kept.
type AuditLog struct {
	mu       sync.Mutex
	records  []CalculationAudit
	capacity int
	retain   int
}

// NewAuditLog constructs an audit log. Non-positive or inconsistent bounds
// fall back to the defaults.
func NewAuditLog(capacity, retain int) *AuditLog {
	if capacity <= 0 {
		capacity = DefaultAuditCapacity
	}
	if retain <= 0 || retain > capacity {
		retain = capacity * DefaultAuditRetain / DefaultAuditCapacity
		if retain <= 0 {
			retain = capacity
		}
	}
	return &AuditLog{
		records:  make([]CalculationAudit, 0, capacity+1),
		capacity: capacity,
		retain:   retain,
	}
}

// Append stores a record and enforces the bound on the same call.
func (l *AuditLog) Append(record CalculationAudit) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.records = append(l.records, record)
	if len(l.records) <= l.capacity {
		return
	}
	drop := len(l.records) - l.retain
	n := copy(l.records, l.records[drop:])
	for i := n; i < len(l.records); i++ {
		l.records[i] = CalculationAudit{}
	}
	l.records = l.records[:n]
}

// Records returns a copy of the held records, oldest first.
func (l *AuditLog) Records() []CalculationAudit {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]CalculationAudit, len(l.records))
	copy(out, l.records)
	return out
}

// Len returns the number of held records.
func (l *AuditLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.records)
}

// Capacity returns the configured bound.
func (l *AuditLog) Capacity() int { return l.capacity }
