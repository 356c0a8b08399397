package explore

// The decision log is the system's explainability contract: an ordered,
// typed audit trail of every retrieval, ranking, selection, and
// divergence decision. It is produced even on failure, so a human can
// diagnose an expensive run without re-running it.

// DecisionType classifies one decision log record.
type DecisionType string

const (
	DecisionTheme      DecisionType = "theme"
	DecisionRetrieval  DecisionType = "retrieval"
	DecisionRanking    DecisionType = "ranking"
	DecisionSelection  DecisionType = "selection"
	DecisionSkip       DecisionType = "skip"
	DecisionDivergence DecisionType = "divergence"
	DecisionExhausted  DecisionType = "exhausted"
	DecisionPool       DecisionType = "pool"
	DecisionDiscard    DecisionType = "discard"
	DecisionError      DecisionType = "error"
	DecisionCancelled  DecisionType = "cancelled"
)

// Decision is one record in the log.
type Decision struct {
	Type    DecisionType   `json:"type"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data,omitempty"`
}

// Log is an append-only decision log.
type Log struct {
	records []Decision
}

// Add appends a record.
func (l *Log) Add(t DecisionType, message string, data map[string]any) {
	l.records = append(l.records, Decision{Type: t, Message: message, Data: data})
}

// Records returns the log contents in order.
func (l *Log) Records() []Decision {
	return l.records
}

// Len returns the number of records.
func (l *Log) Len() int { return len(l.records) }

// Reset clears the log for a new session.
func (l *Log) Reset() { l.records = nil }
