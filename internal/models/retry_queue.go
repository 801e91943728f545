package models

// Operation is the direction of a retriable sync operation.
type Operation string

const (
	OpPush Operation = "push"
	OpPull Operation = "pull"
)

// QueueState is the lifecycle state of a retry queue item.
type QueueState string

const (
	QueuePending    QueueState = "pending"
	QueueInProgress QueueState = "in_progress"
	QueueCompleted  QueueState = "completed"
	QueueFailed     QueueState = "failed"
	QueueAbandoned  QueueState = "abandoned"
)

// Terminal reports whether no further transitions are expected.
func (s QueueState) Terminal() bool {
	return s == QueueCompleted || s == QueueAbandoned
}

// RetryQueueItem is one logical unit of retriable sync work, unique per
// (RecordID, TableName, Operation) while non-terminal.
type RetryQueueItem struct {
	ID            string     `json:"id"`
	RecordID      string     `json:"record_id"`
	TableName     string     `json:"table_name"`
	Operation     Operation  `json:"operation"`
	State         QueueState `json:"state"`
	Priority      int        `json:"priority"` // 1 highest, 5 lowest
	Attempts      int        `json:"attempts"`
	MaxAttempts   int        `json:"max_attempts"`
	LastAttemptAt *int64     `json:"last_attempt_at,omitempty"`
	NextRetryAt   *int64     `json:"next_retry_at,omitempty"`
	CreatedAt     int64      `json:"created_at"`
	LastError     string     `json:"last_error,omitempty"`
	ErrorCategory string     `json:"error_category,omitempty"`
}

// Matches reports whether the item covers the given unit of work.
func (i *RetryQueueItem) Matches(recordID, tableName string, op Operation) bool {
	return i.RecordID == recordID && i.TableName == tableName && i.Operation == op
}
