package domain

import (
	"time"

	"github.com/google/uuid"
)

type IssueType string

const (
	IssueOrphanedLock    IssueType = "orphaned_lock"
	IssueDoubleLock      IssueType = "double_lock"
	IssueStaleLock       IssueType = "stale_lock"
	IssueCustodyMismatch IssueType = "custody_mismatch"
)

// IntegrityIssue is one finding of the auditor. Issues are reported, not
// persisted; remediation is a separate operator action.
type IntegrityIssue struct {
	Type           IssueType   `json:"type"`
	CardInstanceID uuid.UUID   `json:"card_instance_id"`
	EscrowIDs      []uuid.UUID `json:"escrow_ids"`
	OrderIDs       []uuid.UUID `json:"order_ids"`
	Detail         string      `json:"detail"`
	DetectedAt     time.Time   `json:"detected_at"`
}

// IntegrityReport is the result of one reconciliation pass.
type IntegrityReport struct {
	TotalIssues int              `json:"total_issues"`
	Issues      []IntegrityIssue `json:"issues"`
	CheckedAt   time.Time        `json:"checked_at"`
}

// CountByType summarises the report for logs and CLI output.
func (r IntegrityReport) CountByType() map[IssueType]int {
	out := make(map[IssueType]int)
	for _, is := range r.Issues {
		out[is.Type]++
	}
	return out
}
