package main

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"cardvault-backend/internal/domain"

	"github.com/fatih/color"
)

var (
	accent  = color.New(color.FgCyan, color.Bold)
	success = color.New(color.FgGreen, color.Bold)
	warn    = color.New(color.FgYellow, color.Bold)
	danger  = color.New(color.FgRed, color.Bold)
	neutral = color.New(color.FgHiWhite)
)

func issueColor(t domain.IssueType) *color.Color {
	switch t {
	case domain.IssueDoubleLock, domain.IssueOrphanedLock:
		return danger
	default:
		return warn
	}
}

func printReport(out io.Writer, report domain.IntegrityReport) {
	accent.Fprintf(out, "Escrow integrity check at %s\n", report.CheckedAt.Format("2006-01-02 15:04:05 MST"))
	if report.TotalIssues == 0 {
		success.Fprintln(out, "no issues found")
		return
	}

	counts := report.CountByType()
	types := make([]string, 0, len(counts))
	for t := range counts {
		types = append(types, string(t))
	}
	sort.Strings(types)
	parts := make([]string, 0, len(types))
	for _, t := range types {
		parts = append(parts, fmt.Sprintf("%s=%d", t, counts[domain.IssueType(t)]))
	}
	danger.Fprintf(out, "%d issue(s): %s\n", report.TotalIssues, strings.Join(parts, " "))

	for _, is := range report.Issues {
		issueColor(is.Type).Fprintf(out, "%-17s", is.Type)
		neutral.Fprintf(out, " card=%s escrows=%s  %s\n", is.CardInstanceID, joinIDs(is.EscrowIDs), is.Detail)
	}
}

func printHistory(out io.Writer, events []domain.EscrowEvent) {
	if len(events) == 0 {
		warn.Fprintln(out, "no events")
		return
	}
	for _, e := range events {
		accent.Fprintf(out, "%s ", e.CreatedAt.Format("2006-01-02 15:04:05"))
		neutral.Fprintf(out, "%-10s", e.EventType)
		if e.Actor != nil {
			neutral.Fprintf(out, " by %s", *e.Actor)
		}
		fmt.Fprintln(out)
	}
}

func joinIDs[T fmt.Stringer](ids []T) string {
	s := make([]string, len(ids))
	for i, id := range ids {
		s[i] = id.String()
	}
	return strings.Join(s, ",")
}
