package integrity

import (
	"context"
	"fmt"
	"sort"
	"time"

	"cardvault-backend/internal/domain"
	"cardvault-backend/internal/infrastructure/database"
	"cardvault-backend/internal/pkg/clock"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

const defaultStaleAfter = 7 * 24 * time.Hour

// Service reconciles escrow and card instance state. It only reads and
// reports; releasing a stuck lock is an operator decision (escrow.Release).
type Service struct {
	DB         *gorm.DB
	Clock      clock.Clock
	StaleAfter time.Duration
}

func (s *Service) clk() clock.Clock {
	if s.Clock == nil {
		return clock.NewSystem()
	}
	return s.Clock
}

func (s *Service) RunIntegrityCheck(ctx context.Context) (domain.IntegrityReport, error) {
	now := s.clk().Now()
	staleAfter := s.StaleAfter
	if staleAfter <= 0 {
		staleAfter = defaultStaleAfter
	}
	db := database.Conn(ctx, s.DB)

	// Only non-terminal rows matter; their count is bounded by sales in flight.
	var locks []domain.EscrowLock
	if err := db.Where("status = ?", domain.EscrowLocked).Order("created_at ASC").Find(&locks).Error; err != nil {
		return domain.IntegrityReport{}, fmt.Errorf("load locked escrows: %w", err)
	}

	cards, err := s.loadCards(db, locks)
	if err != nil {
		return domain.IntegrityReport{}, err
	}

	issues := []domain.IntegrityIssue{}
	byCard := make(map[uuid.UUID][]domain.EscrowLock)
	for _, l := range locks {
		byCard[l.CardInstanceID] = append(byCard[l.CardInstanceID], l)

		card, ok := cards[l.CardInstanceID]
		switch {
		case !ok:
			issues = append(issues, lockIssue(domain.IssueOrphanedLock, l, now,
				"escrow is locked but its card instance does not exist"))
		case !card.Active:
			issues = append(issues, lockIssue(domain.IssueOrphanedLock, l, now,
				"escrow is locked but its card instance is inactive"))
		case card.Custody != domain.CustodyInEscrow:
			issues = append(issues, lockIssue(domain.IssueCustodyMismatch, l, now,
				fmt.Sprintf("escrow is locked but card custody is %s", card.Custody)))
		}

		if age := now.Sub(l.CreatedAt); age > staleAfter {
			issues = append(issues, lockIssue(domain.IssueStaleLock, l, now,
				fmt.Sprintf("escrow locked for %s without resolution (threshold %s)", age.Round(time.Minute), staleAfter)))
		}
	}

	for cardID, held := range byCard {
		if len(held) < 2 {
			continue
		}
		issue := domain.IntegrityIssue{
			Type:           domain.IssueDoubleLock,
			CardInstanceID: cardID,
			Detail:         fmt.Sprintf("%d locked escrows on one card instance", len(held)),
			DetectedAt:     now,
		}
		for _, l := range held {
			issue.EscrowIDs = append(issue.EscrowIDs, l.ID)
			issue.OrderIDs = append(issue.OrderIDs, l.OrderID)
		}
		issues = append(issues, issue)
	}

	var stranded []domain.CardInstance
	err = db.Where("active = ? AND custody = ?", true, domain.CustodyInEscrow).
		Where("id NOT IN (?)", db.Model(&domain.EscrowLock{}).Select("card_instance_id").Where("status = ?", domain.EscrowLocked)).
		Find(&stranded).Error
	if err != nil {
		return domain.IntegrityReport{}, fmt.Errorf("load stranded cards: %w", err)
	}
	for _, c := range stranded {
		issues = append(issues, domain.IntegrityIssue{
			Type:           domain.IssueCustodyMismatch,
			CardInstanceID: c.ID,
			EscrowIDs:      []uuid.UUID{},
			OrderIDs:       []uuid.UUID{},
			Detail:         "card custody is in_escrow but no escrow is locked",
			DetectedAt:     now,
		})
	}

	sort.SliceStable(issues, func(i, j int) bool {
		if issues[i].Type != issues[j].Type {
			return issues[i].Type < issues[j].Type
		}
		return issues[i].CardInstanceID.String() < issues[j].CardInstanceID.String()
	})

	report := domain.IntegrityReport{
		TotalIssues: len(issues),
		Issues:      issues,
		CheckedAt:   now,
	}
	s.logReport(report, len(locks))
	return report, nil
}

func (s *Service) loadCards(db *gorm.DB, locks []domain.EscrowLock) (map[uuid.UUID]domain.CardInstance, error) {
	out := make(map[uuid.UUID]domain.CardInstance, len(locks))
	if len(locks) == 0 {
		return out, nil
	}
	ids := make([]uuid.UUID, 0, len(locks))
	seen := make(map[uuid.UUID]struct{}, len(locks))
	for _, l := range locks {
		if _, ok := seen[l.CardInstanceID]; ok {
			continue
		}
		seen[l.CardInstanceID] = struct{}{}
		ids = append(ids, l.CardInstanceID)
	}

	var cards []domain.CardInstance
	if err := db.Where("id IN ?", ids).Find(&cards).Error; err != nil {
		return nil, fmt.Errorf("load card instances: %w", err)
	}
	for _, c := range cards {
		out[c.ID] = c
	}
	return out, nil
}

func (s *Service) logReport(report domain.IntegrityReport, scanned int) {
	if report.TotalIssues == 0 {
		log.Info().Int("locked_escrows", scanned).Msg("integrity check clean")
		return
	}
	ev := log.Warn().Int("locked_escrows", scanned).Int("total_issues", report.TotalIssues)
	for t, n := range report.CountByType() {
		ev = ev.Int(string(t), n)
	}
	ev.Msg("integrity check found issues")
}

func lockIssue(t domain.IssueType, l domain.EscrowLock, now time.Time, detail string) domain.IntegrityIssue {
	return domain.IntegrityIssue{
		Type:           t,
		CardInstanceID: l.CardInstanceID,
		EscrowIDs:      []uuid.UUID{l.ID},
		OrderIDs:       []uuid.UUID{l.OrderID},
		Detail:         detail,
		DetectedAt:     now,
	}
}
