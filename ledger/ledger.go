package ledger

import (
	"fmt"
	"time"

	"nadaapi/models"
)

// Status is the credit usage summary returned to the client.
type Status struct {
	Used           int  `json:"used"`
	Limit          int  `json:"limit"`
	Remaining      int  `json:"remaining"`
	PercentUsed    int  `json:"percent_used"`
	CanUse         bool `json:"can_use"`
	DaysUntilReset int  `json:"days_until_reset"`
}

// CreditLedgerStore abstracts persistence of the monthly usage records so
// the service never touches ambient globals: an in-memory fake backs the
// tests, the GORM store backs production.
type CreditLedgerStore interface {
	// Read returns the most recent record for the user, nil when none.
	Read(userID uint) (*models.CreditLedgerRecord, error)
	Write(record *models.CreditLedgerRecord) error
}

// Service answers "can spend N credits" and "spend N credits" atomically
// for the single active session turn. All mutations persist immediately.
type Service struct {
	store CreditLedgerStore
	now   func() time.Time
}

func NewService(store CreditLedgerStore) *Service {
	return &Service{store: store, now: time.Now}
}

// NewServiceAt pins the clock, for tests that cross period boundaries.
func NewServiceAt(store CreditLedgerStore, now func() time.Time) *Service {
	return &Service{store: store, now: now}
}

// PeriodKey identifies the billing month, YYYY-MM in UTC.
func PeriodKey(t time.Time) string {
	return t.UTC().Format("2006-01")
}

// DaysUntilReset counts the days remaining until the next billing month
// starts, never below 1.
func DaysUntilReset(t time.Time) int {
	t = t.UTC()
	firstOfNext := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, 0)
	days := int(firstOfNext.Sub(t).Hours() / 24)
	if days < 1 {
		days = 1
	}
	return days
}

// load reads the user record, creating it lazily and rolling a stale
// period over transparently. The returned record always carries the
// current period key.
func (s *Service) load(userID uint, tier models.Tier) (*models.CreditLedgerRecord, error) {
	currentPeriod := PeriodKey(s.now())
	record, err := s.store.Read(userID)
	if err != nil {
		return nil, fmt.Errorf("ledger read for user %v: %w", userID, err)
	}
	if record == nil || record.PeriodKey != currentPeriod {
		record = &models.CreditLedgerRecord{
			UserAccountID: userID,
			PeriodKey:     currentPeriod,
			Tier:          tier,
			Used:          0,
		}
	}
	record.Tier = tier
	return record, nil
}

// GetStatus never mutates usage; canUse is true iff the tier is unlimited
// or there is at least one credit left.
func (s *Service) GetStatus(userID uint, tier models.Tier) (Status, error) {
	record, err := s.load(userID, tier)
	if err != nil {
		return Status{}, err
	}
	limit := tier.MonthlyCreditLimit()
	status := Status{
		Used:           record.Used,
		Limit:          limit,
		DaysUntilReset: DaysUntilReset(s.now()),
	}
	if limit == models.UnlimitedCredits {
		status.Remaining = models.UnlimitedCredits
		status.CanUse = true
		return status, nil
	}
	remaining := limit - record.Used
	if remaining < 0 {
		remaining = 0
	}
	status.Remaining = remaining
	status.CanUse = record.Used < limit
	if limit > 0 {
		status.PercentUsed = record.Used * 100 / limit
	}
	return status, nil
}

// Consume debits amount credits. Returns false without mutating anything
// when the remaining allowance does not cover the amount.
func (s *Service) Consume(userID uint, tier models.Tier, amount int) (bool, error) {
	if amount <= 0 {
		return true, nil
	}
	record, err := s.load(userID, tier)
	if err != nil {
		return false, err
	}
	limit := tier.MonthlyCreditLimit()
	if limit != models.UnlimitedCredits && limit-record.Used < amount {
		return false, nil
	}
	record.Used += amount
	if err := s.store.Write(record); err != nil {
		return false, fmt.Errorf("ledger write for user %v: %w", userID, err)
	}
	return true, nil
}

// GrantBonus credits the user back, flooring used at zero. Used both for
// reward grants and for refunding a charged-but-failed generation.
func (s *Service) GrantBonus(userID uint, tier models.Tier, amount int) error {
	if amount <= 0 {
		return nil
	}
	record, err := s.load(userID, tier)
	if err != nil {
		return err
	}
	record.Used -= amount
	if record.Used < 0 {
		record.Used = 0
	}
	if err := s.store.Write(record); err != nil {
		return fmt.Errorf("ledger write for user %v: %w", userID, err)
	}
	return nil
}

// Refund reconciles the ledger after a confirmed action failed at the
// provider: charge-at-confirm, refund-on-failure.
func (s *Service) Refund(userID uint, tier models.Tier, amount int) error {
	return s.GrantBonus(userID, tier, amount)
}

// Reset zeroes usage for the current period. Admin and testing only.
func (s *Service) Reset(userID uint, tier models.Tier) error {
	record, err := s.load(userID, tier)
	if err != nil {
		return err
	}
	record.Used = 0
	return s.store.Write(record)
}
