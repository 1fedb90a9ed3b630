package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"nadaapi/models"
)

// Accounts are cheap to create, device fingerprints are comparatively
// stable, so bonus claims are capped per device and per period.
const (
	MaxRewardClaimsPerDevicePerPeriod = 2
	RewardBonusCredits                = 10
)

// ClaimDecision is the answer to a reward-claim eligibility check.
type ClaimDecision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

type DeviceRewardStore interface {
	// Read returns the record for (device, period), nil when none.
	Read(deviceID string, periodKey string) (*models.DeviceRewardRecord, error)
	Write(record *models.DeviceRewardRecord) error
}

// DeviceGuard caps bonus-credit claims per device independent of account
// identity.
type DeviceGuard struct {
	store DeviceRewardStore
	now   func() time.Time
}

func NewDeviceGuard(store DeviceRewardStore) *DeviceGuard {
	return &DeviceGuard{store: store, now: time.Now}
}

func NewDeviceGuardAt(store DeviceRewardStore, now func() time.Time) *DeviceGuard {
	return &DeviceGuard{store: store, now: now}
}

// FingerprintDevice derives the stable device id stored server side: a
// sha256 over the raw client device string, so raw identifiers never land
// in the database.
func FingerprintDevice(rawDeviceID string) string {
	normalized := strings.TrimSpace(strings.ToLower(rawDeviceID))
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

func (g *DeviceGuard) CanClaimReward(deviceID string) (ClaimDecision, error) {
	record, err := g.store.Read(deviceID, PeriodKey(g.now()))
	if err != nil {
		return ClaimDecision{}, fmt.Errorf("device record read %s: %w", deviceID, err)
	}
	if record != nil && record.RewardsClaimedThisPeriod >= MaxRewardClaimsPerDevicePerPeriod {
		return ClaimDecision{
			Allowed: false,
			Reason:  fmt.Sprintf("device reached the limit of %v rewards this month", MaxRewardClaimsPerDevicePerPeriod),
		}, nil
	}
	return ClaimDecision{Allowed: true}, nil
}

// RecordClaim increments the device claim count and links accountID to the
// device when it is new there. The linked-account list is for anomaly
// visibility only, it never blocks anything.
func (g *DeviceGuard) RecordClaim(deviceID string, accountID string) error {
	periodKey := PeriodKey(g.now())
	record, err := g.store.Read(deviceID, periodKey)
	if err != nil {
		return fmt.Errorf("device record read %s: %w", deviceID, err)
	}
	if record == nil {
		record = &models.DeviceRewardRecord{
			DeviceID:  deviceID,
			PeriodKey: periodKey,
		}
	}
	record.RewardsClaimedThisPeriod++
	if accountID != "" && !containsString(record.LinkedAccountIDs, accountID) {
		record.LinkedAccountIDs = append(record.LinkedAccountIDs, accountID)
	}
	return g.store.Write(record)
}

func containsString(items []string, lookFor string) bool {
	for i := 0; i < len(items); i++ {
		if items[i] == lookFor {
			return true
		}
	}
	return false
}
