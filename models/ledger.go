package models

import "github.com/lib/pq"

// CreditLedgerRecord is the persisted monthly usage counter, one row per
// user per billing period.
type CreditLedgerRecord struct {
	JsonModel
	UserAccountID uint        `gorm:"index:idx_ledger_user_period,unique" json:"-"`
	UserAccount   UserAccount `json:"-"`
	// billing month, YYYY-MM
	PeriodKey string `gorm:"index:idx_ledger_user_period,unique" json:"period_key"`
	Tier      Tier   `json:"tier"`
	Used      int    `gorm:"default:0" json:"used"`
}

// DeviceRewardRecord caps bonus-credit claims per device, independent of
// how many accounts are used from that device.
type DeviceRewardRecord struct {
	JsonModel
	// sha256 fingerprint, stable per browser/device
	DeviceID  string `gorm:"index:idx_device_period,unique" json:"device_id"`
	PeriodKey string `gorm:"index:idx_device_period,unique" json:"period_key"`

	RewardsClaimedThisPeriod int `gorm:"default:0" json:"rewards_claimed_this_period"`
	// anomaly visibility only, never used for blocking
	LinkedAccountIDs pq.StringArray `gorm:"type:text[]" json:"linked_account_ids"`
}
