package ledger

import (
	"errors"
	"sync"

	"nadaapi/models"

	"gorm.io/gorm"
)

// GormCreditStore persists ledger records in Postgres, one row per user
// per billing period.
type GormCreditStore struct {
	DB *gorm.DB
}

func (s *GormCreditStore) Read(userID uint) (*models.CreditLedgerRecord, error) {
	var record models.CreditLedgerRecord
	result := s.DB.Where("user_account_id = ?", userID).Order("period_key DESC").First(&record)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if result.Error != nil {
		return nil, result.Error
	}
	return &record, nil
}

func (s *GormCreditStore) Write(record *models.CreditLedgerRecord) error {
	return s.DB.Save(record).Error
}

// MemoryCreditStore is the in-memory fake used by tests.
type MemoryCreditStore struct {
	mu      sync.Mutex
	records map[uint]models.CreditLedgerRecord
}

func NewMemoryCreditStore() *MemoryCreditStore {
	return &MemoryCreditStore{records: map[uint]models.CreditLedgerRecord{}}
}

func (s *MemoryCreditStore) Read(userID uint) (*models.CreditLedgerRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[userID]
	if !ok {
		return nil, nil
	}
	copied := record
	return &copied, nil
}

func (s *MemoryCreditStore) Write(record *models.CreditLedgerRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[record.UserAccountID] = *record
	return nil
}

// GormDeviceStore persists device reward records.
type GormDeviceStore struct {
	DB *gorm.DB
}

func (s *GormDeviceStore) Read(deviceID string, periodKey string) (*models.DeviceRewardRecord, error) {
	var record models.DeviceRewardRecord
	result := s.DB.Where("device_id = ? AND period_key = ?", deviceID, periodKey).First(&record)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if result.Error != nil {
		return nil, result.Error
	}
	return &record, nil
}

func (s *GormDeviceStore) Write(record *models.DeviceRewardRecord) error {
	return s.DB.Save(record).Error
}

// MemoryDeviceStore is the in-memory fake used by tests.
type MemoryDeviceStore struct {
	mu      sync.Mutex
	records map[string]models.DeviceRewardRecord
}

func NewMemoryDeviceStore() *MemoryDeviceStore {
	return &MemoryDeviceStore{records: map[string]models.DeviceRewardRecord{}}
}

func (s *MemoryDeviceStore) Read(deviceID string, periodKey string) (*models.DeviceRewardRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[deviceID+"/"+periodKey]
	if !ok {
		return nil, nil
	}
	copied := record
	copied.LinkedAccountIDs = append([]string(nil), record.LinkedAccountIDs...)
	return &copied, nil
}

func (s *MemoryDeviceStore) Write(record *models.DeviceRewardRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[record.DeviceID+"/"+record.PeriodKey] = *record
	return nil
}
