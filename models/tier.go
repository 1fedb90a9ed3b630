package models

import (
	"regexp"

	"github.com/go-playground/validator"
)

type Tier string

const (
	TierFree    Tier = "free"
	TierPro     Tier = "pro"
	TierPremium Tier = "premium" // unlimited credits
)

// UnlimitedCredits marks a tier without a monthly cap.
const UnlimitedCredits = -1

func (t *Tier) Scan(value interface{}) error {
	*t = Tier(value.(string))
	return nil
}

func (t Tier) Value() (string, error) {
	return string(t), nil
}

// MonthlyCreditLimit returns the credit allowance per billing month.
func (t Tier) MonthlyCreditLimit() int {
	switch t {
	case TierPro:
		return 1000
	case TierPremium:
		return UnlimitedCredits
	default:
		return 200
	}
}

func ValidateTier(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	matched, _ := regexp.MatchString("^free|pro|premium$", string(value))
	return matched
}

func ValidateTierRaw(value string) bool {
	matched, _ := regexp.MatchString("^free|pro|premium$", string(value))
	return matched
}
