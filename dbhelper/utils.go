package dbhelper

import (
	"log"
	"nadaapi/models"

	"gorm.io/gorm"
)

func SetupCleaner(db *gorm.DB) func() {

	return func() {

		db.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&models.TryOnGeneration{})
		db.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&models.WorkflowSession{})
		db.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&models.GeneratedLook{})
		db.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&models.CreditLedgerRecord{})
		db.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&models.DeviceRewardRecord{})
		db.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&models.UserPushToken{})
		db.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&models.UserAccount{})

	}
}

func Migrate(db *gorm.DB, model interface{}) {
	err := db.AutoMigrate(model)
	if err != nil {
		log.Printf("Error while migrating %s", model)
		log.Fatal(err)
	}
}
