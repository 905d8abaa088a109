package models

import (
	"log"

	"github.com/vostoklab/workshop_backend/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&Receipt{}, &Employee{},
		&Reminder{}, &HistoryEvent{},
		&Return{}, &ReturnReason{}, &ReturnReasonLink{},
		&Operation{}, &OperationType{}, &PolishingDetails{},
	)
	if err != nil {
		log.Fatal(err)
	}

	seedReturnReasons()
	seedOperationTypes()
}

var defaultReturnReasons = []ReturnReason{
	{Code: "dirt_inside", Name: "Dirt inside the case", Affects: AffectsAssembly},
	{Code: "dirt_outside", Name: "Dirt on the case", Affects: AffectsAssembly},
	{Code: "mechanism_defect", Name: "Mechanism defect", Affects: AffectsMechanism},
	{Code: "no_numbers", Name: "Serial numbers not recorded", Affects: AffectsAssembly},
	{Code: "wrong_assembly", Name: "Incorrect assembly", Affects: AffectsAssembly},
	{Code: AttributionReasonCode, Name: "Polishing", Affects: AffectsPolishing},
}

var defaultOperationTypes = []OperationType{
	{Code: "assembly", Name: "Assembly"},
	{Code: "mechanism", Name: "Mechanism repair"},
	{Code: "polishing", Name: "Polishing"},
}

func seedReturnReasons() {
	db := config.GetDB()
	for _, reason := range defaultReturnReasons {
		var count int64
		if err := db.Model(&ReturnReason{}).Where("code = ?", reason.Code).Count(&count).Error; err != nil {
			log.Fatal(err)
		}
		if count == 0 {
			if err := db.Create(&reason).Error; err != nil {
				log.Fatal(err)
			}
		}
	}
}

func seedOperationTypes() {
	db := config.GetDB()
	for _, opType := range defaultOperationTypes {
		var count int64
		if err := db.Model(&OperationType{}).Where("code = ?", opType.Code).Count(&count).Error; err != nil {
			log.Fatal(err)
		}
		if count == 0 {
			if err := db.Create(&opType).Error; err != nil {
				log.Fatal(err)
			}
		}
	}
}
