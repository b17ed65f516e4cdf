package database

import (
	"fleet-dashboard/internal/models"
)

// helper для записи в журнал аудита; без БД ничего не делает
func CreateAuditLog(actor string, role models.UserRole, device, action, details string) {
	if DB == nil {
		return
	}
	record := models.AuditLog{
		Actor:   actor,
		Role:    role,
		Device:  device,
		Action:  action,
		Details: details,
	}
	_ = DB.Create(&record).Error
}

// RecentAuditLogs returns the newest entries first.
func RecentAuditLogs(limit int) ([]models.AuditLog, error) {
	if DB == nil {
		return nil, nil
	}
	var logs []models.AuditLog
	err := DB.Order("created_at desc").Limit(limit).Find(&logs).Error
	return logs, err
}
