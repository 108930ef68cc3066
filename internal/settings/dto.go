package settings

import (
	"time"

	"github.com/credenza-market/credenza-backend/pkg/db/models"
)

// SettingDTO is the transport shape of one platform tunable.
type SettingDTO struct {
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

func FromModels(rows []models.Setting) []SettingDTO {
	out := make([]SettingDTO, 0, len(rows))
	for _, row := range rows {
		out = append(out, SettingDTO{Key: row.Key, Value: row.Value, UpdatedAt: row.UpdatedAt})
	}
	return out
}
