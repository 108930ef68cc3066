package models

import "strconv"

func formatLegacyID(id int64) string {
	return strconv.FormatInt(id, 10)
}
