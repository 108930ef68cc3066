package enums

import "fmt"

// StockPublishStatus marks whether a stock record counts toward public stock.
type StockPublishStatus string

const (
	StockPublishStatusPublished   StockPublishStatus = "published"
	StockPublishStatusUnpublished StockPublishStatus = "unpublished"
)

var validStockPublishStatuses = []StockPublishStatus{
	StockPublishStatusPublished,
	StockPublishStatusUnpublished,
}

// IsValid reports whether the value is a known StockPublishStatus.
func (s StockPublishStatus) IsValid() bool {
	for _, candidate := range validStockPublishStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseStockPublishStatus converts raw input into a StockPublishStatus.
func ParseStockPublishStatus(value string) (StockPublishStatus, error) {
	for _, candidate := range validStockPublishStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid stock publish status %q", value)
}
