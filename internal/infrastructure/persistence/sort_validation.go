package persistence

import (
	"strings"
)

// ValidateSortOrder validates and normalizes the sort order to ASC or DESC.
// Returns "DESC" as the default if the input is invalid or empty.
func ValidateSortOrder(orderDir string) string {
	normalized := strings.ToUpper(strings.TrimSpace(orderDir))
	if normalized == "ASC" {
		return "ASC"
	}
	return "DESC"
}

// ValidateSortField validates the sort field against a whitelist of allowed fields.
// Returns the defaultField if the input is invalid, empty, or not in the whitelist.
func ValidateSortField(sortField string, allowedFields map[string]bool, defaultField string) string {
	trimmed := strings.TrimSpace(sortField)
	if trimmed == "" {
		return defaultField
	}
	if allowedFields[trimmed] {
		return trimmed
	}
	return defaultField
}

// StockLevelSortFields contains allowed sort fields for stock levels
var StockLevelSortFields = map[string]bool{
	"id":           true,
	"created_at":   true,
	"updated_at":   true,
	"item_id":      true,
	"warehouse_id": true,
	"qty_on_hand":  true,
	"qty_reserved": true,
	"unit_cost":    true,
}

// LotSortFields contains allowed sort fields for lots
var LotSortFields = map[string]bool{
	"id":            true,
	"created_at":    true,
	"updated_at":    true,
	"item_id":       true,
	"warehouse_id":  true,
	"qty_received":  true,
	"qty_available": true,
	"unit_cost":     true,
	"received_at":   true,
	"expiry_at":     true,
}

// ReservationClaimSortFields contains allowed sort fields for reservation claims
var ReservationClaimSortFields = map[string]bool{
	"id":          true,
	"created_at":  true,
	"updated_at":  true,
	"quantity":    true,
	"source_type": true,
	"source_id":   true,
	"expire_at":   true,
}

// LotConsumptionSortFields contains allowed sort fields for lot consumptions
var LotConsumptionSortFields = map[string]bool{
	"id":                true,
	"created_at":        true,
	"consuming_line_id": true,
	"qty_consumed":      true,
	"consumed_at":       true,
}

// ThresholdSortFields contains allowed sort fields for approval thresholds
var ThresholdSortFields = map[string]bool{
	"id":            true,
	"created_at":    true,
	"updated_at":    true,
	"document_type": true,
	"min_amount":    true,
	"approver_role": true,
	"sla_hours":     true,
}
