// internal/app/features/auditlog/types.go
package auditlog

import (
	"github.com/dalemusser/reviewhub/internal/app/store/audit"
	"github.com/dalemusser/reviewhub/internal/app/system/paging"
)

type listResponse struct {
	Events     []audit.Event `json:"events"`
	Pagination paging.Meta   `json:"pagination"`
}

// categoryOption describes one filterable category.
type categoryOption struct {
	Value      string   `json:"value"`
	Label      string   `json:"label"`
	EventTypes []string `json:"eventTypes"`
}

// allCategories returns the available categories with their event types.
func allCategories() []categoryOption {
	return []categoryOption{
		{Value: audit.CategoryMerge, Label: "Merges", EventTypes: eventTypesForCategory(audit.CategoryMerge)},
		{Value: audit.CategoryAdmin, Label: "Branch protection", EventTypes: eventTypesForCategory(audit.CategoryAdmin)},
	}
}

// eventTypesForCategory returns the event types for a given category.
// If category is empty, returns all event types.
func eventTypesForCategory(category string) []string {
	mergeEvents := []string{
		audit.EventMerged,
		audit.EventForceMerged,
		audit.EventForceMergeDenied,
		audit.EventMergeBlocked,
		audit.EventStatusTransition,
	}

	adminEvents := []string{
		audit.EventRuleCreated,
		audit.EventRuleUpdated,
		audit.EventRuleDeactivated,
	}

	switch category {
	case audit.CategoryMerge:
		return mergeEvents
	case audit.CategoryAdmin:
		return adminEvents
	case "":
		all := make([]string, 0, len(mergeEvents)+len(adminEvents))
		all = append(all, mergeEvents...)
		all = append(all, adminEvents...)
		return all
	default:
		return nil
	}
}

func validEventType(category, eventType string) bool {
	for _, e := range eventTypesForCategory(category) {
		if e == eventType {
			return true
		}
	}
	return false
}
