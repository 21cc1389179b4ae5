package lifecycle

import "github.com/tuapuikia/dispatch/internal/domain"

// Tracked snapshot fields.
const (
	FieldDescription = "description"
	FieldStatus      = "status"
	FieldTitle       = "title"
)

// trackedFields fixes the order changes are reported in. Two runs over the
// same pair of snapshots always produce the same sequence.
var trackedFields = []string{FieldDescription, FieldStatus, FieldTitle}

// Diff compares two snapshots of the same incident and returns one change
// per tracked field whose value differs, in trackedFields order. Identical
// snapshots produce an empty diff. A nil snapshot on either side, or
// snapshots of two different incidents, produce no changes: there is
// nothing meaningful to compare.
func Diff(previous, current *domain.Snapshot) []domain.ChangeEvent {
	if previous == nil || current == nil {
		return nil
	}
	if previous.IncidentID != current.IncidentID {
		return nil
	}

	var changes []domain.ChangeEvent
	for _, field := range trackedFields {
		prev := fieldValue(previous, field)
		curr := fieldValue(current, field)
		if prev == curr {
			continue
		}
		changes = append(changes, domain.ChangeEvent{
			IncidentID: current.IncidentID,
			Field:      field,
			Previous:   prev,
			New:        curr,
		})
	}
	return changes
}

func fieldValue(s *domain.Snapshot, field string) string {
	switch field {
	case FieldDescription:
		return s.Description
	case FieldStatus:
		return string(s.Status)
	case FieldTitle:
		return s.Title
	}
	return ""
}
