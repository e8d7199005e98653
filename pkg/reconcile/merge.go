package reconcile

import (
	"floodwatch/pkg/domain"
	"floodwatch/pkg/govfeed"
)

// NewFlood builds a record for a candidate with no stored match, filling
// absent optional fields with their defaults.
func NewFlood(c govfeed.FloodCandidate) domain.Flood {
	f := domain.Flood{
		Title:       c.Title,
		Description: c.Description,
		Severity:    c.Severity,
		Location:    c.Location,
		Status:      c.Status,
	}
	if f.Severity == "" {
		f.Severity = domain.SeverityLow
	}
	if f.Status == "" {
		f.Status = domain.FloodActive
	}
	return f
}

// MergeFlood coalesces candidate fields onto a stored flood: only non-empty
// candidate values overwrite. changed reports whether anything differs.
func MergeFlood(existing domain.Flood, c govfeed.FloodCandidate) (merged domain.Flood, changed bool) {
	merged = existing
	if c.Description != "" {
		merged.Description = c.Description
	}
	if c.Severity != "" {
		merged.Severity = c.Severity
	}
	if c.Status != "" {
		merged.Status = c.Status
	}
	changed = merged.Description != existing.Description ||
		merged.Severity != existing.Severity ||
		merged.Status != existing.Status
	return merged, changed
}

// NewShelter builds a shelter for an unmatched candidate. Capacity defaults
// to zero (unknown) and status to available, then the occupancy rule applies.
func NewShelter(c govfeed.ShelterCandidate) domain.Shelter {
	capacity := 0
	if c.Capacity != nil {
		capacity = *c.Capacity
	}
	s := domain.Shelter{
		Name:       c.Name,
		Capacity:   &capacity,
		Facilities: c.Facilities,
		Contact:    c.Contact,
		Location:   c.Location,
		Status:     c.Status,
	}
	if s.Status == "" {
		s.Status = domain.ShelterAvailable
	}
	s.DeriveStatus()
	return s
}

// MergeShelter coalesces capacity (positive only), facilities, contact and
// status onto a stored shelter and re-derives status from occupancy. A closed
// shelter is only reopened by an explicit feed status.
func MergeShelter(existing domain.Shelter, c govfeed.ShelterCandidate) (merged domain.Shelter, changed bool) {
	merged = existing
	if c.Capacity != nil && *c.Capacity > 0 {
		capacity := *c.Capacity
		merged.Capacity = &capacity
	}
	if c.Facilities != "" {
		merged.Facilities = c.Facilities
	}
	if c.Contact != "" {
		merged.Contact = c.Contact
	}
	if c.Status != "" {
		merged.Status = c.Status
	}
	merged.DeriveStatus()

	changed = !sameCapacity(merged.Capacity, existing.Capacity) ||
		merged.Facilities != existing.Facilities ||
		merged.Contact != existing.Contact ||
		merged.Status != existing.Status
	return merged, changed
}

func sameCapacity(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
