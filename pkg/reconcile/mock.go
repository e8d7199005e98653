package reconcile

import (
	"floodwatch/pkg/domain"
	"floodwatch/pkg/govfeed"
)

func mockFloods() []govfeed.FloodCandidate {
	return []govfeed.FloodCandidate{
		{
			Title:       "Kelaniya River High Risk",
			Description: "Rapidly rising water level near Peliyagoda.",
			Severity:    domain.SeverityHigh,
			Location:    domain.Location{Lat: 6.9639, Lng: 79.9018},
			Status:      domain.FloodActive,
		},
		{
			Title:       "Kaduwela Minor Flooding",
			Description: "Localized street flooding reported.",
			Severity:    domain.SeverityLow,
			Location:    domain.Location{Lat: 6.9319, Lng: 79.9730},
			Status:      domain.FloodActive,
		},
		{
			Title:       "Gampaha Medium Flooding",
			Description: "Waterlogged areas across town.",
			Severity:    domain.SeverityMedium,
			Location:    domain.Location{Lat: 7.0917, Lng: 79.9994},
			Status:      domain.FloodActive,
		},
	}
}

func mockShelters() []govfeed.ShelterCandidate {
	colombo, gampaha := 300, 200
	return []govfeed.ShelterCandidate{
		{
			Name:       "Colombo District Community Hall",
			Capacity:   &colombo,
			Facilities: "Food, water, first aid",
			Contact:    "+94 11 123 4567",
			Location:   domain.Location{Lat: 6.9271, Lng: 79.8612},
			Status:     domain.ShelterAvailable,
		},
		{
			Name:       "Gampaha School Hall",
			Capacity:   &gampaha,
			Facilities: "Beds, sanitation, medicine",
			Contact:    "+94 33 987 6543",
			Location:   domain.Location{Lat: 7.0900, Lng: 79.9900},
			Status:     domain.ShelterAvailable,
		},
	}
}
