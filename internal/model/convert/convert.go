// Package convert maps GORM models to and from core types
package convert

import (
	"github.com/huiputin/routemap/internal/model"
	"github.com/huiputin/routemap/pkg/core"
)

// MarkerToCore converts a GORM Marker to a core.Marker.
func MarkerToCore(m model.Marker) core.Marker {
	return core.Marker{
		ID:      m.ID,
		X:       m.X,
		Y:       m.Y,
		RouteID: m.RouteID,
		Visible: m.Visible,
	}
}

// MarkersToCore converts a slice of GORM markers, keeping order.
func MarkersToCore(ms []model.Marker) []core.Marker {
	out := make([]core.Marker, len(ms))
	for i, m := range ms {
		out[i] = MarkerToCore(m)
	}
	return out
}

// CoreToMarker converts a core.Marker to a GORM Marker.
func CoreToMarker(m core.Marker) model.Marker {
	return model.Marker{
		ID:      m.ID,
		X:       m.X,
		Y:       m.Y,
		RouteID: m.RouteID,
		Visible: m.Visible,
	}
}

// RouteToCore converts a GORM Route with preloaded associations to core.RouteData.
// Sends and votes are ordered by insertion.
func RouteToCore(r model.Route) core.RouteData {
	data := core.RouteData{
		ID:              r.ID,
		RouteName:       r.Name,
		RouteImageURL:   r.ImageURL,
		RouteHoldColor:  r.HoldColor,
		RouteGradeColor: r.GradeColor,
		VotedGrade:      r.VotedGrade,
		SentBy:          make([]core.SentRecord, 0, len(r.SentBy)),
		VotedForDelete:  make([]core.DeleteVote, 0, len(r.DeleteVotes)),
	}
	for _, s := range r.SentBy {
		data.SentBy = append(data.SentBy, SentRecordToCore(s))
	}
	for _, v := range r.DeleteVotes {
		data.VotedForDelete = append(data.VotedForDelete, core.DeleteVote{VotedBy: v.VotedBy})
	}
	return data
}

// DraftToRoute builds the GORM Route for a new route document.
func DraftToRoute(id string, d core.RouteDraft) model.Route {
	return model.Route{
		ID:         id,
		Name:       d.Name,
		ImageURL:   d.ImageURL,
		HoldColor:  d.HoldColor,
		GradeColor: d.Grade,
	}
}

// SentRecordToCore converts a GORM SentRecord to a core.SentRecord.
func SentRecordToCore(s model.SentRecord) core.SentRecord {
	return core.SentRecord{
		SenderID:   s.SenderID,
		SenderName: s.SenderName,
		Grade:      s.Grade,
		Tries:      s.Tries,
	}
}

// CoreToSentRecord converts a core.SentRecord for the given route.
func CoreToSentRecord(routeID string, s core.SentRecord) model.SentRecord {
	return model.SentRecord{
		RouteID:    routeID,
		SenderID:   s.SenderID,
		SenderName: s.SenderName,
		Grade:      s.Grade,
		Tries:      s.Tries,
	}
}
