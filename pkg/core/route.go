// pkg/core/route.go
package core

// DeleteQuorum is the number of independent delete votes that hides a route.
const DeleteQuorum = 3

// SentRecord is one climber's report of having sent a route.
type SentRecord struct {
	SenderID   string `json:"senderId"`
	SenderName string `json:"senderName"`
	Grade      string `json:"grade"`
	Tries      string `json:"tries"`
}

// DeleteVote is one vote to remove a route from the map.
type DeleteVote struct {
	VotedBy string `json:"votedBy"`
}

// RouteData is the route document referenced by a Marker.
// SentBy and VotedForDelete are append-only; VotedGrade is maintained by the store.
type RouteData struct {
	ID              string       `json:"id"`
	RouteName       string       `json:"routeName"`
	RouteImageURL   string       `json:"routeImageUrl"`
	RouteHoldColor  string       `json:"routeHoldColor"`
	RouteGradeColor string       `json:"routeGradeColor"`
	VotedGrade      string       `json:"votedGrade"`
	SentBy          []SentRecord `json:"sentBy"`
	VotedForDelete  []DeleteVote `json:"votedForDelete"`
}

// HasVoted reports whether voterID already voted for delete.
func (r RouteData) HasVoted(voterID string) bool {
	for _, v := range r.VotedForDelete {
		if v.VotedBy == voterID {
			return true
		}
	}
	return false
}

// HasSent reports whether senderID already marked the route as sent.
func (r RouteData) HasSent(senderID string) bool {
	for _, s := range r.SentBy {
		if s.SenderID == senderID {
			return true
		}
	}
	return false
}

// SenderNames lists the names of everyone who sent the route, in send order.
func (r RouteData) SenderNames() []string {
	names := make([]string, 0, len(r.SentBy))
	for _, s := range r.SentBy {
		names = append(names, s.SenderName)
	}
	return names
}

// RouteDraft carries the user input for a new route.
// ImagePath is a local file that still has to be uploaded; ImageURL is used as is.
type RouteDraft struct {
	Name      string `json:"name"`
	Grade     string `json:"grade"`
	HoldColor string `json:"holdColor"`
	ImageURL  string `json:"imageUrl,omitempty"`
	ImagePath string `json:"imagePath,omitempty"`
}
