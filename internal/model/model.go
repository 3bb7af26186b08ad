package model

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

////////////////////////
// DATABASE STRUCTURES //
////////////////////////

// DatabaseModels is a list of all the structs exported here which represent tables in the database schema
var DatabaseModels = []interface{}{
	&ServiceInfo{},
	&Marker{},
	&Route{},
	&SentRecord{},
	&DeleteVote{},
}

////////////////////////
// SYSTEM MODELS
////////////////////////

// ServiceInfo describes the gym this database belongs to
type ServiceInfo struct {
	gorm.Model
	GymName       string `json:"gymName" gorm:"size:127"`
	Description   string `json:"description" gorm:"size:255"`
	SchemaVersion int    `json:"schemaVersion"`
	// Sectors is the layout the service last ran with, as a JSON array.
	Sectors datatypes.JSON `json:"sectors"`
}

func (*ServiceInfo) TableName() string {
	return "service_infos"
}

// SchemaVersion is bumped whenever DatabaseModels changes shape.
const SchemaVersion = 2

////////////////////////
// MAP MODELS
////////////////////////

// Marker is a pin on the gym map. Markers are never deleted; Visible is the soft delete flag.
type Marker struct {
	ID        string    `json:"id" gorm:"primaryKey;size:64"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	X         float64   `json:"x"`
	Y         float64   `json:"y"`
	RouteID   string    `json:"routeId" gorm:"size:64;index"`
	Visible   bool      `json:"visible" gorm:"index"`
}

func (*Marker) TableName() string {
	return "markers"
}

// Route is the climbing problem a marker points at.
type Route struct {
	ID          string       `json:"id" gorm:"primaryKey;size:64"`
	CreatedAt   time.Time    `json:"createdAt"`
	UpdatedAt   time.Time    `json:"updatedAt"`
	Name        string       `json:"routeName" gorm:"size:127"`
	ImageURL    string       `json:"routeImageUrl" gorm:"size:1024"`
	HoldColor   string       `json:"routeHoldColor" gorm:"size:32"`
	GradeColor  string       `json:"routeGradeColor" gorm:"size:32"`
	VotedGrade  string       `json:"votedGrade" gorm:"size:16"`
	SentBy      []SentRecord `json:"sentBy" gorm:"foreignKey:RouteID"`
	DeleteVotes []DeleteVote `json:"votedForDelete" gorm:"foreignKey:RouteID"`
}

func (*Route) TableName() string {
	return "routes"
}

// SentRecord is one climber's ascent of a route. (route_id, sender_id) is unique.
type SentRecord struct {
	ID         uint      `json:"id" gorm:"primaryKey;autoIncrement"`
	CreatedAt  time.Time `json:"createdAt"`
	RouteID    string    `json:"routeId" gorm:"size:64;uniqueIndex:idx_sent_route_sender"`
	SenderID   string    `json:"senderId" gorm:"size:128;uniqueIndex:idx_sent_route_sender"`
	SenderName string    `json:"senderName" gorm:"size:127"`
	Grade      string    `json:"grade" gorm:"size:16"`
	Tries      string    `json:"tries" gorm:"size:16"`
}

func (*SentRecord) TableName() string {
	return "sent_records"
}

// DeleteVote is one vote to remove a route. (route_id, voted_by) is unique.
type DeleteVote struct {
	ID        uint      `json:"id" gorm:"primaryKey;autoIncrement"`
	CreatedAt time.Time `json:"createdAt"`
	RouteID   string    `json:"routeId" gorm:"size:64;uniqueIndex:idx_vote_route_voter"`
	VotedBy   string    `json:"votedBy" gorm:"size:128;uniqueIndex:idx_vote_route_voter"`
}

func (*DeleteVote) TableName() string {
	return "delete_votes"
}
