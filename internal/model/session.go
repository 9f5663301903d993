package model

import "time"

type SessionStatus string

const (
	SessionScheduled SessionStatus = "scheduled"
	SessionActive    SessionStatus = "active"
	SessionCompleted SessionStatus = "completed"
	SessionCancelled SessionStatus = "cancelled"
)

// Session is the persistent scheduling record for one therapy session.
// TherapistID owns the therapist role, StudentID the student role.
type Session struct {
	ID          string        `json:"id" bson:"_id"`
	TherapistID string        `json:"therapistId" bson:"therapistId"`
	StudentID   string        `json:"studentId" bson:"studentId"`
	Status      SessionStatus `json:"status" bson:"status"`
	ScheduledAt time.Time     `json:"scheduledAt" bson:"scheduledAt"`
	StartedAt   *time.Time    `json:"startedAt,omitempty" bson:"startedAt,omitempty"`
	EndedAt     *time.Time    `json:"endedAt,omitempty" bson:"endedAt,omitempty"`
	FinalScore  *Scores       `json:"finalScore,omitempty" bson:"finalScore,omitempty"`
	CreatedAt   time.Time     `json:"createdAt" bson:"createdAt"`
}

// OwnerFor returns the user id entitled to the given role.
func (s *Session) OwnerFor(role Role) string {
	switch role {
	case RoleTherapist:
		return s.TherapistID
	case RoleStudent:
		return s.StudentID
	}
	return ""
}

// Participants returns both participant ids, therapist first.
func (s *Session) Participants() []string {
	return []string{s.TherapistID, s.StudentID}
}

// CreateSessionRequest is the request body for scheduling a session
type CreateSessionRequest struct {
	StudentID   string    `json:"studentId"`
	ScheduledAt time.Time `json:"scheduledAt"`
}
