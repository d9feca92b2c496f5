// Package chat implements two-party room identity, message persistence and the
// poll/stream delivery core for patient/clinician conversations.
package chat

import "strings"

// RoomSeparator joins the two participant ids of a room (patient first).
const RoomSeparator = "_"

// DeriveRoomID returns the room id for a patient/doctor pair.
// The result is deterministic and SplitRoomID recovers both ids from it.
func DeriveRoomID(patientID, doctorID string) (string, error) {
	const op = "chat.DeriveRoomID"

	patientID = strings.TrimSpace(patientID)
	doctorID = strings.TrimSpace(doctorID)

	switch {
	case patientID == "" || doctorID == "":
		return "", opErr(op, ErrValidation, "participant id required")
	case strings.Contains(patientID, RoomSeparator) || strings.Contains(doctorID, RoomSeparator):
		return "", opErr(op, ErrValidation, "participant id must not contain "+RoomSeparator)
	case patientID == doctorID:
		return "", opErr(op, ErrValidation, "participants must differ")
	}
	return patientID + RoomSeparator + doctorID, nil
}

// SplitRoomID returns the patient and doctor ids encoded in roomID.
// ok is false unless roomID holds exactly two non-empty tokens.
func SplitRoomID(roomID string) (patientID, doctorID string, ok bool) {
	parts := strings.Split(roomID, RoomSeparator)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}

// AuthorizeParticipant reports whether requesterID is one of the two participants of roomID.
// Malformed room ids are never authorized.
func AuthorizeParticipant(roomID, requesterID string) bool {
	if requesterID == "" {
		return false
	}
	a, b, ok := SplitRoomID(roomID)
	if !ok {
		return false
	}
	return requesterID == a || requesterID == b
}

// OtherParticipant returns the counterpart of requesterID in roomID.
func OtherParticipant(roomID, requesterID string) (string, bool) {
	a, b, ok := SplitRoomID(roomID)
	if !ok {
		return "", false
	}
	switch requesterID {
	case a:
		return b, true
	case b:
		return a, true
	default:
		return "", false
	}
}
