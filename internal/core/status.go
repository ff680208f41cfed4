package core

import "fmt"

// Status is the campaign lifecycle state.
type Status string

const (
	StatusDraft       Status = "draft"
	StatusInReview    Status = "in_review"
	StatusChangesMade Status = "changes_made"
	StatusSent        Status = "sent"
	StatusFailed      Status = "failed"
)

// StatusEvent is something that happens to a campaign during review/delivery.
type StatusEvent string

const (
	EventReviewStarted StatusEvent = "review_started" // pipeline finished assembling the draft
	EventEdited        StatusEvent = "edited"         // reviewer changed content/selection
	EventEditsApplied  StatusEvent = "edits_applied"  // campaign re-assembled after edits
	EventSent          StatusEvent = "sent"           // provider accepted the send
	EventDeliveryError StatusEvent = "delivery_error" // unrecoverable provider failure
)

// ErrBadTransition is returned when an event is not legal in the current state.
var ErrBadTransition = fmt.Errorf("illegal campaign status transition")

// Transition returns the status that follows applying event to current.
// Every handler that moves a campaign through its lifecycle goes through here,
// so the precondition checks live in one place.
func Transition(current Status, event StatusEvent) (Status, error) {
	// A delivery failure is terminal from any non-sent state.
	if event == EventDeliveryError {
		if current == StatusSent {
			return current, fmt.Errorf("%w: %s on %s", ErrBadTransition, event, current)
		}
		return StatusFailed, nil
	}

	switch current {
	case StatusDraft:
		if event == EventReviewStarted {
			return StatusInReview, nil
		}
	case StatusInReview:
		switch event {
		case EventEdited:
			return StatusChangesMade, nil
		case EventSent:
			return StatusSent, nil
		}
	case StatusChangesMade:
		switch event {
		case EventEdited:
			return StatusChangesMade, nil
		case EventEditsApplied:
			return StatusInReview, nil
		case EventSent:
			return StatusSent, nil
		}
	}

	return current, fmt.Errorf("%w: %s on %s", ErrBadTransition, event, current)
}

// Terminal reports whether no further transitions are possible.
func (s Status) Terminal() bool {
	return s == StatusSent || s == StatusFailed
}

// Valid reports whether s is a known status value.
func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusInReview, StatusChangesMade, StatusSent, StatusFailed:
		return true
	}
	return false
}
