package lifecycle

import (
	"strings"
	"unicode/utf8"

	"github.com/iot-for-tillgenglighet/api-pavement/internal/pkg/errors"
	"github.com/iot-for-tillgenglighet/api-pavement/internal/pkg/pavement"
)

//Transition names a mutation of the report lifecycle
type Transition string

const (
	TransitionCreate              Transition = "create"
	TransitionEdit                Transition = "edit"
	TransitionApprove             Transition = "approve"
	TransitionReject              Transition = "reject"
	TransitionRequestCancellation Transition = "request-cancellation"
	TransitionResolveCancellation Transition = "resolve-cancellation"
	TransitionDelete              Transition = "delete"
)

const (
	minRejectionReasonLength    = 5
	minCancellationReasonLength = 10
)

//Permissions is the role × transition guard table consulted before every mutation
var Permissions = map[Transition][]pavement.Role{
	TransitionCreate:              {pavement.RoleInspector},
	TransitionEdit:                {pavement.RoleInspector},
	TransitionApprove:             {pavement.RoleEngineer},
	TransitionReject:              {pavement.RoleEngineer},
	TransitionRequestCancellation: {pavement.RoleEngineer, pavement.RoleAdmin},
	TransitionResolveCancellation: {pavement.RoleAdmin},
	TransitionDelete:              {pavement.RoleInspector, pavement.RoleAdmin},
}

//allowedFrom lists the statuses each transition may start from. Create has no source status.
var allowedFrom = map[Transition][]pavement.ReportStatus{
	TransitionEdit:                {pavement.StatusPending, pavement.StatusRejected},
	TransitionApprove:             {pavement.StatusPending, pavement.StatusCorrected},
	TransitionReject:              {pavement.StatusPending, pavement.StatusCorrected, pavement.StatusRejected, pavement.StatusCancellationPending},
	TransitionRequestCancellation: {pavement.StatusApproved},
	TransitionResolveCancellation: {pavement.StatusCancellationPending},
	TransitionDelete:              {pavement.StatusPending, pavement.StatusRejected},
}

//Authorize returns an access error unless the actor holds a role allowed for the transition
func Authorize(actor pavement.Actor, t Transition) error {
	for _, role := range Permissions[t] {
		if actor.Role == role {
			return nil
		}
	}

	return errors.Access("role %q may not %s reports", actor.Role, t).WithContext("actor", actor.ID)
}

//CanTransition returns true if the transition may start from the given status
func CanTransition(t Transition, from pavement.ReportStatus) bool {
	for _, s := range allowedFrom[t] {
		if s == from {
			return true
		}
	}
	return false
}

func checkTransition(t Transition, report pavement.Report) error {
	if !CanTransition(t, report.Status) {
		return errors.InvalidTransition("cannot %s a report in status %s", t, report.Status).WithContext("report", report.ID)
	}
	return nil
}

//validateReason trims the reason and checks its length in characters
func validateReason(reason string, minLength int) (string, error) {
	trimmed := strings.TrimSpace(reason)
	if utf8.RuneCountInString(trimmed) < minLength {
		return "", errors.Validation("reason must be at least %d characters long", minLength)
	}
	return trimmed, nil
}
