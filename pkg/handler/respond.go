package handler

import (
	"encoding/json"
	goerrors "errors"
	"net/http"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/iot-for-tillgenglighet/api-pavement/internal/pkg/errors"
	"github.com/iot-for-tillgenglighet/api-pavement/internal/pkg/pavement"
)

const (
	actorIDHeader   = "X-Actor-ID"
	actorRoleHeader = "X-Actor-Role"
)

var statusCodes = map[errors.Kind]int{
	errors.KindNotFound:          http.StatusNotFound,
	errors.KindValidation:        http.StatusBadRequest,
	errors.KindConflict:          http.StatusConflict,
	errors.KindInvalidTransition: http.StatusUnprocessableEntity,
	errors.KindAccess:            http.StatusForbidden,
	errors.KindInternal:          http.StatusInternalServerError,
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

//actorFromRequest reads the identity forwarded by the gateway
func actorFromRequest(r *http.Request) (pavement.Actor, error) {
	id := strings.TrimSpace(r.Header.Get(actorIDHeader))
	role := pavement.Role(strings.ToLower(strings.TrimSpace(r.Header.Get(actorRoleHeader))))

	if id == "" {
		return pavement.Actor{}, errors.Access("missing %s header", actorIDHeader)
	}

	switch role {
	case pavement.RoleInspector, pavement.RoleEngineer, pavement.RoleAdmin:
		return pavement.Actor{ID: id, Role: role}, nil
	}

	return pavement.Actor{}, errors.Access("unknown role \"%s\"", role)
}

func decodeBody(r *http.Request, v interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(v); err != nil {
		return errors.Validation("malformed request body: %s", err.Error())
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Add("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Errorf("Failed to encode response: %s", err.Error())
	}
}

func writeError(w http.ResponseWriter, err error) {
	kind := errors.KindOf(err)

	message := err.Error()
	if kind == errors.KindInternal {
		var typed *errors.Error
		if !goerrors.As(err, &typed) {
			log.Errorf("Unexpected error reached the handler: %s", message)
			message = "internal error"
		}
	}

	writeJSON(w, statusCodes[kind], errorResponse{Code: kind.String(), Message: message})
}
