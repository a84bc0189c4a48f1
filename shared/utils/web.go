package utils

import (
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/itchan-dev/ideamarket/shared/errors"
	"github.com/itchan-dev/ideamarket/shared/logger"
)

// VerboseErrors adds the internal cause to 5xx responses. Off in production.
var VerboseErrors = false

var validate = validator.New(validator.WithRequiredStructEnabled())

type ErrorResponse struct {
	Error   string   `json:"error"`
	Message string   `json:"message"`
	Details []string `json:"details,omitempty"`
}

func WriteErrorAndStatusCode(w http.ResponseWriter, err error) {
	resp := ErrorResponse{}
	status := http.StatusInternalServerError

	if e, ok := err.(*errors.ErrorWithStatusCode); ok {
		status = e.StatusCode
		resp.Message = e.Message
		resp.Details = e.Details
		if status >= 500 && VerboseErrors && e.Err != nil {
			resp.Details = append(resp.Details, e.Err.Error())
		}
	} else {
		// default error is 500
		resp.Message = "Internal server error"
		if VerboseErrors {
			resp.Details = []string{err.Error()}
		}
	}
	resp.Error = http.StatusText(status)

	if status >= 500 {
		logger.Log.Error("request failed", "status", status, "error", unwrapCause(err))
	}

	WriteJSON(w, status, resp)
}

func unwrapCause(err error) error {
	if e, ok := err.(*errors.ErrorWithStatusCode); ok && e.Err != nil {
		return e.Err
	}
	return err
}

func WriteJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Log.Error("failed to encode response", "error", err)
	}
}

// GetIP returns the client address from RemoteAddr. Proxy headers are
// honoured only when the router installs chi's RealIP middleware.
func GetIP(r *http.Request) (string, error) {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		// RealIP rewrites RemoteAddr without a port
		ip = r.RemoteAddr
	}
	if net.ParseIP(ip) == nil {
		return "", fmt.Errorf("no valid ip found in %q", r.RemoteAddr)
	}
	return ip, nil
}

func DecodeValidate(r io.ReadCloser, body any) error {
	if err := json.NewDecoder(r).Decode(body); err != nil {
		logger.Log.Debug("invalid json body", "error", err)
		return errors.Validation("Body is invalid json")
	}
	if err := validate.Struct(body); err != nil {
		logger.Log.Debug("body validation failed", "error", err)
		return errors.Validation("Required fields missing", validationDetails(err)...)
	}
	return nil
}

func Decode(r io.ReadCloser, body any) error {
	if err := json.NewDecoder(r).Decode(body); err != nil {
		logger.Log.Debug("invalid json body", "error", err)
		return errors.Validation("Body is invalid json")
	}
	return nil
}

func validationDetails(err error) []string {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return nil
	}
	details := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			details = append(details, fmt.Sprintf("%s is required", fe.Field()))
		case "email":
			details = append(details, fmt.Sprintf("%s must be a valid email address", fe.Field()))
		case "max":
			details = append(details, fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param()))
		default:
			details = append(details, fmt.Sprintf("%s is invalid", fe.Field()))
		}
	}
	return details
}
