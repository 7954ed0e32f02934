// Package health aggregates named readiness and liveness checks into a single
// HTTP status and JSON document.
package health

import (
	"context"
	"encoding/json"
	"net/http"
)

// Check is a named probe. A message that is itself a JSON object is nested
// under "dependencies" instead of being quoted.
type Check struct {
	Name  string
	Check func(ctx context.Context, checkLiveness bool) (int, string, error)
}

type result struct {
	Resource     string          `json:"resource"`
	Status       int             `json:"status"`
	Error        string          `json:"error,omitempty"`
	Message      string          `json:"message,omitempty"`
	Dependencies json.RawMessage `json:"dependencies,omitempty"`
}

type report struct {
	Status       int      `json:"status"`
	Dependencies []result `json:"dependencies"`
}

// CheckAll runs every check and reports http.StatusServiceUnavailable when any
// of them fails or returns a status other than http.StatusOK.
func CheckAll(ctx context.Context, checkLiveness bool, checks []Check) (int, string, error) {
	r := report{
		Status:       http.StatusOK,
		Dependencies: make([]result, 0, len(checks)),
	}

	for _, check := range checks {
		status, message, err := check.Check(ctx, checkLiveness)
		if err != nil || status != http.StatusOK {
			r.Status = http.StatusServiceUnavailable
		}

		res := result{Resource: check.Name, Status: status}

		if err != nil {
			res.Error = err.Error()
		}

		if isObject(message) {
			res.Dependencies = json.RawMessage(message)
		} else {
			res.Message = message
		}

		r.Dependencies = append(r.Dependencies, res)
	}

	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return http.StatusInternalServerError, "", err
	}

	return r.Status, string(data), nil
}

func isObject(message string) bool {
	return len(message) > 1 && message[0] == '{' && message[len(message)-1] == '}' && json.Valid([]byte(message))
}
