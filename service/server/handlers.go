package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"unicode"

	"github.com/brojonat/wldsell/service/sell"
)

const (
	maxRequestBodySize = 64 << 10 // 64KB - orders and payloads are small
	defaultListLimit   = 50
	maxListLimit       = 500
)

var errBodyTooLarge = errors.New("request body too large")

// decodeJSON decodes a size-limited JSON request body into dst.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return errBodyTooLarge
		}
		return err
	}
	return nil
}

// writeDecodeError writes the 400 response for a body decodeJSON rejected.
func writeDecodeError(w http.ResponseWriter, err error) {
	if errors.Is(err, errBodyTooLarge) {
		writeError(w, fmt.Sprintf("request body too large: maximum size is %dKB", maxRequestBodySize>>10), http.StatusBadRequest)
		return
	}
	writeError(w, "invalid request body: must be valid JSON", http.StatusBadRequest)
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]string{
		"error": message,
	})
}

// validateUsername validates the seller's username.
func validateUsername(username string) error {
	return sell.ValidateSeller(sell.User{Username: username})
}

// validateReference validates a payment reference id.
func validateReference(ref string) error {
	if ref == "" {
		return errorf("reference is required")
	}
	if len(ref) > 64 {
		return errorf("reference too long")
	}
	for _, r := range ref {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '-' {
			return errorf("invalid reference format")
		}
	}
	return nil
}

// parsePage parses limit and offset query parameters.
func parsePage(r *http.Request) (limit, offset int32, err error) {
	query := r.URL.Query()

	limit = defaultListLimit
	if s := query.Get("limit"); s != "" {
		n, perr := strconv.Atoi(s)
		if perr != nil {
			return 0, 0, errorf("invalid limit parameter: must be an integer")
		}
		if n < 1 {
			return 0, 0, errorf("limit must be at least 1")
		}
		if n > maxListLimit {
			return 0, 0, errorf("limit cannot exceed %d", maxListLimit)
		}
		limit = int32(n)
	}

	if s := query.Get("offset"); s != "" {
		n, perr := strconv.Atoi(s)
		if perr != nil {
			return 0, 0, errorf("invalid offset parameter: must be an integer")
		}
		if n < 0 {
			return 0, 0, errorf("offset cannot be negative")
		}
		offset = int32(n)
	}

	return limit, offset, nil
}

// errorf is a helper to format error strings.
func errorf(format string, args ...interface{}) error {
	return &validationError{msg: strings.TrimSpace(fmt.Sprintf(format, args...))}
}

type validationError struct {
	msg string
}

func (e *validationError) Error() string {
	return e.msg
}
