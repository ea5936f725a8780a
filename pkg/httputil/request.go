package httputil

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
)

// queryTimeLayouts are accepted for time query parameters, most specific first
var queryTimeLayouts = []string{time.RFC3339Nano, time.RFC3339, "2006-01-02"}

// ParsePathInt64 extracts and parses a positive int64 path parameter
func ParsePathInt64(r *http.Request, key string) (int64, error) {
	str := mux.Vars(r)[key]
	if str == "" {
		return 0, fmt.Errorf("missing path parameter: %s", key)
	}
	val, err := strconv.ParseInt(str, 10, 64)
	if err != nil || val <= 0 {
		return 0, fmt.Errorf("invalid %s: %s", key, str)
	}
	return val, nil
}

// ParsePathInt64OrError extracts an int64 path parameter and writes error on failure
func ParsePathInt64OrError(w http.ResponseWriter, r *http.Request, key string) (int64, bool) {
	val, err := ParsePathInt64(r, key)
	if err != nil {
		WriteBadRequest(w, err.Error())
		return 0, false
	}
	return val, true
}

// ParsePathStringOrError extracts a string path parameter and writes error on failure
func ParsePathStringOrError(w http.ResponseWriter, r *http.Request, key string) (string, bool) {
	val := strings.TrimSpace(mux.Vars(r)[key])
	if val == "" {
		WriteBadRequest(w, fmt.Sprintf("missing path parameter: %s", key))
		return "", false
	}
	return val, true
}

// ParseQueryInt extracts and parses an integer query parameter
func ParseQueryInt(r *http.Request, key string, defaultVal int) (int, error) {
	str := r.URL.Query().Get(key)
	if str == "" {
		return defaultVal, nil
	}
	val, err := strconv.Atoi(str)
	if err != nil {
		return 0, fmt.Errorf("invalid integer for query param %s: %s", key, str)
	}
	return val, nil
}

// ParseQueryIntInRange parses an integer query parameter and checks min <= v <= max
func ParseQueryIntInRange(r *http.Request, key string, defaultVal, min, max int) (int, error) {
	val, err := ParseQueryInt(r, key, defaultVal)
	if err != nil {
		return 0, err
	}
	if val < min || val > max {
		return 0, fmt.Errorf("query param %s must be between %d and %d", key, min, max)
	}
	return val, nil
}

// ParseQueryTime parses a time query parameter as RFC3339 or a bare date (UTC).
// The zero time and false are returned when the parameter is absent.
func ParseQueryTime(r *http.Request, key string) (time.Time, bool, error) {
	str := strings.TrimSpace(r.URL.Query().Get(key))
	if str == "" {
		return time.Time{}, false, nil
	}
	for _, layout := range queryTimeLayouts {
		if t, err := time.Parse(layout, str); err == nil {
			return t.UTC(), true, nil
		}
	}
	return time.Time{}, false, fmt.Errorf("invalid time for query param %s: %s", key, str)
}

// RequireHeader returns the trimmed header value, writing a 400 when it is blank
func RequireHeader(w http.ResponseWriter, r *http.Request, name string) (string, bool) {
	val := strings.TrimSpace(r.Header.Get(name))
	if val == "" {
		WriteBadRequest(w, fmt.Sprintf("%s header is required", name))
		return "", false
	}
	return val, true
}
