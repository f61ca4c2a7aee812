package tools

import (
	"fmt"
	"strconv"

	apperrors "github.com/tareqmamari/logs-ratio-server/internal/errors"
)

// GetStringParam safely gets a string parameter from arguments.
// Numbers are converted to their decimal form.
func GetStringParam(arguments map[string]interface{}, key string, required bool) (string, error) {
	val, ok := arguments[key]
	if !ok || val == nil {
		if required {
			return "", apperrors.NewMissingParameter(key)
		}
		return "", nil
	}

	switch v := val.(type) {
	case string:
		if v == "" && required {
			return "", apperrors.NewMissingParameter(key)
		}
		return v, nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	case int:
		return strconv.Itoa(v), nil
	default:
		return "", apperrors.NewInvalidInput(
			fmt.Sprintf("invalid type for argument %s: expected string, got %T", key, val))
	}
}

// GetIntParam safely gets an integer parameter from arguments
func GetIntParam(arguments map[string]interface{}, key string, required bool) (int, error) {
	val, ok := arguments[key]
	if !ok || val == nil {
		if required {
			return 0, apperrors.NewMissingParameter(key)
		}
		return 0, nil
	}

	switch v := val.(type) {
	case float64:
		if v != float64(int(v)) {
			return 0, apperrors.NewInvalidInput(fmt.Sprintf("argument %s must be a whole number", key))
		}
		return int(v), nil
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case string:
		n, err := strconv.Atoi(v)
		if err != nil {
			return 0, apperrors.NewInvalidInput(fmt.Sprintf("argument %s must be a number", key)).WithCause(err)
		}
		return n, nil
	default:
		return 0, apperrors.NewInvalidInput(
			fmt.Sprintf("invalid type for argument %s: expected number, got %T", key, val))
	}
}

// GetNonNegativeIntParam is GetIntParam rejecting negative values.
func GetNonNegativeIntParam(arguments map[string]interface{}, key string, required bool) (int, error) {
	n, err := GetIntParam(arguments, key, required)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, apperrors.NewInvalidInput(fmt.Sprintf("argument %s must not be negative", key))
	}
	return n, nil
}
