package source

import (
	"errors"
	"fmt"
)

// ErrAllStrategiesFailed is recorded on a Page when no parameter strategy
// produced a usable response.
var ErrAllStrategiesFailed = errors.New("all pagination strategies failed")

// ErrorClass represents a classification of fetch failures.
type ErrorClass string

const (
	// ErrorClassNetwork covers transport failures and timeouts.
	ErrorClassNetwork ErrorClass = "network"

	// ErrorClassClient covers 4xx responses.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer covers 5xx responses.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassDecode covers 2xx responses whose body is not a JSON array of objects.
	ErrorClassDecode ErrorClass = "decode"
)

// SourceError describes why one strategy failed for one page.
type SourceError struct {
	Strategy   string
	StatusCode int
	Class      ErrorClass
	Message    string
	Err        error
}

// Error implements the error interface.
func (e *SourceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("source %s error via %s (status %d): %s: %v",
			e.Class, e.Strategy, e.StatusCode, e.Message, e.Err)
	}
	return fmt.Sprintf("source %s error via %s (status %d): %s",
		e.Class, e.Strategy, e.StatusCode, e.Message)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *SourceError) Unwrap() error {
	return e.Err
}

// classifyStatus maps a non-2xx status code to an error class.
func classifyStatus(statusCode int) ErrorClass {
	switch {
	case statusCode >= 500:
		return ErrorClassServer
	case statusCode >= 400:
		return ErrorClassClient
	default:
		// 1xx/3xx that survived redirects are unusable as data.
		return ErrorClassClient
	}
}
