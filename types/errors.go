package types

import (
	"errors"
	"fmt"
	"strconv"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrTimeNotFound     = fmt.Errorf("time %w", ErrNotFound)
	ErrUpstreamFormat   = errors.New("upstream format error")
	ErrUpstreamHTTP     = errors.New("upstream http error")
	ErrParse            = errors.New("parse error")
	ErrTokenUnavailable = fmt.Errorf("security token unavailable: %w", ErrUpstreamFormat)
)

var (
	ErrCacheWrite    = errors.New("cache write failed")
	ErrCacheKeyEmpty = errors.New("cache key empty")
	ErrCacheType     = errors.New("cache type unknown")
)

var ErrMetricsType = errors.New("metrics type unknown")

var (
	ErrConfigInvalid        = errors.New("config invalid")
	ErrConfigNotFound       = errors.New("config not found")
	ErrConfigLoadFailed     = errors.New("config load failed")
	ErrConfigValidateFailed = errors.New("config validate failed")
)

var (
	ErrServerNotRunning     = errors.New("server not running")
	ErrServerAlreadyRunning = errors.New("server already running")
)

var (
	ErrMiddlewareInvalid   = errors.New("middleware invalid")
	ErrMiddlewareDuplicate = errors.New("middleware duplicate weight")
)

var (
	ErrCronJobNameIsEmpty    = errors.New("cron job name is empty")
	ErrCronJobIsNil          = errors.New("cron job is nil")
	ErrCronExpressionInvalid = errors.New("cron expression invalid")
	ErrCronJobExists         = errors.New("cron job exists")
	ErrCronJobNotFound       = errors.New("cron job not found")
	ErrCronJobFailed         = errors.New("cron job failed")
	ErrCronIsRunning         = errors.New("cron is running")
	ErrCronIsNotRunning      = errors.New("cron is not running")
)

var (
	ErrLogFileIsEmpty     = errors.New("log file is empty")
	ErrLogFileWrongFormat = errors.New("log file wrong format")
)

var (
	ErrServiceIsRunning    = errors.New("service is running")
	ErrServiceIsNotRunning = errors.New("service is not running")
)

// UpstreamHTTPError reports a non-success status from the operator website.
type UpstreamHTTPError struct {
	URL    string
	Status int
}

func NewUpstreamHTTPError(url string, status int) *UpstreamHTTPError {
	return &UpstreamHTTPError{URL: url, Status: status}
}

func (e *UpstreamHTTPError) Error() string {
	return "upstream http error: status " + strconv.Itoa(e.Status) + " from " + e.URL
}

func (e *UpstreamHTTPError) Is(target error) bool {
	return target == ErrUpstreamHTTP
}

func Errorf(baseErr error, format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", baseErr, fmt.Sprintf(format, args...))
}

func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

func NewErrorf(format string, args ...interface{}) error {
	return fmt.Errorf(format, args...)
}

func IsError(err, target error) bool {
	return errors.Is(err, target)
}

// IsNotFound reports whether err should surface as a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
