package errors

import (
	"fmt"

	"github.com/dpshade/pocket-kb/internal/logging"
)

// ErrorHandler provides interface-specific error handling
type ErrorHandler interface {
	HandleError(err error) error
	FormatError(err error) string
}

// CLIErrorHandler handles errors for the command-line interface
type CLIErrorHandler struct {
	Verbose bool
	logger  *logging.Logger
}

// NewCLIErrorHandler creates a new CLI error handler
func NewCLIErrorHandler(verbose bool, logger *logging.Logger) *CLIErrorHandler {
	if logger == nil {
		logger = logging.Nop()
	}
	return &CLIErrorHandler{
		Verbose: verbose,
		logger:  logger,
	}
}

// HandleError logs the error and returns a display-ready error
func (h *CLIErrorHandler) HandleError(err error) error {
	if err == nil {
		return nil
	}
	appErr := GetAppError(err)

	if h.Verbose {
		kv := []interface{}{"code", appErr.Code, "category", appErr.Category, "severity", appErr.Severity}
		if appErr.Details != "" {
			kv = append(kv, "details", appErr.Details)
		}
		if appErr.Cause != nil {
			kv = append(kv, "cause", appErr.Cause.Error())
		}
		h.logger.Error(appErr.Message, kv...)
	}

	return fmt.Errorf("%s", h.FormatError(appErr))
}

// FormatError formats an error for terminal display
func (h *CLIErrorHandler) FormatError(err error) string {
	appErr := GetAppError(err)

	msg := appErr.Message
	if appErr.Details != "" && (h.Verbose || appErr.Category == CategoryStructural) {
		msg = fmt.Sprintf("%s: %s", msg, appErr.Details)
	}

	switch appErr.Severity {
	case SeverityCritical:
		return fmt.Sprintf("CRITICAL: %s", msg)
	case SeverityError:
		return fmt.Sprintf("ERROR: %s", msg)
	case SeverityWarning:
		return fmt.Sprintf("WARNING: %s", msg)
	case SeverityInfo:
		return fmt.Sprintf("INFO: %s", msg)
	default:
		return msg
	}
}
