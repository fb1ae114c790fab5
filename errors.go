package automation

import (
	stderrors "errors"
	"fmt"
	"strings"

	apperrors "github.com/goliatone/go-errors"
)

const (
	ErrCodeInvalidConfiguration = "INVALID_CONFIGURATION"
	ErrCodeUnitNotFound         = "UNIT_NOT_FOUND"
	ErrCodeUnitExecution        = "UNIT_EXECUTION_FAILED"
	ErrCodeInvalidAutomation    = "AUTOMATION_INVALID"
	ErrCodeStateStore           = "STATE_STORE_FAILED"
)

var (
	ErrInvalidConfiguration = apperrors.New("invalid configuration", apperrors.CategoryValidation).
				WithTextCode(ErrCodeInvalidConfiguration)
	ErrUnitNotFound = apperrors.New("unit not found", apperrors.CategoryBadInput).
			WithTextCode(ErrCodeUnitNotFound)
	ErrUnitExecution = apperrors.New("unit execution failed", apperrors.CategoryHandler).
				WithTextCode(ErrCodeUnitExecution)
	ErrInvalidAutomation = apperrors.New("invalid automation", apperrors.CategoryBadInput).
				WithTextCode(ErrCodeInvalidAutomation)
	ErrStateStore = apperrors.New("state store failure", apperrors.CategoryExternal).
			WithTextCode(ErrCodeStateStore)
)

// NewInvalidConfigurationError reports a parameter bag that could not be
// converted to the unit's declared configuration type.
func NewInvalidConfigurationError(info UnitInfo, source error) *apperrors.Error {
	msg := fmt.Sprintf("%s %q: invalid configuration", info.Kind, info.Name)
	if source != nil {
		msg += ": " + source.Error()
	}
	return cloneError(ErrInvalidConfiguration, msg, source, map[string]any{
		"unit_kind":   string(info.Kind),
		"unit":        info.Name,
		"config_type": info.ConfigTypeName(),
	})
}

// NewUnitNotFoundError reports a registry miss; the message carries the name.
func NewUnitNotFoundError(kind UnitKind, name string) *apperrors.Error {
	return cloneError(ErrUnitNotFound, fmt.Sprintf("%s %q not found", kind, name), nil, map[string]any{
		"unit_kind": string(kind),
		"unit":      name,
	})
}

// WrapUnitExecutionError wraps a fault raised by unit logic. Errors that are
// already part of the taxonomy are returned untouched.
func WrapUnitExecutionError(info UnitInfo, alias string, source error) error {
	if source == nil {
		return nil
	}
	if IsInvalidConfiguration(source) || IsUnitExecution(source) || IsUnitNotFound(source) {
		return source
	}
	label := info.Name
	if alias = strings.TrimSpace(alias); alias != "" && alias != info.Name {
		label = alias + " (" + info.Name + ")"
	}
	return cloneError(ErrUnitExecution, fmt.Sprintf("%s %s failed: %v", info.Kind, label, source), source, map[string]any{
		"unit_kind": string(info.Kind),
		"unit":      info.Name,
		"alias":     alias,
	})
}

// NewUnitPanicError reports a panic raised by unit logic, with the cleaned
// stack in metadata.
func NewUnitPanicError(info UnitInfo, alias string, pe *PanicError) error {
	err := WrapUnitExecutionError(info, alias, pe)
	if ge, ok := err.(*apperrors.Error); ok && pe != nil {
		return ge.WithMetadata(map[string]any{"stack": string(pe.Stack)})
	}
	return err
}

// NewAutomationPanicError reports a panic that escaped every unit boundary of
// a run, such as one raised by an interceptor.
func NewAutomationPanicError(alias string, pe *PanicError) error {
	return cloneError(ErrUnitExecution, fmt.Sprintf("automation %q panicked: %v", alias, pe.Value), pe, map[string]any{
		"automation": alias,
		"stack":      string(pe.Stack),
	})
}

// NewInvalidAutomationError reports a malformed automation definition.
func NewInvalidAutomationError(alias, reason string) *apperrors.Error {
	return cloneError(ErrInvalidAutomation, fmt.Sprintf("automation %q: %s", alias, reason), nil, map[string]any{
		"automation": alias,
	})
}

// WrapStateStoreError wraps a persistence failure.
func WrapStateStoreError(op, executionID string, source error) error {
	if source == nil {
		return nil
	}
	return cloneError(ErrStateStore, fmt.Sprintf("state store %s failed", op), source, map[string]any{
		"operation":    op,
		"execution_id": executionID,
	})
}

func IsInvalidConfiguration(err error) bool { return ErrorCode(err) == ErrCodeInvalidConfiguration }

func IsUnitNotFound(err error) bool { return ErrorCode(err) == ErrCodeUnitNotFound }

func IsUnitExecution(err error) bool { return ErrorCode(err) == ErrCodeUnitExecution }

// ErrorCode returns the text code of the outermost go-errors error in err.
func ErrorCode(err error) string {
	var ge *apperrors.Error
	if stderrors.As(err, &ge) {
		return ge.TextCode
	}
	return ""
}

func cloneError(base *apperrors.Error, message string, source error, metadata map[string]any) *apperrors.Error {
	err := base.Clone()
	if text := strings.TrimSpace(message); text != "" {
		err.Message = text
	}
	if source != nil {
		err.Source = source
	}
	if len(metadata) > 0 {
		err = err.WithMetadata(metadata)
	}
	return err
}
