package dictionary

import (
	"errors"
	"strings"
)

// Schema errors raised while compiling a model.
var (
	ErrUnresolvedNamespace    = errors.New("unresolved namespace")
	ErrUnknownDataType        = errors.New("unknown data type")
	ErrInvalidContentProperty = errors.New("content property must be single valued")
	ErrDuplicateConstraint    = errors.New("duplicate constraint")
	ErrConstraintNotFound     = errors.New("constraint not found")
	ErrInvalidConstraint      = errors.New("invalid constraint")
	ErrDuplicateDefinition    = errors.New("duplicate definition")
	ErrParentNotFound         = errors.New("parent class not found")
	ErrClassNotFound          = errors.New("class not found")
	ErrInheritanceCycle       = errors.New("inheritance cycle")
	ErrInvalidOverride        = errors.New("override of unknown property")
	ErrInvalidModel           = errors.New("invalid model")

	ErrCannotRelaxMandatory            = errors.New("cannot relax mandatory property")
	ErrCannotRelaxMandatoryEnforcement = errors.New("cannot relax mandatory enforcement")
)

// Lookup and lifecycle errors.
var (
	ErrTypeNotFound            = errors.New("type not found")
	ErrAspectNotFound          = errors.New("aspect not found")
	ErrModelNotFound           = errors.New("model not found")
	ErrIncompatibleModelUpdate = errors.New("incompatible model update")
	ErrNamespaceConflict       = errors.New("namespace conflict")
	ErrDependentModel          = errors.New("dependent model does not compile")
	ErrModelInUse              = errors.New("model in use")
	ErrBuildInProgress         = errors.New("dictionary build in progress")
)

// Error carries the context of a failed dictionary operation. Match the
// cause with errors.Is against the sentinels above.
type Error struct {
	Op      string
	Tenant  string
	Model   string
	Kind    ElementKind
	Element string
	// Diffs lists the offending changes of an incompatible update.
	Diffs []ModelDiff
	Err   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Op)
	if e.Tenant != "" {
		sb.WriteString(" [tenant ")
		sb.WriteString(e.Tenant)
		sb.WriteString("]")
	}
	if e.Model != "" {
		sb.WriteString(" model ")
		sb.WriteString(e.Model)
	}
	if e.Element != "" {
		sb.WriteString(": ")
		if e.Kind != "" {
			sb.WriteString(strings.ToLower(string(e.Kind)))
			sb.WriteString(" ")
		}
		sb.WriteString(e.Element)
	}
	sb.WriteString(": ")
	sb.WriteString(e.Err.Error())
	return sb.String()
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// elementError describes a failure on one schema element during compilation.
func elementError(kind ElementKind, element string, err error) *Error {
	return &Error{Op: "compile", Kind: kind, Element: element, Err: err}
}

// withContext fills in operation context on err, wrapping it in *Error when
// it is not one already.
func withContext(err error, op, tenant, model string) error {
	if err == nil {
		return nil
	}
	var de *Error
	if errors.As(err, &de) {
		de.Op = op
		if de.Tenant == "" {
			de.Tenant = tenant
		}
		if de.Model == "" {
			de.Model = model
		}
		return err
	}
	return &Error{Op: op, Tenant: tenant, Model: model, Err: err}
}
