package cerr

import (
	"errors"
	"fmt"
	"runtime"

	"buf.build/gen/go/bufbuild/protovalidate/protocolbuffers/go/buf/validate"
	"connectrpc.com/connect"
	"google.golang.org/protobuf/proto"

	"github.com/kazz187/agentguild/pkg/clog"
)

// Kind classifies an error by how the scheduler and supervisor react to it.
// Code decides the wire status; Kind decides the domain handling.
type Kind int

const (
	KindUnspecified Kind = iota
	// KindValidation: malformed input, rejected before any state change.
	KindValidation
	// KindConflict: the operation is not allowed in the current state.
	KindConflict
	// KindUnreachable: the agent runtime did not answer.
	KindUnreachable
	// KindExecution: the runtime answered with a failure.
	KindExecution
	// KindProcessFault: the runtime process could not be launched or died.
	KindProcessFault
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindConflict:
		return "conflict"
	case KindUnreachable:
		return "unreachable"
	case KindExecution:
		return "execution"
	case KindProcessFault:
		return "process_fault"
	default:
		return "unspecified"
	}
}

type Error struct {
	Code    Code
	Kind    Kind
	Msg     string          // message returned to the caller together with Code
	Err     error           // underlying error, logged only
	Stack   string          // captured for error-level codes
	Details []proto.Message // structured details returned to the caller
}

func NewError(code Code, msg string, underlying error) *Error {
	err := &Error{
		Code: code,
		Msg:  msg,
		Err:  underlying,
	}
	if clog.ConnectCodeToLevel(code.ConnectCode()) == clog.LevelError {
		buf := make([]byte, 2048)
		n := runtime.Stack(buf, false)
		err.Stack = string(buf[:n])
	}
	return err
}

func newKindError(kind Kind, code Code, msg string, underlying error) *Error {
	err := NewError(code, msg, underlying)
	err.Kind = kind
	return err
}

// Validation reports malformed input. Each violation becomes a field detail.
func Validation(msg string, violations ...FieldViolation) *Error {
	err := newKindError(KindValidation, InvalidArgument, msg, nil)
	for _, v := range violations {
		err.AddFieldViolation(v.Field, v.Message)
	}
	return err
}

func Conflict(msg string) *Error {
	return newKindError(KindConflict, Aborted, msg, nil)
}

func Unreachable(msg string, underlying error) *Error {
	return newKindError(KindUnreachable, Unavailable, msg, underlying)
}

func Execution(msg string, underlying error) *Error {
	return newKindError(KindExecution, Internal, msg, underlying)
}

func ProcessFault(msg string, underlying error) *Error {
	return newKindError(KindProcessFault, Internal, msg, underlying)
}

// KindOf returns the Kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var cerr *Error
	if errors.As(err, &cerr) {
		return cerr.Kind
	}
	return KindUnspecified
}

func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

func IsCode(err error, code Code) bool {
	var cerr *Error
	if errors.As(err, &cerr) {
		return cerr.Code == code
	}
	return false
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("[%s] %s", e.Code, e.Msg)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Msg, e.Err.Error())
}

func (e *Error) Unwrap() error {
	return e.Err
}

type FieldViolation struct {
	Field   string
	Message string
}

func (e *Error) AddFieldViolation(field, msg string) *Error {
	v := &validate.Violation{
		Message: proto.String(msg),
	}
	if field != "" {
		v.RuleId = proto.String(field)
	}
	e.Details = append(e.Details, v)
	return e
}

func (e *Error) ConnectError() *connect.Error {
	connectErr := connect.NewError(e.Code.ConnectCode(), errors.New(e.Msg))
	for _, msg := range e.Details {
		detail, err := connect.NewErrorDetail(msg)
		if err != nil {
			continue
		}
		connectErr.AddDetail(detail)
	}
	return connectErr
}
