package di

import (
	"errors"
	"fmt"
)

// 稳定的错误种类。所有容器失败都通过 ContainerError 报告，
// Kind 字段携带下列哨兵之一，可用 errors.Is 匹配。
var (
	ErrUnableToResolve                      = errors.New("di: unable to resolve service")
	ErrExpectedSingleDefaultFactory         = errors.New("di: expected single default factory")
	ErrDuplicateServiceName                 = errors.New("di: duplicate service name")
	ErrExpectedImplAssignableToService      = errors.New("di: implementation is not assignable to service")
	ErrOpenGenericImplWithNonGenericService = errors.New("di: open-generic implementation registered with non-generic service")
	ErrOpenGenericMissingTypeArgs           = errors.New("di: open-generic service does not specify all implementation type args")
	ErrExpectedClosedGenericServiceType     = errors.New("di: resolution requires a closed generic service type")
	ErrExpectedNonAbstractImplType          = errors.New("di: expected non-abstract implementation type")
	ErrNoPublicConstructor                  = errors.New("di: no public constructor defined")
	ErrUnableToSelectConstructor            = errors.New("di: unable to select constructor")
	ErrConstructorMissesSomeParameters      = errors.New("di: constructor misses some parameters")
	ErrExpectedFuncWithMultipleArgs         = errors.New("di: expected func with multiple args")
	ErrUnsupportedFuncWithArgs              = errors.New("di: unsupported func with args")
	ErrSomeFuncParamsAreUnused              = errors.New("di: some func params are unused")
	ErrRecursiveDependency                  = errors.New("di: recursive dependency detected")
	ErrScopeIsDisposed                      = errors.New("di: scope is disposed")
	ErrContainerIsGarbageCollected          = errors.New("di: container is garbage collected")
	ErrNoRegisteredEnumerableItems          = errors.New("di: unable to find registered enumerable items")
	ErrUnableToResolveEnumerableItems       = errors.New("di: unable to resolve enumerable items")
	ErrDelegateReturnedNilExpression        = errors.New("di: delegate factory expression returned nil")
	ErrDecoratorShouldSupportFuncResolution = errors.New("di: decorator factory should support func resolution")
	ErrWrapperExpectsSingleTypeArg          = errors.New("di: generic wrapper expects a single type arg by default")
	ErrUnableToFindOpenGenericImplTypeArg   = errors.New("di: unable to find open-generic implementation type arg")
	ErrRetryExhausted                       = errors.New("di: state swap retries exhausted")
)

// ContainerError 容器统一的错误类型，携带种类哨兵和格式化的诊断消息。
type ContainerError struct {
	Kind    error
	Message string
}

func (e *ContainerError) Error() string { return e.Message }

// Unwrap 返回错误种类，支持 errors.Is(err, di.ErrUnableToResolve) 形式的匹配。
func (e *ContainerError) Unwrap() error { return e.Kind }

// ErrorFormatter 可插拔的错误构造函数。
// 默认实现返回 *ContainerError；调用方可以替换为自定义错误类型。
type ErrorFormatter func(kind error, message string) error

func defaultErrorFormatter(kind error, message string) error {
	return &ContainerError{Kind: kind, Message: message}
}

func (c *Container) errorf(kind error, format string, args ...any) error {
	f := c.shared.errFormat
	if f == nil {
		f = defaultErrorFormatter
	}
	return f(kind, kind.Error()+": "+fmt.Sprintf(format, args...))
}
