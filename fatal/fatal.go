// Package fatal 定义不可恢复错误：违反确定性不变量时返回，调用方应中止当前执行而不是降级处理。
package fatal

import (
	"errors"
	"fmt"
)

// Error 携带诊断信息的致命错误，与账本返回的可恢复错误区分开
type Error struct {
	Op  string
	Msg string
}

func (e *Error) Error() string {
	return "fatal: " + e.Op + ": " + e.Msg
}

// Errorf 构造一个致命错误
func Errorf(op, format string, args ...any) error {
	return &Error{Op: op, Msg: fmt.Sprintf(format, args...)}
}

// Is 判断错误链中是否包含致命错误
func Is(err error) bool {
	var fe *Error
	return errors.As(err, &fe)
}
