package errors

// 预定义哨兵错误（用于 errors.Is 比较，按错误码匹配）
var (
	ErrInvalidParam  = New(CodeInvalidParam, "invalid parameter")
	ErrInvalidState  = New(CodeInvalidState, "invalid state")
	ErrConflict      = New(CodeConflict, "resource conflict")
	ErrNotFound      = New(CodeNotFound, "resource not found")
	ErrInternal      = New(CodeInternal, "internal error")
	ErrNetworkError  = New(CodeNetworkError, "network error")
	ErrTimeout       = New(CodeTimeout, "operation timeout")
	ErrCancelled     = New(CodeCancelled, "operation cancelled")
	ErrStreamClosed  = New(CodeStreamClosed, "stream closed")
	ErrNotConnected  = New(CodeNotConnected, "not connected")
	ErrInvalidPacket = New(CodeInvalidPacket, "invalid packet")
	ErrRemoteCall    = New(CodeRemoteCall, "remote call failed")
)

// IsRetryable 检查错误是否可由调用方重试
// 本层不做任何自动重试，仅供应用层决定恢复策略
func IsRetryable(err error) bool {
	switch GetCode(err) {
	case CodeTimeout, CodeNetworkError, CodeConnectionError, CodeNotConnected:
		return true
	default:
		return false
	}
}
