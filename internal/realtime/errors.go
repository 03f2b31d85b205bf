package realtime

import "errors"

var (
	// ErrFetchFailed 快照拉取失败（瞬时错误，走退避重试；旧缓存保持可用）
	ErrFetchFailed = errors.New("fetch snapshot failed")

	// ErrConnectionLost 重连次数超限（终态，向调用方提示需要手动重连，不再自动恢复）
	ErrConnectionLost = errors.New("connection lost after max retries")

	// ErrOptimisticConflict 乐观补丁未获服务端确认（已回滚并重新拉取，服务端数据为准，无数据丢失）
	ErrOptimisticConflict = errors.New("optimistic update rejected")

	// ErrSessionClosed 会话已关闭
	ErrSessionClosed = errors.New("session closed")
)
