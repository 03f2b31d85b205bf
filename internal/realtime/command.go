package realtime

import "github.com/mikeyoung304/plate-order-system-lean-sub009/internal/models"

// Action 显示屏操作类型
type Action string

const (
	ActionStart         Action = "start"
	ActionBump          Action = "bump"
	ActionRecall        Action = "recall"
	ActionForceComplete Action = "force_complete"
)

// Command 显示屏操作命令
// 统一以 {命令, 目标条目, 补丁} 的形式先本地乐观应用、
// 再发给存储、按响应回滚或确认，避免在多处重复推导状态迁移
type Command struct {
	Action  Action
	EntryID string
	Patch   models.EntryPatch
}
