package repository

import "time"

// EventType 事件类型
type EventType int

const (
	// EventRegister 代理登记
	EventRegister EventType = iota
	// EventDeregister 代理移除
	EventDeregister
	// EventRebind 转发句柄被替换
	EventRebind
)

// Event 仓库变化事件
type Event struct {
	Type      EventType
	Service   string
	Address   string
	Timestamp time.Time
}

// String 返回事件类型的字符串表示
func (e EventType) String() string {
	switch e {
	case EventRegister:
		return "REGISTER"
	case EventDeregister:
		return "DEREGISTER"
	case EventRebind:
		return "REBIND"
	default:
		return "UNKNOWN"
	}
}
