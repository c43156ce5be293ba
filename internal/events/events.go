package events

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
)

// Kind 事件类型
type Kind string

const (
	KindSession    Kind = "session"    // 会话开始/结束
	KindTransition Kind = "transition" // 阶段切换
	KindCycle      Kind = "cycle"      // 周期开始/命中/放弃
	KindGuard      Kind = "guard"      // 风控触发（不是错误）
	KindConfig     Kind = "config"     // 参数被截断/回退默认值
	KindFault      Kind = "fault"      // 内部异常（本 tick 不下注）
	KindProgress   Kind = "progress"   // 周期性进度
)

// Event 核心对外叙述的唯一结构化通道。
type Event struct {
	Kind    Kind
	Phase   string
	Message string
	Fields  map[string]interface{}
}

// Emitter 由外部注入，核心从不直接写控制台或文件。
type Emitter interface {
	Emit(e Event)
}

// EmitterFunc 函数适配器
type EmitterFunc func(e Event)

func (f EmitterFunc) Emit(e Event) { f(e) }

// Nop 丢弃所有事件
var Nop Emitter = EmitterFunc(func(Event) {})

// Line 将事件格式化为单行文本：[kind] phase message k=v ...
func (e Event) Line() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s]", e.Kind)
	if e.Phase != "" {
		fmt.Fprintf(&b, " %s", e.Phase)
	}
	if e.Message != "" {
		fmt.Fprintf(&b, " %s", e.Message)
	}
	if len(e.Fields) > 0 {
		keys := make([]string, 0, len(e.Fields))
		for k := range e.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, " %s=%v", k, e.Fields[k])
		}
	}
	return b.String()
}

// LineEmitter 把事件交给“输出一行文本”的回调。
func LineEmitter(emitLine func(string)) Emitter {
	if emitLine == nil {
		return Nop
	}
	return EmitterFunc(func(e Event) { emitLine(e.Line()) })
}

// LogEmitter 把事件写入 logrus：风控/异常为 Warn，进度为 Debug，其余为 Info。
func LogEmitter(entry *logrus.Entry) Emitter {
	if entry == nil {
		entry = logrus.NewEntry(logrus.StandardLogger())
	}
	return EmitterFunc(func(e Event) {
		l := entry.WithField("event", string(e.Kind))
		if e.Phase != "" {
			l = l.WithField("phase", e.Phase)
		}
		if len(e.Fields) > 0 {
			l = l.WithFields(logrus.Fields(e.Fields))
		}
		switch e.Kind {
		case KindGuard, KindFault, KindConfig:
			l.Warn(e.Message)
		case KindProgress:
			l.Debug(e.Message)
		default:
			l.Info(e.Message)
		}
	})
}

// Multi 依次分发给多个 Emitter
func Multi(emitters ...Emitter) Emitter {
	return EmitterFunc(func(e Event) {
		for _, em := range emitters {
			if em != nil {
				em.Emit(e)
			}
		}
	})
}
