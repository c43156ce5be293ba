// Package window 维护滚动下注历史，并产出两个独立的“压力”信号：
// 胜率亏欠 z 分数与冷启连败比。
package window

import (
	"math"
)

const (
	MinCapacity     = 300
	MaxCapacity     = 2000
	DefaultCapacity = 1000
	DefaultMinReady = 50

	// resumInterval 每 push 多少次重算一次累计和，抑制浮点漂移
	resumInterval = 4096
)

// Entry 一条历史记录：使用的胜率（百分比）与是否命中。
type Entry struct {
	Probability float64
	Won         bool
}

// Thresholds 窗口“打开”的判定阈值。
type Thresholds struct {
	ZScore               float64 // 负数；z < ZScore 时打开
	ColdRatio            float64 // 连败比 > ColdRatio 时打开
	ReferenceProbability float64 // 连败比的参考胜率（百分比）
}

// Signals 某一时刻的信号快照。
type Signals struct {
	Ready        bool
	Entries      int
	Expected     float64 // λ = Σp/100
	Wins         int
	ZScore       float64
	BetsSinceWin int
	ColdRatio    float64
	ZOpen        bool
	ColdOpen     bool
}

// Open 任一信号越过阈值即视为打开；数据不足时始终关闭。
func (s Signals) Open() bool {
	return s.Ready && (s.ZOpen || s.ColdOpen)
}

// Window 固定容量 FIFO（环形缓冲），满时淘汰最旧记录。
// 非并发安全：由所属策略实例串行访问。
type Window struct {
	buf      []Entry
	head     int // 下一个写入位置
	size     int
	minReady int

	sumProb float64
	wins    int
	pushes  int

	betsSinceWin int
}

// New 创建窗口。capacity 会被截到 [MinCapacity, MaxCapacity]，minReady 至少为 1 且不超过容量。
func New(capacity, minReady int) *Window {
	if capacity < MinCapacity {
		capacity = MinCapacity
	}
	if capacity > MaxCapacity {
		capacity = MaxCapacity
	}
	if minReady < 1 {
		minReady = 1
	}
	if minReady > capacity {
		minReady = capacity
	}
	return &Window{buf: make([]Entry, capacity), minReady: minReady}
}

func (w *Window) Cap() int      { return len(w.buf) }
func (w *Window) Len() int      { return w.size }
func (w *Window) MinReady() int { return w.minReady }

// Ready 数据量达到最小要求
func (w *Window) Ready() bool { return w.size >= w.minReady }

// BetsSinceWin 距离上一次命中的下注数（不受窗口淘汰影响）
func (w *Window) BetsSinceWin() int { return w.betsSinceWin }

// Reset 清空历史
func (w *Window) Reset() {
	for i := range w.buf {
		w.buf[i] = Entry{}
	}
	w.head, w.size, w.sumProb, w.wins, w.pushes, w.betsSinceWin = 0, 0, 0, 0, 0, 0
}

// Push 追加一条记录，必要时淘汰最旧的一条。
func (w *Window) Push(probability float64, won bool) {
	if w.size == len(w.buf) {
		old := w.buf[w.head]
		w.sumProb -= old.Probability
		if old.Won {
			w.wins--
		}
	} else {
		w.size++
	}
	w.buf[w.head] = Entry{Probability: probability, Won: won}
	w.head = (w.head + 1) % len(w.buf)
	w.sumProb += probability
	if won {
		w.wins++
		w.betsSinceWin = 0
	} else {
		w.betsSinceWin++
	}

	w.pushes++
	if w.pushes%resumInterval == 0 {
		w.resum()
	}
}

func (w *Window) resum() {
	sum := 0.0
	for _, e := range w.Entries() {
		sum += e.Probability
	}
	w.sumProb = sum
}

// Entries 按时间顺序（旧→新）返回窗口内容副本
func (w *Window) Entries() []Entry {
	out := make([]Entry, 0, w.size)
	start := (w.head - w.size + len(w.buf)) % len(w.buf)
	for i := 0; i < w.size; i++ {
		out = append(out, w.buf[(start+i)%len(w.buf)])
	}
	return out
}

// Expected λ = Σ(胜率/100)，窗口内的期望命中数
func (w *Window) Expected() float64 {
	if w.sumProb < 0 {
		return 0
	}
	return w.sumProb / 100
}

// Wins 窗口内实际命中数
func (w *Window) Wins() int { return w.wins }

// ZScore 泊松近似：z = (实际命中 - λ) / sqrt(λ)。λ 为 0 时返回 0。
func (w *Window) ZScore() float64 {
	lambda := w.Expected()
	if lambda <= 0 {
		return 0
	}
	return (float64(w.wins) - lambda) / math.Sqrt(lambda)
}

// ColdRatio 连败比 = 距上次命中下注数 / (100 / 参考胜率)。
func (w *Window) ColdRatio(referenceProbability float64) float64 {
	if referenceProbability <= 0 {
		return 0
	}
	expectedWait := 100 / referenceProbability
	return float64(w.betsSinceWin) / expectedWait
}

// Evaluate 计算信号快照；未就绪时两个信号都视为关闭。
func (w *Window) Evaluate(th Thresholds) Signals {
	s := Signals{
		Ready:        w.Ready(),
		Entries:      w.size,
		Expected:     w.Expected(),
		Wins:         w.wins,
		BetsSinceWin: w.betsSinceWin,
	}
	if !s.Ready {
		return s
	}
	s.ZScore = w.ZScore()
	s.ColdRatio = w.ColdRatio(th.ReferenceProbability)
	s.ZOpen = s.ZScore < th.ZScore
	s.ColdOpen = th.ColdRatio > 0 && s.ColdRatio > th.ColdRatio
	return s
}
