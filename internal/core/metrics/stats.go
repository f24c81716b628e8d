package metrics

import (
	"github.com/benbjohnson/clock"
)

// Stats 单个事件基的统计快照
type Stats struct {
	Posted      int64   // 投递成功总数
	Rejected    int64   // 投递失败总数
	Delivered   int64   // 回调执行总数
	PostRate    float64 // 投递速率（事件/秒）
	DeliverRate float64 // 分发速率（事件/秒）
}

// baseStats 事件基的速率表
type baseStats struct {
	posted    *RateMeter
	rejected  *RateMeter
	delivered *RateMeter
}

func newBaseStats(c clock.Clock) *baseStats {
	return &baseStats{
		posted:    NewRateMeter(c),
		rejected:  NewRateMeter(c),
		delivered: NewRateMeter(c),
	}
}

func (b *baseStats) snapshot() Stats {
	return Stats{
		Posted:      b.posted.Total(),
		Rejected:    b.rejected.Total(),
		Delivered:   b.delivered.Total(),
		PostRate:    b.posted.Rate(),
		DeliverRate: b.delivered.Rate(),
	}
}
