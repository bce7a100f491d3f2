// Package model 定义分钟/日线 K、单只股票扫描快照、告警等数据结构。
package model

import (
	"fmt"
	"math"
	"time"
)

// 股本单位：告警中按百万股展示
const sharesPerMillion = 1e6

// Bar 单根 K（分钟线或日线）。数据源缺失的值为 NaN。
type Bar struct {
	Time   time.Time
	Open   float64
	Close  float64
	Volume float64
}

func (b Bar) HasClose() bool { return !math.IsNaN(b.Close) }

func (b Bar) HasVolume() bool { return !math.IsNaN(b.Volume) }

// Lookup 可选数值：OK=false 表示查询失败或字段缺失，与“查询成功但为 0”区分。
type Lookup struct {
	Value float64
	OK    bool
}

func Found(v float64) Lookup { return Lookup{Value: v, OK: true} }

func Missing() Lookup { return Lookup{} }

// Or 查询失败时返回 def。
func (l Lookup) Or(def float64) float64 {
	if !l.OK {
		return def
	}
	return l.Value
}

// CapResult 市值查询结果，供初筛小盘股。
type CapResult struct {
	Symbol    string
	MarketCap Lookup
}

// Snapshot 单轮扫描中某只股票的即时数据，仅存活于一次扫描。
type Snapshot struct {
	Symbol      string
	Price       float64 // 最后一根分钟 K 收盘
	Volume      float64 // 最后一根分钟 K 成交量
	SessionOpen float64 // 第一根分钟 K 收盘（非真实开盘价）
	Shares      Lookup
	AvgVolume   Lookup // 近一月日均成交量
}

// NewSnapshot 由当日分钟 K 构造快照；bars 为空返回 false。
func NewSnapshot(symbol string, bars []Bar) (Snapshot, bool) {
	if len(bars) == 0 {
		return Snapshot{Symbol: symbol}, false
	}
	last := bars[len(bars)-1]
	return Snapshot{
		Symbol:      symbol,
		Price:       last.Close,
		Volume:      last.Volume,
		SessionOpen: bars[0].Close,
	}, true
}

func (s *Snapshot) ChangePct() float64 {
	return (s.Price - s.SessionOpen) / s.SessionOpen * 100
}

// SharesOrInf 股本查询失败按无穷大处理，股本上限条件必不成立。
func (s *Snapshot) SharesOrInf() float64 {
	return s.Shares.Or(math.Inf(1))
}

func (s *Snapshot) AvgVolumeOrZero() float64 {
	return s.AvgVolume.Or(0)
}

// RelVolume 量比 = 当前量 / 日均量，日均量不大于 0 时为 0。
func (s *Snapshot) RelVolume() float64 {
	avg := s.AvgVolumeOrZero()
	if avg <= 0 {
		return 0
	}
	return s.Volume / avg
}

// Alert 突破 + 放量告警，发出即弃，不做持久化。
type Alert struct {
	Symbol    string    `json:"symbol"`
	Price     float64   `json:"price"`
	ChangePct float64   `json:"change_pct"`
	RelVolume float64   `json:"rel_volume"`
	Shares    float64   `json:"shares"`
	Time      time.Time `json:"time"`
}

func NewAlert(s *Snapshot, at time.Time) Alert {
	return Alert{
		Symbol:    s.Symbol,
		Price:     s.Price,
		ChangePct: s.ChangePct(),
		RelVolume: s.RelVolume(),
		Shares:    s.SharesOrInf(),
		Time:      at,
	}
}

func (a Alert) SharesMillions() float64 {
	return a.Shares / sharesPerMillion
}

// String 告警日志行，格式固定，下游按此 grep。
func (a Alert) String() string {
	return fmt.Sprintf("ALERT: %s | Price: $%.2f | Change: %.2f%% | Rel Vol: %.1fx | Shares: %.2fM",
		a.Symbol, a.Price, a.ChangePct, a.RelVolume, a.SharesMillions())
}
