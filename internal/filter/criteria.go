// Package filter 定义告警条件（Criterion）与组合方式（And/Or），BreakoutStrategy 为扫描入口，SmallCap 为股票池初筛。
package filter

import "smallCapScanner/internal/model"

// 告警阈值（固定常量，不开放配置）
const (
	MinPrice     = 1.0
	MaxPrice     = 200.0
	MaxShares    = 2e8 // 2 亿股
	MinRelVolume = 5.0
	MinChangePct = 5.0
)

// SmallCapMax 小盘股市值上限（20 亿美元）
const SmallCapMax = 2e9

// Criterion 单条条件：入参为单轮扫描快照，返回是否通过。
type Criterion func(*model.Snapshot) bool

func And(cs ...Criterion) Criterion {
	return func(s *model.Snapshot) bool {
		if s == nil {
			return false
		}
		for _, c := range cs {
			if c == nil {
				continue
			}
			if !c(s) {
				return false
			}
		}
		return true
	}
}

func Or(cs ...Criterion) Criterion {
	return func(s *model.Snapshot) bool {
		if s == nil {
			return false
		}
		for _, c := range cs {
			if c == nil {
				continue
			}
			if c(s) {
				return true
			}
		}
		return false
	}
}

// PriceRange 现价在 [min, max] 闭区间
func PriceRange(min, max float64) Criterion {
	return func(s *model.Snapshot) bool { return s.Price >= min && s.Price <= max }
}

// SharesMax 股本不超过 max；股本未知按无穷大，必不通过。
func SharesMax(max float64) Criterion {
	return func(s *model.Snapshot) bool { return s.SharesOrInf() <= max }
}

func ChangePctMin(min float64) Criterion {
	return func(s *model.Snapshot) bool { return s.ChangePct() >= min }
}

// RelVolumeMin 量比下限；日均量未知或为 0 时量比为 0。
func RelVolumeMin(min float64) Criterion {
	return func(s *model.Snapshot) bool { return s.RelVolume() >= min }
}

// BreakoutStrategy 突破 + 放量：价格区间、股本上限、涨幅、量比同时满足。
func BreakoutStrategy() Criterion {
	return And(
		PriceRange(MinPrice, MaxPrice),
		SharesMax(MaxShares),
		ChangePctMin(MinChangePct),
		RelVolumeMin(MinRelVolume),
	)
}

// SmallCap 市值查询成功、非 0 且严格小于上限。
func SmallCap(r model.CapResult) bool {
	return r.MarketCap.OK && r.MarketCap.Value != 0 && r.MarketCap.Value < SmallCapMax
}
