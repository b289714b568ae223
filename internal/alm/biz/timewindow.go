package biz

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// TimeWindow 一段闭合的查询时间窗口。
type TimeWindow struct {
	Start time.Time
	End   time.Time
}

// defaultWindowSpan 请求未给出窗口时，围绕锚点取的默认跨度。
const defaultWindowSpan = 30 * time.Minute

var (
	// "last 30 minutes" / "past 2 hours" / "previous 1 day"
	reLastWindow = regexp.MustCompile(`(?i)\b(?:last|past|previous)\s+(\d+)\s*(seconds?|secs?|minutes?|mins?|hours?|hrs?|days?|[smhd])\b`)

	// 裸偏移量，如 "-30m"、"-2h"。负偏移表示锚点之前。
	reOffset = regexp.MustCompile(`(?:^|\s)(-?\d+)([smhd])\b`)

	// RFC3339 绝对时间戳。
	reAbsolute = regexp.MustCompile(`\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}(?:\.\d+)?(?:Z|[+-]\d{2}:\d{2})`)

	reNow = regexp.MustCompile(`(?i)\b(?:until|till|to)?\s*now\b`)
)

// unitDuration 把文本单位映射为 time.Duration。
func unitDuration(unit string) time.Duration {
	switch strings.ToLower(strings.TrimSuffix(unit, "s")) {
	case "second", "sec", "s":
		return time.Second
	case "minute", "min", "m":
		return time.Minute
	case "hour", "hr", "h":
		return time.Hour
	case "day", "d":
		return 24 * time.Hour
	default:
		return 0
	}
}

// ParseTimeWindow 从自然语言请求中解析时间窗口。
// 相对表达（last N、裸偏移）以锚点为基准；绝对 RFC3339 时间戳按给出的
// 一到两个边界使用；"now" 把窗口终点推到当前时刻。
// 第二个返回值表示请求中是否出现了显式的窗口表达。
func ParseTimeWindow(text string, anchor time.Time) (TimeWindow, bool) {
	// 绝对时间戳优先：给出两个则为 [第一个, 第二个]，给出一个则取
	// 该时刻到锚点。
	if stamps := reAbsolute.FindAllString(text, 2); len(stamps) > 0 {
		first, err1 := time.Parse(time.RFC3339, stamps[0])
		if err1 == nil {
			if len(stamps) == 2 {
				if second, err2 := time.Parse(time.RFC3339, stamps[1]); err2 == nil {
					return orderedWindow(first, second), true
				}
			}
			return orderedWindow(first, anchor), true
		}
	}

	if m := reLastWindow.FindStringSubmatch(text); m != nil {
		n, err := strconv.Atoi(m[1])
		if err == nil {
			if unit := unitDuration(m[2]); unit > 0 {
				span := time.Duration(n) * unit
				w := TimeWindow{Start: anchor.Add(-span), End: anchor}
				if reNow.MatchString(text) {
					w.End = time.Now()
				}
				return w, true
			}
		}
	}

	if m := reOffset.FindStringSubmatch(text); m != nil {
		n, err := strconv.Atoi(m[1])
		if err == nil {
			if unit := unitDuration(m[2]); unit > 0 {
				offset := time.Duration(n) * unit
				w := TimeWindow{Start: anchor.Add(offset), End: anchor}
				if offset > 0 {
					w = TimeWindow{Start: anchor, End: anchor.Add(offset)}
				}
				if reNow.MatchString(text) {
					w.End = time.Now()
				}
				return w, true
			}
		}
	}

	if reNow.MatchString(text) {
		return TimeWindow{Start: anchor.Add(-defaultWindowSpan), End: time.Now()}, true
	}

	return DefaultTimeWindow(anchor), false
}

// DefaultTimeWindow 返回以锚点结尾的默认窗口。
func DefaultTimeWindow(anchor time.Time) TimeWindow {
	return TimeWindow{Start: anchor.Add(-defaultWindowSpan), End: anchor}
}

func orderedWindow(a, b time.Time) TimeWindow {
	if b.Before(a) {
		return TimeWindow{Start: b, End: a}
	}
	return TimeWindow{Start: a, End: b}
}
