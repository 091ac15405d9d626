package contract

import "p2pio/fatal"

// TicksPerSecond 游戏 Tick 频率
const TicksPerSecond = 60

// MsToTick floor(elapsedMs * 60 / 1000)，纯整数运算保证各副本结果一致
func MsToTick(elapsedMs int64) (int64, error) {
	if elapsedMs < 0 {
		return 0, fatal.Errorf("clock.tick", "negative elapsed time %dms", elapsedMs)
	}
	return elapsedMs * TicksPerSecond / 1000, nil
}

// Clock 以合约初始化时记录的 start_time 为零点
type Clock struct {
	StartMs uint64
}

// TickAt 时间戳（ms）对应的游戏 Tick
func (c Clock) TickAt(timestampMs uint64) (int64, error) {
	if timestampMs < c.StartMs {
		return 0, fatal.Errorf("clock.tick", "timestamp %d before start time %d", timestampMs, c.StartMs)
	}
	return MsToTick(int64(timestampMs - c.StartMs))
}
