// Package codec 在有符号坐标与账本的无符号存储值之间转换。
// 坐标以 0 为中心，映射到以 2^32-1 为中心的 u64 区间。
package codec

import (
	"math"

	"p2pio/fatal"
)

// Offset 有符号 0 对应的线上值
const Offset = math.MaxUint32

const (
	// MinWire / MaxWire 可解码的线上值范围（闭区间）
	MinWire uint64 = Offset + math.MinInt32
	MaxWire uint64 = Offset + math.MaxInt32
)

// Encode 将 int32 坐标编码为线上值，严格单调
func Encode(x int32) uint64 {
	return uint64(int64(x) + Offset)
}

// Decode 解码线上值；超出范围属于编程错误，返回致命错误而不是截断
func Decode(u uint64) (int32, error) {
	if u < MinWire || u > MaxWire {
		return 0, fatal.Errorf("codec.decode", "wire value %d outside [%d, %d]", u, MinWire, MaxWire)
	}
	return int32(int64(u) - Offset), nil
}
