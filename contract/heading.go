package contract

import "p2pio/fatal"

// Heading 玩家移动方向；Idle 表示静止，出生时的默认方向
type Heading uint8

const (
	Up Heading = iota
	Down
	Left
	Right
	Idle
)

// ParseHeading 解码线上方向值（0..4），越界属于致命错误
func ParseHeading(v uint64) (Heading, error) {
	if v > uint64(Idle) {
		return 0, fatal.Errorf("heading.parse", "heading code %d outside 0..%d", v, Idle)
	}
	return Heading(v), nil
}

func (h Heading) String() string {
	switch h {
	case Up:
		return "up"
	case Down:
		return "down"
	case Left:
		return "left"
	case Right:
		return "right"
	case Idle:
		return "idle"
	}
	return "invalid"
}

// HeadingFromName 解析方向名称（渲染端协议使用）
func HeadingFromName(name string) (Heading, bool) {
	for h := Up; h <= Idle; h++ {
		if h.String() == name {
			return h, true
		}
	}
	return 0, false
}
