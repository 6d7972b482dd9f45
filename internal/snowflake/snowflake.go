package snowflake

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

const (
	// 起始时间戳 (2024-01-01 00:00:00 UTC)
	epoch int64 = 1704067200000

	nodeBits     = 10
	sequenceBits = 12

	maxNodeID   = -1 ^ (-1 << nodeBits)
	maxSequence = -1 ^ (-1 << sequenceBits)

	nodeShift      = sequenceBits
	timestampShift = nodeBits + sequenceBits
)

// ID 雪花ID，十进制字符串作为会话和消息主键
type ID int64

// Parse 解析十进制字符串
func Parse(s string) (ID, error) {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("snowflake: invalid id %q", s)
	}
	return ID(v), nil
}

func (id ID) String() string {
	return strconv.FormatInt(int64(id), 10)
}

// Time 生成时的毫秒时间
func (id ID) Time() time.Time {
	return time.UnixMilli(int64(id)>>timestampShift + epoch)
}

// Node 生成该 ID 的节点
func (id ID) Node() int64 {
	return int64(id) >> nodeShift & maxNodeID
}

// Node 雪花ID生成器节点
// 时钟回拨或序号用尽时借用下一毫秒，不阻塞等待
type Node struct {
	mu       sync.Mutex
	nodeID   int64
	clock    clockwork.Clock
	lastTime int64
	sequence int64
}

// NewNode 创建生成器，c 为 nil 时使用系统时钟
func NewNode(nodeID int64, c clockwork.Clock) (*Node, error) {
	if nodeID < 0 || nodeID > maxNodeID {
		return nil, fmt.Errorf("snowflake: node id %d out of range [0, %d]", nodeID, maxNodeID)
	}
	if c == nil {
		c = clockwork.NewRealClock()
	}
	return &Node{nodeID: nodeID, clock: c}, nil
}

// Generate 生成ID，同一节点内严格递增
func (n *Node) Generate() ID {
	n.mu.Lock()
	defer n.mu.Unlock()

	now := n.clock.Now().UnixMilli()
	switch {
	case now > n.lastTime:
		n.lastTime = now
		n.sequence = 0
	case n.sequence < maxSequence:
		n.sequence++
	default:
		n.lastTime++
		n.sequence = 0
	}

	return ID((n.lastTime-epoch)<<timestampShift | n.nodeID<<nodeShift | n.sequence)
}

// NextID 生成字符串形式的ID
func (n *Node) NextID() string {
	return n.Generate().String()
}
