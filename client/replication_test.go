package client

import (
	"bytes"
	"context"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"p2pio/contract"
	"p2pio/ledger"
)

// cluster 两个副本共用一个可控时钟；每个玩家只在自己的副本上写入，确认结果随机延迟后互相拉取
type cluster struct {
	t        *testing.T
	ctx      context.Context
	nowMs    int64
	replicas [2]*ledger.Replica
	contract ledger.Address
	seed     byte
}

func newCluster(t *testing.T) *cluster {
	t.Helper()
	c := &cluster{t: t, ctx: context.Background(), nowMs: startMs, seed: 1}
	clock := func() time.Time { return time.UnixMilli(c.nowMs) }
	for i := range c.replicas {
		c.replicas[i] = ledger.NewReplica(contract.Programs(), ledger.WithClock(clock))
	}
	owner := c.key()
	res, err := c.replicas[0].Deploy(c.ctx, owner, contract.ProgramName)
	if err != nil {
		t.Fatalf("Deploy: %v", err)
	}
	if err := c.replicas[0].CommitTransaction(c.ctx, res.Tx, res.Updates); err != nil {
		t.Fatalf("commit deploy: %v", err)
	}
	c.contract = owner.Address()
	c.pull(1, 0)
	return c
}

func (c *cluster) key() *ledger.KeyPair {
	c.t.Helper()
	k, err := ledger.KeyPairFromSeed(bytes.Repeat([]byte{c.seed}, 32))
	if err != nil {
		c.t.Fatalf("KeyPairFromSeed: %v", err)
	}
	c.seed++
	return k
}

func (c *cluster) pull(to, from int) {
	c.t.Helper()
	if _, err := c.replicas[to].Pull(c.ctx, c.replicas[from]); err != nil {
		c.t.Fatalf("replica %d pull from %d: %v", to, from, err)
	}
}

// view 从副本的完整确认序列重建渲染端投影
func (c *cluster) view(i int) *View {
	c.t.Helper()
	v := NewView(contract.Clock{StartMs: startMs})
	err := c.replicas[i].Subscribe().Sync(c.ctx, func(tx *ledger.Transaction) error {
		e, err := Derive(c.contract, tx)
		if err != nil || e == nil {
			return err
		}
		_, err = v.Apply(e)
		return err
	})
	if err != nil {
		c.t.Fatalf("replica %d view: %v", i, err)
	}
	return v
}

type seat struct {
	client  *Client
	replica int
}

func TestReplicasConvergeUnderRandomDelays(t *testing.T) {
	for _, seed := range []int64{1, 7, 42, 2024} {
		seed := seed
		t.Run(fmt.Sprintf("seed=%d", seed), func(t *testing.T) {
			c := newCluster(t)
			rng := rand.New(rand.NewSource(seed))

			var seats []seat
			for i := 0; i < 4; i++ {
				r := i % 2
				cl := New(c.replicas[r], c.replicas[r].Subscribe(), c.contract,
					WithKeySource(func() (*ledger.KeyPair, error) { return c.key(), nil }))
				if err := cl.SpawnPlayer(c.ctx, int32(rng.Intn(200)-100), int32(rng.Intn(200)-100)); err != nil {
					t.Fatalf("spawn %d: %v", i, err)
				}
				seats = append(seats, seat{client: cl, replica: r})
			}

			for step := 0; step < 200; step++ {
				c.nowMs += int64(rng.Intn(120))
				s := seats[rng.Intn(len(seats))]
				if err := s.client.ApplyInput(c.ctx, contract.Heading(rng.Intn(5))); err != nil {
					t.Fatalf("step %d input: %v", step, err)
				}
				// 交叉确认：随机延迟后才把另一副本的交易拉过来
				if rng.Intn(4) == 0 {
					c.pull(0, 1)
				}
				if rng.Intn(4) == 0 {
					c.pull(1, 0)
				}
			}
			c.pull(0, 1)
			c.pull(1, 0)
			if h0, h1 := c.replicas[0].Height(), c.replicas[1].Height(); h0 != h1 {
				t.Fatalf("heights differ: %d vs %d", h0, h1)
			}

			c.nowMs += 5000
			views := [2]*View{c.view(0), c.view(1)}
			for _, s := range seats {
				id, _ := s.client.Address()
				var got [2]PlayerData
				for i := range c.replicas {
					reader := New(c.replicas[i], c.replicas[i].Subscribe(), c.contract)
					reader.key = s.client.key
					p, err := reader.Player(c.ctx, id)
					if err != nil {
						t.Fatalf("replica %d read %s: %v", i, id, err)
					}
					got[i] = p
				}
				if got[0] != got[1] {
					t.Fatalf("player %s diverged: %+v vs %+v", id, got[0], got[1])
				}

				st0, err0 := views[0].State(id)
				st1, err1 := views[1].State(id)
				if err0 != nil || err1 != nil || st0 != st1 {
					t.Fatalf("views diverged for %s: %+v (%v) vs %+v (%v)", id, st0, err0, st1, err1)
				}
				x, y, err := views[0].Position(id, uint64(c.nowMs))
				if err != nil {
					t.Fatalf("view position: %v", err)
				}
				if int32(x) != got[0].X || int32(y) != got[0].Y || st0.Heading != got[0].Heading {
					t.Fatalf("view (%d,%d,%s) disagrees with contract %+v", x, y, st0.Heading, got[0])
				}
			}
		})
	}
}
