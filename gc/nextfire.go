// Package gc implements the Global Clock / SMN scheduler core (spec.md
// §4.4): per-block next-fire tracking, the tick loop that computes T_next
// and the active mask, dependency-respecting dispatch via package
// depgraph, Y-ACK collection before X dispatch, and ack-timeout handling.
package gc

import (
	"strconv"

	"github.com/tidwall/buntdb"

	"github.com/openbuildnet/obncore/cmn/cos"
)

// blockKey identifies one update block of one node.
type blockKey struct {
	node string
	id   int
}

// nextFireIndex tracks next[id] for every registered block (spec.md
// §4.4's "state per node"). The map below is the source of truth;
// buntdb's ":memory:" store mirrors it under a numeric index so T_next =
// min(next[...]) is an index scan rather than a full map scan every tick
// — the same write-through-index shape the teacher uses for its own
// in-memory lookups, here applied to the GC's hot path instead of object
// metadata.
type nextFireIndex struct {
	next map[blockKey]cos.SimTime
	db   *buntdb.DB
}

func newNextFireIndex() (*nextFireIndex, error) {
	db, err := buntdb.Open(":memory:")
	if err != nil {
		return nil, cos.NewError(cos.KindConfig, "gc", err)
	}
	if err := db.CreateIndex("next_tick", "block:*", buntdb.IndexInt); err != nil {
		return nil, cos.NewError(cos.KindConfig, "gc", err)
	}
	return &nextFireIndex{next: make(map[blockKey]cos.SimTime), db: db}, nil
}

func dbKey(k blockKey) string {
	return "block:" + k.node + ":" + strconv.Itoa(k.id)
}

func (n *nextFireIndex) Set(k blockKey, tick cos.SimTime) error {
	n.next[k] = tick
	return n.db.Update(func(tx *buntdb.Tx) error {
		_, _, err := tx.Set(dbKey(k), strconv.FormatInt(int64(tick), 10), nil)
		return err
	})
}

func (n *nextFireIndex) Remove(k blockKey) error {
	delete(n.next, k)
	return n.db.Update(func(tx *buntdb.Tx) error {
		_, err := tx.Delete(dbKey(k))
		if err == buntdb.ErrNotFound {
			return nil
		}
		return err
	})
}

// Min returns the smallest next-fire tick across every registered block,
// and false if none are registered (an all-event-driven, idle workspace).
func (n *nextFireIndex) Min() (tick cos.SimTime, ok bool, err error) {
	err = n.db.View(func(tx *buntdb.Tx) error {
		return tx.Ascend("next_tick", func(key, value string) bool {
			v, perr := strconv.ParseInt(value, 10, 64)
			if perr != nil {
				return false
			}
			tick, ok = cos.SimTime(v), true
			return false // first (smallest) entry only
		})
	})
	return
}

// ActiveAt returns every blockKey whose next-fire tick equals t.
func (n *nextFireIndex) ActiveAt(t cos.SimTime) []blockKey {
	var out []blockKey
	for k, v := range n.next {
		if v == t {
			out = append(out, k)
		}
	}
	return out
}

func (n *nextFireIndex) Close() error { return n.db.Close() }
