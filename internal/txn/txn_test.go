package txn

import (
	"testing"

	"github.com/localfirst/crdtdoc/internal/actorid"
	"github.com/localfirst/crdtdoc/internal/op"
	"github.com/localfirst/crdtdoc/internal/optree"
	"github.com/localfirst/crdtdoc/internal/query"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	tree   *optree.OpTree
	order  op.Order
	keys   *actorid.Cache[string]
	actors *actorid.Cache[actorid.ActorID]
}

func newFixture() *fixture {
	actors := actorid.NewCache[actorid.ActorID]()
	actors.Intern("actor-a")
	order := op.Order{Actors: actors}
	return &fixture{
		tree:   optree.New(order),
		order:  order,
		keys:   actorid.NewCache[string](),
		actors: actors,
	}
}

func (f *fixture) newTxn(seq, startOp uint64) *Transaction {
	return New(f.tree, f.order, f.keys, 0, seq, startOp, 0, nil)
}

func TestSetCreatesOpAndIsVisible(t *testing.T) {
	f := newFixture()
	tx := f.newTxn(1, 1)

	id, ok := tx.Set(op.Root, "name", op.ScalarOf("alice"))
	require.True(t, ok)
	require.Equal(t, uint64(1), id.Counter)

	vals := query.Prop(f.tree, f.order, f.keys.Value, op.Root, "name")
	require.Len(t, vals, 1)
	require.Equal(t, "alice", vals[0].Value)
}

func TestSetNoOpWhenValueUnchanged(t *testing.T) {
	f := newFixture()
	tx1 := f.newTxn(1, 1)
	_, ok := tx1.Set(op.Root, "name", op.ScalarOf("alice"))
	require.True(t, ok)
	_, err := tx1.Commit(f.actors, 0)
	require.NoError(t, err)

	tx2 := f.newTxn(2, 2)
	_, ok = tx2.Set(op.Root, "name", op.ScalarOf("alice"))
	require.False(t, ok, "setting the same value again should be a no-op")
	require.True(t, tx2.Empty())
}

func TestSetSupersedesPriorValue(t *testing.T) {
	f := newFixture()
	tx1 := f.newTxn(1, 1)
	tx1.Set(op.Root, "name", op.ScalarOf("alice"))
	_, err := tx1.Commit(f.actors, 0)
	require.NoError(t, err)

	tx2 := f.newTxn(2, 2)
	tx2.Set(op.Root, "name", op.ScalarOf("bob"))
	_, err = tx2.Commit(f.actors, 0)
	require.NoError(t, err)

	vals := query.Prop(f.tree, f.order, f.keys.Value, op.Root, "name")
	require.Len(t, vals, 1)
	require.Equal(t, "bob", vals[0].Value)
}

func TestRollbackRemovesOpsAndRestoresPredSucc(t *testing.T) {
	f := newFixture()
	tx1 := f.newTxn(1, 1)
	tx1.Set(op.Root, "name", op.ScalarOf("alice"))
	_, err := tx1.Commit(f.actors, 0)
	require.NoError(t, err)

	firstOp := f.tree.Ops(op.Root)[0]
	require.True(t, firstOp.Visible())

	tx2 := f.newTxn(2, 2)
	tx2.Set(op.Root, "name", op.ScalarOf("carol"))
	require.False(t, firstOp.Visible(), "second write should have superseded the first while buffered")

	tx2.Rollback()

	require.True(t, firstOp.Visible(), "rollback should restore the first op's visibility")
	require.Equal(t, 1, f.tree.Len(op.Root), "rollback should remove the inserted op")

	vals := query.Prop(f.tree, f.order, f.keys.Value, op.Root, "name")
	require.Len(t, vals, 1)
	require.Equal(t, "alice", vals[0].Value)
}

func TestInsertScalarAppendsListElements(t *testing.T) {
	f := newFixture()
	tx := f.newTxn(1, 1)
	listID := tx.MakeObject(op.Root, "items", op.KindList)

	first := tx.InsertScalar(listID, op.Head, op.ScalarOf("a"))
	second := tx.InsertScalar(listID, first, op.ScalarOf("b"))
	_ = second

	_, err := tx.Commit(f.actors, 0)
	require.NoError(t, err)

	vals := query.ListVals(f.tree, f.order, listID)
	require.Len(t, vals, 2)
	require.Equal(t, "a", vals[0].Value)
	require.Equal(t, "b", vals[1].Value)
}

func TestSpliceInsertsInOrderAfterAnchor(t *testing.T) {
	f := newFixture()
	tx := f.newTxn(1, 1)
	listID := tx.MakeObject(op.Root, "items", op.KindList)
	ids := tx.Splice(listID, op.Head, []op.Scalar{op.ScalarOf("x"), op.ScalarOf("y"), op.ScalarOf("z")})
	require.Len(t, ids, 3)

	_, err := tx.Commit(f.actors, 0)
	require.NoError(t, err)

	vals := query.ListVals(f.tree, f.order, listID)
	require.Len(t, vals, 3)
	require.Equal(t, []interface{}{"x", "y", "z"}, []interface{}{vals[0].Value, vals[1].Value, vals[2].Value})
}

func TestDelAtRemovesElement(t *testing.T) {
	f := newFixture()
	tx := f.newTxn(1, 1)
	listID := tx.MakeObject(op.Root, "items", op.KindList)
	elem := tx.InsertScalar(listID, op.Head, op.ScalarOf("a"))
	_, err := tx.Commit(f.actors, 0)
	require.NoError(t, err)

	tx2 := f.newTxn(2, 2)
	tx2.DelAt(listID, elem)
	_, err = tx2.Commit(f.actors, 0)
	require.NoError(t, err)

	require.Equal(t, 0, query.Len(f.tree, f.order, listID))
}

func TestIncAccumulatesOnCounter(t *testing.T) {
	f := newFixture()
	tx := f.newTxn(1, 1)
	tx.Set(op.Root, "score", op.CounterScalar(10))
	_, err := tx.Commit(f.actors, 0)
	require.NoError(t, err)

	tx2 := f.newTxn(2, 2)
	tx2.Inc(op.Root, "score", 5)
	_, err = tx2.Commit(f.actors, 0)
	require.NoError(t, err)

	vals := query.Prop(f.tree, f.order, f.keys.Value, op.Root, "score")
	require.Len(t, vals, 1)
	require.Equal(t, int64(15), vals[0].Value)
}

func TestCommitProducesEncodedChange(t *testing.T) {
	f := newFixture()
	tx := f.newTxn(1, 1)
	tx.Set(op.Root, "name", op.ScalarOf("alice"))

	c, err := tx.Commit(f.actors, 0)
	require.NoError(t, err)
	require.NotEmpty(t, c.Raw)
	require.NotZero(t, c.Hash)
	require.Len(t, c.Ops, 1)

	_, err = tx.Commit(f.actors, 0)
	require.Error(t, err, "committing twice should fail")
}
