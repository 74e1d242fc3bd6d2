package transcoder

import (
	"reflect"
	"testing"

	"github.com/wippyai/wasm-boundary/alloc"
	errs "github.com/wippyai/wasm-boundary/errors"
	"github.com/wippyai/wasm-boundary/resource"
	"go.bytecodealliance.org/wit"
)

func TestLowerParams_Flat(t *testing.T) {
	c, _ := newTestCodec(t)
	types := []wit.Type{wit.U32{}, wit.String{}, wit.Bool{}}

	flat, err := c.LowerParams(types, []any{1, "s", true}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(flat) != 4 {
		t.Fatalf("flat params = %v, want 4 values", flat)
	}
	got, err := c.LiftParams(types, flat)
	if err != nil {
		t.Fatal(err)
	}
	want := []any{uint32(1), "s", true}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("LiftParams = %#v, want %#v", got, want)
	}
}

func TestLowerParams_Spills(t *testing.T) {
	c, arena := newTestCodec(t)

	types := make([]wit.Type, MaxFlatParams+1)
	values := make([]any, len(types))
	want := make([]any, len(types))
	for i := range types {
		types[i] = wit.U32{}
		values[i] = i * 10
		want[i] = uint32(i * 10)
	}

	flat, err := c.LowerParams(types, values, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(flat) != 1 {
		t.Fatalf("spilled params = %v, want a single pointer", flat)
	}
	if arena.Live() != 1 {
		t.Fatalf("spill area not allocated: %d live", arena.Live())
	}

	got, err := c.LiftParams(types, flat)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("LiftParams = %v, want %v", got, want)
	}
}

func TestLowerParams_CountMismatch(t *testing.T) {
	c, _ := newTestCodec(t)
	_, err := c.LowerParams([]wit.Type{wit.U8{}}, nil, nil)
	if !isKind(err, errs.KindInvalidInput) {
		t.Fatalf("error = %v, want invalid input", err)
	}
}

func TestStoreLiftResults_RetPtr(t *testing.T) {
	c, arena := newTestCodec(t)
	types := []wit.Type{wit.U32{}, wit.String{}}

	l := SequenceLayout(types)
	if l != (Layout{Size: 12, Align: 4}) {
		t.Fatalf("SequenceLayout = %+v", l)
	}
	retptr, _ := arena.Alloc(l.Size, l.Align)

	if err := c.StoreResults(types, []any{uint32(8), "out"}, retptr, nil); err != nil {
		t.Fatalf("StoreResults: %v", err)
	}
	got, err := c.LiftResults(types, []uint64{uint64(retptr)})
	if err != nil {
		t.Fatalf("LiftResults: %v", err)
	}
	if !reflect.DeepEqual(got, []any{uint32(8), "out"}) {
		t.Fatalf("LiftResults = %#v", got)
	}
}

func TestLowerLiftResults_Flat(t *testing.T) {
	c, _ := newTestCodec(t)
	types := []wit.Type{wit.S64{}}

	flat, err := c.LowerResults(types, []any{-9}, nil)
	if err != nil {
		t.Fatal(err)
	}
	got, err := c.LiftResults(types, flat)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got, []any{int64(-9)}) {
		t.Fatalf("LiftResults = %#v", got)
	}

	if _, err := c.LowerResults([]wit.Type{wit.String{}}, []any{"x"}, nil); !isKind(err, errs.KindInvalidInput) {
		t.Fatalf("wide flat results: %v", err)
	}

	got, err = c.LiftResults(nil, nil)
	if err != nil || len(got) != 0 {
		t.Fatalf("no results = %v, %v", got, err)
	}
}

type dropCount struct{ n int }

func (d *dropCount) drop(resource.Handle) error {
	d.n++
	return nil
}

func TestLowerParams_OwnMovedOnlyOnSuccess(t *testing.T) {
	c, _ := newTestCodec(t)
	types := []wit.Type{td(&wit.Own{}), wit.Bool{}}

	var drops dropCount
	p := resource.NewProxy(9, drops.drop)
	if _, err := c.LowerParams(types, []any{p, "oops"}, nil); !isKind(err, errs.KindTypeMismatch) {
		t.Fatalf("lowering a string as bool = %v, want type mismatch", err)
	}
	if !p.Valid() {
		t.Fatal("failed lowering must leave the owning proxy intact")
	}
	if err := p.Close(); err != nil || drops.n != 1 {
		t.Fatalf("Close after failed call: %d drops, %v; want exactly one", drops.n, err)
	}

	q := resource.NewProxy(11, drops.drop)
	flat, err := c.LowerParams(types, []any{q, true}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if flat[0] != 11 || q.Valid() {
		t.Fatalf("flat = %v, proxy valid = %v; handle must move into the call", flat, q.Valid())
	}
	_ = q.Close()
	if drops.n != 1 {
		t.Fatal("moved-from proxy must not drop")
	}
}

func TestLowerParams_OwnWithCallerList(t *testing.T) {
	c, _ := newTestCodec(t)
	types := []wit.Type{td(&wit.Own{})}
	p := resource.NewProxy(5, nil)

	l := alloc.NewList()
	defer l.Release()
	if _, err := c.LowerParams(types, []any{p}, l); err != nil {
		t.Fatal(err)
	}
	if !p.Valid() || l.Moves() != 1 {
		t.Fatal("take must wait for the caller to commit the list")
	}
	l.Forget()
	if p.Valid() {
		t.Fatal("Forget must move the handle out of the proxy")
	}
}
