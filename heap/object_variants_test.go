package heap

import (
	"bytes"
	"testing"
)

func TestMintInt64RoundTrip(t *testing.T) {
	h := newTestHeap(t)
	v := allocMint(t, h, -12345)
	if got := AsMint(v).Int64(); got != -12345 {
		t.Errorf("Int64() = %d, want -12345", got)
	}
	AsMint(v).SetInt64(42)
	if got := AsMint(v).Int64(); got != 42 {
		t.Errorf("Int64() after SetInt64 = %d, want 42", got)
	}
}

func TestFloat64RoundTrip(t *testing.T) {
	h := newTestHeap(t)
	v := allocFloat64(t, h, 3.14159)
	if got := AsFloat64(v).Float64(); got != 3.14159 {
		t.Errorf("Float64() = %v, want 3.14159", got)
	}
	AsFloat64(v).SetFloat64(-0.5)
	if got := AsFloat64(v).Float64(); got != -0.5 {
		t.Errorf("Float64() after SetFloat64 = %v, want -0.5", got)
	}
}

func TestBigintRoundTrip(t *testing.T) {
	h := newTestHeap(t)
	mag := []byte{0xde, 0xad, 0xbe, 0xef}
	v := allocBigint(t, h, true, mag)
	b := AsBigint(v)
	if !b.Negative() {
		t.Error("Negative() = false, want true")
	}
	if b.Length() != len(mag) {
		t.Errorf("Length() = %d, want %d", b.Length(), len(mag))
	}
	if !bytes.Equal(b.Magnitude(), mag) {
		t.Errorf("Magnitude() = %x, want %x", b.Magnitude(), mag)
	}
}

func TestByteStringEnsureHashIsStableAndCached(t *testing.T) {
	h := newTestHeap(t)
	v := allocByteString(t, h, "hello world")
	bs := AsByteString(v)

	first := bs.EnsureHash(7)
	second := bs.EnsureHash(7)
	if first != second {
		t.Errorf("EnsureHash not stable across calls: %d != %d", first, second)
	}

	other := allocByteString(t, h, "hello world")
	if AsByteString(other).EnsureHash(7) != first {
		t.Error("EnsureHash should be a pure function of bytes and salt")
	}

	differentSalt := allocByteString(t, h, "hello world")
	if AsByteString(differentSalt).EnsureHash(99) == first {
		t.Error("EnsureHash with a different salt happened to collide; expected different hashes")
	}
}

func TestByteStringBytesRoundTrip(t *testing.T) {
	h := newTestHeap(t)
	v := allocByteString(t, h, "roundtrip")
	if got := string(AsByteString(v).Bytes()); got != "roundtrip" {
		t.Errorf("Bytes() = %q, want %q", got, "roundtrip")
	}
}

func TestWideStringRunesRoundTrip(t *testing.T) {
	h := newTestHeap(t)
	v := allocWideString(t, h, "héllo 世界")
	got := string(AsWideString(v).Runes())
	if got != "héllo 世界" {
		t.Errorf("Runes() = %q, want %q", got, "héllo 世界")
	}
}

func TestWideStringEnsureHashStable(t *testing.T) {
	h := newTestHeap(t)
	v := allocWideString(t, h, "wide")
	first := AsWideString(v).EnsureHash(3)
	second := AsWideString(v).EnsureHash(3)
	if first != second {
		t.Errorf("EnsureHash not stable: %d != %d", first, second)
	}
}

func TestActivationStackPushPopDrop(t *testing.T) {
	h := newTestHeap(t)
	a := AsActivation(allocActivation(t, h, NilValue, NilValue, NilValue, NilValue))

	a.Push(TagSmi(1))
	a.Push(TagSmi(2))
	a.Push(TagSmi(3))
	if a.StackDepth() != 3 {
		t.Fatalf("StackDepth() = %d, want 3", a.StackDepth())
	}
	if got := a.Pop().UntagSmi(); got != 3 {
		t.Errorf("Pop() = %d, want 3", got)
	}
	if got := a.Stack(0).UntagSmi(); got != 2 {
		t.Errorf("Stack(0) = %d, want 2", got)
	}
	a.Drop(1)
	if a.StackDepth() != 1 {
		t.Fatalf("StackDepth() after Drop = %d, want 1", a.StackDepth())
	}
	a.PopNAndPush(1, TagSmi(99))
	if a.StackDepth() != 1 {
		t.Fatalf("StackDepth() after PopNAndPush = %d, want 1", a.StackDepth())
	}
	if got := a.Stack(0).UntagSmi(); got != 99 {
		t.Errorf("Stack(0) after PopNAndPush = %d, want 99", got)
	}
}

func TestActivationGrowFillsWithNil(t *testing.T) {
	h := newTestHeap(t)
	a := AsActivation(allocActivation(t, h, NilValue, NilValue, NilValue, NilValue))
	a.Grow(4, NilValue)
	if a.StackDepth() != 4 {
		t.Fatalf("StackDepth() after Grow(4) = %d, want 4", a.StackDepth())
	}
	for i := 0; i < 4; i++ {
		if a.Stack(i) != NilValue {
			t.Errorf("Stack(%d) = %v, want NilValue", i, a.Stack(i))
		}
	}
}

func TestActivationPushPastCapacityPanics(t *testing.T) {
	h := newTestHeap(t)
	a := AsActivation(allocActivation(t, h, NilValue, NilValue, NilValue, NilValue))
	defer func() {
		if recover() == nil {
			t.Error("Push past ActivationTempsCapacity should have panicked")
		}
	}()
	for i := 0; i <= ActivationTempsCapacity; i++ {
		a.Push(TagSmi(int64(i)))
	}
}

func TestActivationSenderAndPC(t *testing.T) {
	h := newTestHeap(t)
	method := allocByteString(t, h, "method-stand-in")
	sender := allocByteString(t, h, "sender-stand-in")
	a := AsActivation(allocActivation(t, h, method, NilValue, NilValue, NilValue))

	a.SetSender(sender)
	a.SetPC(17)
	if a.Sender() != sender {
		t.Error("Sender() did not round-trip through SetSender")
	}
	if a.PC() != 17 {
		t.Errorf("PC() = %d, want 17", a.PC())
	}
	if a.Method() != method {
		t.Error("Method() did not match the value passed at allocation")
	}
}

func TestClosureCopiedValuesRoundTrip(t *testing.T) {
	h := newTestHeap(t)
	activation := allocActivation(t, h, NilValue, NilValue, NilValue, NilValue)
	a := TagSmi(1)
	b := TagSmi(2)
	v := allocClosure(t, h, activation, 3, 2, []Value{a, b})

	c := AsClosure(v)
	if c.NumCopied() != 2 {
		t.Fatalf("NumCopied() = %d, want 2", c.NumCopied())
	}
	if c.CopiedAt(0) != a || c.CopiedAt(1) != b {
		t.Error("CopiedAt did not return the values passed at allocation")
	}
	if c.InitialBCI() != 3 {
		t.Errorf("InitialBCI() = %d, want 3", c.InitialBCI())
	}
	if c.ArgumentCount() != 2 {
		t.Errorf("ArgumentCount() = %d, want 2", c.ArgumentCount())
	}
	if c.DefiningActivation() != activation {
		t.Error("DefiningActivation() did not match the value passed at allocation")
	}

	replacement := TagSmi(42)
	c.SetCopiedAt(0, replacement)
	if c.CopiedAt(0) != replacement {
		t.Error("SetCopiedAt did not update the slot")
	}

	newActivation := allocActivation(t, h, NilValue, NilValue, NilValue, NilValue)
	c.SetDefiningActivation(newActivation)
	if c.DefiningActivation() != newActivation {
		t.Error("SetDefiningActivation did not update the slot")
	}
}
