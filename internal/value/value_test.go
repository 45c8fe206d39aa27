package value

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func roundTrip(t *testing.T, v Value) Value {
	t.Helper()
	enc, err := Encode(v)
	require.NoError(t, err)
	dec, err := Decode(enc)
	require.NoError(t, err)
	return dec
}

func TestEncodeDecodeScalars(t *testing.T) {
	cases := []Value{
		Int(0),
		Int(42),
		Int(-42),
		Int(1<<62 - 1),
		Float(3.1415926),
		Float(-0.5),
		Text(""),
		Text("hello"),
		Text("türkçe ünïcode"),
		UUID([16]byte{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15}),
	}
	for _, v := range cases {
		got := roundTrip(t, v)
		require.True(t, v.Equal(got), "round trip changed %v", v.Kind())
	}
}

func TestEncodeDecodeComposites(t *testing.T) {
	m := Map([]MapEntry{
		{Key: "a", Val: Int(1)},
		{Key: "b", Val: List([]Value{Text("x"), Float(2.5)})},
		{Key: "c", Val: Map([]MapEntry{{Key: "inner", Val: Int(-7)}})},
	})
	got := roundTrip(t, m)
	require.True(t, m.Equal(got))

	l := List([]Value{Int(1), Int(2), List([]Value{Text("nested")})})
	got = roundTrip(t, l)
	require.True(t, l.Equal(got))
}

func TestMapOrderIsPreserved(t *testing.T) {
	ab := Map([]MapEntry{{Key: "a", Val: Int(1)}, {Key: "b", Val: Int(2)}})
	ba := Map([]MapEntry{{Key: "b", Val: Int(2)}, {Key: "a", Val: Int(1)}})

	encAB, err := Encode(ab)
	require.NoError(t, err)
	encBA, err := Encode(ba)
	require.NoError(t, err)

	// Same pairs, different insertion order: distinct encodings, hence
	// distinct keys.
	require.NotEqual(t, encAB, encBA)
	require.NotZero(t, Compare(encAB, encBA))
}

func TestTagLayout(t *testing.T) {
	enc, err := Encode(Int(1))
	require.NoError(t, err)
	require.Equal(t, byte(KindInt), enc[0])
	require.Len(t, enc, 9)

	enc, err = Encode(Text("ab"))
	require.NoError(t, err)
	require.Equal(t, []byte{byte(KindText), 0, 0, 0, 2, 'a', 'b'}, enc)
}

func TestDecodeRejectsGarbage(t *testing.T) {
	for _, data := range [][]byte{
		nil,
		{},
		{0x00},
		{0xFF, 1, 2},
		{byte(KindInt), 1, 2, 3},          // short int
		{byte(KindText), 0, 0, 0, 9, 'a'}, // length beyond buffer
		{byte(KindUUID), 1, 2, 3},         // short uuid
		append([]byte{byte(KindInt)}, make([]byte, 9)...), // trailing byte
	} {
		_, err := Decode(data)
		require.ErrorIs(t, err, ErrInvalidEncoding, "data %v", data)
	}
}

func TestNestingDepthCap(t *testing.T) {
	v := Int(1)
	for i := 0; i < MaxNestingDepth+2; i++ {
		v = List([]Value{v})
	}
	_, err := Encode(v)
	require.ErrorIs(t, err, ErrInvalidEncoding)
}

func TestCompareOrdering(t *testing.T) {
	enc := func(v Value) []byte {
		b, err := Encode(v)
		require.NoError(t, err)
		return b
	}

	// Unequal tags order by tag number: int < float < text < uuid.
	require.Negative(t, Compare(enc(Int(999)), enc(Float(0.1))))
	require.Negative(t, Compare(enc(Float(999)), enc(Text("a"))))
	require.Negative(t, Compare(enc(Text("zzz")), enc(UUID([16]byte{}))))

	// Equal tags order by payload.
	require.Negative(t, Compare(enc(Int(-5)), enc(Int(3))))
	require.Positive(t, Compare(enc(Int(10)), enc(Int(2))))
	require.Zero(t, Compare(enc(Int(7)), enc(Int(7))))

	require.Negative(t, Compare(enc(Float(1.5)), enc(Float(2.5))))
	require.Negative(t, Compare(enc(Text("abc")), enc(Text("abd"))))
	require.Negative(t, Compare(enc(Text("ab")), enc(Text("abc"))))

	u1 := UUID([16]byte{1})
	u2 := UUID([16]byte{2})
	require.Negative(t, Compare(enc(u1), enc(u2)))
}
