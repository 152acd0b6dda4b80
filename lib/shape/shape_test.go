package shape

import (
	"math"
	"testing"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRectIntersects(t *testing.T) {
	a := NewRect(0, 0, 10, 10)
	b := NewRect(5, 5, 15, 15)
	c := NewRect(100, 100, 110, 110)
	edge := NewRect(10, 0, 20, 10)

	assert.True(t, a.Intersects(b))
	assert.True(t, b.Intersects(a))
	assert.False(t, a.Intersects(c))
	assert.True(t, a.Intersects(edge), "closed boundaries touch")
	assert.True(t, NewPoint(10, 10).Intersects(a))
	assert.False(t, NewPoint(10.5, 10).Intersects(a))
}

func TestNewRectNormalizes(t *testing.T) {
	r := NewRect(10, 5, 0, -5)
	assert.Equal(t, Rect{X1: 0, Y1: -5, X2: 10, Y2: 5}, *r)
	assert.False(t, r.IsEmpty())
	assert.True(t, EmptyRect().IsEmpty())
	assert.False(t, EmptyRect().Expand(Rect{X1: 1, Y1: 1, X2: 1, Y2: 1}).IsEmpty())
}

func TestDistanceTo(t *testing.T) {
	r := NewRect(0, 0, 10, 10)
	assert.Equal(t, 0.0, r.DistanceTo(Point{X: 5, Y: 5}))
	assert.Equal(t, 5.0, r.DistanceTo(Point{X: 13, Y: 14}))
	assert.Equal(t, 3.0, r.DistanceTo(Point{X: -3, Y: 4}))
	assert.Equal(t, 5.0, NewPoint(0, 0).DistanceTo(Point{X: 3, Y: 4}))
}

func TestTextRoundTrip(t *testing.T) {
	faker := gofakeit.New(0)
	for i := 0; i < 200; i++ {
		x1, y1 := faker.Float64Range(-1e6, 1e6), faker.Float64Range(-1e6, 1e6)
		r := NewRect(x1, y1, x1+faker.Float64Range(0, 100), y1+faker.Float64Range(0, 100))

		var got Rect
		require.NoError(t, got.ParseText(r.AppendText(nil)))
		assert.Equal(t, *r, got)

		c := &CellInfo{ID: int64(i), Rect: *r}
		var gotCell CellInfo
		require.NoError(t, gotCell.ParseText([]byte(Text(c))))
		assert.Equal(t, *c, gotCell)
	}

	tagged := NewTaggedShape(42, 1, NewPoint(1.5, -2.25))
	assert.Equal(t, "42,1.5,-2.25", Text(tagged))
	parsed := &TaggedShape{Shape: &Point{}}
	require.NoError(t, parsed.ParseText([]byte("42,1.5,-2.25")))
	assert.Equal(t, int64(42), parsed.ID)
	assert.Equal(t, &Point{X: 1.5, Y: -2.25}, parsed.Shape)
}

func TestParseMalformed(t *testing.T) {
	lines := []string{"", "1,2,3", "a,b,c,d", "1,2,3,4,5", "1;2;3;4",
		"NaN,1,2,3", "0,0,Inf,1", "-Infinity,0,1,1", "0,0,1,+inf"}
	for _, l := range lines {
		var r Rect
		err := r.ParseText([]byte(l))
		assert.True(t, errors.Is(err, ErrMalformed), "line %q", l)
	}

	var p Point
	assert.True(t, errors.Is(p.ParseText([]byte("nan,0")), ErrMalformed))

	var c CellInfo
	assert.True(t, errors.Is(c.ParseText([]byte("x,0,0,1,1")), ErrMalformed))

	var ts TaggedShape
	assert.True(t, errors.Is(ts.ParseText([]byte("1,0,0")), ErrMalformed))
}

func TestBinaryRoundTrip(t *testing.T) {
	shapes := []Shape{
		NewPoint(1, 2),
		NewRect(-1, -2, 3, 4),
		NewCellInfo(-7, 0, 0, 50, 100),
		NewTaggedShape(1<<40, 1, NewRect(5, 5, 15, 15)),
		NewTaggedShape(3, 0, NewTaggedShape(9, 1, NewPoint(math.MaxFloat64, -0.5))),
	}
	var buf []byte
	for _, s := range shapes {
		buf = AppendBinary(buf, s)
	}
	for _, want := range shapes {
		got, n, err := DecodeBinary(buf)
		require.NoError(t, err)
		assert.Equal(t, want, got)
		buf = buf[n:]
	}
	assert.Empty(t, buf)
}

func TestDecodeUnknownKindIsError(t *testing.T) {
	_, _, err := DecodeBinary([]byte{0x7f, 1, 2, 3})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownKind))

	inner := AppendBinary(nil, NewTaggedShape(1, 0, NewPoint(0, 0)))
	inner[len(inner)-17] = 0x09
	_, _, err = DecodeBinary(inner)
	assert.True(t, errors.Is(err, ErrUnknownKind))

	_, _, err = DecodeBinary([]byte{byte(KindRect), 1, 2})
	assert.True(t, errors.Is(err, ErrMalformed))
}

func TestCloneIsDeep(t *testing.T) {
	orig := NewTaggedShape(1, 0, NewRect(0, 0, 1, 1))
	c := orig.Clone().(*TaggedShape)
	c.Shape.(*Rect).X2 = 99
	assert.Equal(t, 1.0, orig.Shape.(*Rect).X2)
}

func TestParser(t *testing.T) {
	parse, err := Parser("point")
	require.NoError(t, err)
	s, err := parse([]byte("3,4"))
	require.NoError(t, err)
	assert.Equal(t, KindPoint, s.Kind())
	assert.Equal(t, Rect{X1: 3, Y1: 4, X2: 3, Y2: 4}, s.MBR())

	_, err = Parser("polygon")
	assert.True(t, errors.Is(err, ErrUnknownKind))
}
