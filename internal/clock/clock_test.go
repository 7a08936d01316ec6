package clock

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClock_ZeroValue(t *testing.T) {
	var c Clock

	assert.False(t, c.Has("a"))
	_, ok := c.Get("a")
	assert.False(t, ok)
	assert.False(t, c.Contains("a", 0))
	assert.Equal(t, Unknown, c.Lookup("a", 0))
	assert.Equal(t, 0, c.Len())
	assert.Equal(t, "{}", c.String())
}

func TestClock_Contains(t *testing.T) {
	c := New(map[string]int64{"a": 2, "b": 0})

	tests := []struct {
		name   string
		writer string
		seq    int64
		want   Knowledge
	}{
		{"older entry", "a", 1, Known},
		{"exact head", "a", 2, Known},
		{"newer entry", "a", 3, Behind},
		{"first entry", "b", 0, Known},
		{"unknown writer", "c", 0, Unknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, c.Lookup(tt.writer, tt.seq))
			assert.Equal(t, tt.want == Known, c.Contains(tt.writer, tt.seq))
		})
	}
}

func TestClock_New_CopiesInput(t *testing.T) {
	src := map[string]int64{"a": 1}
	c := New(src)

	src["a"] = 7
	src["b"] = 3

	got, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, int64(1), got)
	assert.False(t, c.Has("b"))
}

func TestClock_New_DropsNegative(t *testing.T) {
	c := New(map[string]int64{"a": -1, "b": 0})
	assert.False(t, c.Has("a"))
	assert.True(t, c.Has("b"))
}

func TestClock_With_DoesNotMutate(t *testing.T) {
	c1 := New(map[string]int64{"a": 1})
	c2 := c1.With("a", 4).With("b", 0)

	got, _ := c1.Get("a")
	assert.Equal(t, int64(1), got)
	assert.False(t, c1.Has("b"))

	got, _ = c2.Get("a")
	assert.Equal(t, int64(4), got)
	assert.True(t, c2.Has("b"))
}

func TestClock_With_NeverDecreases(t *testing.T) {
	c := New(map[string]int64{"a": 5}).With("a", 2)
	got, _ := c.Get("a")
	assert.Equal(t, int64(5), got)
}

func TestClock_Map_IsCopy(t *testing.T) {
	c := New(map[string]int64{"a": 1})
	m := c.Map()
	m["a"] = 9

	got, _ := c.Get("a")
	assert.Equal(t, int64(1), got)
}

func TestClock_Merge(t *testing.T) {
	c1 := New(map[string]int64{"a": 3, "b": 1})
	c2 := New(map[string]int64{"a": 2, "b": 5, "c": 1})

	merged := c1.Merge(c2)

	assert.Equal(t, map[string]int64{"a": 3, "b": 5, "c": 1}, merged.Map())
	assert.Equal(t, map[string]int64{"a": 3, "b": 1}, c1.Map(), "merge must not mutate receiver")
}

func TestClock_Compare(t *testing.T) {
	tests := []struct {
		name string
		a, b map[string]int64
		want Relation
	}{
		{"both empty", nil, nil, Equal},
		{"equal", map[string]int64{"a": 1}, map[string]int64{"a": 1}, Equal},
		{"before", map[string]int64{"a": 1}, map[string]int64{"a": 2}, Before},
		{"after", map[string]int64{"a": 2, "b": 0}, map[string]int64{"a": 2}, After},
		{"missing writer is before", map[string]int64{}, map[string]int64{"a": 0}, Before},
		{"concurrent", map[string]int64{"a": 1}, map[string]int64{"b": 1}, Concurrent},
		{"concurrent mixed", map[string]int64{"a": 2, "b": 0}, map[string]int64{"a": 1, "b": 1}, Concurrent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, New(tt.a).Compare(New(tt.b)))
		})
	}
}

func TestClock_MergeDominatesBoth(t *testing.T) {
	c1 := New(map[string]int64{"n1": 1, "n2": 1})
	c2 := New(map[string]int64{"n1": 2, "n3": 1})
	merged := c1.Merge(c2)

	for _, c := range []Clock{c1, c2} {
		rel := merged.Compare(c)
		assert.True(t, rel == After || rel == Equal, "merged should dominate, got %v", rel)
	}
}

func TestClock_Equal(t *testing.T) {
	assert.True(t, New(map[string]int64{"a": 1}).Equal(New(map[string]int64{"a": 1})))
	assert.False(t, New(map[string]int64{"a": 1}).Equal(New(map[string]int64{"a": 2})))
	assert.False(t, New(map[string]int64{"a": 1}).Equal(New(map[string]int64{"b": 1})))
	assert.True(t, Clock{}.Equal(New(nil)))
}

func TestClock_Writers_Sorted(t *testing.T) {
	c := New(map[string]int64{"c": 0, "a": 0, "b": 0})
	assert.Equal(t, []string{"a", "b", "c"}, c.Writers())
	assert.Equal(t, "{a:0, b:0, c:0}", c.String())
}

func TestClock_JSON(t *testing.T) {
	c := New(map[string]int64{"b": 2, "a": 1})

	data, err := json.Marshal(c)
	require.NoError(t, err)
	assert.Equal(t, `{"a":1,"b":2}`, string(data))

	var decoded Clock
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.True(t, c.Equal(decoded))

	empty, err := json.Marshal(Clock{})
	require.NoError(t, err)
	assert.Equal(t, "{}", string(empty))
}

func TestClock_UnmarshalJSON_Invalid(t *testing.T) {
	var c Clock
	err := json.Unmarshal([]byte(`{"a":"x"}`), &c)
	assert.Error(t, err)
}
