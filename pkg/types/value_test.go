package types

import (
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateKey(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		wantErr bool
	}{
		{name: "simple key", key: "theme"},
		{name: "dotted key", key: "settings.ui.theme"},
		{name: "max length", key: strings.Repeat("k", MaxKeyLength)},
		{name: "empty", key: "", wantErr: true},
		{name: "too long", key: strings.Repeat("k", MaxKeyLength+1), wantErr: true},
		{name: "invalid utf8", key: "\xff\xfe", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateKey(tt.key)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidKey)
				return
			}
			assert.NoError(t, err)
		})
	}
}

type level int

type label string

func TestNormalizeValue(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want any
	}{
		{name: "string", in: "dark", want: "dark"},
		{name: "bool", in: true, want: true},
		{name: "int", in: 42, want: int64(42)},
		{name: "int32", in: int32(-7), want: int64(-7)},
		{name: "uint16", in: uint16(9), want: int64(9)},
		{name: "float32", in: float32(0.5), want: float64(0.5)},
		{name: "named int", in: level(3), want: int64(3)},
		{name: "named string", in: label("x"), want: "x"},
		{name: "bytes", in: []byte("raw"), want: []byte("raw")},
		{name: "string slice", in: []string{"a", "b"}, want: []any{"a", "b"}},
		{name: "int map", in: map[string]int{"a": 1}, want: map[string]any{"a": int64(1)}},
		{
			name: "nested",
			in:   map[string]any{"list": []int{1, 2}, "on": true},
			want: map[string]any{"list": []any{int64(1), int64(2)}, "on": true},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeValue(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalizeValue_Rejects(t *testing.T) {
	tests := []struct {
		name string
		in   any
	}{
		{name: "nil", in: nil},
		{name: "struct", in: struct{ A int }{A: 1}},
		{name: "channel", in: make(chan int)},
		{name: "int keyed map", in: map[int]string{1: "a"}},
		{name: "uint64 overflow", in: uint64(math.MaxUint64)},
		{name: "nested nil", in: map[string]any{"a": nil}},
		{name: "nil pointer", in: (*int)(nil)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NormalizeValue(tt.in)
			assert.ErrorIs(t, err, ErrInvalidValue)
		})
	}
}

func TestNormalizeValue_CopiesBytes(t *testing.T) {
	src := []byte("abc")
	got, err := NormalizeValue(src)
	require.NoError(t, err)
	src[0] = 'z'
	assert.Equal(t, []byte("abc"), got)
}

func TestCloneValue(t *testing.T) {
	src := map[string]any{
		"tags": []any{"a", map[string]any{"on": true}},
		"raw":  []byte("abc"),
		"size": int64(12),
	}
	got := CloneValue(src).(map[string]any)
	assert.Equal(t, src, got)

	got["size"] = int64(1)
	got["tags"].([]any)[1].(map[string]any)["on"] = false
	got["raw"].([]byte)[0] = 'z'

	assert.Equal(t, int64(12), src["size"])
	assert.Equal(t, true, src["tags"].([]any)[1].(map[string]any)["on"])
	assert.Equal(t, []byte("abc"), src["raw"])
	assert.Equal(t, "dark", CloneValue("dark"))
}

func TestNewChange(t *testing.T) {
	c := NewChange(ReasonServerChange, "b", "a", "", "b", "  ")
	assert.Equal(t, []string{"a", "b"}, c.Keys)
	assert.True(t, c.Contains("a"))
	assert.False(t, c.Contains("c"))
	assert.Equal(t, "server", c.Reason.String())
	assert.Equal(t, "quota-violation", ReasonQuotaViolationChange.String())
	assert.Equal(t, "unknown", ChangeReason(99).String())
}

func TestDecodeJSON(t *testing.T) {
	v, err := DecodeJSON([]byte(`{"size": 12, "ratio": 1.5, "tags": ["a", 2]}`))
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"size":  int64(12),
		"ratio": 1.5,
		"tags":  []any{"a", int64(2)},
	}, v)

	v, err = DecodeJSON([]byte(`"dark"`))
	require.NoError(t, err)
	assert.Equal(t, "dark", v)

	_, err = DecodeJSON([]byte(`null`))
	assert.ErrorIs(t, err, ErrInvalidValue)

	_, err = DecodeJSON([]byte(`dark`))
	assert.Error(t, err)

	_, err = DecodeJSON([]byte(`1 2`))
	assert.Error(t, err)
}
