package headers

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSet_OverwriteKeepsPosition(t *testing.T) {
	s := NewSet()
	s.Put("contentType", String("application/json"))
	s.Put("timestamp", Int64(1))
	s.Put("contentType", String("text/plain"))

	assert.Equal(t, []string{"contentType", "timestamp"}, s.Names())
	v, _ := s.Get("contentType")
	assert.Equal(t, "text/plain", v.Str())
}

func TestSet_Merge(t *testing.T) {
	base := NewSet()
	base.Put("a", Int32(1))
	base.Put("b", Int32(2))

	over := NewSet()
	over.Put("b", String("two"))
	over.Put("c", Bool(true))

	base.Merge(over)

	assert.Equal(t, 3, base.Len())
	assert.Equal(t, []string{"a", "b", "c"}, base.Names())
	v, _ := base.Get("b")
	assert.Equal(t, KindString, v.Kind())
}

func TestSet_NilIsEmpty(t *testing.T) {
	var s *Set
	assert.Equal(t, 0, s.Len())
	assert.Nil(t, s.Names())
	_, ok := s.Get("x")
	assert.False(t, ok)

	called := false
	s.Range(func(string, Value) bool { called = true; return true })
	assert.False(t, called)
}
