package model

import (
	"errors"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
)

func TestError_IsMatchesKind(t *testing.T) {
	err := NewError(KindFetch, "wb: fetch", errors.New("connection refused"))

	assert.True(t, errors.Is(err, ErrFetch))
	assert.False(t, errors.Is(err, ErrStorage))
	assert.Equal(t, "wb: fetch: fetch: connection refused", err.Error())
}

func TestError_IsThroughErisWrap(t *testing.T) {
	err := eris.Wrap(NewError(KindStorage, "postgres: upsert", errors.New("boom")), "service: save")

	assert.True(t, errors.Is(err, ErrStorage))
	assert.Equal(t, KindStorage, KindOf(err))
}

func TestError_UnwrapExposesCause(t *testing.T) {
	cause := errors.New("root cause")
	err := NewError(KindExport, "sheets: update", cause)

	assert.True(t, errors.Is(err, cause))
}

func TestNewError_Nil(t *testing.T) {
	assert.Nil(t, NewError(KindFetch, "op", nil))
}

func TestKindOf_Unclassified(t *testing.T) {
	assert.Equal(t, Kind(""), KindOf(errors.New("plain")))
	assert.Equal(t, Kind(""), KindOf(nil))
}

func TestError_Messages(t *testing.T) {
	assert.Equal(t, "fetch", ErrFetch.Error())
	assert.Equal(t, "op: storage", (&Error{Kind: KindStorage, Op: "op"}).Error())
	assert.Equal(t, "export: x", (&Error{Kind: KindExport, Err: errors.New("x")}).Error())
}
