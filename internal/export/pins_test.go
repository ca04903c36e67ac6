package export

import (
	"reflect"
	"testing"
)

func TestPinSetExplicitList(t *testing.T) {
	p := NewPinSet([]string{"main", "lobby"})

	if !p.Pinned("main") || !p.Pinned("lobby") {
		t.Error("listed sessions should be pinned")
	}
	if p.Pinned("other") {
		t.Error("unlisted session should not be pinned")
	}
	if got := p.List(); !reflect.DeepEqual(got, []string{"lobby", "main"}) {
		t.Errorf("List = %v", got)
	}
}

func TestPinSetWildcard(t *testing.T) {
	p := NewPinSet([]string{"*"})
	if !p.Pinned("anything-at-all") {
		t.Error("wildcard should pin every session")
	}
	if got := p.List(); !reflect.DeepEqual(got, []string{"*"}) {
		t.Errorf("List = %v", got)
	}
}

func TestPinSetRuntimeMutation(t *testing.T) {
	p := NewPinSet(nil)

	p.Set("demo", true)
	if !p.Pinned("demo") {
		t.Error("Set(true) did not pin")
	}

	p.Set("demo", false)
	if p.Pinned("demo") {
		t.Error("Set(false) did not unpin")
	}
}

func TestPinSetReplace(t *testing.T) {
	p := NewPinSet([]string{"old"})
	p.Replace([]string{"new", ""})

	if p.Pinned("old") {
		t.Error("Replace kept a stale entry")
	}
	if !p.Pinned("new") {
		t.Error("Replace dropped a new entry")
	}
	if p.Pinned("") {
		t.Error("empty id should never be pinned")
	}
}
