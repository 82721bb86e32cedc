package fiber

import "testing"

func TestLocalOffFiberUsesEngineScopedDefault(t *testing.T) {
	m := newTestManager(t)
	type cfg struct{ n int }

	a := Local[cfg](m)
	a.n = 5
	b := Local[cfg](m)
	if b.n != 5 || a != b {
		t.Fatalf("off-fiber Local calls did not share the same engine-scoped default")
	}
}

func TestLocalDifferentTypesDoNotCollide(t *testing.T) {
	m := newTestManager(t)
	type a struct{ n int }
	type b struct{ s string }

	m.AddTask(func() {
		Local[a](m).n = 1
		Local[b](m).s = "x"
		if Local[a](m).n != 1 || Local[b](m).s != "x" {
			t.Fatalf("distinct types collided in fiber-local storage")
		}
	})
}
