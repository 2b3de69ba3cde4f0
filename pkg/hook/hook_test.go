package hook

import (
	"context"
	"errors"
	"testing"
)

func TestRegisterOrderAndPrepend(t *testing.T) {
	d := New()
	var order []string
	d.Register("greet", func(context.Context, any) (any, error) {
		order = append(order, "first")
		return nil, nil
	}, false)
	d.Register("greet", func(context.Context, any) (any, error) {
		order = append(order, "second")
		return nil, nil
	}, false)
	d.Register("greet", func(context.Context, any) (any, error) {
		order = append(order, "prepended")
		return nil, nil
	}, true)

	if _, err := d.Exec(context.Background(), Options{Hook: "greet"}); err != nil {
		t.Fatalf("exec: %v", err)
	}
	want := []string{"prepended", "first", "second"}
	if len(order) != len(want) {
		t.Fatalf("got %v want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("got %v want %v", order, want)
		}
	}
}

func TestUnregisterByReference(t *testing.T) {
	d := New()
	calls := 0
	remove := d.Register("step", func(context.Context, any) (any, error) {
		calls++
		return nil, nil
	}, false)
	if d.Count("step") != 1 {
		t.Fatalf("count = %d", d.Count("step"))
	}
	remove()
	remove() // second call is a no-op
	if d.Count("step") != 0 {
		t.Fatalf("count after remove = %d", d.Count("step"))
	}
	if _, err := d.Exec(context.Background(), Options{Hook: "step"}); err != nil {
		t.Fatalf("exec: %v", err)
	}
	if calls != 0 {
		t.Fatalf("removed handler ran %d times", calls)
	}
}

func TestUseRegistersAndRemovesSet(t *testing.T) {
	d := New()
	set := Set{
		"a": func(context.Context, any) (any, error) { return nil, nil },
		"b": func(context.Context, any) (any, error) { return nil, nil },
	}
	remove := d.Use(set, false)
	if d.Total() != 2 {
		t.Fatalf("total = %d", d.Total())
	}
	remove()
	if d.Total() != 0 {
		t.Fatalf("total after remove = %d", d.Total())
	}
}

func TestExecEmptyHookSucceeds(t *testing.T) {
	d := New()
	out, err := d.Exec(context.Background(), Options{Hook: "nobody-home"})
	if err != nil {
		t.Fatalf("exec: %v", err)
	}
	if out.Value != nil || out.Exited {
		t.Fatalf("expected empty outcome, got %+v", out)
	}
}

func TestWaterfallThreadsValues(t *testing.T) {
	d := New()
	d.Register("transform", func(_ context.Context, payload any) (any, error) {
		return payload.(int) + 1, nil
	}, false)
	d.Register("transform", func(_ context.Context, payload any) (any, error) {
		return nil, nil // nil keeps the current value
	}, false)
	d.Register("transform", func(_ context.Context, payload any) (any, error) {
		return payload.(int) * 10, nil
	}, false)

	out, err := d.Exec(context.Background(), Options{Hook: "transform", Payload: 1, Waterfall: true})
	if err != nil {
		t.Fatalf("exec: %v", err)
	}
	if out.Value != 20 {
		t.Fatalf("value = %v, want 20", out.Value)
	}
}

func TestReturnResultStopsAtFirstValue(t *testing.T) {
	d := New()
	ran := 0
	d.Register("pick", func(context.Context, any) (any, error) {
		ran++
		return nil, nil
	}, false)
	d.Register("pick", func(context.Context, any) (any, error) {
		ran++
		return "winner", nil
	}, false)
	d.Register("pick", func(context.Context, any) (any, error) {
		ran++
		return "never", nil
	}, false)

	out, err := d.Exec(context.Background(), Options{Hook: "pick", ReturnResult: true})
	if err != nil {
		t.Fatalf("exec: %v", err)
	}
	if out.Value != "winner" {
		t.Fatalf("value = %v", out.Value)
	}
	if ran != 2 {
		t.Fatalf("ran = %d, want 2", ran)
	}
}

func TestAllowExitStopsOnStop(t *testing.T) {
	d := New()
	ran := 0
	d.Register("gate", func(context.Context, any) (any, error) {
		ran++
		return Stop, nil
	}, false)
	d.Register("gate", func(context.Context, any) (any, error) {
		ran++
		return nil, nil
	}, false)

	out, err := d.Exec(context.Background(), Options{Hook: "gate", AllowExit: true})
	if err != nil {
		t.Fatalf("exec: %v", err)
	}
	if !out.Exited {
		t.Fatalf("expected exited outcome")
	}
	if ran != 1 {
		t.Fatalf("ran = %d, want 1", ran)
	}
}

func TestHandlerErrorAborts(t *testing.T) {
	d := New()
	boom := errors.New("boom")
	ran := 0
	d.Register("fail", func(context.Context, any) (any, error) {
		return nil, boom
	}, false)
	d.Register("fail", func(context.Context, any) (any, error) {
		ran++
		return nil, nil
	}, false)

	if _, err := d.Exec(context.Background(), Options{Hook: "fail"}); !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
	if ran != 0 {
		t.Fatalf("later handler ran after error")
	}
}

func TestClearAndReset(t *testing.T) {
	d := New()
	d.Register("a", func(context.Context, any) (any, error) { return nil, nil }, false)
	d.Register("b", func(context.Context, any) (any, error) { return nil, nil }, false)
	d.Clear("a")
	if d.Count("a") != 0 || d.Count("b") != 1 {
		t.Fatalf("clear left counts a=%d b=%d", d.Count("a"), d.Count("b"))
	}
	d.Reset()
	if d.Total() != 0 {
		t.Fatalf("total after reset = %d", d.Total())
	}
}
