package procedure

import "testing"

func TestInterpolate(t *testing.T) {
	vars := map[string]any{
		"order": map[string]any{"total": 42, "status": "shipped"},
		"name":  "Jane",
	}
	cases := []struct{ tmpl, want string }{
		{"hello {{name}}", "hello Jane"},
		{"total is {{order.total}}", "total is 42"},
		{"status {{order.status}}, unknown {{order.missing}}", "status shipped, unknown {{order.missing}}"},
		{"no placeholders here", "no placeholders here"},
	}
	for _, c := range cases {
		if got := Interpolate(c.tmpl, vars); got != c.want {
			t.Errorf("Interpolate(%q) = %q, want %q", c.tmpl, got, c.want)
		}
	}
}

func TestEvalCondition(t *testing.T) {
	vars := map[string]any{"order": map[string]any{"total": 100}}
	cases := []struct {
		expr string
		want bool
	}{
		{"{{order.total}} > 50", true},
		{"{{order.total}} < 50", false},
		{"{{order.total}} == 100", true},
		{"abc == abc", true},
		{"abc != def", true},
		{"not a valid expression", false},
	}
	for _, c := range cases {
		if got := EvalCondition(c.expr, vars); got != c.want {
			t.Errorf("EvalCondition(%q) = %v, want %v", c.expr, got, c.want)
		}
	}
}

func TestSetPathNested(t *testing.T) {
	vars := map[string]any{}
	setPath(vars, "order.total", 42)
	order, ok := vars["order"].(map[string]any)
	if !ok {
		t.Fatal("expected nested order map")
	}
	if order["total"] != 42 {
		t.Errorf("order.total = %v, want 42", order["total"])
	}
}
