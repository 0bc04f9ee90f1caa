package profile

import "testing"

func TestContradicts(t *testing.T) {
	cases := []struct {
		a, b string
		want bool
	}{
		{"likes cats", "allergic to cats", true},
		{"likes cats", "hates cats", true},
		{"喜欢猫", "对猫过敏", true},
		{"likes cats", "allergic to pollen", false},
		{"likes cats", "likes dogs", false},
		{"外向", "内向", true},
		{"outgoing", "shy", true},
		{"严谨", "马虎", true},
		{"吃肉", "素食主义", true},
		{"likes hiking", "dislikes hiking", true},
		{"vegetarian", "loves hiking", false},
	}
	for _, c := range cases {
		if got := Contradicts(c.a, c.b); got != c.want {
			t.Errorf("Contradicts(%q, %q) = %v, want %v", c.a, c.b, got, c.want)
		}
	}
}

func TestContradictsIsSymmetric(t *testing.T) {
	pairs := [][2]string{
		{"likes cats", "allergic to cats"},
		{"外向", "内向"},
	}
	for _, p := range pairs {
		if Contradicts(p[0], p[1]) != Contradicts(p[1], p[0]) {
			t.Errorf("Contradicts not symmetric for %q / %q", p[0], p[1])
		}
	}
}

func TestSharesReferent(t *testing.T) {
	cases := []struct {
		a, b string
		want bool
	}{
		{"cats", "cats", true},
		{"fluffy cats", "cats", true},
		{"cats", "dogs", false},
		{"猫", "猫毛", true},
		{"猫", "狗", false},
	}
	for _, c := range cases {
		if got := SharesReferent(c.a, c.b); got != c.want {
			t.Errorf("SharesReferent(%q, %q) = %v, want %v", c.a, c.b, got, c.want)
		}
	}
}
