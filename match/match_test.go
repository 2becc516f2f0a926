package match

import (
	"math/rand"
	"strings"
	"testing"
)

func TestSplitKey(t *testing.T) {
	tests := []struct {
		key  string
		want []string
		err  error
	}{
		{"kernel.name", []string{"kernel", "name"}, nil},
		{"components/odometry/reqState", []string{"components", "odometry", "reqState"}, nil},
		{"mi-odometry", []string{"mi-odometry"}, nil},
		{"", nil, EmptyKey},
		{"a..b", nil, EmptySegment},
		{".a", nil, EmptySegment},
		{"a.b.c.d.e.f.g", []string{"a", "b", "c", "d", "e", "f", "g"}, nil},
		{"a.b.c.d.e.f.g.h", nil, TooDeep},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			got, err := SplitKey(tt.key)
			if err != tt.err {
				t.Fatalf("got error %v; wanted %v", err, tt.err)
			}
			if strings.Join(got, "|") != strings.Join(tt.want, "|") {
				t.Fatalf("got %q; wanted %q", got, tt.want)
			}
		})
	}
}

func TestParsePattern(t *testing.T) {
	p, err := ParsePattern("-1:kernel.name")
	if err != nil {
		t.Fatal(err)
	}
	if p.Owner != AnyOwner {
		t.Fatal(p.Owner)
	}
	if p.String() != "-1:kernel.name" {
		t.Fatal(p.String())
	}
	if p.IsLiteral() {
		t.Fatal("wildcard owner isn't literal")
	}

	if _, err = ParsePattern("kernel.name"); err == nil {
		t.Fatal("should have complained about the missing owner")
	}
	if _, err = ParsePattern("x:kernel.name"); err == nil {
		t.Fatal("should have complained about the owner")
	}
	if _, err = ParsePattern("-2:kernel.name"); err == nil {
		t.Fatal("should have complained about the owner")
	}
}

func TestMatch(t *testing.T) {
	tests := []struct {
		name    string
		pattern string
		owner   int
		key     string
		matches bool
	}{
		{"literal", "100:components.odometry.reqState", 100, "components.odometry.reqState", true},
		{"slashes", "100:components/odometry/reqState", 100, "components.odometry.reqState", true},
		{"other owner", "100:components.odometry.reqState", 101, "components.odometry.reqState", false},
		{"any owner", "-1:kernel.name", 7, "kernel.name", true},
		{"wildcard segment", "100:components.*.reqState", 100, "components.laser.reqState", true},
		{"wildcard depth", "100:components.*", 100, "components.laser.reqState", false},
		{"shorter", "100:components.odometry.reqState", 100, "components.odometry", false},
		{"variable", "-1:components.?c.reqState", 100, "components.slam.reqState", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := ParsePattern(tt.pattern)
			if err != nil {
				t.Fatal(err)
			}
			if got := p.Matches(tt.owner, tt.key); got != tt.matches {
				t.Fatalf("got %v; wanted %v", got, tt.matches)
			}
		})
	}
}

func TestMatchVariables(t *testing.T) {
	p, err := ParsePattern("-1:?x.state.?x")
	if err != nil {
		t.Fatal(err)
	}

	if !p.Matches(1, "a.state.a") {
		t.Fatal("should have matched")
	}
	if p.Matches(1, "a.state.b") {
		t.Fatal("inconsistent variable shouldn't match")
	}

	p, err = ParsePattern("-1:?x.state.?y")
	if err != nil {
		t.Fatal(err)
	}
	if !p.Matches(1, "a.state.b") {
		t.Fatal("distinct variables should match distinct segments")
	}
	if p.IsLiteral() {
		t.Fatal("variables aren't literal")
	}
}

// TestMatchFuzz generates random keys and checks that patterns
// derived from them by replacing segments with wildcards still
// match.
func TestMatchFuzz(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	alphabet := "abcde"
	seg := func() string {
		n := 1 + r.Intn(3)
		bs := make([]byte, n)
		for i := range bs {
			bs[i] = alphabet[r.Intn(len(alphabet))]
		}
		return string(bs)
	}

	for i := 0; i < 1000; i++ {
		segs := make([]string, 1+r.Intn(MaxKeyDepth))
		for j := range segs {
			segs[j] = seg()
		}
		key := strings.Join(segs, ".")

		psegs := make([]string, len(segs))
		for j, s := range segs {
			switch r.Intn(3) {
			case 0:
				psegs[j] = Wildcard
			case 1:
				psegs[j] = "?"
			default:
				psegs[j] = s
			}
		}
		owner := r.Intn(5)
		p := Pattern{Owner: AnyOwner, Segs: psegs}
		if !p.Matches(owner, key) {
			t.Fatalf("%s didn't match %d:%s", p, owner, key)
		}
		p.Owner = owner + 1
		if p.Matches(owner, key) {
			t.Fatalf("%s shouldn't match %d:%s", p, owner, key)
		}
	}
}
