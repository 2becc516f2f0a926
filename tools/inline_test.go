package tools

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestInline(t *testing.T) {
	input := `
I like %inline("tacos"), and
I also like %inline("queso").
Both are delicious.
`
	want := `
I like TACOS, and
I also like QUESO.
Both are delicious.
`

	find := func(name string) ([]byte, error) {
		return []byte(strings.ToUpper(name)), nil
	}

	got, err := Inline([]byte(input), find)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != want {
		t.Fatalf("got %s", got)
	}
}

func TestReadFileWithInlines(t *testing.T) {
	dir := t.TempDir()
	write := func(name, s string) {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(s), 0644); err != nil {
			t.Fatal(err)
		}
	}
	write("main.ts", `%inline("lib.ts")
echo fac 3`)
	write("lib.ts", `defun fac(x) { if eq(x, 1) {1} else { prod(x, fac minus(x, 1)) } }`)
	write("loop.ts", `%inline("loop.ts")`)

	got, err := ReadFileWithInlines(filepath.Join(dir, "main.ts"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(got), "defun fac") || !strings.HasSuffix(string(got), "echo fac 3") {
		t.Fatal(string(got))
	}

	if _, err = ReadFileWithInlines(filepath.Join(dir, "loop.ts")); err == nil {
		t.Fatal("didn't protest")
	}
}
