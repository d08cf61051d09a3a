package topology

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestRead(t *testing.T) {
	in := `# ring of three
0 1
1 2 0
2 0   # closing bond

0 2 1
`
	l, err := Read(strings.NewReader(in))
	if err != nil {
		t.Fatal(err)
	}
	if len(l.Pairs) != 4 {
		t.Fatalf("expected 4 pairs, got %d", len(l.Pairs))
	}
	if l.Pairs[3] != (Pair{I: 0, J: 2, Shell: 1}) {
		t.Errorf("unexpected pair %+v", l.Pairs[3])
	}
	if got := l.Shells(); len(got) != 2 || got[0] != 0 || got[1] != 1 {
		t.Errorf("shells = %v", got)
	}
	i, j := l.Shell(0)
	if len(i) != 3 || i[2] != 2 || j[2] != 0 {
		t.Errorf("shell 0 = %v -> %v", i, j)
	}
	if l.Sites() != 3 {
		t.Errorf("sites = %d, want 3", l.Sites())
	}
}

func TestReadMalformed(t *testing.T) {
	tests := []string{
		"0\n",
		"0 1 2 3\n",
		"0 x\n",
		"-1 2\n",
	}
	for _, in := range tests {
		if _, err := Read(strings.NewReader(in)); !errors.Is(err, ErrMalformed) {
			t.Errorf("%q: expected ErrMalformed, got %v", in, err)
		}
	}
}

func TestRing(t *testing.T) {
	l := Ring(4)
	if len(l.Pairs) != 8 {
		t.Fatalf("expected 8 pairs, got %d", len(l.Pairs))
	}
	if len(l.Symmetrize().Pairs) != 8 {
		t.Error("ring should already be symmetric")
	}
	if len(Ring(1).Pairs) != 0 {
		t.Error("single site ring should have no pairs")
	}
}

func TestSymmetrize(t *testing.T) {
	l := &List{Pairs: []Pair{{0, 1, 0}, {1, 0, 0}, {1, 2, 1}}}
	s := l.Symmetrize()
	if len(s.Pairs) != 4 {
		t.Fatalf("expected 4 pairs, got %v", s.Pairs)
	}
	if s.Pairs[3] != (Pair{I: 2, J: 1, Shell: 1}) {
		t.Errorf("missing reverse pair, got %v", s.Pairs)
	}
}

func TestWriteRead(t *testing.T) {
	var buf bytes.Buffer
	if err := Ring(3).Write(&buf); err != nil {
		t.Fatal(err)
	}
	l, err := Read(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if len(l.Pairs) != 6 || l.Sites() != 3 {
		t.Errorf("round trip lost pairs: %v", l.Pairs)
	}
}
