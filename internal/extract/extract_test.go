package extract

import (
	"testing"

	"paperchat/internal/faults"
)

func TestTextPlain(t *testing.T) {
	got, err := Text("paper.txt", []byte("Deep learning\r\n\r\n\r\nworks well.  \n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "Deep learning\n\nworks well."
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestTextEmpty(t *testing.T) {
	_, err := Text("paper.txt", nil)
	if !faults.IsKind(err, faults.KindInput) {
		t.Fatalf("expected input fault, got %v", err)
	}
}

func TestTextCorruptPDF(t *testing.T) {
	_, err := Text("paper.pdf", []byte("definitely not a pdf"))
	if !faults.IsKind(err, faults.KindExtraction) {
		t.Fatalf("expected extraction fault, got %v", err)
	}
}

func TestCleanDeterministic(t *testing.T) {
	in := "a\n\n\n\nb\r\nc   \n"
	if clean(in) != clean(in) {
		t.Fatal("clean must be deterministic")
	}
	if clean(in) != "a\n\nb\nc" {
		t.Fatalf("unexpected cleanup result %q", clean(in))
	}
}
