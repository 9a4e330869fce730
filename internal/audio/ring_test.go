package audio

import "testing"

func TestRingWriteRead(t *testing.T) {
	r := NewRing(10)

	r.Write([]float32{1, 2, 3})
	if r.Len() != 3 {
		t.Errorf("Expected 3 buffered samples, got %d", r.Len())
	}

	dst := make([]float32, 5)
	n := r.Read(dst)
	if n != 3 {
		t.Errorf("Expected to read 3 samples, got %d", n)
	}
	for i, expected := range []float32{1, 2, 3} {
		if dst[i] != expected {
			t.Errorf("Sample %d: expected %f, got %f", i, expected, dst[i])
		}
	}

	if r.Len() != 0 {
		t.Errorf("Expected empty ring after read, got %d", r.Len())
	}
}

func TestRingWrapAround(t *testing.T) {
	r := NewRing(4)

	r.Write([]float32{1, 2, 3})
	dst := make([]float32, 2)
	r.Read(dst)

	// Head is now at index 2; this write wraps past the end.
	r.Write([]float32{4, 5, 6})

	out := make([]float32, 4)
	n := r.Read(out)
	if n != 4 {
		t.Fatalf("Expected 4 samples, got %d", n)
	}
	for i, expected := range []float32{3, 4, 5, 6} {
		if out[i] != expected {
			t.Errorf("Sample %d: expected %f, got %f", i, expected, out[i])
		}
	}
}

func TestRingOverwritesOldest(t *testing.T) {
	r := NewRing(4)

	r.Write([]float32{1, 2, 3, 4})
	r.Write([]float32{5, 6})

	if r.Dropped() != 2 {
		t.Errorf("Expected 2 dropped samples, got %d", r.Dropped())
	}

	out := make([]float32, 4)
	n := r.Read(out)
	if n != 4 {
		t.Fatalf("Expected 4 samples, got %d", n)
	}
	for i, expected := range []float32{3, 4, 5, 6} {
		if out[i] != expected {
			t.Errorf("Sample %d: expected %f, got %f", i, expected, out[i])
		}
	}
}

func TestRingOversizedWrite(t *testing.T) {
	r := NewRing(3)

	r.Write([]float32{1, 2, 3, 4, 5})

	if r.Len() != 3 {
		t.Errorf("Expected ring full, got %d", r.Len())
	}
	if r.Dropped() != 2 {
		t.Errorf("Expected 2 dropped samples, got %d", r.Dropped())
	}

	out := make([]float32, 3)
	r.Read(out)
	for i, expected := range []float32{3, 4, 5} {
		if out[i] != expected {
			t.Errorf("Sample %d: expected %f, got %f", i, expected, out[i])
		}
	}
}

func TestRingPartialRead(t *testing.T) {
	r := NewRing(10)
	r.Write([]float32{1, 2, 3, 4, 5})

	dst := make([]float32, 2)
	n := r.Read(dst)
	if n != 2 || dst[0] != 1 || dst[1] != 2 {
		t.Errorf("Expected first two samples, got n=%d dst=%v", n, dst)
	}

	if r.Len() != 3 {
		t.Errorf("Expected 3 remaining, got %d", r.Len())
	}
}
