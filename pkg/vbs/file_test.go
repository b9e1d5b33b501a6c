package vbs

import (
	"bytes"
	"errors"
	"io"
	"testing"
)

func TestFileReadAll(t *testing.T) {
	mps := []string{"/mnt/disk0", "/mnt/disk1"}
	data := testPattern(180)
	fs := scatterRecording(t, "rec", mps, data, []int64{50, 60, 70})
	r := NewRegistry(fs)

	f, err := r.OpenFile("rec", mps, FlexBuff)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if f.Name() != "rec" {
		t.Errorf("Name() = %q, want %q", f.Name(), "rec")
	}
	if f.Size() != 180 {
		t.Errorf("Size() = %d, want 180", f.Size())
	}

	got, err := io.ReadAll(f)
	if err != nil {
		t.Fatalf("readall: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Fatal("ReadAll does not reproduce the recording")
	}

	if err := f.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := io.ReadAll(f); !errors.Is(err, ErrBadDescriptor) {
		t.Errorf("read after close: err = %v, want ErrBadDescriptor", err)
	}
}

func TestFileSeekRead(t *testing.T) {
	mps := []string{"/mnt/disk0"}
	data := testPattern(90)
	fs := scatterRecording(t, "rec", mps, data, []int64{30, 30, 30})
	r := NewRegistry(fs)

	f, err := r.OpenFile("rec", mps, FlexBuff)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()

	if pos, err := f.Seek(45, io.SeekStart); err != nil || pos != 45 {
		t.Fatalf("seek = %d, %v", pos, err)
	}
	got, err := io.ReadAll(f)
	if err != nil {
		t.Fatalf("readall: %v", err)
	}
	if !bytes.Equal(got, data[45:]) {
		t.Fatal("seek+ReadAll returned wrong tail")
	}

	// At the end the adapter reports io.EOF, not a 0-byte success.
	n, err := f.Read(make([]byte, 8))
	if n != 0 || err != io.EOF {
		t.Fatalf("read at end = %d, %v, want 0, io.EOF", n, err)
	}
}
