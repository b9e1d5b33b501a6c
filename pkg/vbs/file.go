package vbs

import "io"

// File adapts an open recording descriptor to the standard reader
// interfaces so recordings compose with io.Copy, http.ServeContent and
// friends. The same caveat as the descriptor surface applies: one File, one
// goroutine at a time.
type File struct {
	r    *Registry
	fd   int
	name string
}

// OpenFile opens the recording and wraps its descriptor in a File.
func (r *Registry) OpenFile(recording string, mountpoints []string, format Format) (*File, error) {
	fd, err := r.Open(recording, mountpoints, format)
	if err != nil {
		return nil, err
	}
	return &File{r: r, fd: fd, name: recording}, nil
}

func (f *File) Name() string { return f.name }

// Size returns the total virtual size of the recording.
func (f *File) Size() int64 {
	info, err := f.r.Stat(f.fd)
	if err != nil {
		return 0
	}
	return info.Size
}

// Read translates the POSIX-style "0 bytes at end of recording" into
// io.EOF.
func (f *File) Read(p []byte) (int, error) {
	n, err := f.r.Read(f.fd, p)
	if err != nil {
		return n, err
	}
	if n == 0 && len(p) > 0 {
		return 0, io.EOF
	}
	return n, nil
}

func (f *File) Seek(offset int64, whence int) (int64, error) {
	return f.r.Seek(f.fd, offset, whence)
}

func (f *File) Close() error {
	return f.r.Close(f.fd)
}
