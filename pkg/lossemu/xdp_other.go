//go:build !linux

package lossemu

// Emulator is unavailable off linux.
type Emulator struct{}

// Attach always fails with ErrUnsupported.
func Attach(opts Options) (*Emulator, error) {
    if err := opts.Validate(); err != nil { return nil, err }
    return nil, ErrUnsupported
}

func (e *Emulator) Stats() (Stats, error) { return Stats{}, ErrUnsupported }

func (e *Emulator) Close() error { return nil }
