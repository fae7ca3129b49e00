package cache

import "time"

// Noop discards every write and misses every read. Selected when caching
// is explicitly disabled.
type Noop struct{}

func (Noop) Get(string) (any, bool, error) { return nil, false, nil }

func (Noop) Set(string, any, time.Duration) error { return nil }

func (Noop) Has(string) (bool, error) { return false, nil }

func (Noop) Delete(string) error { return nil }

func (Noop) Clear() error { return nil }

func (Noop) Size() (int, error) { return 0, nil }
