package es

import "log/slog"

// Version is the per-stream version of an aggregate. It increases by one
// for every event appended to the stream, starting at 1 for the first
// event. The repository uses it as the expected version for optimistic
// concurrency control when appending.
type Version uint64

// VersionAny disables the expected-version check on append. Use it only
// when the caller accepts lost updates under concurrent writers.
const VersionAny = ^Version(0)

func (v Version) Uint64() uint64                         { return uint64(v) }
func (v Version) SlogAttr() slog.Attr                    { return newSlogVersionAttr("version", v) }
func (v Version) SlogAttrWithKey(key string) slog.Attr   { return newSlogVersionAttr(key, v) }
func newSlogVersionAttr(key string, v Version) slog.Attr { return slog.Uint64(key, uint64(v)) }
