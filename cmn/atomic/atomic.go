// Package atomic provides thin, named wrappers over sync/atomic so call
// sites read as "what" (Bool, Int64, Uint64) rather than "how" (int32 with
// 0/1 semantics), matching the teacher's cmn/atomic. No other package in
// this module imports it; transport/broker uses sync/atomic directly.
package atomic

import "sync/atomic"

type Bool struct{ v atomic.Bool }

func (b *Bool) Load() bool         { return b.v.Load() }
func (b *Bool) Store(val bool)     { b.v.Store(val) }
func (b *Bool) CAS(old, n bool) bool { return b.v.CompareAndSwap(old, n) }
func (b *Bool) Swap(val bool) bool { return b.v.Swap(val) }

type Int32 struct{ v atomic.Int32 }

func (i *Int32) Load() int32     { return i.v.Load() }
func (i *Int32) Store(n int32)   { i.v.Store(n) }
func (i *Int32) Add(n int32) int32 { return i.v.Add(n) }
func (i *Int32) CAS(old, n int32) bool { return i.v.CompareAndSwap(old, n) }

type Int64 struct{ v atomic.Int64 }

func (i *Int64) Load() int64     { return i.v.Load() }
func (i *Int64) Store(n int64)   { i.v.Store(n) }
func (i *Int64) Add(n int64) int64 { return i.v.Add(n) }
func (i *Int64) CAS(old, n int64) bool { return i.v.CompareAndSwap(old, n) }

type Uint32 struct{ v atomic.Uint32 }

func (u *Uint32) Load() uint32     { return u.v.Load() }
func (u *Uint32) Store(n uint32)   { u.v.Store(n) }
func (u *Uint32) Add(n uint32) uint32 { return u.v.Add(n) }

type Uint64 struct{ v atomic.Uint64 }

func (u *Uint64) Load() uint64     { return u.v.Load() }
func (u *Uint64) Store(n uint64)   { u.v.Store(n) }
func (u *Uint64) Add(n uint64) uint64 { return u.v.Add(n) }
func (u *Uint64) CAS(old, n uint64) bool { return u.v.CompareAndSwap(old, n) }
