// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Cilium

package bpfmap

import (
	"errors"
	"fmt"

	cilebpf "github.com/cilium/ebpf"
)

// Codec converts a typed key or value to and from its fixed-size wire
// bytes, as produced by internal/wire.
type Codec[T any] struct {
	Encode func(T) []byte
	Decode func([]byte) (T, error)
}

// KernelMap is the production Map implementation, backed by an
// already-loaded *cilium/ebpf.Map handle. The loader that produces that
// handle is out of scope for this repo (spec §1); KernelMap only knows how
// to marshal typed keys/values to and from it.
type KernelMap[K comparable, V any] struct {
	m        *cilebpf.Map
	keyCodec Codec[K]
	valCodec Codec[V]
}

// NewKernelMap wraps an already-loaded map handle for typed access, given
// explicit key and value codecs.
func NewKernelMap[K comparable, V any](m *cilebpf.Map, keyCodec Codec[K], valCodec Codec[V]) *KernelMap[K, V] {
	return &KernelMap[K, V]{m: m, keyCodec: keyCodec, valCodec: valCodec}
}

func (k *KernelMap[K, V]) Insert(key K, value V) error {
	if err := k.m.Put(k.keyCodec.Encode(key), k.valCodec.Encode(value)); err != nil {
		return fmt.Errorf("bpfmap: put: %w", err)
	}
	return nil
}

func (k *KernelMap[K, V]) Lookup(key K) (V, bool, error) {
	var valBuf []byte
	err := k.m.Lookup(k.keyCodec.Encode(key), &valBuf)
	if err != nil {
		var zero V
		if errors.Is(err, cilebpf.ErrKeyNotExist) {
			return zero, false, nil
		}
		return zero, false, fmt.Errorf("bpfmap: lookup: %w", err)
	}
	v, err := k.valCodec.Decode(valBuf)
	if err != nil {
		var zero V
		return zero, false, fmt.Errorf("bpfmap: decode value: %w", err)
	}
	return v, true, nil
}

func (k *KernelMap[K, V]) Delete(key K) error {
	if err := k.m.Delete(k.keyCodec.Encode(key)); err != nil {
		if errors.Is(err, cilebpf.ErrKeyNotExist) {
			return nil
		}
		return fmt.Errorf("bpfmap: delete: %w", err)
	}
	return nil
}

func (k *KernelMap[K, V]) Iterate(f func(key K, value V) bool) error {
	var keyBuf, valBuf []byte
	iter := k.m.Iterate()
	for iter.Next(&keyBuf, &valBuf) {
		key, err := k.keyCodec.Decode(keyBuf)
		if err != nil {
			return fmt.Errorf("bpfmap: decode key: %w", err)
		}
		val, err := k.valCodec.Decode(valBuf)
		if err != nil {
			return fmt.Errorf("bpfmap: decode value: %w", err)
		}
		if !f(key, val) {
			break
		}
	}
	return iter.Err()
}

func (k *KernelMap[K, V]) Close() error {
	return k.m.Close()
}
