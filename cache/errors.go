package cache

import "github.com/stokry/vectra/errcode"

var (
	// ErrCacheMiss key absent or expired
	ErrCacheMiss = errcode.Register(errcode.New(errcode.ModuleCache, 1, "cache", "error.cache.miss", "cache miss"))

	// ErrSerialize value could not be encoded
	ErrSerialize = errcode.Register(errcode.New(errcode.ModuleCache, 2, "cache", "error.cache.serialize", "cache serialize failed"))

	// ErrDeserialize stored bytes could not be decoded
	ErrDeserialize = errcode.Register(errcode.New(errcode.ModuleCache, 3, "cache", "error.cache.deserialize", "cache deserialize failed"))

	// ErrStore the backing store failed
	ErrStore = errcode.Register(errcode.New(errcode.ModuleCache, 4, "cache", "error.cache.store", "cache store failed", errcode.KindConnection))
)
