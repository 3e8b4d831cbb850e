package hostfn

import (
	"context"

	"go.uber.org/zap"

	"github.com/woxQAQ/sourcehost/internal/handle"
	"github.com/woxQAQ/sourcehost/internal/value"
)

// Defaults exposes the plugin's persisted settings.
type Defaults struct {
	s *Session
}

// Get returns the stored setting for key as a std handle. Keys never set
// fall back to the plugin's declared defaults; anything else is -1.
func (n *Defaults) Get(ctx context.Context, keyPtr, keyLen int32) int32 {
	key, ok := n.s.readString(keyPtr, keyLen)
	if !ok || key == "" {
		return handle.Invalid
	}

	v, found, err := n.s.settings.Get(ctx, n.s.pluginID, key)
	if err != nil {
		n.s.logger.Warn("Settings read failed", zap.String("key", key), zap.Error(err))
		return handle.Invalid
	}
	if !found {
		if v, found = n.s.defaults[key]; !found {
			return handle.Invalid
		}
	}
	return n.s.std.Store(value.Clone(v))
}

// Set persists the value behind a std handle under key.
func (n *Defaults) Set(ctx context.Context, keyPtr, keyLen, valueHandle int32) {
	key, ok := n.s.readString(keyPtr, keyLen)
	if !ok || key == "" {
		return
	}
	v, ok := n.s.std.Read(valueHandle)
	if !ok {
		return
	}
	if err := n.s.settings.Set(ctx, n.s.pluginID, key, v); err != nil {
		n.s.logger.Warn("Settings write failed", zap.String("key", key), zap.Error(err))
	}
}

var defaultsFunctions = []Function{
	def("get", "key:i32 key_len:i32 -> i32", func(ctx context.Context, s *Session, st []uint64) {
		retI32(st, s.Defaults.Get(ctx, argI32(st, 0), argI32(st, 1)))
	}),
	def("set", "key:i32 key_len:i32 value:i32", func(ctx context.Context, s *Session, st []uint64) {
		s.Defaults.Set(ctx, argI32(st, 0), argI32(st, 1), argI32(st, 2))
	}),
}
