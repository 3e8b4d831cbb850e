package hostfn

import (
	"context"

	"go.uber.org/zap"

	"github.com/woxQAQ/sourcehost/internal/handle"
	"github.com/woxQAQ/sourcehost/internal/value"
)

// JSON holds parsed documents. Its handles are independent of std handles.
type JSON struct {
	space
}

// Parse decodes the JSON document at (ptr, length).
func (n *JSON) Parse(ptr, length int32) int32 {
	data, ok := n.s.readBytes(ptr, length)
	if !ok {
		return handle.Invalid
	}
	return n.parse(data)
}

func (n *JSON) parse(data []byte) int32 {
	v, err := value.ParseJSON(data)
	if err != nil {
		n.s.logger.Debug("JSON parse failed", zap.Int("bytes", len(data)), zap.Error(err))
		return handle.Invalid
	}
	return n.table.Store(v)
}

// Serialize encodes h and returns a json string handle owned by h.
func (n *JSON) Serialize(h int32) int32 {
	v, ok := n.read(h)
	if !ok {
		return handle.Invalid
	}
	data, err := v.MarshalJSON()
	if err != nil {
		n.s.logger.Debug("JSON serialize failed", zap.Error(err))
		return handle.Invalid
	}
	return n.table.StoreOwned(value.String(string(data)), h)
}

var jsonFunctions = append(
	spaceFunctions("json_", func(s *Session) *space { return &s.JSON.space }),
	def("json_parse", "ptr:i32 len:i32 -> i32", func(_ context.Context, s *Session, st []uint64) {
		retI32(st, s.JSON.Parse(argI32(st, 0), argI32(st, 1)))
	}),
	def("json_serialize", "handle:i32 -> i32", func(_ context.Context, s *Session, st []uint64) {
		retI32(st, s.JSON.Serialize(argI32(st, 0)))
	}),
)
