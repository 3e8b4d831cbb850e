package hostfn

import (
	"context"
	"encoding/binary"
	"unicode/utf16"

	"go.uber.org/zap"
)

// Log levels accepted by env.log_message.
const (
	LevelDebug int32 = iota
	LevelInfo
	LevelWarn
	LevelError
)

// Env is the runtime support namespace: guest-visible allocation and
// logging.
type Env struct {
	s *Session
}

// Malloc allocates size bytes on the guest heap.
func (n *Env) Malloc(size int32) int32 {
	if size < 0 {
		return 0
	}
	return int32(n.s.allocate(uint32(size)))
}

// Free releases memory returned by Malloc or by a host function that
// allocates, such as scraper_text.
func (n *Env) Free(ptr int32) {
	if n.s.heap == nil || ptr < 0 {
		return
	}
	n.s.heap.Release(uint32(ptr))
}

// Print logs a UTF-8 message at info level.
func (n *Env) Print(ptr, length int32) {
	n.LogMessage(LevelInfo, ptr, length)
}

// LogMessage logs a UTF-8 message at the given level.
func (n *Env) LogMessage(level, ptr, length int32) {
	msg, ok := n.s.readString(ptr, length)
	if !ok {
		n.s.logger.Error("Failed to read log message from guest memory",
			zap.Int32("ptr", ptr),
			zap.Int32("length", length),
		)
		return
	}

	logger := n.s.logger.With(zap.String("source", "guest"))
	switch level {
	case LevelDebug:
		logger.Debug(msg)
	case LevelWarn:
		logger.Warn(msg)
	case LevelError:
		logger.Error(msg)
	default:
		logger.Info(msg)
	}
}

// Abort records a guest assertion failure. Message and file are
// AssemblyScript strings: UTF-16 with the byte length stored in the four
// bytes before the pointer.
func (n *Env) Abort(msgPtr, filePtr, line, column int32) {
	n.s.logger.Error("Guest aborted",
		zap.String("message", n.utf16String(msgPtr)),
		zap.String("file", n.utf16String(filePtr)),
		zap.Int32("line", line),
		zap.Int32("column", column),
	)
}

func (n *Env) utf16String(ptr int32) string {
	if n.s.mem == nil || ptr < 4 {
		return ""
	}
	header, ok := n.s.mem.Read(uint32(ptr-4), 4)
	if !ok {
		return ""
	}
	size := binary.LittleEndian.Uint32(header)
	raw, ok := n.s.mem.Read(uint32(ptr), size&^1)
	if !ok {
		return ""
	}
	units := make([]uint16, len(raw)/2)
	for i := range units {
		units[i] = binary.LittleEndian.Uint16(raw[i*2:])
	}
	return string(utf16.Decode(units))
}

var envFunctions = []Function{
	def("malloc", "size:i32 -> i32", func(_ context.Context, s *Session, st []uint64) {
		retI32(st, s.Env.Malloc(argI32(st, 0)))
	}),
	def("free", "ptr:i32", func(_ context.Context, s *Session, st []uint64) {
		s.Env.Free(argI32(st, 0))
	}),
	def("print", "ptr:i32 len:i32", func(_ context.Context, s *Session, st []uint64) {
		s.Env.Print(argI32(st, 0), argI32(st, 1))
	}),
	def("log_message", "level:i32 ptr:i32 len:i32", func(_ context.Context, s *Session, st []uint64) {
		s.Env.LogMessage(argI32(st, 0), argI32(st, 1), argI32(st, 2))
	}),
	def("abort", "message:i32 file:i32 line:i32 column:i32", func(_ context.Context, s *Session, st []uint64) {
		s.Env.Abort(argI32(st, 0), argI32(st, 1), argI32(st, 2), argI32(st, 3))
	}),
}
