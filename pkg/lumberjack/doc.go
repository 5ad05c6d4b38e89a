// Package lumberjack implements the framed batch/ack protocol spoken between
// logship-agent and a collector.
//
// Every frame starts with the protocol version byte '1' followed by a one
// byte frame type. Integers are unsigned 32-bit big-endian.
//
//	Window      '1' 'W' count
//	Data        '1' 'D' seq pairs { keyLen key valLen value }...
//	Compressed  '1' 'C' len zlib(data frames...)
//	Ack         '1' 'A' seq
//
// A transmission is one window frame followed by a compressed frame holding
// count data frames. Sequence numbers restart at 1 for every window and the
// collector acknowledges with the last sequence it accepted.
//
// The encode side (EncodeWindow, EncodeDataFrame, EncodeCompressed,
// EncodeBatch) and DecodeAck/ReadAck are used by the agent's shipper. Reader
// and ServeConn implement the collector side and are used by the reference
// collector and by tests.
package lumberjack
