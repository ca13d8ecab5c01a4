package packager

import (
	"encoding/binary"
	"io"

	coreerrors "syncio-client/internal/core/errors"
)

const (
	// LengthPrefixSize 长度前缀的字节数
	LengthPrefixSize = 4
	// MaxFrameSize 流通道单帧最大长度
	MaxFrameSize = 16 * 1024 * 1024
	// MaxDatagramSize 单个 UDP 数据报的最大负载
	MaxDatagramSize = 65507
)

// WriteFrame 向 writer 写入长度前缀的帧
// 数据格式：[4字节长度][数据内容]，前缀与数据合并为一次 Write
func WriteFrame(writer io.Writer, data []byte) error {
	dataLen := len(data)
	if dataLen == 0 {
		return coreerrors.New(coreerrors.CodeInvalidPacket, "invalid frame length: 0")
	}
	if dataLen > MaxFrameSize {
		return coreerrors.Newf(coreerrors.CodePacketTooLarge, "frame length %d exceeds maximum %d", dataLen, MaxFrameSize)
	}

	buf := make([]byte, LengthPrefixSize+dataLen)
	binary.BigEndian.PutUint32(buf, uint32(dataLen))
	copy(buf[LengthPrefixSize:], data)

	if _, err := writer.Write(buf); err != nil {
		return coreerrors.Wrap(err, coreerrors.CodeNetworkError, "failed to write frame")
	}
	return nil
}

// ReadFrame 从 reader 读取长度前缀的帧
// 底层读取错误（包括 io.EOF）原样返回，便于调用方区分正常关闭
func ReadFrame(reader io.Reader, maxSize uint32) ([]byte, error) {
	lenBuf := make([]byte, LengthPrefixSize)
	if _, err := io.ReadFull(reader, lenBuf); err != nil {
		return nil, err
	}

	dataLen := binary.BigEndian.Uint32(lenBuf)
	if dataLen == 0 {
		return nil, coreerrors.New(coreerrors.CodeInvalidPacket, "invalid frame length: 0")
	}
	if dataLen > maxSize {
		return nil, coreerrors.Newf(coreerrors.CodePacketTooLarge, "frame length %d exceeds maximum allowed %d", dataLen, maxSize)
	}

	data := make([]byte, dataLen)
	if _, err := io.ReadFull(reader, data); err != nil {
		return nil, err
	}
	return data, nil
}
