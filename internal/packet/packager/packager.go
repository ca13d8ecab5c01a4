// Package packager 负责数据包与字节之间的序列化 / 反序列化
// 线上格式为 JSON 信封 {"type": 名称, "body": 内容}，可选地整体经过加密变换
package packager

import (
	"encoding/json"
	"sync"

	coreerrors "syncio-client/internal/core/errors"
	"syncio-client/internal/encryption"
	"syncio-client/internal/packet"
	"syncio-client/internal/packet/validator"
)

// envelope 线上信封
type envelope struct {
	Type string          `json:"type"`
	Body json.RawMessage `json:"body"`
}

// Packager 数据包打包器
// 加密变换可在构造后随时替换，并发安全
type Packager struct {
	mu        sync.RWMutex
	transform encryption.Transform
}

// New 创建打包器，transform 为 nil 表示不加密
func New(transform encryption.Transform) *Packager {
	return &Packager{transform: transform}
}

// SetEncryption 设置加密变换（nil 关闭加密）
func (p *Packager) SetEncryption(transform encryption.Transform) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.transform = transform
}

// Encryption 返回当前加密变换
func (p *Packager) Encryption() encryption.Transform {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.transform
}

// Serialize 序列化数据包
func (p *Packager) Serialize(pkt packet.Packet) ([]byte, error) {
	if pkt == nil {
		return nil, coreerrors.New(coreerrors.CodeInvalidPacket, "cannot serialize nil packet")
	}

	name := pkt.PacketName()
	if _, isArray := pkt.(packet.ObjectArray); !isArray && !packet.IsRegistered(name) {
		return nil, coreerrors.Newf(coreerrors.CodeInvalidPacket, "packet type %q is not registered", name)
	}

	body, err := json.Marshal(pkt)
	if err != nil {
		return nil, coreerrors.NewPacketError(name, "failed to marshal body", err)
	}
	data, err := json.Marshal(envelope{Type: name, Body: body})
	if err != nil {
		return nil, coreerrors.NewPacketError(name, "failed to marshal envelope", err)
	}

	if t := p.Encryption(); t != nil {
		return t.Encrypt(data)
	}
	return data, nil
}

// SerializeArray 序列化原始字段数组
func (p *Packager) SerializeArray(values ...any) ([]byte, error) {
	return p.Serialize(packet.ObjectArray(values))
}

// Deserialize 反序列化并校验数据包
// 原始字段数组中的数字按 JSON 规则解码为 float64
func (p *Packager) Deserialize(data []byte) (packet.Packet, error) {
	if t := p.Encryption(); t != nil {
		plain, err := t.Decrypt(data)
		if err != nil {
			return nil, err
		}
		data = plain
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, coreerrors.Wrap(err, coreerrors.CodeInvalidPacket, "failed to unmarshal envelope")
	}

	if env.Type == packet.ObjectArrayName {
		var arr packet.ObjectArray
		if err := json.Unmarshal(env.Body, &arr); err != nil {
			return nil, coreerrors.NewPacketError(env.Type, "failed to unmarshal object array", err)
		}
		return arr, nil
	}

	pkt, err := packet.New(env.Type)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(env.Body, pkt); err != nil {
		return nil, coreerrors.NewPacketError(env.Type, "failed to unmarshal body", err)
	}
	if err := validator.Validate(pkt); err != nil {
		return nil, err
	}
	return pkt, nil
}
