// Package packet 定义会话层传输的数据包类型以及按名称的反序列化注册表
package packet

import (
	"fmt"
	"reflect"
	"sync"

	coreerrors "syncio-client/internal/core/errors"
)

// Packet 数据包接口
// PacketName 返回线上使用的类型名，同一名称只能注册一次
type Packet interface {
	PacketName() string
}

// ObjectArrayName 原始字段数组在线上的类型名
const ObjectArrayName = "$array"

// ObjectArray 原始字段数组（不经过类型注册表）
type ObjectArray []any

// PacketName 实现 Packet 接口
func (ObjectArray) PacketName() string { return ObjectArrayName }

// Factory 数据包工厂，必须返回指针类型的新实例
type Factory func() Packet

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Factory)
)

// Register 注册数据包类型
// 名称重复或与保留名冲突时 panic（仅应在 init 阶段调用）
func Register(factory Factory) {
	sample := factory()
	name := sample.PacketName()
	if name == "" || name == ObjectArrayName {
		panic(fmt.Sprintf("packet: invalid packet name %q", name))
	}
	if reflect.TypeOf(sample).Kind() != reflect.Ptr {
		panic(fmt.Sprintf("packet: factory for %q must return a pointer", name))
	}

	registryMu.Lock()
	defer registryMu.Unlock()
	if _, exists := registry[name]; exists {
		panic(fmt.Sprintf("packet: duplicate registration of %q", name))
	}
	registry[name] = factory
}

// New 根据名称创建空数据包实例
func New(name string) (Packet, error) {
	registryMu.RLock()
	factory, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return nil, coreerrors.Newf(coreerrors.CodeInvalidPacket, "unknown packet type %q", name)
	}
	return factory(), nil
}

// IsRegistered 检查名称是否已注册
func IsRegistered(name string) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := registry[name]
	return ok
}
