//go:build !no_kcp

package transport

import (
	"context"
	"net"

	"github.com/xtaci/kcp-go/v5"

	coreerrors "syncio-client/internal/core/errors"
	corelog "syncio-client/internal/core/log"
)

func init() {
	RegisterProtocol("kcp", 40, DialKCP) // 优先级 40（最低）
}

// KCP 配置常量（与服务端保持一致）
const (
	KCPDataShards       = 0
	KCPParityShards     = 0
	KCPSndWnd           = 1024
	KCPRcvWnd           = 1024
	KCPNoDelay          = 1
	KCPInterval         = 10
	KCPResend           = 2
	KCPNC               = 1
	KCPMTU              = 1400
	KCPStreamBufferSize = 4 * 1024 * 1024
)

// TuneKCP 应用客户端与服务端共用的 KCP 参数
func TuneKCP(sess *kcp.UDPSession) {
	sess.SetNoDelay(KCPNoDelay, KCPInterval, KCPResend, KCPNC)
	sess.SetWindowSize(KCPSndWnd, KCPRcvWnd)
	sess.SetMtu(KCPMTU)
	_ = sess.SetReadBuffer(KCPStreamBufferSize)
	_ = sess.SetWriteBuffer(KCPStreamBufferSize)
	sess.SetACKNoDelay(true)
	sess.SetStreamMode(true)
}

// DialKCP 建立 KCP 连接（无加密，无 FEC）
// *kcp.UDPSession 本身实现 net.Conn，会话层的加密在其上进行
func DialKCP(ctx context.Context, address string, _ *DialOptions) (net.Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	corelog.Debugf("Transport: dialing KCP to %s", address)

	sess, err := kcp.DialWithOptions(address, nil, KCPDataShards, KCPParityShards)
	if err != nil {
		return nil, coreerrors.Wrap(err, coreerrors.CodeNetworkError, "failed to dial KCP")
	}
	TuneKCP(sess)

	corelog.Debugf("Transport: KCP session established to %s", address)
	return sess, nil
}
