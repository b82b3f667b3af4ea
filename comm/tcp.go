package comm

import (
	"encoding/binary"
	"io"
	"net"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/sirupsen/logrus"
	"github.com/ugorji/go/codec"

	"parstats/infra/logx"
)

// TCP 通信组:rank 0 监听并充当 hub,其余 rank 拨号接入。
// 帧格式是 uint32 大端长度前缀 + msgpack 编码的 frame,
// 不同 rank 之间的点对点帧由 hub 转发。

const helloDst = -1 // 入组握手帧的 Dst 标记

type frame struct {
	Src  int
	Dst  int
	Body []byte
}

func writeFrame(w io.Writer, mu *sync.Mutex, f frame) error {
	var body []byte
	enc := codec.NewEncoderBytes(&body, &msgpackHandle)
	if err := enc.Encode(f); err != nil {
		return errors.Wrap(err, "encode frame")
	}
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(body)))
	mu.Lock()
	defer mu.Unlock()
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	_, err := w.Write(body)
	return err
}

func readFrame(r io.Reader) (frame, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return frame{}, err
	}
	body := make([]byte, binary.BigEndian.Uint32(hdr[:]))
	if _, err := io.ReadFull(r, body); err != nil {
		return frame{}, err
	}
	var f frame
	dec := codec.NewDecoderBytes(body, &msgpackHandle)
	if err := dec.Decode(&f); err != nil {
		return frame{}, errors.Wrap(err, "decode frame")
	}
	return f, nil
}

type TCP struct {
	group
	rank int
	n    int

	ln     net.Listener // 仅 hub
	conns  []net.Conn   // hub: 按对端 rank 索引;peer: conns[0] 是到 hub 的连接
	connMu []sync.Mutex // 写锁按连接分,转发和本端发送会并发写同一连接
	in     []chan []byte

	done     chan struct{}
	stopOnce sync.Once
	errMu    sync.Mutex
	readErr  error
}

func newTCP(rank, n int) *TCP {
	t := &TCP{
		rank:   rank,
		n:      n,
		conns:  make([]net.Conn, n),
		connMu: make([]sync.Mutex, n),
		in:     make([]chan []byte, n),
		done:   make(chan struct{}),
	}
	for i := range t.in {
		t.in[i] = make(chan []byte, meshDepth)
	}
	t.group = group{p2p: t}
	return t
}

// NewTCPHub 以 rank 0 启动监听,阻塞直到其余 n-1 个 rank 全部入组
func NewTCPHub(addr string, n int) (*TCP, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "listen %s", addr)
	}
	return HubWithListener(ln, n)
}

// HubWithListener 用一个已经绑定好的监听器起 hub,
// 调用方可以先拿到地址再让其余 rank 拨入
func HubWithListener(ln net.Listener, n int) (*TCP, error) {
	if n < 2 {
		ln.Close()
		return nil, errors.Newf("tcp group needs at least 2 ranks, got %d", n)
	}
	t := newTCP(0, n)
	t.ln = ln
	log := logx.L().WithField("addr", ln.Addr().String())

	joined := 0
	for joined < n-1 {
		conn, err := ln.Accept()
		if err != nil {
			ln.Close()
			return nil, errors.Wrap(err, "accept peer")
		}
		hello, err := readFrame(conn)
		if err != nil || hello.Dst != helloDst || hello.Src < 1 || hello.Src >= n || t.conns[hello.Src] != nil {
			log.WithField("remote", conn.RemoteAddr().String()).Warn("rejecting bad hello")
			conn.Close()
			continue
		}
		t.conns[hello.Src] = conn
		joined++
		log.WithFields(logrus.Fields{
			"rank":   hello.Src,
			"remote": conn.RemoteAddr().String(),
		}).Info("peer joined tcp group")
	}
	for r := 1; r < n; r++ {
		go t.readLoop(t.conns[r])
	}
	return t, nil
}

// DialTCP 以给定 rank 接入 hub
func DialTCP(addr string, rank, n int) (*TCP, error) {
	if rank < 1 || rank >= n {
		return nil, errors.Newf("dialing rank must be in [1, %d), got %d", n, rank)
	}
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "dial hub %s", addr)
	}
	t := newTCP(rank, n)
	t.conns[0] = conn
	if err := writeFrame(conn, &t.connMu[0], frame{Src: rank, Dst: helloDst}); err != nil {
		conn.Close()
		return nil, errors.Wrap(err, "send hello")
	}
	go t.readLoop(conn)
	logx.L().WithFields(logrus.Fields{"rank": rank, "hub": addr}).Info("joined tcp group")
	return t, nil
}

// Addr hub 的监听地址,peer 返回空串
func (t *TCP) Addr() string {
	if t.ln == nil {
		return ""
	}
	return t.ln.Addr().String()
}

// readLoop 收帧:发给本端的压入 in 队列,其余(仅 hub)按 Dst 转发
func (t *TCP) readLoop(conn net.Conn) {
	for {
		f, err := readFrame(conn)
		if err != nil {
			t.stop(err)
			return
		}
		if f.Dst == t.rank {
			select {
			case t.in[f.Src] <- f.Body:
			case <-t.done:
				return
			}
			continue
		}
		if t.rank != 0 || f.Dst < 0 || f.Dst >= t.n {
			t.stop(errors.Newf("misrouted frame %d -> %d", f.Src, f.Dst))
			return
		}
		if err := writeFrame(t.conns[f.Dst], &t.connMu[f.Dst], f); err != nil {
			t.stop(errors.Wrapf(err, "forward frame %d -> %d", f.Src, f.Dst))
			return
		}
	}
}

// stop 记录首个错误并唤醒阻塞中的 recv
func (t *TCP) stop(err error) {
	t.errMu.Lock()
	if t.readErr == nil && err != nil {
		t.readErr = err
	}
	t.errMu.Unlock()
	t.stopOnce.Do(func() {
		close(t.done)
		if err != nil {
			logx.L().WithField("rank", t.rank).WithError(err).Warn("tcp group stopped")
		}
	})
}

func (t *TCP) Rank() int { return t.rank }
func (t *TCP) Size() int { return t.n }

func (t *TCP) sendBytes(b []byte, dest int) error {
	f := frame{Src: t.rank, Dst: dest, Body: b}
	if t.rank == 0 {
		return writeFrame(t.conns[dest], &t.connMu[dest], f)
	}
	return writeFrame(t.conns[0], &t.connMu[0], f)
}

func (t *TCP) recvBytes(source int) ([]byte, error) {
	// 已入队的帧先取完,组停掉之后再报错
	select {
	case b := <-t.in[source]:
		return b, nil
	default:
	}
	select {
	case b := <-t.in[source]:
		return b, nil
	case <-t.done:
		t.errMu.Lock()
		defer t.errMu.Unlock()
		if t.readErr != nil {
			return nil, t.readErr
		}
		return nil, errors.New("tcp group closed")
	}
}

// Close 关闭本端连接;hub 同时关监听
func (t *TCP) Close() error {
	t.stop(nil)
	if t.ln != nil {
		t.ln.Close()
	}
	for _, c := range t.conns {
		if c != nil {
			c.Close()
		}
	}
	return nil
}
