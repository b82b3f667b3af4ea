package comm

import (
	"github.com/cockroachdb/errors"
	"github.com/ugorji/go/codec"

	"parstats/sparse"
)

// 帧内载荷统一走 msgpack 封包,稀疏数组按 (indices, values, size) 三元组落线,
// 这样即使是进程内传输,稀疏状态也真实经过了一次序列化。

var msgpackHandle codec.MsgpackHandle

const (
	kindFloat64s = 1 // 定长 float64 缓冲区
	kindSparse   = 2 // 稀疏数组
	kindFloat64  = 3 // 标量
	kindInt64    = 4 // 标量
	kindList     = 5 // 复合值([]any)
)

type envelope struct {
	Kind int
	Vals []float64
	Inds []int
	Size int
	F    float64
	I    int64
	List []envelope
}

func wrap(v any) (envelope, error) {
	switch x := v.(type) {
	case []float64:
		return envelope{Kind: kindFloat64s, Vals: x}, nil
	case *sparse.Array:
		inds, vals := x.ToArrays()
		return envelope{Kind: kindSparse, Inds: inds, Vals: vals, Size: x.Size()}, nil
	case float64:
		return envelope{Kind: kindFloat64, F: x}, nil
	case int:
		return envelope{Kind: kindInt64, I: int64(x)}, nil
	case []any:
		list := make([]envelope, len(x))
		for i, e := range x {
			env, err := wrap(e)
			if err != nil {
				return envelope{}, err
			}
			list[i] = env
		}
		return envelope{Kind: kindList, List: list}, nil
	default:
		return envelope{}, errors.Newf("unsupported wire value %T", v)
	}
}

func unwrap(env envelope) (any, error) {
	switch env.Kind {
	case kindFloat64s:
		return env.Vals, nil
	case kindSparse:
		return sparse.FromArrays(env.Inds, env.Vals, env.Size)
	case kindFloat64:
		return env.F, nil
	case kindInt64:
		return int(env.I), nil
	case kindList:
		out := make([]any, len(env.List))
		for i, e := range env.List {
			v, err := unwrap(e)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil
	default:
		return nil, errors.Newf("unknown wire kind %d", env.Kind)
	}
}

func marshal(v any) ([]byte, error) {
	env, err := wrap(v)
	if err != nil {
		return nil, err
	}
	var b []byte
	enc := codec.NewEncoderBytes(&b, &msgpackHandle)
	if err := enc.Encode(env); err != nil {
		return nil, errors.Wrap(err, "encode wire envelope")
	}
	return b, nil
}

func unmarshal(b []byte) (any, error) {
	var env envelope
	dec := codec.NewDecoderBytes(b, &msgpackHandle)
	if err := dec.Decode(&env); err != nil {
		return nil, errors.Wrap(err, "decode wire envelope")
	}
	return unwrap(env)
}
