// Package client 把账本的已确认交易流转换成渲染端可消费的移动事件，
// 并与本地乐观预测的事件合并。
//
// 对自己发起的动作，事件至少投递一次：本地预测一次，账本确认后再投递一次。
// 合约状态按值覆盖而非增量累加，重复应用同一事件是安全的；这里不做去重，
// 因为可靠的去重需要时间戳/nonce 匹配，而这些信息并不总是可得。
// 同一 Client 上，预测事件总是先于对应的确认事件入队。
package client

import (
	"p2pio/codec"
	"p2pio/contract"
	"p2pio/fatal"
	"p2pio/ledger"
)

// Derive 从一笔已确认交易推导事件。
// 非本合约或未知函数返回 (nil, nil)；已知函数参数个数不符或参数无法解码返回致命错误。
func Derive(game ledger.Address, tx *ledger.Transaction) (Event, error) {
	call, ok := tx.ContractCall()
	if !ok || call.Contract != game {
		return nil, nil
	}
	meta := Meta{ID: tx.Sender, Timestamp: tx.Timestamp, Origin: Confirmed, TxHash: tx.Hash}

	switch call.Function {
	case contract.FnSpawnPlayer:
		if len(call.Args) != 2 {
			return nil, fatal.Errorf("derive."+call.Function, "unexpected number of arguments: got %d, expected 2", len(call.Args))
		}
		x, err := codec.Decode(uint64(call.Args[0]))
		if err != nil {
			return nil, err
		}
		y, err := codec.Decode(uint64(call.Args[1]))
		if err != nil {
			return nil, err
		}
		return Spawn{Meta: meta, X: x, Y: y}, nil

	case contract.FnApplyInput:
		if len(call.Args) != 1 {
			return nil, fatal.Errorf("derive."+call.Function, "unexpected number of arguments: got %d, expected 1", len(call.Args))
		}
		h, err := contract.ParseHeading(uint64(call.Args[0]))
		if err != nil {
			return nil, err
		}
		return Input{Meta: meta, Heading: h}, nil
	}
	return nil, nil
}
