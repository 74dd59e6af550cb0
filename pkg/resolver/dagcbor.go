package resolver

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/ipld/go-ipld-prime/codec/dagcbor"
	"github.com/ipld/go-ipld-prime/datamodel"
	cidlink "github.com/ipld/go-ipld-prime/linking/cid"
	"github.com/ipld/go-ipld-prime/node/basicnode"
)

var errEmptyBlock = errors.New("empty block")

// decodeDagCbor decodes one complete DAG-CBOR object into plain Go values.
// Trailing bytes are an error so that text which happens to start with a
// valid CBOR head is not mistaken for structured data.
func decodeDagCbor(data []byte) (any, error) {
	if len(data) == 0 {
		return nil, errEmptyBlock
	}
	nb := basicnode.Prototype.Any.NewBuilder()
	rd := bytes.NewReader(data)
	if err := (dagcbor.DecodeOptions{AllowLinks: true}).Decode(nb, rd); err != nil {
		return nil, err
	}
	if rd.Len() != 0 {
		return nil, fmt.Errorf("%d trailing bytes after cbor object", rd.Len())
	}
	return nodeValue(nb.Build())
}

// nodeValue maps an IPLD node onto map[string]any, []any and scalars. Links
// become {"/": "<cid>"} as in DAG-JSON.
func nodeValue(n datamodel.Node) (any, error) {
	switch n.Kind() {
	case datamodel.Kind_Null:
		return nil, nil
	case datamodel.Kind_Bool:
		return n.AsBool()
	case datamodel.Kind_Int:
		return n.AsInt()
	case datamodel.Kind_Float:
		return n.AsFloat()
	case datamodel.Kind_String:
		return n.AsString()
	case datamodel.Kind_Bytes:
		return n.AsBytes()
	case datamodel.Kind_Link:
		l, err := n.AsLink()
		if err != nil {
			return nil, err
		}
		if cl, ok := l.(cidlink.Link); ok {
			return map[string]any{"/": cl.Cid.String()}, nil
		}
		return map[string]any{"/": l.String()}, nil
	case datamodel.Kind_Map:
		out := make(map[string]any, n.Length())
		it := n.MapIterator()
		for !it.Done() {
			k, v, err := it.Next()
			if err != nil {
				return nil, err
			}
			key, err := k.AsString()
			if err != nil {
				return nil, err
			}
			if out[key], err = nodeValue(v); err != nil {
				return nil, err
			}
		}
		return out, nil
	case datamodel.Kind_List:
		out := make([]any, 0, n.Length())
		it := n.ListIterator()
		for !it.Done() {
			_, v, err := it.Next()
			if err != nil {
				return nil, err
			}
			val, err := nodeValue(v)
			if err != nil {
				return nil, err
			}
			out = append(out, val)
		}
		return out, nil
	}
	return nil, fmt.Errorf("unexpected node kind %s", n.Kind())
}
