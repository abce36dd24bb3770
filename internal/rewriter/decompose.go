package rewriter

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

const (
	opSoftplus   = "Softplus"
	opLogSoftmax = "LogSoftmax"

	constTensorName = "katacore_rewriter_const_one"
)

// lookupValueInfo finds the first ValueInfoProto named name among the
// graph's inputs, outputs, and value_info entries, returning its
// TypeProto.Tensor element type and shape submessage if present.
func lookupValueInfo(graph message, name string) (elemType uint64, shape message, hasShape bool, found bool) {
	candidates := append(append(graph.allSub(fGraphInput), graph.allSub(fGraphOutput)...), graph.allSub(fGraphValueInfo)...)
	for _, vi := range candidates {
		n, ok := vi.str(fViName)
		if !ok || n != name {
			continue
		}
		typ, ok := vi.sub(fViType)
		if !ok {
			continue
		}
		tt, ok := typ.sub(fTypeTensor)
		if !ok {
			continue
		}
		et, _ := tt.varint(fTTElemType)
		sh, shOK := tt.sub(fTTShape)
		return et, sh, shOK, true
	}
	return dtFloat32, nil, false, false
}

// buildValueInfo constructs a ValueInfoProto message for a newly introduced
// intermediate tensor, copying the element type and shape of the original
// node input since every replacement op here is element-wise or a
// same-axis reduction.
func buildValueInfo(name string, elemType uint64, shape message, hasShape bool) message {
	tt := message{}
	tt = appendVarintField(tt, fTTElemType, elemType)
	if hasShape {
		tt = appendSubField(tt, fTTShape, shape)
	}
	typ := message{}
	typ = appendSubField(typ, fTypeTensor, tt)

	vi := message{}
	vi = appendStringField(vi, fViName, name)
	vi = appendSubField(vi, fViType, typ)
	return vi
}

// buildNode constructs a NodeProto. attr, if non-nil, is the single
// AttributeProto this node carries (e.g. Softmax's "axis"); it is nested
// under NodeProto.attribute, not flattened into the node's own fields.
func buildNode(opType, name string, inputs, outputs []string, attr message) message {
	n := message{}
	for _, in := range inputs {
		n = appendStringField(n, fNodeInput, in)
	}
	for _, out := range outputs {
		n = appendStringField(n, fNodeOutput, out)
	}
	n = appendStringField(n, fNodeName, name)
	n = appendStringField(n, fNodeOpType, opType)
	if attr != nil {
		n = appendSubField(n, fNodeAttr, attr)
	}
	return n
}

func intAttr(name string, v int64) message {
	a := message{}
	a = appendStringField(a, fAttrName, name)
	a = appendVarintField(a, fAttrI, uint64(v))
	a = appendVarintField(a, fAttrType, uint64(attrTypeInt))
	return a
}

func findAttr(n message, name string) (message, bool) {
	for _, f := range n.all(fNodeAttr) {
		sub, err := parseMessage(f.Raw)
		if err != nil {
			continue
		}
		if n, ok := sub.str(fAttrName); ok && n == name {
			return sub, true
		}
	}
	return nil, false
}

// float32One/float16One are the raw little-endian bytes of 1.0 in the two
// element types the rewriter needs to emit a constant for.
var (
	float32One = []byte{0x00, 0x00, 0x80, 0x3F}
	float16One = []byte{0x00, 0x3C}
)

func constantOneBytes(elemType uint64) []byte {
	if elemType == dtFloat16 {
		return float16One
	}
	return float32One
}

// decomposeResult carries the accumulated effect of rewriting one node:
// its replacement node list, any new value_info entries, and whether a
// shared constant tensor was required.
type decomposeResult struct {
	nodes          []message
	newValueInfo   []message
	needsConstOne  bool
	constElemType  uint64
}

// decomposeSoftplus expands `y = softplus(x)` into the seven-node
// numerically stable rewrite sharing one constant tensor of value 1.
func decomposeSoftplus(node message, graph message, seq int) decomposeResult {
	ins := stringFields(node, fNodeInput)
	outs := stringFields(node, fNodeOutput)
	if len(ins) < 1 || len(outs) < 1 {
		return decomposeResult{nodes: []message{node}}
	}
	x := ins[0]
	y := outs[0]
	elemType, shape, hasShape, _ := lookupValueInfo(graph, x)

	prefix := fmt.Sprintf("katacore_rw_sp%d_", seq)
	absOut := prefix + "abs"
	negOut := prefix + "neg"
	expOut := prefix + "exp"
	addOut := prefix + "add1"
	logOut := prefix + "log"
	reluOut := prefix + "relu"

	nodes := []message{
		buildNode("Abs", prefix+"n1", []string{x}, []string{absOut}, nil),
		buildNode("Neg", prefix+"n2", []string{absOut}, []string{negOut}, nil),
		buildNode("Exp", prefix+"n3", []string{negOut}, []string{expOut}, nil),
		buildNode("Add", prefix+"n4", []string{expOut, constTensorName}, []string{addOut}, nil),
		buildNode("Log", prefix+"n5", []string{addOut}, []string{logOut}, nil),
		buildNode("Relu", prefix+"n6", []string{x}, []string{reluOut}, nil),
		buildNode("Add", prefix+"n7", []string{reluOut, logOut}, []string{y}, nil),
	}

	newVI := make([]message, 0, 6)
	for _, name := range []string{absOut, negOut, expOut, addOut, logOut, reluOut} {
		newVI = append(newVI, buildValueInfo(name, elemType, shape, hasShape))
	}

	return decomposeResult{
		nodes:         nodes,
		newValueInfo:  newVI,
		needsConstOne: true,
		constElemType: elemType,
	}
}

// decomposeLogSoftmax expands `y = logsoftmax(x)` into `softmax -> log`,
// preserving the axis attribute.
func decomposeLogSoftmax(node message, graph message, seq int) decomposeResult {
	ins := stringFields(node, fNodeInput)
	outs := stringFields(node, fNodeOutput)
	if len(ins) < 1 || len(outs) < 1 {
		return decomposeResult{nodes: []message{node}}
	}
	x := ins[0]
	y := outs[0]
	elemType, shape, hasShape, _ := lookupValueInfo(graph, x)

	var axisAttr message
	if a, ok := findAttr(node, "axis"); ok {
		axisAttr = a
	} else {
		axisAttr = intAttr("axis", -1)
	}

	prefix := fmt.Sprintf("katacore_rw_ls%d_", seq)
	softOut := prefix + "softmax"

	softmaxNode := buildNode("Softmax", prefix+"n1", []string{x}, []string{softOut}, axisAttr)
	logNode := buildNode("Log", prefix+"n2", []string{softOut}, []string{y}, nil)

	return decomposeResult{
		nodes:        []message{softmaxNode, logNode},
		newValueInfo: []message{buildValueInfo(softOut, elemType, shape, hasShape)},
	}
}

// stringFields returns the decoded string value of every field with the
// given number, in order.
func stringFields(n message, num protowire.Number) []string {
	fs := n.all(num)
	out := make([]string, len(fs))
	for i, f := range fs {
		out[i] = string(f.Raw)
	}
	return out
}
