package rewriter

import (
	"math"
	"testing"
)

// buildTestModel assembles a minimal ModelProto with one input, a chain of
// nSoftplus Softplus nodes and nLogSoftmax LogSoftmax nodes, and a graph
// output, enough to exercise both decomposition passes.
func buildTestModel(t *testing.T, nSoftplus, nLogSoftmax int) []byte {
	t.Helper()

	inputVI := buildValueInfo("x", dtFloat32, dynamicBatchShape(), true)
	var nodes []message
	cur := "x"
	for i := 0; i < nSoftplus; i++ {
		next := "sp_out_" + itoa(i)
		nodes = append(nodes, buildNode(opSoftplus, "sp"+itoa(i), []string{cur}, []string{next}, nil))
		cur = next
	}
	for i := 0; i < nLogSoftmax; i++ {
		next := "ls_out_" + itoa(i)
		axis := intAttr("axis", -1)
		nodes = append(nodes, buildNode(opLogSoftmax, "ls"+itoa(i), []string{cur}, []string{next}, axis))
		cur = next
	}
	outputVI := buildValueInfo(cur, dtFloat32, nil, false)

	graph := message{}
	for _, n := range nodes {
		graph = appendSubField(graph, fGraphNode, n)
	}
	graph = appendSubField(graph, fGraphInput, inputVI)
	graph = appendSubField(graph, fGraphOutput, outputVI)

	model := message{}
	model = appendSubField(model, fModelGraph, graph)
	return model.encode()
}

// dynamicBatchShape builds a TensorShapeProto [batch, 22, height]: a
// symbolic first dim, one concrete dim, and a symbolic "height" dim.
func dynamicBatchShape() message {
	dimBatch := message{}
	dimBatch = appendStringField(dimBatch, fDimParam, "batch")

	dimPlanes := message{}
	dimPlanes = appendVarintField(dimPlanes, fDimValue, 22)

	dimH := message{}
	dimH = appendStringField(dimH, fDimParam, "height")

	shape := message{}
	shape = appendSubField(shape, fShapeDim, dimBatch)
	shape = appendSubField(shape, fShapeDim, dimPlanes)
	shape = appendSubField(shape, fShapeDim, dimH)
	return shape
}

func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	digits := []byte{}
	for i > 0 {
		digits = append([]byte{byte('0' + i%10)}, digits...)
		i /= 10
	}
	return string(digits)
}

func TestRewriteDecomposesOperators(t *testing.T) {
	data := buildTestModel(t, 125, 4)

	res := Rewrite(data, Options{TargetBatch: 8, BoardSize: 19})
	if !res.WasConverted {
		t.Fatalf("expected conversion to succeed")
	}
	if res.SoftplusCount != 125 {
		t.Fatalf("softplus count = %d, want 125", res.SoftplusCount)
	}
	if res.LogSoftmaxCount != 4 {
		t.Fatalf("logsoftmax count = %d, want 4", res.LogSoftmaxCount)
	}

	model, err := parseMessage(res.Bytes)
	if err != nil {
		t.Fatalf("re-parse rewritten model: %v", err)
	}
	graphField, _ := model.first(fModelGraph)
	graph, err := parseMessage(graphField.Raw)
	if err != nil {
		t.Fatalf("re-parse rewritten graph: %v", err)
	}

	for _, n := range graph.allSub(fGraphNode) {
		op, _ := n.str(fNodeOpType)
		if op == opSoftplus || op == opLogSoftmax {
			t.Fatalf("found undecomposed %s node after rewrite", op)
		}
	}

	inits := graph.allSub(fGraphInitializer)
	constCount := 0
	for _, init := range inits {
		if name, _ := init.str(fTensorName); name == constTensorName {
			constCount++
		}
	}
	if constCount != 1 {
		t.Fatalf("constant-one tensor count = %d, want exactly 1", constCount)
	}
}

func TestRewriteStaticDims(t *testing.T) {
	data := buildTestModel(t, 1, 1)
	res := Rewrite(data, Options{TargetBatch: 8, BoardSize: 19})
	if !res.WasConverted {
		t.Fatalf("expected conversion to succeed")
	}

	model, _ := parseMessage(res.Bytes)
	graphField, _ := model.first(fModelGraph)
	graph, _ := parseMessage(graphField.Raw)

	for _, vi := range graph.allSub(fGraphInput) {
		typ, _ := vi.sub(fViType)
		tt, _ := typ.sub(fTypeTensor)
		shape, _ := tt.sub(fTTShape)
		dims := shape.allSub(fShapeDim)
		if len(dims) != 3 {
			t.Fatalf("expected 3 dims, got %d", len(dims))
		}
		if v, ok := dims[0].varint(fDimValue); !ok || v != 8 {
			t.Fatalf("batch dim = %v, want 8", v)
		}
		if v, ok := dims[1].varint(fDimValue); !ok || v != 22 {
			t.Fatalf("plane dim = %v, want 22 (already concrete, untouched)", v)
		}
		if v, ok := dims[2].varint(fDimValue); !ok || v != 1 {
			t.Fatalf("height dim = %v, want 1 (symbolic, not coprocessor profile)", v)
		}
	}
}

func TestRewriteCoprocessorProfileNamedDims(t *testing.T) {
	data := buildTestModel(t, 0, 0)
	res := Rewrite(data, Options{TargetBatch: 1, BoardSize: 19, CoprocessorProfile: true})
	model, _ := parseMessage(res.Bytes)
	graphField, _ := model.first(fModelGraph)
	graph, _ := parseMessage(graphField.Raw)

	vi := graph.allSub(fGraphInput)[0]
	typ, _ := vi.sub(fViType)
	tt, _ := typ.sub(fTypeTensor)
	shape, _ := tt.sub(fTTShape)
	dims := shape.allSub(fShapeDim)
	if v, _ := dims[2].varint(fDimValue); v != 19 {
		t.Fatalf("height dim under coprocessor profile = %v, want boardSize 19", v)
	}
}

func TestRewriteIdempotent(t *testing.T) {
	data := buildTestModel(t, 3, 1)
	opt := Options{TargetBatch: 8, BoardSize: 19}
	first := Rewrite(data, opt)
	second := Rewrite(first.Bytes, opt)

	if second.SoftplusCount != 0 || second.LogSoftmaxCount != 0 {
		t.Fatalf("second pass found decomposable ops: softplus=%d logsoftmax=%d", second.SoftplusCount, second.LogSoftmaxCount)
	}
	if !second.WasConverted {
		t.Fatalf("second pass failed to parse the rewritten model")
	}
}

func TestRewriteInvalidBytesUnchanged(t *testing.T) {
	garbage := []byte{0xFF, 0xFF, 0xFF}
	res := Rewrite(garbage, Options{})
	if res.WasConverted {
		t.Fatalf("expected conversion to fail on garbage input")
	}
	if string(res.Bytes) != string(garbage) {
		t.Fatalf("expected original bytes to be returned unchanged")
	}
}

// TestSoftplusDecompositionSemantics checks the numerically-stable rewrite
// matches the naive softplus within a tight tolerance across a wide input
// range, including the large-magnitude values where naive softplus
// overflows or loses precision.
func TestSoftplusDecompositionSemantics(t *testing.T) {
	for x := -20.0; x <= 20.0; x += 0.1 {
		naive := math.Log(1 + math.Exp(x))
		stable := math.Max(x, 0) + math.Log(1+math.Exp(-math.Abs(x)))
		if diff := math.Abs(naive - stable); diff > 1e-5 && !math.IsInf(naive, 1) {
			t.Fatalf("x=%v naive=%v stable=%v diff=%v exceeds 1e-5", x, naive, stable, diff)
		}
	}
}
