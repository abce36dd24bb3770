package rewriter

// Result is the outcome of Rewrite.
type Result struct {
	// Bytes is the rewritten model, or the original bytes unchanged if
	// WasConverted is false.
	Bytes []byte
	// WasConverted reports whether the rewriter successfully parsed and
	// edited the model. False on any parse failure.
	WasConverted bool
	// SoftplusCount/LogSoftmaxCount report how many of each operator were
	// decomposed, for diagnostics and test assertions.
	SoftplusCount   int
	LogSoftmaxCount int
}

// Rewrite applies the static-dimension pass and the operator-decomposition
// pass to the model in data. On any parse failure the original bytes are
// returned with WasConverted=false.
func Rewrite(data []byte, opt Options) Result {
	model, err := parseMessage(data)
	if err != nil {
		return Result{Bytes: data, WasConverted: false}
	}

	graphField, ok := model.first(fModelGraph)
	if !ok {
		return Result{Bytes: data, WasConverted: false}
	}
	graph, err := parseMessage(graphField.Raw)
	if err != nil {
		return Result{Bytes: data, WasConverted: false}
	}

	graph = applyStaticDims(graph, opt)

	graph, softplusN, logSoftmaxN := decomposeOperators(graph)

	if err := validateAcyclic(graph); err != nil {
		// The decomposition cannot legally introduce a cycle (every
		// replacement is a strict chain), but if graph validation
		// somehow fails we still return the original, unmodified model
		// rather than ship a broken one.
		return Result{Bytes: data, WasConverted: false}
	}

	newModel := removeAll(model, fModelGraph)
	newModel = appendSubField(newModel, fModelGraph, graph)

	return Result{
		Bytes:           newModel.encode(),
		WasConverted:    true,
		SoftplusCount:   softplusN,
		LogSoftmaxCount: logSoftmaxN,
	}
}

// decomposeOperators scans the graph's node list in order, replacing every
// Softplus and LogSoftmax node, and appends the new value_info entries and
// the single shared constant-one tensor (if any Softplus was rewritten).
func decomposeOperators(graph message) (message, int, int) {
	nodes := graph.allSub(fGraphNode)

	var newNodes []message
	var newValueInfo []message
	var needConstOne bool
	var constElemType uint64 = dtFloat32
	softplusN, logSoftmaxN := 0, 0
	seq := 0

	for _, node := range nodes {
		opType, _ := node.str(fNodeOpType)
		switch opType {
		case opSoftplus:
			seq++
			res := decomposeSoftplus(node, graph, seq)
			newNodes = append(newNodes, res.nodes...)
			newValueInfo = append(newValueInfo, res.newValueInfo...)
			if res.needsConstOne {
				needConstOne = true
				constElemType = res.constElemType
			}
			softplusN++
		case opLogSoftmax:
			seq++
			res := decomposeLogSoftmax(node, graph, seq)
			newNodes = append(newNodes, res.nodes...)
			newValueInfo = append(newValueInfo, res.newValueInfo...)
			logSoftmaxN++
		default:
			newNodes = append(newNodes, node)
		}
	}

	out := message{}
	for _, f := range graph {
		if f.Num == fGraphNode {
			continue // rebuilt below, in order, from newNodes
		}
		out = append(out, f)
	}
	for _, n := range newNodes {
		out = appendSubField(out, fGraphNode, n)
	}
	for _, vi := range newValueInfo {
		out = appendSubField(out, fGraphValueInfo, vi)
	}
	if needConstOne {
		out = appendSubField(out, fGraphInitializer, buildConstOneTensor(constElemType))
	}
	return out, softplusN, logSoftmaxN
}

func buildConstOneTensor(elemType uint64) message {
	tp := message{}
	tp = appendVarintField(tp, fTensorDType, elemType)
	tp = appendStringField(tp, fTensorName, constTensorName)
	tp = appendBytesField(tp, fTensorRawData, constantOneBytes(elemType))
	return tp
}
