package rewriter

// Options configures the rewriter.
type Options struct {
	// TargetBatch is the concrete value substituted for the symbolic
	// batch dimension. Defaults to 8 (GPU graph-capture profile) when
	// zero and CoprocessorProfile is false, or 1 when CoprocessorProfile
	// is true.
	TargetBatch int
	// BoardSize is substituted for dimensions named "height" and "width"
	// when CoprocessorProfile is true; it is not used otherwise.
	BoardSize int
	// CoprocessorProfile additionally rewrites dimensions named
	// "batch_size", "height", and "width" wherever they occur, not just
	// at index 0 — required by back-ends that need every spatial dim
	// static, not only the leading one.
	CoprocessorProfile bool
}

func (o Options) resolvedTargetBatch() int {
	if o.TargetBatch > 0 {
		return o.TargetBatch
	}
	if o.CoprocessorProfile {
		return 1
	}
	return 8
}

// rewriteValueInfoDims rewrites the shape carried by a single
// ValueInfoProto (an input, output, or value_info entry), returning the
// updated message.
func rewriteValueInfoDims(vi message, opt Options) message {
	typ, ok := vi.sub(fViType)
	if !ok {
		return vi
	}
	tensorType, ok := typ.sub(fTypeTensor)
	if !ok {
		return vi
	}
	shape, ok := tensorType.sub(fTTShape)
	if !ok {
		return vi
	}

	dims := shape.allSub(fShapeDim)
	newShape := message{}
	for i, dim := range dims {
		newShape = appendSubField(newShape, fShapeDim, rewriteDim(dim, i, opt))
	}
	// Preserve any non-dim fields TensorShapeProto might carry.
	for _, f := range shape {
		if f.Num != fShapeDim {
			newShape = append(newShape, f)
		}
	}

	newTensorType := removeAll(tensorType, fTTShape)
	newTensorType = appendSubField(newTensorType, fTTShape, newShape)

	newTyp := removeAll(typ, fTypeTensor)
	newTyp = appendSubField(newTyp, fTypeTensor, newTensorType)

	newVi := removeAll(vi, fViType)
	newVi = appendSubField(newVi, fViType, newTyp)
	return newVi
}

// rewriteDim applies the static-dimension rule to one Dimension at index i
// of its owning shape.
func rewriteDim(dim message, i int, opt Options) message {
	if v, ok := dim.varint(fDimValue); ok && int64(v) > 0 {
		// Already concrete and positive: left alone.
		return dim
	}

	param, hasParam := dim.str(fDimParam)

	var concrete int64
	switch {
	case i == 0:
		concrete = int64(opt.resolvedTargetBatch())
	case opt.CoprocessorProfile && hasParam && param == "batch_size":
		concrete = int64(opt.resolvedTargetBatch())
	case opt.CoprocessorProfile && hasParam && (param == "height" || param == "width"):
		concrete = int64(opt.BoardSize)
	default:
		concrete = 1
	}

	out := message{}
	out = appendVarintField(out, fDimValue, uint64(concrete))
	return out
}

// applyStaticDims rewrites every input, output, and value_info tensor
// declaration in the graph.
func applyStaticDims(graph message, opt Options) message {
	out := message{}
	for _, f := range graph {
		switch f.Num {
		case fGraphInput, fGraphOutput, fGraphValueInfo:
			sub, err := parseMessage(f.Raw)
			if err != nil {
				out = append(out, f)
				continue
			}
			rewritten := rewriteValueInfoDims(sub, opt)
			out = appendSubField(out, f.Num, rewritten)
		default:
			out = append(out, f)
		}
	}
	return out
}
