package infer

import (
	"fmt"
	"runtime"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/weiqilab/katacore/internal/numeric"
)

// Tensor name constants for the KataGo-style ONNX export: spatial/global
// inputs and policy/value/misc-value/ownership outputs.
const (
	inputSpatialName    = "input_spatial"
	inputGlobalName     = "input_global"
	outputPolicyName    = "output_policy"
	outputValueName     = "output_value"
	outputMiscValueName = "output_miscvalue"
	outputOwnershipName = "output_ownership"
)

// backend is the capability set the inference engine is polymorphic over:
// initialize, capabilities, runtimeInfo, run, dispose. Session dispatches
// through this interface rather than a class hierarchy; each BackendKind
// below differs only in which execution-provider strategies it tries.
type backend interface {
	initialize(modelBytes []byte, boardSize, threads int, graphCapture, elemHalf bool, hasOwnership bool) error
	capabilities() Capabilities
	runtimeInfo() RuntimeInfo
	// run executes one forward pass over spatial/global, which hold batch
	// concatenated items (always float32; the backend performs any
	// element-type conversion itself), and returns the four decoded head
	// outputs, still batch-concatenated. ownership is nil if hasOwnership
	// was false at initialize time. Graph-capture backends only ever
	// receive batch==1, since the session clamps the compiled batch to 1
	// whenever graph capture is enabled.
	run(spatial, global []float32, batch int) (policy, value, miscValue, ownership []float32, err error)
	dispose()
}

type epStrategy struct {
	name  string
	setup func(*ort.SessionOptions) error
}

func strategiesFor(kind BackendKind) []epStrategy {
	switch kind {
	case Portable:
		// No WASM runtime is vendored here; the portable profile maps to
		// the default CPU execution provider, which gives it the same
		// "always succeeds" guarantee this back-end is expected to have.
		return []epStrategy{{"CPU", func(*ort.SessionOptions) error { return nil }}}

	case NeuralCoprocessor:
		if runtime.GOOS == "darwin" {
			return []epStrategy{{"CoreML-ANE", func(so *ort.SessionOptions) error {
				return so.AppendExecutionProviderCoreMLV2(map[string]string{"use_ane": "1"})
			}}}
		}
		return []epStrategy{{"DirectML-NPU", func(so *ort.SessionOptions) error {
			return so.AppendExecutionProviderDirectML(0)
		}}}

	case GPUCompute:
		switch runtime.GOOS {
		case "darwin":
			return []epStrategy{{"CoreML", func(so *ort.SessionOptions) error {
				return so.AppendExecutionProviderCoreMLV2(map[string]string{})
			}}}
		case "windows":
			return []epStrategy{
				{"DirectML", func(so *ort.SessionOptions) error { return so.AppendExecutionProviderDirectML(0) }},
				{"CUDA", cudaSetup},
			}
		default:
			return []epStrategy{{"CUDA", cudaSetup}}
		}

	case NativeSidecar:
		switch runtime.GOOS {
		case "darwin":
			return []epStrategy{
				{"CoreML", func(so *ort.SessionOptions) error {
					return so.AppendExecutionProviderCoreMLV2(map[string]string{"use_ane": "1"})
				}},
				{"CPU", func(*ort.SessionOptions) error { return nil }},
			}
		case "windows":
			return []epStrategy{
				{"TensorRT", tensorRTSetup},
				{"CUDA", cudaSetup},
				{"DirectML", func(so *ort.SessionOptions) error { return so.AppendExecutionProviderDirectML(0) }},
				{"CPU", func(*ort.SessionOptions) error { return nil }},
			}
		default:
			return []epStrategy{
				{"TensorRT", tensorRTSetup},
				{"CUDA", cudaSetup},
				{"CPU", func(*ort.SessionOptions) error { return nil }},
			}
		}
	}
	return []epStrategy{{"CPU", func(*ort.SessionOptions) error { return nil }}}
}

func tensorRTSetup(so *ort.SessionOptions) error {
	trtOpts, e := ort.NewTensorRTProviderOptions()
	if e != nil {
		return e
	}
	defer trtOpts.Destroy()
	trtOpts.Update(map[string]string{
		"device_id":               "0",
		"trt_engine_cache_enable": "1",
		"trt_fp16_enable":         "1",
	})
	return so.AppendExecutionProviderTensorRT(trtOpts)
}

func cudaSetup(so *ort.SessionOptions) error {
	cudaOpts, e := ort.NewCUDAProviderOptions()
	if e != nil {
		return e
	}
	defer cudaOpts.Destroy()
	return so.AppendExecutionProviderCUDA(cudaOpts)
}

// nativeBackend drives onnxruntime_go for any of the four BackendKind
// variants. graphCapture sessions bind one fixed set of tensors for the
// life of the session, never destroyed, reused every run; dynamic sessions
// build a fresh tensor set per run and destroy it immediately after.
type nativeBackend struct {
	kind         BackendKind
	boardSize    int
	elemHalf     bool
	hasOwnership bool
	graphCapture bool
	providerName string

	// graph-capture profile: bound once, reused, never destroyed here.
	advSess  *ort.AdvancedSession
	inSp     *ort.Tensor[float32]
	inSpHalf *ort.Tensor[ort.Float16]
	inGl     *ort.Tensor[float32]
	inGlHalf *ort.Tensor[ort.Float16]
	outPol   *ort.Tensor[float32]
	outVal   *ort.Tensor[float32]
	outMisc  *ort.Tensor[float32]
	outOwn   *ort.Tensor[float32]

	// dynamic (non-capture) profile.
	dynSess *ort.DynamicAdvancedSession
}

func newBackend(kind BackendKind) *nativeBackend {
	return &nativeBackend{kind: kind}
}

func (b *nativeBackend) outputNames() []string {
	names := []string{outputPolicyName, outputValueName, outputMiscValueName}
	if b.hasOwnership {
		names = append(names, outputOwnershipName)
	}
	return names
}

func (b *nativeBackend) initialize(modelBytes []byte, boardSize, threads int, graphCapture, elemHalf, hasOwnership bool) error {
	b.boardSize = boardSize
	b.elemHalf = elemHalf
	b.hasOwnership = hasOwnership
	b.graphCapture = graphCapture
	planeSize := boardSize * boardSize

	var lastErr error
	for _, st := range strategiesFor(b.kind) {
		so, err := ort.NewSessionOptions()
		if err != nil {
			lastErr = err
			continue
		}
		_ = so.SetLogSeverityLevel(3)
		if threads > 0 {
			_ = so.SetIntraOpNumThreads(threads)
		}
		if err := st.setup(so); err != nil {
			so.Destroy()
			lastErr = fmt.Errorf("%s setup: %w", st.name, err)
			continue
		}

		var initErr error
		if graphCapture {
			initErr = b.initBound(modelBytes, so, planeSize)
		} else {
			initErr = b.initDynamic(modelBytes, so)
		}
		so.Destroy()
		if initErr != nil {
			lastErr = fmt.Errorf("%s: %w", st.name, initErr)
			b.teardownPartial()
			continue
		}

		b.providerName = st.name
		return nil
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no execution-provider strategy available for backend %s", b.kind)
	}
	return lastErr
}

func (b *nativeBackend) initBound(modelBytes []byte, so *ort.SessionOptions, planeSize int) error {
	outputs := make([]ort.Value, 0, 4)
	var err error
	if b.elemHalf {
		b.inSpHalf, err = ort.NewTensor(ort.NewShape(1, int64(Planes), int64(b.boardSize), int64(b.boardSize)), make([]ort.Float16, Planes*planeSize))
		if err != nil {
			return err
		}
		b.inGlHalf, err = ort.NewTensor(ort.NewShape(1, int64(Globals)), make([]ort.Float16, Globals))
		if err != nil {
			return err
		}
	} else {
		b.inSp, err = ort.NewTensor(ort.NewShape(1, int64(Planes), int64(b.boardSize), int64(b.boardSize)), make([]float32, Planes*planeSize))
		if err != nil {
			return err
		}
		b.inGl, err = ort.NewTensor(ort.NewShape(1, int64(Globals)), make([]float32, Globals))
		if err != nil {
			return err
		}
	}

	b.outPol, err = ort.NewEmptyTensor[float32](ort.NewShape(1, int64(planeSize+1)))
	if err != nil {
		return err
	}
	b.outVal, err = ort.NewEmptyTensor[float32](ort.NewShape(1, 3))
	if err != nil {
		return err
	}
	b.outMisc, err = ort.NewEmptyTensor[float32](ort.NewShape(1, 10))
	if err != nil {
		return err
	}
	outputs = append(outputs, b.outPol, b.outVal, b.outMisc)
	if b.hasOwnership {
		b.outOwn, err = ort.NewEmptyTensor[float32](ort.NewShape(1, int64(planeSize)))
		if err != nil {
			return err
		}
		outputs = append(outputs, b.outOwn)
	}

	var inputs []ort.Value
	if b.elemHalf {
		inputs = []ort.Value{b.inSpHalf, b.inGlHalf}
	} else {
		inputs = []ort.Value{b.inSp, b.inGl}
	}

	sess, err := ort.NewAdvancedSessionWithONNXData(modelBytes, []string{inputSpatialName, inputGlobalName}, b.outputNames(), inputs, outputs, so)
	if err != nil {
		return err
	}
	if err := sess.Run(); err != nil {
		sess.Destroy()
		return fmt.Errorf("warm-up run: %w", err)
	}
	b.advSess = sess
	return nil
}

func (b *nativeBackend) initDynamic(modelBytes []byte, so *ort.SessionOptions) error {
	sess, err := ort.NewDynamicAdvancedSessionWithONNXData(modelBytes, []string{inputSpatialName, inputGlobalName}, b.outputNames(), so)
	if err != nil {
		return err
	}
	b.dynSess = sess
	return nil
}

func (b *nativeBackend) teardownPartial() {
	if b.advSess != nil {
		b.advSess.Destroy()
		b.advSess = nil
	}
	if b.dynSess != nil {
		b.dynSess.Destroy()
		b.dynSess = nil
	}
	b.destroyBoundTensors()
}

// destroyBoundTensors releases whichever of the graph-capture profile's
// bound tensors were actually allocated. Each field is checked against its
// own concrete nil, not boxed into a common interface first — a nil
// *Tensor[T] stored in an interface value is itself a non-nil interface,
// so a generic "range over interfaces and call Destroy" loop would call
// Destroy on a nil receiver.
func (b *nativeBackend) destroyBoundTensors() {
	if b.inSp != nil {
		b.inSp.Destroy()
		b.inSp = nil
	}
	if b.inSpHalf != nil {
		b.inSpHalf.Destroy()
		b.inSpHalf = nil
	}
	if b.inGl != nil {
		b.inGl.Destroy()
		b.inGl = nil
	}
	if b.inGlHalf != nil {
		b.inGlHalf.Destroy()
		b.inGlHalf = nil
	}
	if b.outPol != nil {
		b.outPol.Destroy()
		b.outPol = nil
	}
	if b.outVal != nil {
		b.outVal.Destroy()
		b.outVal = nil
	}
	if b.outMisc != nil {
		b.outMisc.Destroy()
		b.outMisc = nil
	}
	if b.outOwn != nil {
		b.outOwn.Destroy()
		b.outOwn = nil
	}
}

func (b *nativeBackend) capabilities() Capabilities {
	return Capabilities{
		Kind:                  b.kind,
		SupportsGraphCapture:  b.graphCapture,
		SupportsDeviceBuffers: b.graphCapture,
		ElementTypeIsHalf:     b.elemHalf,
	}
}

func (b *nativeBackend) runtimeInfo() RuntimeInfo {
	return RuntimeInfo{Name: b.providerName}
}

func (b *nativeBackend) run(spatial, global []float32, batch int) (policy, value, miscValue, ownership []float32, err error) {
	if b.graphCapture {
		if batch != 1 {
			return nil, nil, nil, nil, fmt.Errorf("graph-capture backend received batch=%d, want 1", batch)
		}
		return b.runBound(spatial, global)
	}
	return b.runDynamic(spatial, global, batch)
}

func (b *nativeBackend) runBound(spatial, global []float32) (policy, value, miscValue, ownership []float32, err error) {
	if b.elemHalf {
		dst := b.inSpHalf.GetData()
		for i, v := range spatial {
			dst[i] = ort.Float16(numeric.Float32ToFloat16(v))
		}
		gdst := b.inGlHalf.GetData()
		for i, v := range global {
			gdst[i] = ort.Float16(numeric.Float32ToFloat16(v))
		}
	} else {
		copy(b.inSp.GetData(), spatial)
		copy(b.inGl.GetData(), global)
	}

	if err := b.advSess.Run(); err != nil {
		return nil, nil, nil, nil, err
	}

	policy = append([]float32(nil), b.outPol.GetData()...)
	value = append([]float32(nil), b.outVal.GetData()...)
	miscValue = append([]float32(nil), b.outMisc.GetData()...)
	if b.hasOwnership {
		ownership = append([]float32(nil), b.outOwn.GetData()...)
	}
	return policy, value, miscValue, ownership, nil
}

func (b *nativeBackend) runDynamic(spatial, global []float32, batch int) (policy, value, miscValue, ownership []float32, err error) {
	planeSize := b.boardSize * b.boardSize
	n := int64(batch)

	var inSp, inGl ort.Value
	if b.elemHalf {
		halfSpatial := make([]ort.Float16, len(spatial))
		for i, v := range spatial {
			halfSpatial[i] = ort.Float16(numeric.Float32ToFloat16(v))
		}
		halfGlobal := make([]ort.Float16, len(global))
		for i, v := range global {
			halfGlobal[i] = ort.Float16(numeric.Float32ToFloat16(v))
		}
		t1, e := ort.NewTensor(ort.NewShape(n, int64(Planes), int64(b.boardSize), int64(b.boardSize)), halfSpatial)
		if e != nil {
			return nil, nil, nil, nil, e
		}
		t2, e := ort.NewTensor(ort.NewShape(n, int64(Globals)), halfGlobal)
		if e != nil {
			t1.Destroy()
			return nil, nil, nil, nil, e
		}
		inSp, inGl = t1, t2
		defer t1.Destroy()
		defer t2.Destroy()
	} else {
		t1, e := ort.NewTensor(ort.NewShape(n, int64(Planes), int64(b.boardSize), int64(b.boardSize)), append([]float32(nil), spatial...))
		if e != nil {
			return nil, nil, nil, nil, e
		}
		t2, e := ort.NewTensor(ort.NewShape(n, int64(Globals)), append([]float32(nil), global...))
		if e != nil {
			t1.Destroy()
			return nil, nil, nil, nil, e
		}
		inSp, inGl = t1, t2
		defer t1.Destroy()
		defer t2.Destroy()
	}

	outPol, e := ort.NewEmptyTensor[float32](ort.NewShape(n, int64(planeSize+1)))
	if e != nil {
		return nil, nil, nil, nil, e
	}
	defer outPol.Destroy()
	outVal, e := ort.NewEmptyTensor[float32](ort.NewShape(n, 3))
	if e != nil {
		return nil, nil, nil, nil, e
	}
	defer outVal.Destroy()
	outMisc, e := ort.NewEmptyTensor[float32](ort.NewShape(n, 10))
	if e != nil {
		return nil, nil, nil, nil, e
	}
	defer outMisc.Destroy()

	outs := []ort.Value{outPol, outVal, outMisc}
	var outOwn *ort.Tensor[float32]
	if b.hasOwnership {
		outOwn, e = ort.NewEmptyTensor[float32](ort.NewShape(n, int64(planeSize)))
		if e != nil {
			return nil, nil, nil, nil, e
		}
		defer outOwn.Destroy()
		outs = append(outs, outOwn)
	}

	if err := b.dynSess.Run([]ort.Value{inSp, inGl}, outs); err != nil {
		return nil, nil, nil, nil, err
	}

	policy = append([]float32(nil), outPol.GetData()...)
	value = append([]float32(nil), outVal.GetData()...)
	miscValue = append([]float32(nil), outMisc.GetData()...)
	if b.hasOwnership {
		ownership = append([]float32(nil), outOwn.GetData()...)
	}
	return policy, value, miscValue, ownership, nil
}

func (b *nativeBackend) dispose() {
	if b.advSess != nil {
		b.advSess.Destroy()
		b.advSess = nil
	}
	if b.dynSess != nil {
		b.dynSess.Destroy()
		b.dynSess = nil
	}
	b.destroyBoundTensors()
}
