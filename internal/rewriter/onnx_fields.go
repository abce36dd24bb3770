package rewriter

import "google.golang.org/protobuf/encoding/protowire"

// Field numbers below follow the published onnx.proto3 schema. Only the
// fields the rewriter reads or writes are named; everything else round
// trips as opaque fields (see message.encode).
const (
	fModelGraph = protowire.Number(7) // ModelProto.graph

	fGraphNode        = protowire.Number(1)  // GraphProto.node (repeated NodeProto)
	fGraphInitializer = protowire.Number(5)  // GraphProto.initializer (repeated TensorProto)
	fGraphInput       = protowire.Number(11) // GraphProto.input (repeated ValueInfoProto)
	fGraphOutput      = protowire.Number(12) // GraphProto.output (repeated ValueInfoProto)
	fGraphValueInfo   = protowire.Number(13) // GraphProto.value_info (repeated ValueInfoProto)

	fNodeInput   = protowire.Number(1) // NodeProto.input (repeated string)
	fNodeOutput  = protowire.Number(2) // NodeProto.output (repeated string)
	fNodeName    = protowire.Number(3) // NodeProto.name
	fNodeOpType  = protowire.Number(4) // NodeProto.op_type
	fNodeAttr    = protowire.Number(5) // NodeProto.attribute (repeated AttributeProto)
	fNodeDomain  = protowire.Number(7) // NodeProto.domain

	fAttrName = protowire.Number(1)  // AttributeProto.name
	fAttrI    = protowire.Number(3)  // AttributeProto.i (int64)
	fAttrType = protowire.Number(20) // AttributeProto.type (enum)

	attrTypeInt = 2 // AttributeProto.AttributeType.INT

	fViName = protowire.Number(1) // ValueInfoProto.name
	fViType = protowire.Number(2) // ValueInfoProto.type

	fTypeTensor = protowire.Number(1) // TypeProto.tensor_type (oneof)

	fTTElemType = protowire.Number(1) // TypeProto.Tensor.elem_type
	fTTShape    = protowire.Number(2) // TypeProto.Tensor.shape

	fShapeDim = protowire.Number(1) // TensorShapeProto.dim (repeated Dimension)

	fDimValue = protowire.Number(1) // TensorShapeProto.Dimension.dim_value (int64)
	fDimParam = protowire.Number(2) // TensorShapeProto.Dimension.dim_param (string)

	fTensorDims    = protowire.Number(1) // TensorProto.dims (repeated int64)
	fTensorDType   = protowire.Number(2) // TensorProto.data_type
	fTensorName    = protowire.Number(8) // TensorProto.name
	fTensorRawData = protowire.Number(9) // TensorProto.raw_data
)

// ONNX TensorProto.DataType values this package cares about.
const (
	dtFloat32 = 1
	dtFloat16 = 10
)
