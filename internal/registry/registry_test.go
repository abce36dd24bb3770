package registry

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func openTestRegistry(t *testing.T) *Registry {
	t.Helper()
	r, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	return r
}

func TestPutGetRoundTrip(t *testing.T) {
	r := openTestRegistry(t)

	modelBytes := []byte{0x01, 0x02, 0x03}
	err := r.Put("b18c384.onnx", modelBytes, Metadata{BoardSize: 19, SourceKind: "katago", Rewritten: true})
	require.NoError(t, err)

	gotBytes, meta, err := r.Get("b18c384.onnx")
	require.NoError(t, err)
	require.Equal(t, modelBytes, gotBytes)
	require.Equal(t, "b18c384.onnx", meta.Name)
	require.Equal(t, 19, meta.BoardSize)
	require.True(t, meta.Rewritten)
	require.NotEmpty(t, meta.ID)
}

func TestGetMissingModelReturnsError(t *testing.T) {
	r := openTestRegistry(t)
	_, _, err := r.Get("does-not-exist.onnx")
	require.Error(t, err)
}

func TestListReturnsAllRegisteredMetadata(t *testing.T) {
	r := openTestRegistry(t)
	require.NoError(t, r.Put("a.onnx", []byte{1}, Metadata{BoardSize: 9}))
	require.NoError(t, r.Put("b.onnx", []byte{2}, Metadata{BoardSize: 19}))

	all, err := r.List()
	require.NoError(t, err)
	require.Len(t, all, 2)
}

func TestPutOverwritesAndMintsFreshID(t *testing.T) {
	r := openTestRegistry(t)
	require.NoError(t, r.Put("m.onnx", []byte{1}, Metadata{BoardSize: 9}))
	_, first, err := r.Get("m.onnx")
	require.NoError(t, err)

	require.NoError(t, r.Put("m.onnx", []byte{1, 2}, Metadata{BoardSize: 9, Rewritten: true}))
	gotBytes, second, err := r.Get("m.onnx")
	require.NoError(t, err)
	require.Equal(t, []byte{1, 2}, gotBytes)
	require.NotEqual(t, first.ID, second.ID)
}

func TestDeleteRemovesModel(t *testing.T) {
	r := openTestRegistry(t)
	require.NoError(t, r.Put("m.onnx", []byte{1}, Metadata{BoardSize: 9}))
	require.NoError(t, r.Delete("m.onnx"))

	_, _, err := r.Get("m.onnx")
	require.Error(t, err)
}
