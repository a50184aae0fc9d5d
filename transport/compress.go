package transport

import (
	"bytes"
	"io"

	"github.com/pierrec/lz4/v3"

	"github.com/openbuildnet/obncore/cmn/cos"
)

// CompressLZ4 and DecompressLZ4 are the optional payload codec hooked
// through Extra.Compression, used for large vector/matrix port values
// where the wire savings are worth the CPU (mirrors the teacher's
// Extra.Compression/MMSA hook in transport.Extra, minus the pooled-buffer
// machinery that needs memsys, which this module does not carry — see
// DESIGN.md).
func CompressLZ4(raw []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := lz4.NewWriter(&buf)
	if _, err := w.Write(raw); err != nil {
		return nil, cos.NewError(cos.KindOutputPortSendMsg, "transport/lz4", err)
	}
	if err := w.Close(); err != nil {
		return nil, cos.NewError(cos.KindOutputPortSendMsg, "transport/lz4", err)
	}
	return buf.Bytes(), nil
}

func DecompressLZ4(compressed []byte) ([]byte, error) {
	r := lz4.NewReader(bytes.NewReader(compressed))
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, cos.NewError(cos.KindInputPortRawMsg, "transport/lz4", err)
	}
	return out, nil
}
