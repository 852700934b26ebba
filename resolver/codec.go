package resolver

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"
)

// Codec describes how records are stored at the source.
type codec struct {
	Name string
	// Ext is appended to the record name.
	Ext       string
	NewReader func(io.Reader) (io.ReadCloser, error)
}

var codecs = []codec{
	{
		Name: "none",
		NewReader: func(r io.Reader) (io.ReadCloser, error) {
			return io.NopCloser(r), nil
		},
	},
	{
		Name: "gzip",
		Ext:  ".gz",
		NewReader: func(r io.Reader) (io.ReadCloser, error) {
			return gzip.NewReader(r)
		},
	},
	{
		Name: "zstd",
		Ext:  ".zst",
		NewReader: func(r io.Reader) (io.ReadCloser, error) {
			d, err := zstd.NewReader(r, zstd.WithDecoderConcurrency(1))
			if err != nil {
				return nil, err
			}
			return d.IOReadCloser(), nil
		},
	},
	{
		Name: "xz",
		Ext:  ".xz",
		NewReader: func(r io.Reader) (io.ReadCloser, error) {
			x, err := xz.NewReader(r)
			if err != nil {
				return nil, err
			}
			return io.NopCloser(x), nil
		},
	},
}

var codecAliases = map[string]string{
	"":    "none",
	"gz":  "gzip",
	"zst": "zstd",
}

func codecFor(name string) (codec, error) {
	n := strings.ToLower(name)
	if a, ok := codecAliases[n]; ok {
		n = a
	}
	for _, c := range codecs {
		if c.Name == n {
			return c, nil
		}
	}
	return codec{}, fmt.Errorf("unknown compression %q", name)
}

// Decode returns the decompressed contents of "b".
func (c codec) decode(b []byte) ([]byte, error) {
	rd, err := c.NewReader(bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	defer rd.Close()
	return io.ReadAll(io.LimitReader(rd, maxRecordSize))
}

// Compressions reports the accepted values for [Config.Compression].
func Compressions() []string {
	out := make([]string, len(codecs))
	for i, c := range codecs {
		out[i] = c.Name
	}
	return out
}
