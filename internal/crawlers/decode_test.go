package crawlers

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"testing"

	"github.com/andybalholm/brotli"
)

func TestDecodeBody(t *testing.T) {
	plain := []byte(`<html><a href="/nha-dat-ban/kim-ma">Kim Mã</a></html>`)

	var gz bytes.Buffer
	gw := gzip.NewWriter(&gz)
	gw.Write(plain)
	gw.Close()

	var br bytes.Buffer
	bw := brotli.NewWriter(&br)
	bw.Write(plain)
	bw.Close()

	var fl bytes.Buffer
	fw, _ := flate.NewWriter(&fl, flate.DefaultCompression)
	fw.Write(plain)
	fw.Close()

	tests := []struct {
		name     string
		encoding string
		body     []byte
	}{
		{"gzip", "gzip", gz.Bytes()},
		{"已被透明解压的gzip", "gzip", plain},
		{"brotli", "br", br.Bytes()},
		{"deflate", "deflate", fl.Bytes()},
		{"无压缩", "", plain},
		{"identity", " Identity ", plain},
		{"未知编码原样返回", "zstd", plain},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeBody(tt.encoding, tt.body)
			if err != nil {
				t.Fatalf("DecodeBody() error = %v", err)
			}
			if !bytes.Equal(got, plain) {
				t.Errorf("DecodeBody() = %q, want %q", got, plain)
			}
		})
	}
}

func TestDecodeBody_CorruptGzip(t *testing.T) {
	corrupt := []byte{0x1f, 0x8b, 0x00, 0x01, 0x02}
	if _, err := DecodeBody("gzip", corrupt); err == nil {
		t.Error("损坏的gzip应返回错误")
	}
}
