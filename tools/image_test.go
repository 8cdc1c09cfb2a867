package tools

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/require"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, 0, color.RGBA{R: 200, A: 255})
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestDecodeBase64Image(t *testing.T) {
	data := pngBytes(t, 4, 4)
	b64 := base64.StdEncoding.EncodeToString(data)

	got, err := DecodeBase64Image(b64)
	require.NoError(t, err)
	require.Equal(t, data, got)

	got, err = DecodeBase64Image("data:image/png;base64," + b64)
	require.NoError(t, err)
	require.Equal(t, data, got)

	_, err = DecodeBase64Image(base64.StdEncoding.EncodeToString([]byte("plain text")))
	require.Error(t, err)

	_, err = DecodeBase64Image("data:image/png,abc")
	require.Error(t, err)
}

func TestNormalizeReferenceImage(t *testing.T) {
	url, err := NormalizeReferenceImage("https://cdn.example.com/a.png")
	require.NoError(t, err)
	require.Equal(t, "https://cdn.example.com/a.png", url)

	small := pngBytes(t, 8, 8)
	uri, err := NormalizeReferenceImage(base64.StdEncoding.EncodeToString(small))
	require.NoError(t, err)
	require.Equal(t, "data:image/png;base64,"+base64.StdEncoding.EncodeToString(small), uri)

	large := pngBytes(t, MaxReferenceEdge+500, 10)
	uri, err = NormalizeReferenceImage(base64.StdEncoding.EncodeToString(large))
	require.NoError(t, err)
	data, err := DecodeBase64Image(uri)
	require.NoError(t, err)
	require.Equal(t, ImageTypeJPEG, DetectImageType(data))
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	require.NoError(t, err)
	require.Equal(t, MaxReferenceEdge, cfg.Width)
}

func TestFullURL(t *testing.T) {
	require.Equal(t, "https://a.com/v1/x", FullURL("https://a.com/", "/v1/x"))
	require.Equal(t, "https://a.com/?Action=Submit", FullURL("https://a.com", "?Action=Submit"))
	require.Equal(t, "https://a.com", FullURL("https://a.com", ""))
	require.Equal(t, "", FullURL("", "/v1"))
}
