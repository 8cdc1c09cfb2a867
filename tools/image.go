package tools

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/gabriel-vasile/mimetype"
	_ "golang.org/x/image/webp"
)

const (
	ImageTypePNG  ImageType = "png"
	ImageTypeJPEG ImageType = "jpeg"
	ImageTypeWEBP ImageType = "webp"
	ImageTypeGIF  ImageType = "gif"
)

type ImageType string

func (t ImageType) String() string {
	return string(t)
}

// MaxReferenceEdge is the longest edge sent to the provider as a reference image.
const MaxReferenceEdge = 2048

func DetectContentType(data []byte) string {
	return mimetype.Detect(data).String()
}

func DetectImageType(data []byte) ImageType {
	switch mimetype.Detect(data).String() {
	case "image/png":
		return ImageTypePNG
	case "image/jpeg":
		return ImageTypeJPEG
	case "image/webp":
		return ImageTypeWEBP
	case "image/gif":
		return ImageTypeGIF
	default:
		return ""
	}
}

// DecodeBase64Image accepts raw base64 or a data URI and returns the image bytes.
func DecodeBase64Image(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "data:") {
		idx := strings.Index(s, "base64,")
		if idx == -1 {
			return nil, fmt.Errorf("data uri is not base64 encoded")
		}
		s = s[idx+len("base64,"):]
	}
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		data, err = base64.RawStdEncoding.DecodeString(s)
		if err != nil {
			return nil, fmt.Errorf("decode base64 image: %w", err)
		}
	}
	if DetectImageType(data) == "" {
		return nil, fmt.Errorf("unsupported image type: %s", DetectContentType(data))
	}
	return data, nil
}

func DataURI(data []byte) string {
	return "data:" + DetectContentType(data) + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// NormalizeReferenceImage turns a remote URL, data URI or bare base64 string into a
// form the provider can embed. Oversized images are downscaled and re-encoded as JPEG.
func NormalizeReferenceImage(src string) (string, error) {
	src = strings.TrimSpace(src)
	if strings.HasPrefix(src, "http://") || strings.HasPrefix(src, "https://") {
		return src, nil
	}
	data, err := DecodeBase64Image(src)
	if err != nil {
		return "", err
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("decode image config: %w", err)
	}
	if cfg.Width <= MaxReferenceEdge && cfg.Height <= MaxReferenceEdge {
		return DataURI(data), nil
	}
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return "", fmt.Errorf("decode image: %w", err)
	}
	if cfg.Width >= cfg.Height {
		img = imaging.Resize(img, MaxReferenceEdge, 0, imaging.Lanczos)
	} else {
		img = imaging.Resize(img, 0, MaxReferenceEdge, imaging.Lanczos)
	}
	var buf bytes.Buffer
	if err = imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(90)); err != nil {
		return "", fmt.Errorf("encode image: %w", err)
	}
	return DataURI(buf.Bytes()), nil
}
