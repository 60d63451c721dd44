package daemon

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"os"

	_ "image/jpeg"
	_ "image/png"

	"github.com/snapmark/snapmark/internal/gui"
	"github.com/snapmark/snapmark/internal/protocol"
	"github.com/snapmark/snapmark/internal/security"
)

// LoadResource turns a validated request into an image resource. File-backed
// requests go through path validation first; inline requests decode the
// base64 payload the client captured from its stdin. Either way the bytes
// must sniff as a supported image format before a window is built on them.
func LoadResource(req protocol.Request) (*gui.Resource, error) {
	if req.Filename == protocol.StdinSentinel {
		return loadInline(req)
	}

	path, err := security.ValidateImagePath(req.Filename)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read image %s: %w", path, err)
	}
	cfg, err := sniffImage(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &gui.Resource{Path: path, Data: data, Width: cfg.Width, Height: cfg.Height}, nil
}

func loadInline(req protocol.Request) (*gui.Resource, error) {
	if req.InlinePayload == nil {
		return nil, &protocol.MissingFieldError{Field: "inline_payload"}
	}
	data, err := base64.StdEncoding.DecodeString(*req.InlinePayload)
	if err != nil {
		return nil, fmt.Errorf("decode inline payload: %w", err)
	}
	cfg, err := sniffImage(data)
	if err != nil {
		return nil, fmt.Errorf("inline payload: %w", err)
	}
	return &gui.Resource{Path: protocol.StdinSentinel, Data: data, Width: cfg.Width, Height: cfg.Height}, nil
}

func sniffImage(data []byte) (image.Config, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return image.Config{}, fmt.Errorf("unsupported image data: %w", err)
	}
	return cfg, nil
}
