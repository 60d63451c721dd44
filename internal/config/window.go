package config

import (
	"github.com/snapmark/snapmark/internal/protocol"
)

// WindowConfig is the fully-resolved configuration for a single annotation
// window. It is built once by merging the global defaults with whatever
// overrides the request carried, then owned exclusively by that window's
// session. Nothing mutates it after creation and no two sessions share one.
type WindowConfig struct {
	InputFilename        string
	OutputFilename       string
	CopyCommand          string
	InitialTool          Tool
	Fullscreen           bool
	EarlyExit            bool
	CornerRoundness      float64
	AnnotationSizeFactor float64
	DefaultHideToolbars  bool
	NoWindowDecoration   bool
}

// DeriveWindow merges global defaults with the request's overrides: a field
// present on the request wins, an absent field inherits the global value.
// Unknown tool names fall back to the global initial tool.
func DeriveWindow(cfg Config, req protocol.Request) WindowConfig {
	w := windowFromGlobal(cfg)
	w.InputFilename = req.Filename

	if req.OutputFilename != nil {
		w.OutputFilename = *req.OutputFilename
	}
	if req.CopyCommand != nil {
		w.CopyCommand = *req.CopyCommand
	}
	if req.InitialTool != nil {
		if tool, ok := ParseTool(*req.InitialTool); ok {
			w.InitialTool = tool
		}
	}
	if req.Fullscreen != nil {
		w.Fullscreen = *req.Fullscreen
	}
	if req.EarlyExit != nil {
		w.EarlyExit = *req.EarlyExit
	}
	if req.CornerRoundness != nil {
		w.CornerRoundness = *req.CornerRoundness
	}
	if req.AnnotationSizeFactor != nil {
		w.AnnotationSizeFactor = *req.AnnotationSizeFactor
	}
	if req.DefaultHideToolbars != nil {
		w.DefaultHideToolbars = *req.DefaultHideToolbars
	}
	if req.NoWindowDecoration != nil {
		w.NoWindowDecoration = *req.NoWindowDecoration
	}
	return w
}

// StandaloneWindow resolves a window configuration for the cold-start path,
// where there is no request and the input filename comes straight from the
// command line.
func StandaloneWindow(cfg Config, inputFilename string) WindowConfig {
	w := windowFromGlobal(cfg)
	w.InputFilename = inputFilename
	return w
}

func windowFromGlobal(cfg Config) WindowConfig {
	tool, ok := ParseTool(cfg.General.InitialTool)
	if !ok {
		tool = ToolPointer
	}
	return WindowConfig{
		OutputFilename:       cfg.General.OutputFilename,
		CopyCommand:          cfg.General.CopyCommand,
		InitialTool:          tool,
		Fullscreen:           cfg.General.Fullscreen,
		EarlyExit:            cfg.General.EarlyExit,
		CornerRoundness:      cfg.General.CornerRoundness,
		AnnotationSizeFactor: cfg.General.AnnotationSizeFactor,
		DefaultHideToolbars:  cfg.General.DefaultHideToolbars,
		NoWindowDecoration:   cfg.General.NoWindowDecoration,
	}
}
