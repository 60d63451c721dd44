package main

import (
	"encoding/base64"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/snapmark/snapmark/internal/config"
	"github.com/snapmark/snapmark/internal/protocol"
)

// windowFlags carries the per-window override flags shared by the root and
// show commands. Only flags the user actually set make it onto the request,
// so unset flags inherit the daemon's own configuration.
type windowFlags struct {
	filename             string
	outputFilename       string
	copyCommand          string
	initialTool          string
	initToolAlias        string
	fullscreen           bool
	earlyExit            bool
	cornerRoundness      float64
	annotationSizeFactor float64
	defaultHideToolbars  bool
	noWindowDecoration   bool
}

func (w *windowFlags) register(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVarP(&w.filename, "filename", "f", "", "Path of the image to annotate, or - for stdin")
	f.StringVarP(&w.outputFilename, "output-filename", "o", "", "Where to save the annotated image")
	f.StringVar(&w.copyCommand, "copy-command", "", "Command piped the image on copy")
	f.StringVar(&w.initialTool, "initial-tool", "", "Tool selected at startup")
	f.StringVar(&w.initToolAlias, "init-tool", "", "Tool selected at startup")
	f.BoolVar(&w.fullscreen, "fullscreen", false, "Open the window fullscreen")
	f.BoolVar(&w.earlyExit, "early-exit", false, "Exit after the first save or copy")
	f.Float64Var(&w.cornerRoundness, "corner-roundness", 0, "Rectangle corner roundness")
	f.Float64Var(&w.annotationSizeFactor, "annotation-size-factor", 0, "Scale factor for annotations")
	f.BoolVarP(&w.defaultHideToolbars, "default-hide-toolbars", "d", false, "Start with toolbars hidden")
	f.BoolVar(&w.noWindowDecoration, "no-window-decoration", false, "Open without window decoration")
	f.Lookup("init-tool").Hidden = true
}

// request builds the wire request from the flags the user changed.
func (w *windowFlags) request(cmd *cobra.Command, filename string) (protocol.Request, error) {
	req := protocol.NewRequest(filename)
	f := cmd.Flags()

	if f.Changed("output-filename") {
		req.OutputFilename = &w.outputFilename
	}
	if f.Changed("copy-command") {
		req.CopyCommand = &w.copyCommand
	}
	if tool, changed := w.tool(cmd); changed {
		if _, ok := config.ParseTool(tool); !ok {
			return req, fmt.Errorf("unknown tool %q", tool)
		}
		req.InitialTool = &tool
	}
	if f.Changed("fullscreen") {
		req.Fullscreen = &w.fullscreen
	}
	if f.Changed("early-exit") {
		req.EarlyExit = &w.earlyExit
	}
	if f.Changed("corner-roundness") {
		req.CornerRoundness = &w.cornerRoundness
	}
	if f.Changed("annotation-size-factor") {
		req.AnnotationSizeFactor = &w.annotationSizeFactor
	}
	if f.Changed("default-hide-toolbars") {
		req.DefaultHideToolbars = &w.defaultHideToolbars
	}
	if f.Changed("no-window-decoration") {
		req.NoWindowDecoration = &w.noWindowDecoration
	}

	if filename == protocol.StdinSentinel {
		payload, err := readStdinPayload(os.Stdin)
		if err != nil {
			return req, err
		}
		req.InlinePayload = &payload
	}
	return req, nil
}

func (w *windowFlags) tool(cmd *cobra.Command) (string, bool) {
	if cmd.Flags().Changed("initial-tool") {
		return w.initialTool, true
	}
	if cmd.Flags().Changed("init-tool") {
		return w.initToolAlias, true
	}
	return "", false
}

// readStdinPayload captures image bytes from stdin for the sentinel path.
// Reading from an interactive terminal is almost certainly a mistake, so it
// is refused outright.
func readStdinPayload(stdin *os.File) (string, error) {
	if term.IsTerminal(int(stdin.Fd())) {
		return "", fmt.Errorf("stdin is a terminal; pipe image data when using - as the filename")
	}
	data, err := io.ReadAll(io.LimitReader(stdin, protocol.MaxMessageSize))
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	if len(data) == 0 {
		return "", fmt.Errorf("no image data on stdin")
	}
	return base64.StdEncoding.EncodeToString(data), nil
}
