package main

import (
	"encoding/base64"
	"os"
	"testing"

	"github.com/spf13/cobra"

	"github.com/snapmark/snapmark/internal/protocol"
)

func parseWindowFlags(t *testing.T, args ...string) (*windowFlags, *cobra.Command) {
	t.Helper()
	flags := &windowFlags{}
	cmd := &cobra.Command{Use: "test"}
	flags.register(cmd)
	if err := cmd.ParseFlags(args); err != nil {
		t.Fatalf("parse flags: %v", err)
	}
	return flags, cmd
}

func TestRequestOmitsUnsetFlags(t *testing.T) {
	flags, cmd := parseWindowFlags(t)

	req, err := flags.request(cmd, "/tmp/shot.png")
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if req.Filename != "/tmp/shot.png" {
		t.Errorf("want filename kept, got %q", req.Filename)
	}
	if req.OutputFilename != nil || req.Fullscreen != nil || req.CornerRoundness != nil {
		t.Error("unset flags must stay nil so the daemon config wins")
	}
}

func TestRequestCarriesChangedFlags(t *testing.T) {
	flags, cmd := parseWindowFlags(t,
		"--output-filename", "/tmp/out.png",
		"--fullscreen",
		"--corner-roundness", "3.5",
		"--initial-tool", "arrow",
	)

	req, err := flags.request(cmd, "/tmp/shot.png")
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if req.OutputFilename == nil || *req.OutputFilename != "/tmp/out.png" {
		t.Errorf("want output filename carried, got %v", req.OutputFilename)
	}
	if req.Fullscreen == nil || !*req.Fullscreen {
		t.Errorf("want fullscreen=true, got %v", req.Fullscreen)
	}
	if req.CornerRoundness == nil || *req.CornerRoundness != 3.5 {
		t.Errorf("want corner roundness 3.5, got %v", req.CornerRoundness)
	}
	if req.InitialTool == nil || *req.InitialTool != "arrow" {
		t.Errorf("want tool arrow, got %v", req.InitialTool)
	}
}

func TestRequestRejectsUnknownTool(t *testing.T) {
	flags, cmd := parseWindowFlags(t, "--initial-tool", "chainsaw")
	if _, err := flags.request(cmd, "/tmp/shot.png"); err == nil {
		t.Fatal("expected unknown tool error")
	}
}

func TestInitToolAlias(t *testing.T) {
	flags, cmd := parseWindowFlags(t, "--init-tool", "blur")

	req, err := flags.request(cmd, "/tmp/shot.png")
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if req.InitialTool == nil || *req.InitialTool != "blur" {
		t.Errorf("want tool blur via alias, got %v", req.InitialTool)
	}
}

func TestReadStdinPayloadFromPipe(t *testing.T) {
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	payload := []byte{0x89, 'P', 'N', 'G'}
	go func() {
		w.Write(payload)
		w.Close()
	}()

	got, err := readStdinPayload(r)
	if err != nil {
		t.Fatalf("read payload: %v", err)
	}
	if want := base64.StdEncoding.EncodeToString(payload); got != want {
		t.Errorf("want %q, got %q", want, got)
	}
}

func TestReadStdinPayloadRejectsEmpty(t *testing.T) {
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	w.Close()

	if _, err := readStdinPayload(r); err == nil {
		t.Fatal("expected error for empty stdin")
	}
}

func TestSentinelRequestCarriesPayload(t *testing.T) {
	flags, cmd := parseWindowFlags(t)

	// The sentinel path reads the process stdin; point it at a pipe.
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	oldStdin := os.Stdin
	os.Stdin = r
	defer func() { os.Stdin = oldStdin }()
	go func() {
		w.Write([]byte("image-bytes"))
		w.Close()
	}()

	req, err := flags.request(cmd, protocol.StdinSentinel)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if req.InlinePayload == nil {
		t.Fatal("want inline payload set for sentinel filename")
	}
	if err := req.Validate(); err != nil {
		t.Errorf("sentinel request with payload must validate, got %v", err)
	}
}
