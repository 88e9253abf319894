package router

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/volantvm/mavproxy/internal/mavproxy/endpoint"
)

type fakeRunner struct {
	output string
	err    error
	panics bool
	calls  int
	argv   [][]string
}

func (f *fakeRunner) Output(_ context.Context, name string, args ...string) ([]byte, error) {
	f.calls++
	f.argv = append(f.argv, append([]string{name}, args...))
	if f.panics {
		panic("probe exploded")
	}
	if f.err != nil {
		return nil, f.err
	}
	return []byte(f.output), nil
}

func foundAt(path string) func(string) (string, error) {
	return func(string) (string, error) { return path, nil }
}

func notFound(file string) (string, error) {
	return "", &exec.Error{Name: file, Err: exec.ErrNotFound}
}

func mustParse(t *testing.T, name, s string) endpoint.Endpoint {
	t.Helper()
	e, err := endpoint.Parse(name, s)
	if err != nil {
		t.Fatalf("parse %q: %v", s, err)
	}
	return e
}

func TestVersionReturnsDigitsOnly(t *testing.T) {
	runner := &fakeRunner{output: "mavlink-routerd version 5\n"}
	r := NewMAVLinkRouter(Options{LookPath: foundAt("/usr/bin/mavlink-routerd"), Runner: runner})

	version, ok, err := r.Version(context.Background())
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if !ok || version != "5" {
		t.Fatalf("expected version 5, got %q (ok=%v)", version, ok)
	}
	if len(runner.argv) != 1 || runner.argv[0][0] != "/usr/bin/mavlink-routerd" || runner.argv[0][1] != "--version" {
		t.Fatalf("unexpected probe invocation: %v", runner.argv)
	}
}

func TestVersionIsMemoized(t *testing.T) {
	runner := &fakeRunner{output: "mavlink-routerd version 4\n"}
	r := NewMAVLinkRouter(Options{LookPath: foundAt("/usr/bin/mavlink-routerd"), Runner: runner})
	for i := 0; i < 3; i++ {
		if _, _, err := r.Version(context.Background()); err != nil {
			t.Fatalf("version: %v", err)
		}
	}
	if runner.calls != 1 {
		t.Fatalf("expected a single probe, got %d", runner.calls)
	}
}

func TestVersionAbsentWithoutVersionLine(t *testing.T) {
	runner := &fakeRunner{output: "usage: mavlink-routerd [OPTIONS...]\n"}
	r := NewMAVLinkRouter(Options{LookPath: foundAt("/usr/bin/mavlink-routerd"), Runner: runner})
	_, ok, err := r.Version(context.Background())
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if ok {
		t.Fatalf("expected absent version")
	}
}

func TestVersionAbsentWhenNotInstalled(t *testing.T) {
	runner := &fakeRunner{output: "mavlink-routerd version 5\n"}
	r := NewMAVLinkRouter(Options{LookPath: notFound, Runner: runner})
	_, ok, err := r.Version(context.Background())
	if err != nil || ok {
		t.Fatalf("expected absent version without error, got ok=%v err=%v", ok, err)
	}
	if runner.calls != 0 {
		t.Fatalf("probe must not run without a binary")
	}
}

func TestVersionPropagatesExecutionFailure(t *testing.T) {
	runner := &fakeRunner{err: errors.New("permission denied")}
	r := NewMAVLinkRouter(Options{LookPath: foundAt("/usr/bin/mavlink-routerd"), Runner: runner})
	if _, _, err := r.Version(context.Background()); err == nil {
		t.Fatalf("expected probe failure to propagate")
	}
}

func TestVersionRejectsUndecodableOutput(t *testing.T) {
	runner := &fakeRunner{output: "version 5 \xff\xfe"}
	r := NewMAVLinkRouter(Options{LookPath: foundAt("/usr/bin/mavlink-routerd"), Runner: runner})
	if _, _, err := r.Version(context.Background()); !errors.Is(err, ErrUndecodableOutput) {
		t.Fatalf("expected ErrUndecodableOutput, got %v", err)
	}
}

func TestIsOk(t *testing.T) {
	cases := []struct {
		name     string
		lookPath func(string) (string, error)
		runner   *fakeRunner
		want     bool
	}{
		{"healthy", foundAt("/usr/bin/mavlink-routerd"), &fakeRunner{output: "mavlink-routerd version 5\n"}, true},
		{"not installed", notFound, &fakeRunner{output: "mavlink-routerd version 5\n"}, false},
		{"no version", foundAt("/usr/bin/mavlink-routerd"), &fakeRunner{output: "hello\n"}, false},
		{"probe error", foundAt("/usr/bin/mavlink-routerd"), &fakeRunner{err: errors.New("exec format error")}, false},
		{"probe panic", foundAt("/usr/bin/mavlink-routerd"), &fakeRunner{panics: true}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := NewMAVLinkRouter(Options{LookPath: tc.lookPath, Runner: tc.runner})
			if got := r.IsOk(context.Background()); got != tc.want {
				t.Fatalf("IsOk = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestMAVLinkRouterAssembleCommand(t *testing.T) {
	r := NewMAVLinkRouter(Options{
		LookPath: foundAt("/usr/bin/mavlink-routerd"),
		Runner:   &fakeRunner{output: "mavlink-routerd version 5\n"},
		LogDir:   "/var/logs/router",
	})
	for _, sub := range []endpoint.Endpoint{
		mustParse(t, "gcs-1", "udp_client:192.168.1.10:14551"),
		mustParse(t, "gcs-2", "udp_client:192.168.1.11:14551"),
	} {
		if err := r.AddEndpoint(sub); err != nil {
			t.Fatalf("add endpoint: %v", err)
		}
	}

	cmd, err := r.AssembleCommand(mustParse(t, "master", "udp_server:0.0.0.0:14550"))
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	want := "/usr/bin/mavlink-routerd 0.0.0.0:14550 --log /var/logs/router --endpoint 192.168.1.10:14551 --endpoint 192.168.1.11:14551"
	if got := cmd.String(); got != want {
		t.Fatalf("unexpected command:\n got %q\nwant %q", got, want)
	}

	again, err := r.AssembleCommand(mustParse(t, "master", "udp_server:0.0.0.0:14550"))
	if err != nil {
		t.Fatalf("assemble again: %v", err)
	}
	if again.String() != want {
		t.Fatalf("assembly is not deterministic: %q", again.String())
	}
}

func TestAssemblePreservesOrderAndDuplicates(t *testing.T) {
	r := NewMAVLinkRouter(Options{LookPath: foundAt("/bin/mr"), LogDir: "/logs"})
	for _, sub := range []endpoint.Endpoint{
		mustParse(t, "c", "udp_client:10.0.0.3:1"),
		mustParse(t, "a", "udp_client:10.0.0.1:1"),
		mustParse(t, "a-again", "udp_client:10.0.0.1:1"),
		mustParse(t, "b", "serial:/dev/ttyUSB0:57600"),
	} {
		if err := r.AddEndpoint(sub); err != nil {
			t.Fatalf("add endpoint: %v", err)
		}
	}
	cmd, err := r.AssembleCommand(mustParse(t, "m", "serial:/dev/ttyACM0:115200"))
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	want := []string{
		"/dev/ttyACM0:115200", "--log", "/logs",
		"--endpoint", "10.0.0.3:1",
		"--endpoint", "10.0.0.1:1",
		"--endpoint", "10.0.0.1:1",
		"--endpoint", "/dev/ttyUSB0:57600",
	}
	if len(cmd.Args) != len(want) {
		t.Fatalf("unexpected args: %v", cmd.Args)
	}
	for i := range want {
		if cmd.Args[i] != want[i] {
			t.Fatalf("arg %d: got %q want %q (all: %v)", i, cmd.Args[i], want[i], cmd.Args)
		}
	}
}

func TestMAVLinkRouterMasterTypes(t *testing.T) {
	r := NewMAVLinkRouter(Options{LookPath: foundAt("/bin/mr"), LogDir: "/logs"})
	masters := map[string]bool{
		"udp_server:0.0.0.0:14550":   true,
		"udp_client:10.0.0.1:14550":  true,
		"serial:/dev/ttyACM0:115200": true,
		"tcp_server:0.0.0.0:5760":    false,
		"tcp_client:10.0.0.1:5760":   false,
	}
	for s, ok := range masters {
		_, err := r.AssembleCommand(mustParse(t, "m", s))
		if ok && err != nil {
			t.Fatalf("%s: unexpected error %v", s, err)
		}
		if !ok && !errors.Is(err, ErrUnsupportedEndpoint) {
			t.Fatalf("%s: expected ErrUnsupportedEndpoint, got %v", s, err)
		}
	}
}

func TestAssembleRequiresBinary(t *testing.T) {
	r := NewMAVLinkRouter(Options{LookPath: notFound})
	if _, err := r.AssembleCommand(mustParse(t, "m", "udp_server:0.0.0.0:14550")); !errors.Is(err, ErrNotInstalled) {
		t.Fatalf("expected ErrNotInstalled, got %v", err)
	}
}

func TestEndpointManagement(t *testing.T) {
	r := NewMAVLinkRouter(Options{LookPath: foundAt("/bin/mr")})
	if r.ValidateEndpoint(mustParse(t, "t", "tcp_server:0.0.0.0:5760")) {
		t.Fatalf("tcp endpoints are not routable by mavlink-routerd")
	}
	if err := r.AddEndpoint(mustParse(t, "t", "tcp_server:0.0.0.0:5760")); !errors.Is(err, ErrUnsupportedEndpoint) {
		t.Fatalf("expected ErrUnsupportedEndpoint, got %v", err)
	}
	gcs := mustParse(t, "gcs", "udp_client:10.0.0.1:14550")
	if err := r.AddEndpoint(gcs); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := r.AddEndpoint(gcs); !errors.Is(err, ErrDuplicateEndpoint) {
		t.Fatalf("expected ErrDuplicateEndpoint, got %v", err)
	}
	listed := r.Endpoints()
	listed[0].Place = "mutated"
	if r.Endpoints()[0].Place != "10.0.0.1" {
		t.Fatalf("Endpoints must return a copy")
	}
	if err := r.RemoveEndpoint("gcs"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := r.RemoveEndpoint("gcs"); !errors.Is(err, ErrEndpointNotFound) {
		t.Fatalf("expected ErrEndpointNotFound, got %v", err)
	}
}

func TestMAVP2PAssembleCommand(t *testing.T) {
	r := NewMAVP2P(Options{LookPath: foundAt("/usr/bin/mavp2p")})
	for _, sub := range []endpoint.Endpoint{
		mustParse(t, "a", "udp_client:192.168.2.1:14550"),
		mustParse(t, "b", "tcp_server:0.0.0.0:5760"),
	} {
		if err := r.AddEndpoint(sub); err != nil {
			t.Fatalf("add endpoint: %v", err)
		}
	}
	cmd, err := r.AssembleCommand(mustParse(t, "m", "serial:/dev/ttyACM0:115200"))
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	want := "/usr/bin/mavp2p serial:/dev/ttyACM0:115200 udpc:192.168.2.1:14550 tcps:0.0.0.0:5760"
	if cmd.String() != want {
		t.Fatalf("unexpected command:\n got %q\nwant %q", cmd.String(), want)
	}
}

func TestMAVP2PVersion(t *testing.T) {
	r := NewMAVP2P(Options{LookPath: foundAt("/usr/bin/mavp2p"), Runner: &fakeRunner{output: "mavp2p v1.2.3\n"}})
	version, ok, err := r.Version(context.Background())
	if err != nil || !ok || version != "1.2.3" {
		t.Fatalf("unexpected version %q ok=%v err=%v", version, ok, err)
	}
}

func TestBinaryLookupOrder(t *testing.T) {
	dir := t.TempDir()
	searched := filepath.Join(dir, "mavlink-routerd")
	if err := os.WriteFile(searched, []byte("#!/bin/sh\n"), 0o755); err != nil {
		t.Fatalf("write binary: %v", err)
	}
	notExec := filepath.Join(dir, "plain")
	if err := os.WriteFile(notExec, nil, 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	r := NewMAVLinkRouter(Options{SearchPaths: []string{t.TempDir(), dir}, LookPath: foundAt("/usr/bin/mavlink-routerd")})
	if path, ok := r.Binary(); !ok || path != searched {
		t.Fatalf("search path should win over $PATH, got %q (ok=%v)", path, ok)
	}

	r = NewMAVLinkRouter(Options{SearchPaths: []string{t.TempDir()}, LookPath: foundAt("/usr/bin/mavlink-routerd")})
	if path, ok := r.Binary(); !ok || path != "/usr/bin/mavlink-routerd" {
		t.Fatalf("expected $PATH fallback, got %q (ok=%v)", path, ok)
	}

	r = NewMAVLinkRouter(Options{BinaryPath: notExec, SearchPaths: []string{dir}, LookPath: foundAt("/usr/bin/mavlink-routerd")})
	if _, ok := r.Binary(); ok {
		t.Fatalf("non-executable override must not resolve")
	}
}
