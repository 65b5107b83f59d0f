package proxmox

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"testing"
)

// fakeRunner answers pvesh invocations from a map of path -> output
type fakeRunner struct {
	outputs map[string]string
	fail    map[string]bool
	calls   [][]string
}

func (f *fakeRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	f.calls = append(f.calls, append([]string{name}, args...))
	if len(args) < 2 {
		return nil, fmt.Errorf("unexpected args %v", args)
	}
	path := args[1]
	if f.fail[path] {
		return nil, fmt.Errorf("exit status 2: no such node")
	}
	out, ok := f.outputs[path]
	if !ok {
		return []byte("[]"), nil
	}
	return []byte(out), nil
}

func TestShellClientCollect(t *testing.T) {
	runner := &fakeRunner{
		outputs: map[string]string{
			"/nodes":           `[{"node":"pve1","status":"online"}]`,
			"/nodes/pve1/qemu": `[{"vmid":100,"name":"db"}]`,
			"/nodes/pve1/lxc":  `[{"vmid":"200","name":"web"}]`,
		},
	}
	client := NewShellClient(runner)

	mapping, err := NewCollector(client, "local", nil).Collect(context.Background())
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if got := guestIDs(mapping.Hypervisors[0]); !reflect.DeepEqual(got, []string{"100", "200"}) {
		t.Fatalf("guests=%v", got)
	}

	want := []string{"pvesh", "get", "/nodes", "--output-format", "json"}
	if !reflect.DeepEqual(runner.calls[0], want) {
		t.Fatalf("first call=%v, want %v", runner.calls[0], want)
	}
}

func TestShellClientNodeListFailure(t *testing.T) {
	runner := &fakeRunner{fail: map[string]bool{"/nodes": true}}

	_, err := NewShellClient(runner).ListNodes(context.Background())
	var collErr *CollectionError
	if !errors.As(err, &collErr) {
		t.Fatalf("expected *CollectionError, got %T: %v", err, err)
	}
	if !strings.Contains(err.Error(), "no such node") {
		t.Fatalf("error should carry command output: %v", err)
	}
}

func TestShellClientGuestFailureIsTolerated(t *testing.T) {
	runner := &fakeRunner{
		outputs: map[string]string{"/nodes": `[{"node":"pve1"}]`, "/nodes/pve1/lxc": `[{"vmid":201}]`},
		fail:    map[string]bool{"/nodes/pve1/qemu": true},
	}

	mapping, err := NewCollector(NewShellClient(runner), "local", nil).Collect(context.Background())
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if got := guestIDs(mapping.Hypervisors[0]); !reflect.DeepEqual(got, []string{"201"}) {
		t.Fatalf("guests=%v", got)
	}
}

func TestShellClientConfirmConnection(t *testing.T) {
	runner := &fakeRunner{fail: map[string]bool{"/version": true}}
	if err := NewShellClient(runner).ConfirmConnection(context.Background()); err == nil {
		t.Fatalf("expected error")
	}
}

func TestShellJoin(t *testing.T) {
	got := shellJoin("pvesh", "get", "/nodes/my node/qemu", "--output-format", "json", "it's")
	want := `pvesh get '/nodes/my node/qemu' --output-format json 'it'\''s'`
	if got != want {
		t.Fatalf("shellJoin()=%s, want %s", got, want)
	}
	if shellQuote("") != "''" {
		t.Fatalf("empty argument must be quoted")
	}
}
