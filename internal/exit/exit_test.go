package exit

import (
	"errors"
	"fmt"
	"testing"

	"github.com/yourusername/pvemap/internal/proxmox"
)

func TestFromError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"config", &proxmox.ConfigurationError{Field: "server", Msg: "required"}, CodeConfig},
		{"auth", &proxmox.AuthenticationError{StatusCode: 401}, CodeAuth},
		{"wrapped auth", fmt.Errorf("cluster lab: %w", &proxmox.AuthenticationError{StatusCode: 401}), CodeAuth},
		{"collection", &proxmox.CollectionError{Path: "/nodes", StatusCode: 500}, CodeCollection},
		{"plain", errors.New("boom"), CodeConfig},
		{"explicit", New(7, errors.New("custom")), 7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var exitErr *Error
			if !errors.As(FromError(tt.err), &exitErr) {
				t.Fatalf("expected *Error")
			}
			if exitErr.Code != tt.want {
				t.Fatalf("code=%d, want %d", exitErr.Code, tt.want)
			}
			if exitErr.Error() != tt.err.Error() {
				t.Fatalf("message changed: %q", exitErr.Error())
			}
		})
	}

	if FromError(nil) != nil {
		t.Fatalf("nil must stay nil")
	}
}
