package cmd

import (
	"os"
	"testing"
)

func TestValidateAddr(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		addr    string
		wantErr bool
	}{
		{name: "port only", addr: ":8080", wantErr: false},
		{name: "localhost", addr: "localhost:8080", wantErr: false},
		{name: "ipv4", addr: "127.0.0.1:9000", wantErr: false},
		{name: "hostname", addr: "api.example.com:443", wantErr: false},
		{name: "auto assign port", addr: ":0", wantErr: false},
		{name: "missing port", addr: "localhost", wantErr: true},
		{name: "empty port", addr: "localhost:", wantErr: true},
		{name: "non numeric port", addr: ":http", wantErr: true},
		{name: "port out of range", addr: ":70000", wantErr: true},
		{name: "negative port", addr: ":-1", wantErr: true},
		{name: "empty", addr: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := validateAddr(tt.addr)
			if (err != nil) != tt.wantErr {
				t.Errorf("validateAddr(%q) error = %v, wantErr %v", tt.addr, err, tt.wantErr)
			}
		})
	}
}

func TestParseServeAddr(t *testing.T) {
	origArgs := os.Args
	defer func() { os.Args = origArgs }()

	tests := []struct {
		name    string
		args    []string
		want    string
		wantErr bool
	}{
		{name: "default", args: []string{"innofolio", "serve"}, want: ":8080"},
		{name: "positional", args: []string{"innofolio", "serve", ":9090"}, want: ":9090"},
		{name: "flag", args: []string{"innofolio", "serve", "--addr", "localhost:7000"}, want: "localhost:7000"},
		{name: "single dash flag", args: []string{"innofolio", "serve", "-addr", ":3000"}, want: ":3000"},
		{name: "invalid positional", args: []string{"innofolio", "serve", "nonsense"}, wantErr: true},
		{name: "invalid flag value", args: []string{"innofolio", "serve", "--addr", ":badport"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Args = tt.args
			got, err := parseServeAddr(":8080")
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseServeAddr() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("parseServeAddr() = %q, want %q", got, tt.want)
			}
		})
	}
}
