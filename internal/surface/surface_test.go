package surface

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/1broseidon/winbridge/internal/ipc"
)

type recordingSurface struct {
	pushes []string
	err    error
}

func (r *recordingSurface) Show() error                           { return nil }
func (r *recordingSurface) ShowInactive() error                   { return nil }
func (r *recordingSurface) Close() error                          { return nil }
func (r *recordingSurface) LoadURL(context.Context, string) error { return nil }
func (r *recordingSurface) OnDestroyed(func())                    {}
func (r *recordingSurface) SendToContent(channel string, args ...any) error {
	r.pushes = append(r.pushes, channel)
	return r.err
}

type recordingSink struct {
	channel string
	args    []any
}

func (s *recordingSink) Emit(channel string, args ...any) error {
	s.channel = channel
	s.args = args
	return nil
}

func TestParseID(t *testing.T) {
	id, err := ParseID("17")
	if err != nil {
		t.Fatalf("ParseID: %v", err)
	}
	if id != 17 || id.String() != "17" {
		t.Fatalf("got %v", id)
	}
	for _, bad := range []string{"", "0", "-1", "abc", "1.5"} {
		if _, err := ParseID(bad); err == nil {
			t.Fatalf("ParseID(%q) should fail", bad)
		}
	}
}

func TestTopLevelDropsPushWithoutSurface(t *testing.T) {
	var top TopLevel
	delivered, err := top.SendToContent("1_closed")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if delivered {
		t.Fatalf("push should be dropped with no top-level surface")
	}
}

func TestTopLevelDelivers(t *testing.T) {
	var top TopLevel
	s := &recordingSurface{}
	top.Set(s)

	delivered, err := top.SendToContent("3_message", "hi")
	if err != nil || !delivered {
		t.Fatalf("delivered=%v err=%v", delivered, err)
	}
	if !reflect.DeepEqual(s.pushes, []string{"3_message"}) {
		t.Fatalf("pushes = %v", s.pushes)
	}

	s.err = errors.New("gone")
	if _, err := top.SendToContent("3_closed"); err == nil {
		t.Fatalf("expected surface error to propagate")
	}
}

func TestTopLevelClearIf(t *testing.T) {
	var top TopLevel
	a, b := &recordingSurface{}, &recordingSurface{}
	top.Set(a)

	if top.ClearIf(b) {
		t.Fatalf("ClearIf should not remove a different surface")
	}
	if got, _ := top.Get(); got != a {
		t.Fatalf("top-level changed")
	}
	if !top.ClearIf(a) {
		t.Fatalf("ClearIf should remove the current surface")
	}
	if _, ok := top.Get(); ok {
		t.Fatalf("top-level still set")
	}
	if top.ClearIf(nil) {
		t.Fatalf("ClearIf(nil) on empty holder should report false")
	}
}

func TestBridgeRedirectsPushes(t *testing.T) {
	inner := &recordingSurface{}
	sink := &recordingSink{}
	s := Bridge(inner, sink)

	if err := s.SendToContent("5_message", "a", uint64(2)); err != nil {
		t.Fatalf("SendToContent: %v", err)
	}
	if len(inner.pushes) != 0 {
		t.Fatalf("inner surface should not see bridged pushes")
	}
	if sink.channel != "5_message" || len(sink.args) != 2 {
		t.Fatalf("sink got %q %v", sink.channel, sink.args)
	}
}

func TestOptionsDefaultsAndValidation(t *testing.T) {
	opts := Defaults{Width: 800, Height: 600}.Apply(Options{Height: 300})
	if opts.Width != 800 || opts.Height != 300 {
		t.Fatalf("Apply = %dx%d", opts.Width, opts.Height)
	}
	if !opts.ShouldShow() {
		t.Fatalf("show should default to true")
	}
	hidden := false
	opts.Show = &hidden
	if opts.ShouldShow() {
		t.Fatalf("explicit show=false ignored")
	}

	sandbox := true
	tests := []struct {
		name    string
		opts    Options
		wantErr bool
	}{
		{name: "zero", opts: Options{}},
		{name: "negative", opts: Options{Width: -1}, wantErr: true},
		{name: "too large", opts: Options{Height: maxDimension + 1}, wantErr: true},
		{name: "node in sandbox", opts: Options{Isolation: &IsolationOptions{NodeIntegration: true, Sandbox: &sandbox}}, wantErr: true},
		{name: "node unsandboxed", opts: Options{Isolation: &IsolationOptions{NodeIntegration: true}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.opts.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() err=%v wantErr=%v", err, tt.wantErr)
			}
		})
	}
}

func TestCollectExtra(t *testing.T) {
	opts := Options{Extra: map[string]any{"kiosk": false}}
	CollectExtra(&opts, map[string]any{
		"width":      uint64(10),
		"kiosk":      true,
		"background": "#000",
		"frame":      false,
	})
	if got := opts.ExtraKeys(); !reflect.DeepEqual(got, []string{"background", "frame", "kiosk"}) {
		t.Fatalf("ExtraKeys = %v", got)
	}
	if opts.Extra["kiosk"] != false {
		t.Fatalf("explicit extra value overwritten")
	}
	if _, ok := opts.Extra["width"]; ok {
		t.Fatalf("known key leaked into Extra")
	}
}

func TestErrorsCarryCodes(t *testing.T) {
	tests := []struct {
		err  error
		code ipc.Code
	}{
		{ErrConstruction, ipc.CodeConstruction},
		{ErrStaleIdentity, ipc.CodeStaleIdentity},
		{ErrRelay, ipc.CodeRelay},
	}
	for _, tt := range tests {
		var e *ipc.Error
		if !errors.As(tt.err, &e) || e.Code != tt.code {
			t.Fatalf("%v: code = %v, want %v", tt.err, e, tt.code)
		}
	}
	var e *ipc.Error
	if errors.As(ErrUseAfterClose, &e) {
		t.Fatalf("ErrUseAfterClose must stay local")
	}
}
