package gateway

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notification-engine/internal/logging"
)

type stubProvider struct {
	name    string
	lastMsg string
	lastTo  string
	resp    string
	err     error
}

func (p *stubProvider) Name() string { return p.name }

func (p *stubProvider) Send(ctx context.Context, target, message string) (string, error) {
	p.lastTo = target
	p.lastMsg = message
	return p.resp, p.err
}

func TestNormalizeTarget(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"081234567890", "6281234567890"},
		{"81234567890", "6281234567890"},
		{"6281234567890", "6281234567890"},
		{"+62 812-3456-7890", "6281234567890"},
		{"0812 3456 7890", "6281234567890"},
		{"group:duty-ops", "group:duty-ops"},
		{"120363041234567890-1614@g.us", "120363041234567890-1614@g.us"},
		{"12025550123", "12025550123"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeTarget(tt.in))
		})
	}
}

func TestValidateTarget(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"081234567890", true},
		{"6281234567890", true},
		{"+62 812-3456-7890", true},
		{"group:duty-ops", true},
		{"group:", false},
		{"120363041234567890-1614@g.us", true},
		{"bad@g.us", false},
		{"", false},
		{"12025550123", false},
		{"62712345678", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ValidateTarget(tt.in))
		})
	}
}

func TestIsGroupTarget(t *testing.T) {
	assert.True(t, IsGroupTarget("group:duty-ops"))
	assert.True(t, IsGroupTarget("120363041234567890-1614@g.us"))
	assert.False(t, IsGroupTarget("081234567890"))
}

func TestAdapterSendNormalizesBeforeProvider(t *testing.T) {
	p := &stubProvider{name: "http", resp: "msg-1"}
	a := NewAdapter(p, logging.NewNop(), true)

	out := a.Send(context.Background(), "081234567890", "hello")

	require.True(t, out.Success)
	assert.Equal(t, "http", out.Provider)
	assert.Equal(t, "msg-1", out.ProviderResponse)
	assert.Equal(t, "6281234567890", p.lastTo)
	assert.Equal(t, "hello", p.lastMsg)
}

func TestAdapterDisabledShortCircuits(t *testing.T) {
	p := &stubProvider{name: "http"}
	a := NewAdapter(p, logging.NewNop(), false)

	out := a.Send(context.Background(), "081234567890", "hello")

	assert.True(t, out.Success)
	assert.True(t, out.Disabled)
	assert.Empty(t, p.lastTo, "provider must not be called while disabled")
}

func TestAdapterNilProviderDisables(t *testing.T) {
	a := NewAdapter(nil, logging.NewNop(), true)

	assert.False(t, a.Enabled())
	out := a.Send(context.Background(), "081234567890", "hello")
	assert.True(t, out.Success)
	assert.True(t, out.Disabled)
}

func TestAdapterInvalidTarget(t *testing.T) {
	p := &stubProvider{name: "http"}
	a := NewAdapter(p, logging.NewNop(), true)

	out := a.Send(context.Background(), "not a number", "hello")

	assert.False(t, out.Success)
	assert.ErrorIs(t, out.Err, ErrInvalidTarget)
	assert.Empty(t, p.lastTo)
}

func TestTwilioRejectsGroupTarget(t *testing.T) {
	p := NewTwilioProvider("AC123", "token", "+15550100")

	_, err := p.Send(context.Background(), "120363041234567890-1614@g.us", "hello")

	assert.ErrorIs(t, err, ErrInvalidTarget)
}

func TestAdapterProviderErrorCaptured(t *testing.T) {
	p := &stubProvider{name: "twilio", err: fmt.Errorf("upstream 503")}
	a := NewAdapter(p, logging.NewNop(), true)

	out := a.Send(context.Background(), "6281234567890", "hello")

	assert.False(t, out.Success)
	assert.Equal(t, "twilio", out.Provider)
	assert.EqualError(t, out.Err, "upstream 503")
}
