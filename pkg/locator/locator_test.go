package locator

import (
	"errors"
	"testing"

	"github.com/devicelab-dev/tapresolver/pkg/core"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		expr    string
		wantErr bool
	}{
		{
			name: "simple attribute locator",
			expr: `//*[@resource-id="com.example:id/follow"]`,
		},
		{
			name: "indexed group",
			expr: `(//*[@text="关注"])[1]`,
		},
		{
			name: "normalize-space",
			expr: `//*[normalize-space(@text)="添加朋友"]`,
		},
		{
			name: "bracket inside string literal",
			expr: `//*[@text="[weird] label"]`,
		},
		{
			name:    "empty",
			expr:    "",
			wantErr: true,
		},
		{
			name:    "bad prefix",
			expr:    `*[@text="x"]`,
			wantErr: true,
		},
		{
			name:    "unbalanced bracket",
			expr:    `//*[@text="x"`,
			wantErr: true,
		},
		{
			name:    "stray closing paren",
			expr:    `//*[@text="x"])`,
			wantErr: true,
		},
		{
			name:    "unterminated string",
			expr:    `//*[@text="x]`,
			wantErr: true,
		},
		{
			name:    "embedded newline",
			expr:    "//*[@text=\"x\"]\n",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.expr)
			if tt.wantErr {
				if !errors.Is(err, core.ErrInvalidLocator) {
					t.Errorf("Validate(%q) = %v, want ErrInvalidLocator", tt.expr, err)
				}
				return
			}
			if err != nil {
				t.Errorf("Validate(%q) unexpected error: %v", tt.expr, err)
			}
		})
	}
}

func TestAnchorExtraction(t *testing.T) {
	expr := `//*[@resource-id="com.example:id/card"][.//*[@text="Alice"]]`

	if got := ResourceID(expr); got != "com.example:id/card" {
		t.Errorf("ResourceID = %q", got)
	}
	if got := ChildText(expr); got != "Alice" {
		t.Errorf("ChildText = %q", got)
	}
	if got := ContentDesc(expr); got != "" {
		t.Errorf("ContentDesc = %q, want empty", got)
	}
}

func TestTextAnchors(t *testing.T) {
	if got := Text(`//*[@text='关注']`); got != "关注" {
		t.Errorf("Text = %q", got)
	}
	if got := Text(`//*[@resource-id="id/x"]`); got != "" {
		t.Errorf("Text = %q, want empty", got)
	}

	attr, value := Contains(`//*[contains(@text, "添加")]`)
	if attr != "text" || value != "添加" {
		t.Errorf("Contains = (%q, %q)", attr, value)
	}

	attr, value = Contains(`//*[contains(@content-desc,'Post')]`)
	if attr != "content-desc" || value != "Post" {
		t.Errorf("Contains = (%q, %q)", attr, value)
	}
}

func TestContentDesc(t *testing.T) {
	if got := ContentDesc(`//android.widget.Button[@content-desc="关注"]`); got != "关注" {
		t.Errorf("ContentDesc = %q", got)
	}
}
