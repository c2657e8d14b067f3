package scorer

import "testing"

func TestIsOppositeState(t *testing.T) {
	tests := []struct {
		name             string
		expected, actual string
		want             bool
	}{
		{"follow vs following", "follow", "following", true},
		{"follow vs followed", "follow", "followed", true},
		{"reversed direction", "followed", "follow", true},
		{"case insensitive", "Follow", "FOLLOWING", true},
		{"chinese follow", "关注", "已关注", true},
		{"chinese mutual follow", "关注", "互相关注", true},
		{"chinese prefix rule", "置顶", "已置顶", true},
		{"like vs liked", "like", "liked", true},
		{"identical is not opposite", "关注", "关注", false},
		{"unrelated labels", "关注", "设置", false},
		{"empty actual", "关注", "", false},
		{"plain containment is not opposite", "add", "add friend", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isOppositeState(tt.expected, tt.actual); got != tt.want {
				t.Errorf("isOppositeState(%q, %q) = %v, want %v", tt.expected, tt.actual, got, tt.want)
			}
		})
	}
}
