package scorer

import (
	"strings"

	"github.com/devicelab-dev/tapresolver/pkg/fingerprint"
	"github.com/devicelab-dev/tapresolver/pkg/uitree"
)

// oppositeStatePairs maps an action label to the labels its control
// shows once the action has been performed. Lookup is bidirectional.
var oppositeStatePairs = map[string][]string{
	"follow":    {"following", "followed"},
	"like":      {"liked"},
	"subscribe": {"subscribed"},
	"join":      {"joined"},
	"add":       {"added"},
	"save":      {"saved"},
	"关注":        {"已关注", "互相关注"},
	"赞":         {"已赞"},
	"添加":        {"已添加"},
	"收藏":        {"已收藏"},
	"订阅":        {"已订阅"},
	"加入":        {"已加入"},
}

// isOppositeState reports whether actual is the completed-state label
// for the expected action text (or the reverse). A "已" prefix on a
// Chinese action label is recognized even for pairs not in the table.
func isOppositeState(expected, actual string) bool {
	e := strings.ToLower(strings.TrimSpace(expected))
	a := strings.ToLower(strings.TrimSpace(actual))
	if e == "" || a == "" || e == a {
		return false
	}

	for _, done := range oppositeStatePairs[e] {
		if a == done {
			return true
		}
	}
	for _, done := range oppositeStatePairs[a] {
		if e == done {
			return true
		}
	}

	if strings.TrimPrefix(a, "已") == e && a != e {
		return true
	}
	if strings.TrimPrefix(e, "已") == a && e != a {
		return true
	}
	return false
}

// oppositeState checks a candidate's text and description against the
// fingerprint and returns the offending pair when the candidate looks
// like the already-completed state of the requested action.
func oppositeState(fp *fingerprint.Fingerprint, n *uitree.Node) (bool, string, string) {
	if fp.HasText() && isOppositeState(fp.Text, n.Text) {
		return true, strings.TrimSpace(fp.Text), strings.TrimSpace(n.Text)
	}
	if fp.HasContentDesc() && isOppositeState(fp.ContentDesc, n.ContentDesc) {
		return true, strings.TrimSpace(fp.ContentDesc), strings.TrimSpace(n.ContentDesc)
	}
	return false, "", ""
}
