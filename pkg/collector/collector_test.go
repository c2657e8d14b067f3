package collector

import (
	"testing"

	"github.com/devicelab-dev/tapresolver/pkg/fingerprint"
	"github.com/devicelab-dev/tapresolver/pkg/uitree"
)

const feedDump = `<?xml version='1.0' encoding='UTF-8'?>
<hierarchy rotation="0">
  <android.widget.FrameLayout bounds="[0,0][1080,2340]">
    <androidx.recyclerview.widget.RecyclerView resource-id="com.example:id/feed" scrollable="true" bounds="[0,100][1080,2200]">
      <android.widget.FrameLayout resource-id="com.example:id/card" content-desc="Post by Alice" bounds="[20,120][530,800]">
        <android.widget.TextView text="Alice" bounds="[40,140][200,190]"/>
        <android.widget.Button text="关注" content-desc="关注" clickable="true" bounds="[400,140][510,200]"/>
      </android.widget.FrameLayout>
      <android.widget.FrameLayout resource-id="com.example:id/card" content-desc="Post by Bob" bounds="[550,120][1060,800]">
        <android.widget.TextView text="Bob" bounds="[570,140][730,190]"/>
        <android.widget.Button text="关注" content-desc="关注" clickable="true" bounds="[930,140][1040,200]"/>
      </android.widget.FrameLayout>
      <android.widget.TextView text="关注" content-desc="关注" bounds="[20,900][200,960]"/>
      <android.widget.TextView text="添加朋友" bounds="[42,110][293,247]"/>
    </androidx.recyclerview.widget.RecyclerView>
  </android.widget.FrameLayout>
</hierarchy>`

func mustParse(t *testing.T) *uitree.Tree {
	t.Helper()
	tree, err := uitree.Parse(feedDump)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	return tree
}

func TestDetectStrategy(t *testing.T) {
	tests := []struct {
		name string
		fp   fingerprint.Fingerprint
		want Strategy
	}{
		{
			name: "resource id locator wins",
			fp: fingerprint.Fingerprint{
				Locator:     `//*[@resource-id="com.example:id/card"]`,
				ContentDesc: "关注",
			},
			want: StrategySelfAnchor,
		},
		{
			name: "child text locator",
			fp: fingerprint.Fingerprint{
				Locator: `//android.widget.FrameLayout[.//*[@text="Alice"]]`,
			},
			want: StrategyChildDriven,
		},
		{
			name: "content desc",
			fp:   fingerprint.Fingerprint{ContentDesc: "关注"},
			want: StrategyContentDesc,
		},
		{
			name: "default text scan",
			fp:   fingerprint.Fingerprint{Text: "关注"},
			want: StrategyTextOrDesc,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DetectStrategy(&tt.fp); got != tt.want {
				t.Errorf("DetectStrategy = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCollectSelfAnchor(t *testing.T) {
	tree := mustParse(t)

	t.Run("resource id alone", func(t *testing.T) {
		fp := &fingerprint.Fingerprint{Locator: `//*[@resource-id="com.example:id/card"]`}
		cands, strategy := Collect(tree, fp)
		if strategy != StrategySelfAnchor {
			t.Fatalf("strategy = %v", strategy)
		}
		if len(cands) != 2 {
			t.Fatalf("got %d candidates, want 2", len(cands))
		}
	})

	t.Run("narrowed by child text", func(t *testing.T) {
		fp := &fingerprint.Fingerprint{
			Locator: `//*[@resource-id="com.example:id/card"][.//*[@text="Alice"]]`,
		}
		cands, _ := Collect(tree, fp)
		if len(cands) != 1 {
			t.Fatalf("got %d candidates, want 1", len(cands))
		}
		if cands[0].ContentDesc != "Post by Alice" {
			t.Errorf("wrong card: %+v", cands[0])
		}
	})

	t.Run("unknown id yields nothing", func(t *testing.T) {
		fp := &fingerprint.Fingerprint{Locator: `//*[@resource-id="com.example:id/gone"]`}
		cands, _ := Collect(tree, fp)
		if len(cands) != 0 {
			t.Errorf("got %d candidates, want 0", len(cands))
		}
	})

	t.Run("no resource id falls back to the text scan", func(t *testing.T) {
		fp := &fingerprint.Fingerprint{Text: "Alice", Locator: `//*[@text="Alice"]`}
		cands := CollectWith(tree, StrategySelfAnchor, fp)
		if len(cands) != 1 || cands[0].Text != "Alice" {
			t.Errorf("fallback failed: %+v", cands)
		}
	})
}

func TestCollectChildDriven(t *testing.T) {
	tree := mustParse(t)

	t.Run("finds the label node itself", func(t *testing.T) {
		fp := &fingerprint.Fingerprint{
			Locator: `//android.widget.FrameLayout[.//*[@text="Bob"]]`,
		}
		cands, strategy := Collect(tree, fp)
		if strategy != StrategyChildDriven {
			t.Fatalf("strategy = %v", strategy)
		}
		if len(cands) != 1 {
			t.Fatalf("got %d candidates, want 1", len(cands))
		}
		if cands[0].Text != "Bob" {
			t.Errorf("wrong candidate: %+v", cands[0])
		}
	})

	t.Run("never returns an enclosing container", func(t *testing.T) {
		fp := &fingerprint.Fingerprint{
			Locator: `//android.widget.FrameLayout[.//*[@text="Alice"]]`,
		}
		cands, _ := Collect(tree, fp)
		for _, c := range cands {
			if c.Text != "Alice" && c.ContentDesc != "Alice" {
				t.Errorf("container leaked into candidates: %+v", c)
			}
		}
		if len(cands) != 1 {
			t.Errorf("got %d candidates, want the single label node", len(cands))
		}
	})

	t.Run("falls back to own text", func(t *testing.T) {
		fp := &fingerprint.Fingerprint{
			Text:    "添加朋友",
			Locator: `//android.widget.FrameLayout[.//*[@text="Vanished"]]`,
		}
		cands, _ := Collect(tree, fp)
		if len(cands) != 1 || cands[0].Text != "添加朋友" {
			t.Errorf("fallback failed: %+v", cands)
		}
	})
}

func TestCollectContentDesc(t *testing.T) {
	tree := mustParse(t)
	fp := &fingerprint.Fingerprint{ContentDesc: "关注"}

	cands, strategy := Collect(tree, fp)
	if strategy != StrategyContentDesc {
		t.Fatalf("strategy = %v", strategy)
	}
	// Two buttons plus the plain text view all carry the description.
	if len(cands) != 3 {
		t.Fatalf("got %d candidates, want 3", len(cands))
	}
	for _, c := range cands {
		if c.ContentDesc != "关注" {
			t.Errorf("candidate without matching desc: %+v", c)
		}
	}

	t.Run("empty desc falls back to the text scan", func(t *testing.T) {
		fp := &fingerprint.Fingerprint{Text: "Alice"}
		cands := CollectWith(tree, StrategyContentDesc, fp)
		if len(cands) != 1 || cands[0].Text != "Alice" {
			t.Errorf("fallback failed: %+v", cands)
		}
	})
}

func TestCollectWithPinnedStrategy(t *testing.T) {
	tree := mustParse(t)
	// The fingerprint would auto-detect content_desc, but the caller
	// pins the default text scan instead.
	fp := &fingerprint.Fingerprint{Text: "Alice", ContentDesc: "关注"}

	if s := DetectStrategy(fp); s != StrategyContentDesc {
		t.Fatalf("strategy = %v", s)
	}
	cands := CollectWith(tree, StrategyTextOrDesc, fp)
	if len(cands) != 1 || cands[0].Text != "Alice" {
		t.Errorf("pinned scan failed: %+v", cands)
	}
}

func TestCollectTextOrDescTiers(t *testing.T) {
	tree := mustParse(t)

	t.Run("exact text tier", func(t *testing.T) {
		fp := &fingerprint.Fingerprint{Text: "Alice"}
		cands, strategy := Collect(tree, fp)
		if strategy != StrategyTextOrDesc {
			t.Fatalf("strategy = %v", strategy)
		}
		if len(cands) != 1 || cands[0].Text != "Alice" {
			t.Errorf("exact tier failed: %+v", cands)
		}
	})

	t.Run("contains tier only when exact tiers are empty", func(t *testing.T) {
		fp := &fingerprint.Fingerprint{Text: "lice"}
		cands, _ := Collect(tree, fp)
		if len(cands) != 1 || cands[0].Text != "Alice" {
			t.Errorf("contains tier failed: %+v", cands)
		}
	})

	t.Run("nothing matches", func(t *testing.T) {
		fp := &fingerprint.Fingerprint{Text: "Carol"}
		cands, _ := Collect(tree, fp)
		if len(cands) != 0 {
			t.Errorf("got %d candidates, want 0", len(cands))
		}
	})
}

func TestCollectBoundsOnly(t *testing.T) {
	tree := mustParse(t)

	t.Run("exact bounds", func(t *testing.T) {
		fp := &fingerprint.Fingerprint{Bounds: "[400,140][510,200]"}
		cands, strategy := Collect(tree, fp)
		if strategy != StrategyTextOrDesc {
			t.Fatalf("strategy = %v", strategy)
		}
		if len(cands) != 1 || cands[0].Text != "关注" {
			t.Errorf("exact bounds failed: %+v", cands)
		}
	})

	t.Run("near bounds pick the closest node", func(t *testing.T) {
		fp := &fingerprint.Fingerprint{Bounds: "[402,142][512,202]"}
		cands, _ := Collect(tree, fp)
		if len(cands) != 1 || cands[0].BoundsRaw != "[400,140][510,200]" {
			t.Errorf("geometric match failed: %+v", cands)
		}
	})

	t.Run("far bounds yield nothing", func(t *testing.T) {
		fp := &fingerprint.Fingerprint{Bounds: "[2000,3000][2010,3010]"}
		cands, _ := Collect(tree, fp)
		if len(cands) != 0 {
			t.Errorf("got %d candidates, want 0", len(cands))
		}
	})
}

func TestFilterForBatch(t *testing.T) {
	tree := mustParse(t)
	fp := &fingerprint.Fingerprint{ContentDesc: "关注"}
	cands, _ := Collect(tree, fp)

	filtered := FilterForBatch(cands)
	if len(filtered) != 2 {
		t.Fatalf("got %d candidates, want the 2 clickable buttons", len(filtered))
	}
	for _, c := range filtered {
		if !c.Clickable {
			t.Errorf("non-clickable candidate survived: %+v", c)
		}
	}

	t.Run("keeps all when nothing is clickable", func(t *testing.T) {
		fp := &fingerprint.Fingerprint{Text: "Alice"}
		cands, _ := Collect(tree, fp)
		if got := FilterForBatch(cands); len(got) != len(cands) {
			t.Errorf("filter dropped candidates without a clickable alternative")
		}
	})
}

func TestFilterForSingle(t *testing.T) {
	tree := mustParse(t)
	fp := &fingerprint.Fingerprint{ContentDesc: "关注"}
	cands, _ := Collect(tree, fp)

	t.Run("exact bounds narrows to one", func(t *testing.T) {
		got := FilterForSingle(cands, "[930, 140][1040, 200]")
		if len(got) != 1 {
			t.Fatalf("got %d candidates, want 1", len(got))
		}
		if got[0].BoundsRaw != "[930,140][1040,200]" {
			t.Errorf("wrong candidate: %+v", got[0])
		}
	})

	t.Run("unknown bounds keeps all", func(t *testing.T) {
		got := FilterForSingle(cands, "[1,1][2,2]")
		if len(got) != len(cands) {
			t.Errorf("fallback failed: %d vs %d", len(got), len(cands))
		}
	})

	t.Run("inexact bounds rank the closest candidate first", func(t *testing.T) {
		// No node sits exactly at these bounds, but the second button
		// overlaps them almost entirely.
		got := FilterForSingle(cands, "[935,145][1035,195]")
		if len(got) != len(cands) {
			t.Fatalf("got %d candidates, want %d", len(got), len(cands))
		}
		if got[0].BoundsRaw != "[930,140][1040,200]" {
			t.Errorf("closest candidate not first: %+v", got[0])
		}
	})

	t.Run("empty bounds keeps all", func(t *testing.T) {
		got := FilterForSingle(cands, "")
		if len(got) != len(cands) {
			t.Errorf("empty bounds should be a no-op")
		}
	})
}
