package resolver

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/devicelab-dev/tapresolver/pkg/config"
	"github.com/devicelab-dev/tapresolver/pkg/core"
	"github.com/devicelab-dev/tapresolver/pkg/device/mock"
	"github.com/devicelab-dev/tapresolver/pkg/executor"
	"github.com/devicelab-dev/tapresolver/pkg/fingerprint"
	"github.com/devicelab-dev/tapresolver/pkg/pathgen"
)

// feedDump is a scrollable feed with two follow buttons under card
// containers.
const feedDump = `<?xml version="1.0" encoding="UTF-8"?>
<hierarchy rotation="0">
  <node class="android.widget.FrameLayout" bounds="[0,0][1080,1920]">
    <node class="androidx.recyclerview.widget.RecyclerView" scrollable="true" bounds="[0,0][1080,1800]">
      <node class="android.view.ViewGroup" content-desc="Post by Alice" bounds="[0,0][1080,600]">
        <node class="android.widget.TextView" text="Alice" bounds="[40,40][400,120]" />
        <node class="android.widget.Button" text="关注" clickable="true" bounds="[800,200][1000,300]" />
      </node>
      <node class="android.view.ViewGroup" content-desc="Post by Bob" bounds="[0,600][1080,1200]">
        <node class="android.widget.TextView" text="Bob" bounds="[40,640][400,720]" />
        <node class="android.widget.Button" text="关注" clickable="true" bounds="[800,800][1000,900]" />
      </node>
    </node>
  </node>
</hierarchy>`

// followedDump only has an already-followed button.
const followedDump = `<?xml version="1.0" encoding="UTF-8"?>
<hierarchy rotation="0">
  <node class="android.widget.FrameLayout" bounds="[0,0][1080,1920]">
    <node class="android.widget.Button" text="已关注" clickable="true" bounds="[800,200][1000,300]" />
  </node>
</hierarchy>`

func newTestResolver(t *testing.T, transport *mock.Transport) *Resolver {
	t.Helper()
	return New(transport, config.Default(), WithGenerator(pathgen.NewGenerator(nil)))
}

func TestResolveAndActInvalidFingerprintBeforeFetch(t *testing.T) {
	transport := mock.New(mock.Config{Trees: []string{feedDump}})
	r := newTestResolver(t, transport)

	_, err := r.ResolveAndAct(context.Background(), "sess-1", &fingerprint.Fingerprint{}, executor.First())
	if err == nil {
		t.Fatal("expected error for empty fingerprint")
	}
	if !errors.Is(err, core.ErrInvalidFingerprint) {
		t.Errorf("expected ErrInvalidFingerprint, got %v", err)
	}
	if transport.FetchCount() != 0 {
		t.Errorf("expected no tree fetch, got %d", transport.FetchCount())
	}
}

func TestResolveAndActSingleTap(t *testing.T) {
	transport := mock.New(mock.Config{Trees: []string{feedDump}})
	r := newTestResolver(t, transport)

	fp := &fingerprint.Fingerprint{Text: "关注"}
	res, err := r.ResolveAndAct(context.Background(), "sess-1", fp, executor.First())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !res.Success {
		t.Errorf("expected success, got %+v", res)
	}
	if res.TapsAttempted != 1 || res.TapsSucceeded != 1 {
		t.Errorf("expected exactly one tap, got %+v", res)
	}

	taps := transport.Taps()
	if len(taps) != 1 {
		t.Fatalf("expected 1 recorded tap, got %d", len(taps))
	}
	// First in visual order is Alice's card; the tap lands inside it.
	if taps[0].Y >= 600 {
		t.Errorf("expected tap inside the first card, got y=%d", taps[0].Y)
	}
	if taps[0].SessionID != "sess-1" {
		t.Errorf("unexpected session %q", taps[0].SessionID)
	}
}

func TestResolveAndActBatchTapsAll(t *testing.T) {
	transport := mock.New(mock.Config{Trees: []string{feedDump}})
	r := newTestResolver(t, transport)

	fp := &fingerprint.Fingerprint{Text: "关注"}
	policy := executor.All(executor.BatchConfig{})
	res, err := r.ResolveAndAct(context.Background(), "sess-1", fp, policy)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if res.TapsAttempted != 2 || res.TapsSucceeded != 2 {
		t.Errorf("expected both buttons tapped, got %+v", res)
	}
	if len(transport.Taps()) != 2 {
		t.Errorf("expected 2 recorded taps, got %d", len(transport.Taps()))
	}
}

func TestResolveAndActNoCandidates(t *testing.T) {
	transport := mock.New(mock.Config{Trees: []string{feedDump}})
	r := newTestResolver(t, transport)

	fp := &fingerprint.Fingerprint{Text: "does not exist"}
	_, err := r.ResolveAndAct(context.Background(), "sess-1", fp, executor.First())
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, core.ErrNoCandidates) {
		t.Errorf("expected ErrNoCandidates, got %v", err)
	}
}

func TestResolveAndActOppositeState(t *testing.T) {
	transport := mock.New(mock.Config{Trees: []string{followedDump}})
	r := newTestResolver(t, transport)

	fp := &fingerprint.Fingerprint{Text: "关注"}
	_, err := r.ResolveAndAct(context.Background(), "sess-1", fp, executor.MatchBest(0.3, false))
	if err == nil {
		t.Fatal("expected error for opposite-state match")
	}
	if !errors.Is(err, core.ErrNoValidMatch) {
		t.Errorf("expected ErrNoValidMatch, got %v", err)
	}
	if len(transport.Taps()) != 0 {
		t.Errorf("expected no taps, got %d", len(transport.Taps()))
	}
}

func TestStrictMatchBestUsesOneSnapshot(t *testing.T) {
	transport := mock.New(mock.Config{Trees: []string{feedDump}})
	r := newTestResolver(t, transport)

	fp := &fingerprint.Fingerprint{Text: "关注"}
	res, err := r.ResolveAndAct(context.Background(), "sess-1", fp, executor.MatchBest(0.3, false))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Success || res.TapsSucceeded != 1 {
		t.Errorf("unexpected result: %+v", res)
	}
	// The confidence gate and target resolution share one snapshot, so
	// the screen cannot change between them.
	if transport.FetchCount() != 1 {
		t.Errorf("expected a single tree fetch, got %d", transport.FetchCount())
	}
}

func TestCaptureArtifacts(t *testing.T) {
	fp := &fingerprint.Fingerprint{Text: "关注"}

	t.Run("failed run captures hierarchy and candidates", func(t *testing.T) {
		transport := mock.New(mock.Config{Trees: []string{feedDump}, FailOnTap: 1})
		r := newTestResolver(t, transport)

		res, err := r.ResolveAndAct(context.Background(), "sess-1", fp, executor.First())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res.Success {
			t.Fatal("run should have failed")
		}

		arts := r.CaptureArtifacts(context.Background(), "sess-1", fp, res, core.DefaultArtifactConfig())
		if len(arts) != 2 {
			t.Fatalf("got %d attachments, want 2", len(arts))
		}
		byName := map[string]core.Attachment{}
		for _, a := range arts {
			byName[a.Name] = a
		}
		h, ok := byName[core.AttachmentHierarchy]
		if !ok || len(h.Body) == 0 || h.ContentType != core.ContentTypeXML {
			t.Errorf("bad hierarchy attachment: %+v", h)
		}
		c, ok := byName[core.AttachmentCandidates]
		if !ok || len(c.Body) == 0 || c.ContentType != core.ContentTypeJSON {
			t.Errorf("bad candidates attachment: %+v", c)
		}
	})

	t.Run("successful run captures nothing by default", func(t *testing.T) {
		transport := mock.New(mock.Config{Trees: []string{feedDump}})
		r := newTestResolver(t, transport)

		res, err := r.ResolveAndAct(context.Background(), "sess-1", fp, executor.First())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		fetches := transport.FetchCount()
		arts := r.CaptureArtifacts(context.Background(), "sess-1", fp, res, core.DefaultArtifactConfig())
		if len(arts) != 0 {
			t.Errorf("got %d attachments, want 0", len(arts))
		}
		if transport.FetchCount() != fetches {
			t.Error("capture should not touch the device when the policy declines")
		}
	})
}

func TestExplain(t *testing.T) {
	transport := mock.New(mock.Config{Trees: []string{feedDump}})
	r := newTestResolver(t, transport)

	fp := &fingerprint.Fingerprint{Text: "关注"}
	scored, err := r.Explain(context.Background(), "sess-1", fp)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(scored) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(scored))
	}
	for i, sc := range scored {
		if sc.Score < 0.9 {
			t.Errorf("candidate %d: expected exact text match to score high, got %f", i, sc.Score)
		}
	}
	if len(transport.Taps()) != 0 {
		t.Error("explain must not tap")
	}
}

func TestResolveFeedsConfidence(t *testing.T) {
	transport := mock.New(mock.Config{Trees: []string{feedDump}})
	gen := pathgen.NewGenerator(nil)
	r := New(transport, config.Default(), WithGenerator(gen))

	before := gen.Store().Get(pathgen.StrategyText)

	fp := &fingerprint.Fingerprint{Text: "关注"}
	if _, err := r.ResolveAndAct(context.Background(), "sess-1", fp, executor.First()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	after := gen.Store().Get(pathgen.StrategyText)
	if after <= before {
		t.Errorf("expected confidence to rise after success: before=%f after=%f", before, after)
	}
}

func TestConfidencePersistence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "confidence.yaml")

	cfg := config.Default()
	cfg.ConfidencePath = path

	gen := pathgen.NewGenerator(nil)
	gen.Store().RecordSuccess(pathgen.StrategyText)
	trained := gen.Store().Get(pathgen.StrategyText)

	transport := mock.New(mock.Config{Trees: []string{feedDump}})
	r := New(transport, cfg, WithGenerator(gen))
	if err := r.SaveConfidence(); err != nil {
		t.Fatalf("SaveConfidence: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected confidence file: %v", err)
	}

	fresh := New(transport, cfg, WithGenerator(pathgen.NewGenerator(nil)))
	if err := fresh.LoadConfidence(); err != nil {
		t.Fatalf("LoadConfidence: %v", err)
	}
	if got := fresh.Generator().Store().Get(pathgen.StrategyText); got != trained {
		t.Errorf("expected restored rating %f, got %f", trained, got)
	}
}

func TestLoadConfidenceMissingFile(t *testing.T) {
	cfg := config.Default()
	cfg.ConfidencePath = filepath.Join(t.TempDir(), "absent.yaml")

	r := New(mock.New(mock.Config{}), cfg)
	if err := r.LoadConfidence(); err != nil {
		t.Errorf("missing file should not error: %v", err)
	}
}

func TestPaths(t *testing.T) {
	r := newTestResolver(t, mock.New(mock.Config{}))

	fp := &fingerprint.Fingerprint{ResourceID: "com.app:id/follow", Text: "Follow"}
	paths, err := r.Paths(fp)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(paths) == 0 {
		t.Fatal("expected generated paths")
	}
	// Resource id strategies rank above text strategies by default.
	if paths[0].Strategy != pathgen.StrategyResourceID {
		t.Errorf("expected resource id first, got %v", paths[0].Strategy)
	}
}
