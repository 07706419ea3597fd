package router

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"tryon_backend/imagecache"
	"tryon_backend/metrics"
	"tryon_backend/outfit"
)

type fakeOutfits struct {
	gotGenerate outfit.GenerateRequest
	gotExtract  outfit.Item
	err         error
}

func (f *fakeOutfits) GenerateOutfit(ctx context.Context, req outfit.GenerateRequest) (outfit.GenerateResult, error) {
	f.gotGenerate = req
	if f.err != nil {
		return outfit.GenerateResult{CorrelationID: "corr-1"}, f.err
	}
	return outfit.GenerateResult{CorrelationID: "corr-1", ImageDataURL: "data:image/png;base64,AAAA", Format: "png", ItemCount: len(req.Items)}, nil
}

func (f *fakeOutfits) ExtractProduct(ctx context.Context, item outfit.Item) (outfit.ExtractResult, error) {
	f.gotExtract = item
	return outfit.ExtractResult{CorrelationID: "corr-2", Format: "png"}, f.err
}

func (f *fakeOutfits) Strategy() string { return "sequential" }

type fakeCache struct {
	maxAge  time.Duration
	cleared bool
}

func (f *fakeCache) Stats(ctx context.Context) (imagecache.Stats, error) {
	return imagecache.Stats{Count: 2, EstimatedTotalSizeBytes: 42}, nil
}

func (f *fakeCache) ClearAll(ctx context.Context) (int, error) {
	f.cleared = true
	return 5, nil
}

func (f *fakeCache) InvalidateOlderThan(ctx context.Context, maxAge time.Duration) (int, error) {
	f.maxAge = maxAge
	return 1, nil
}

type fakeMetrics struct{ recent int }

func (f *fakeMetrics) Snapshot(recent int) metrics.Snapshot {
	f.recent = recent
	return metrics.Snapshot{}
}

func newTestRouter() (*Router, *fakeOutfits, *fakeCache, *fakeMetrics) {
	o, c, m := &fakeOutfits{}, &fakeCache{}, &fakeMetrics{}
	r := New(nil, WithErrorDetail(OutfitErrorDetail))
	Register(r, Services{Outfits: o, Cache: c, Metrics: m, CacheMaxAge: 24 * time.Hour})
	return r, o, c, m
}

func dispatch(r *Router, msgType, data string) Response {
	req := Request{Type: msgType}
	if data != "" {
		req.Data = json.RawMessage(data)
	}
	return r.Dispatch(context.Background(), req)
}

func TestRegister_AllTypes(t *testing.T) {
	r, _, _, _ := newTestRouter()
	want := []string{TypeClearCache, TypeExtractProduct, TypeGenerateOutfit, TypeGetCacheStats,
		TypeGetMetrics, TypeInvalidateCache, TypePing}
	got := r.Types()
	if len(got) != len(want) {
		t.Fatalf("Types() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Types()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestGenerateOutfit_Message(t *testing.T) {
	r, o, _, _ := newTestRouter()
	resp := dispatch(r, TypeGenerateOutfit,
		`{"basePhotoRef":"https://p/me.jpg","items":[{"name":"shirt","imageRef":"https://s/1.jpg"},{"name":"hat","imageRef":"https://s/2.jpg"}]}`)
	if !resp.OK {
		t.Fatalf("Dispatch() = %+v", resp)
	}
	if len(o.gotGenerate.Items) != 2 || o.gotGenerate.Items[1].Name != "hat" {
		t.Errorf("service got %+v", o.gotGenerate)
	}
	res, ok := resp.Data.(outfit.GenerateResult)
	if !ok || res.ItemCount != 2 {
		t.Errorf("Data = %#v", resp.Data)
	}
}

func TestGenerateOutfit_MissingBasePhoto(t *testing.T) {
	r, _, _, _ := newTestRouter()
	resp := dispatch(r, TypeGenerateOutfit, `{"items":[{"name":"shirt","imageRef":"x"}]}`)
	if !errors.Is(resp.Err(), ErrBadRequest) {
		t.Errorf("Err() = %v, want ErrBadRequest", resp.Err())
	}
}

func TestGenerateOutfit_FailureDetail(t *testing.T) {
	r, o, _, _ := newTestRouter()
	o.err = &outfit.CompositionError{Index: 1, Item: outfit.Item{Name: "hat"}, Step: outfit.StepCompose, Err: errors.New("HTTP 500")}

	resp := dispatch(r, TypeGenerateOutfit, `{"basePhotoRef":"https://p/me.jpg","items":[{"imageRef":"a"},{"name":"hat","imageRef":"b"}]}`)
	if resp.OK {
		t.Fatal("Dispatch() succeeded, want failure")
	}
	if resp.Detail == nil || resp.Detail.Step != "compose" || resp.Detail.ItemIndex == nil || *resp.Detail.ItemIndex != 1 {
		t.Errorf("Detail = %+v, want compose failure at index 1", resp.Detail)
	}
	if m, ok := resp.Data.(map[string]string); !ok || m["correlationId"] != "corr-1" {
		t.Errorf("Data = %#v, want correlation ID", resp.Data)
	}
}

func TestExtractProduct_Message(t *testing.T) {
	r, o, _, _ := newTestRouter()
	resp := dispatch(r, TypeExtractProduct, `{"name":"shirt","imageRef":"https://s/1.jpg"}`)
	if !resp.OK || o.gotExtract.Name != "shirt" {
		t.Errorf("Dispatch() = %+v, service got %+v", resp, o.gotExtract)
	}

	resp = dispatch(r, TypeExtractProduct, `{"name":"shirt"}`)
	if !errors.Is(resp.Err(), ErrBadRequest) {
		t.Errorf("missing ref: Err() = %v, want ErrBadRequest", resp.Err())
	}
}

func TestCacheMessages(t *testing.T) {
	r, _, c, _ := newTestRouter()

	resp := dispatch(r, TypeGetCacheStats, "")
	if stats, ok := resp.Data.(imagecache.Stats); !ok || stats.Count != 2 {
		t.Errorf("getCacheStats Data = %#v", resp.Data)
	}

	resp = dispatch(r, TypeClearCache, "")
	if res, ok := resp.Data.(RemovedResult); !ok || res.Removed != 5 || !c.cleared {
		t.Errorf("clearCache Data = %#v", resp.Data)
	}

	dispatch(r, TypeInvalidateCache, "")
	if c.maxAge != 24*time.Hour {
		t.Errorf("default maxAge = %v, want 24h", c.maxAge)
	}
	dispatch(r, TypeInvalidateCache, `{"maxAgeHours":1.5}`)
	if c.maxAge != 90*time.Minute {
		t.Errorf("override maxAge = %v, want 90m", c.maxAge)
	}
}

func TestGetMetrics_Message(t *testing.T) {
	r, _, _, m := newTestRouter()
	dispatch(r, TypeGetMetrics, "")
	if m.recent != defaultRecentTasks {
		t.Errorf("recent = %d, want %d", m.recent, defaultRecentTasks)
	}
	dispatch(r, TypeGetMetrics, `{"recent":5}`)
	if m.recent != 5 {
		t.Errorf("recent = %d, want 5", m.recent)
	}
}

func TestPing_Message(t *testing.T) {
	r, _, _, _ := newTestRouter()
	resp := dispatch(r, TypePing, "")
	res, ok := resp.Data.(PingResult)
	if !ok || !res.Pong || res.Strategy != "sequential" {
		t.Errorf("ping Data = %#v", resp.Data)
	}
}

func TestOutfitErrorDetail(t *testing.T) {
	if d := OutfitErrorDetail(errors.New("plain")); d != nil {
		t.Errorf("plain error detail = %+v, want nil", d)
	}
	d := OutfitErrorDetail(&outfit.CompositionError{Index: -1, Step: outfit.StepBasePhoto, Err: errors.New("x")})
	if d == nil || d.Step != "base_photo" || d.ItemIndex != nil {
		t.Errorf("base photo detail = %+v", d)
	}
	d = OutfitErrorDetail(&outfit.ExtractionError{Item: outfit.Item{Name: "hat"}, Err: errors.New("x")})
	if d == nil || d.Step != "extract" || d.ItemName != "hat" {
		t.Errorf("extraction detail = %+v", d)
	}
}
