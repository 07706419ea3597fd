package outfit

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"strings"
	"sync"

	"tryon_backend/imagecache"
	"tryon_backend/imagedata"
	"tryon_backend/imagefetch"
	"tryon_backend/synthesis"
)

// pngOfWidth returns a valid PNG whose width tells test images apart.
func pngOfWidth(w int) imagedata.Payload {
	img := image.NewRGBA(image.Rect(0, 0, w, 1))
	for x := 0; x < w; x++ {
		img.Set(x, 0, color.RGBA{G: 200, A: 255})
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		panic(err)
	}
	return imagedata.Payload{Data: buf.Bytes(), Format: imagedata.PNG}
}

func widthOf(p imagedata.Payload) int {
	cfg, err := png.DecodeConfig(bytes.NewReader(p.Data))
	if err != nil {
		return -1
	}
	return cfg.Width
}

// fakeFetcher serves fixed payloads and records every ref it is asked for.
type fakeFetcher struct {
	mu       sync.Mutex
	payloads map[string]imagedata.Payload
	errs     map[string]error
	calls    []string
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{payloads: map[string]imagedata.Payload{}, errs: map[string]error{}}
}

func (f *fakeFetcher) add(ref string, width int) imagedata.Payload {
	p := pngOfWidth(width).WithSourceRef(ref)
	f.mu.Lock()
	f.payloads[ref] = p
	f.mu.Unlock()
	return p
}

func (f *fakeFetcher) fail(ref string, err error) {
	f.mu.Lock()
	f.errs[ref] = err
	f.mu.Unlock()
}

func (f *fakeFetcher) Fetch(ctx context.Context, ref string) (imagedata.Payload, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, ref)
	if err, ok := f.errs[ref]; ok {
		return imagedata.Payload{}, err
	}
	if p, ok := f.payloads[ref]; ok {
		return p, nil
	}
	return imagedata.Payload{}, &imagefetch.FetchError{Ref: ref, StatusCode: 404}
}

func (f *fakeFetcher) count(ref string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == ref {
			n++
		}
	}
	return n
}

func (f *fakeFetcher) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// fakeInvoker tells extraction and composition calls apart by instruction.
// Each successful call returns a PNG whose width is the running call count
// plus 100, so outputs can be traced through the pipeline.
type fakeInvoker struct {
	mu       sync.Mutex
	extracts []synthesis.Request
	composes []synthesis.Request

	// extractErr and composeErr receive the 1-based call number of their kind
	extractErr func(n int) error
	composeErr func(n int) error

	// entered is signalled (non-blocking) on every call; gate, when set,
	// blocks the call until closed
	entered chan struct{}
	gate    chan struct{}
}

func isExtraction(req synthesis.Request) bool {
	return strings.HasPrefix(req.Instruction, "Isolate")
}

func (f *fakeInvoker) Invoke(ctx context.Context, req synthesis.Request) (imagedata.Payload, error) {
	f.mu.Lock()
	var err error
	if isExtraction(req) {
		f.extracts = append(f.extracts, req)
		if f.extractErr != nil {
			err = f.extractErr(len(f.extracts))
		}
	} else {
		f.composes = append(f.composes, req)
		if f.composeErr != nil {
			err = f.composeErr(len(f.composes))
		}
	}
	out := pngOfWidth(100 + len(f.extracts) + len(f.composes))
	entered, gate := f.entered, f.gate
	f.mu.Unlock()

	if entered != nil {
		select {
		case entered <- struct{}{}:
		default:
		}
	}
	if gate != nil {
		<-gate
	}
	if err != nil {
		return imagedata.Payload{}, err
	}
	return out, nil
}

func (f *fakeInvoker) counts() (extracts, composes int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.extracts), len(f.composes)
}

func (f *fakeInvoker) composeRequests() []synthesis.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]synthesis.Request(nil), f.composes...)
}

// errStore fails every operation.
type errStore struct{ err error }

func (s errStore) GetAll(ctx context.Context) (map[string]json.RawMessage, error) {
	return nil, s.err
}

func (s errStore) Get(ctx context.Context, keys ...string) (map[string]json.RawMessage, error) {
	return nil, s.err
}

func (s errStore) Set(ctx context.Context, values map[string]json.RawMessage) error {
	return s.err
}

func (s errStore) Remove(ctx context.Context, keys ...string) error {
	return s.err
}

func (s errStore) RemoveIfUnchanged(ctx context.Context, expected map[string]json.RawMessage) (int, error) {
	return 0, s.err
}

// pipeline wires the real extractor and cache around the fakes.
type pipeline struct {
	fetcher   *fakeFetcher
	invoker   *fakeInvoker
	cache     *imagecache.Cache
	extractor *Extractor
	composer  *Composer
}

func newPipeline(cfg ComposerConfig) *pipeline {
	p := &pipeline{
		fetcher: newFakeFetcher(),
		invoker: &fakeInvoker{},
		cache:   imagecache.New(imagecache.NewMemoryStore(), nil),
	}
	p.extractor = NewExtractor(p.cache, p.fetcher, p.invoker, cfg.Retry, nil)
	p.composer = NewComposer(p.fetcher, p.extractor, p.invoker, cfg, nil)
	return p
}

// items registers n product photos and returns them in order.
func (p *pipeline) items(names ...string) []Item {
	items := make([]Item, len(names))
	for i, name := range names {
		ref := "https://shop.example.com/" + name + ".jpg"
		p.fetcher.add(ref, 10+i)
		items[i] = Item{Name: name, ImageRef: ref}
	}
	return items
}

const basePhoto = "https://photos.example.com/me.jpg"
