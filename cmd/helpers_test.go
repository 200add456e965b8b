package cmd

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alecthomas/kong"
	"github.com/lepinkainen/bookshelf/internal/config"
	"github.com/lepinkainen/bookshelf/internal/testutil"
	"github.com/stretchr/testify/require"
)

const catalogSearchBody = `{
	"numFound": 2,
	"docs": [
		{"key": "/works/OL1W", "title": "The Hobbit", "author_name": ["J.R.R. Tolkien"], "cover_i": 11, "first_publish_year": 1937},
		{"key": "/works/OL2W", "title": "Hobbit Fan Notes", "author_name": ["Nobody"]}
	]
}`

const catalogWorkBody = `{
	"key": "/works/OL1W",
	"title": "The Hobbit",
	"description": {"type": "/type/text", "value": "A hobbit goes on an adventure."},
	"subjects": ["Fantasy", "Dragons"]
}`

const catalogEditionBody = `{
	"key": "/books/OL1M",
	"title": "The Hobbit - Wikipedia",
	"authors": [{"name": "J.R.R. Tolkien"}],
	"publish_date": "September 1937",
	"publishers": ["Allen & Unwin"]
}`

// catalogServer fakes the Open Library search, work, edition and cover endpoints.
type catalogServer struct {
	*httptest.Server
	searches atomic.Int32
	works    atomic.Int32
	editions atomic.Int32
	covers   atomic.Int32
}

func newCatalogServer(t *testing.T) *catalogServer {
	t.Helper()

	var cover bytes.Buffer
	img := image.NewRGBA(image.Rect(0, 0, 8, 12))
	for x := 0; x < 8; x++ {
		for y := 0; y < 12; y++ {
			img.Set(x, y, color.RGBA{R: 200, G: 120, B: 40, A: 255})
		}
	}
	require.NoError(t, jpeg.Encode(&cover, img, nil))

	cs := &catalogServer{}
	mux := http.NewServeMux()
	mux.HandleFunc("/search.json", func(w http.ResponseWriter, _ *http.Request) {
		cs.searches.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(catalogSearchBody))
	})
	mux.HandleFunc("/works/OL1W.json", func(w http.ResponseWriter, _ *http.Request) {
		cs.works.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(catalogWorkBody))
	})
	mux.HandleFunc("/books/OL1M.json", func(w http.ResponseWriter, _ *http.Request) {
		cs.editions.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(catalogEditionBody))
	})
	mux.HandleFunc("/b/id/11-M.jpg", func(w http.ResponseWriter, _ *http.Request) {
		cs.covers.Add(1)
		w.Header().Set("Content-Type", "image/jpeg")
		_, _ = w.Write(cover.Bytes())
	})

	cs.Server = httptest.NewServer(mux)
	t.Cleanup(cs.Close)
	return cs
}

type harness struct {
	env     *testutil.TestEnv
	catalog *catalogServer
	cfg     config.Config

	// enrichWaits counts the pauses taken before inline enrichment.
	enrichWaits atomic.Int32
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	env := testutil.NewTestEnv(t)
	catalog := newCatalogServer(t)

	testutil.SandboxConfig(t, env)
	testutil.SetViperValue(t, "openlibrary.base_url", catalog.URL)
	testutil.SetViperValue(t, "openlibrary.search_url", catalog.URL+"/search.json")
	testutil.SetViperValue(t, "openlibrary.covers_url", catalog.URL+"/b/id")
	testutil.SetViperValue(t, "covers.per_second", 100.0)

	h := &harness{env: env, catalog: catalog, cfg: config.Load()}

	originalDelay := inlineEnrichDelay
	inlineEnrichDelay = func() time.Duration {
		h.enrichWaits.Add(1)
		return 0
	}
	t.Cleanup(func() { inlineEnrichDelay = originalDelay })

	return h
}

func parseCLI(t *testing.T, args ...string) (*CLI, *kong.Context) {
	t.Helper()

	originalArgs := os.Args
	os.Args = append([]string{"bookshelf"}, args...)
	t.Cleanup(func() { os.Args = originalArgs })

	cli := &CLI{}
	ctx := kong.Parse(cli,
		kong.Name("bookshelf"),
		kong.Description("Hybrid book search backed by a local library and Open Library."),
		kong.UsageOnError(),
		kong.Exit(func(code int) {
			t.Fatalf("unexpected Kong exit %d", code)
		}),
	)

	return cli, ctx
}

// run parses args and runs the selected command against the harness config.
func (h *harness) run(t *testing.T, args ...string) (string, error) {
	t.Helper()

	cli, kctx := parseCLI(t, args...)

	var out bytes.Buffer
	err := kctx.Run(&runtime{
		ctx:  context.Background(),
		cfg:  h.cfg,
		out:  &out,
		json: cli.JSON,
	})
	return out.String(), err
}
