package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"

	"github.com/docsage/docsage/internal/corpus"
	"github.com/docsage/docsage/internal/rag"
	"github.com/docsage/docsage/internal/testutil"
)

// stubQuerier implements corpus.Querier with canned data.
type stubQuerier struct {
	rows      []corpus.ChunkRow
	searchErr error

	listDocs  []corpus.DocumentInfo
	listErr   error
	deleted   int64
	deleteErr error

	lastSearch corpus.SearchChunksParams
	lastDelete string
}

func (s *stubQuerier) UpsertChunk(_ context.Context, _ corpus.UpsertChunkParams) error { return nil }

func (s *stubQuerier) SearchChunks(_ context.Context, arg corpus.SearchChunksParams) ([]corpus.ChunkRow, error) {
	s.lastSearch = arg
	if s.searchErr != nil {
		return nil, s.searchErr
	}
	if arg.ResultLimit < len(s.rows) {
		return s.rows[:arg.ResultLimit], nil
	}
	return s.rows, nil
}

func (s *stubQuerier) ListDocuments(_ context.Context) ([]corpus.DocumentInfo, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	return s.listDocs, nil
}

func (s *stubQuerier) DeleteDocument(_ context.Context, name string) (int64, error) {
	s.lastDelete = name
	if s.deleteErr != nil {
		return 0, s.deleteErr
	}
	return s.deleted, nil
}

func (s *stubQuerier) CountChunks(_ context.Context) (int64, error) { return 0, nil }

// newTestServer wires a server around the mock model and stub querier.
// A nil mock installs a generator that fails every invocation.
func newTestServer(t *testing.T, mock *testutil.MockLLM, querier corpus.Querier) *Server {
	t.Helper()

	g := genkit.Init(context.Background())
	embedder := testutil.NewMockEmbedder(8).RegisterEmbedder(g)
	store := corpus.New(querier, embedder, testutil.DiscardLogger())

	var gen rag.Generator = rag.GenkitGenerator{G: g}
	modelName := "mock/test-model"
	if mock != nil {
		mock.RegisterModel(g)
	} else {
		gen = failGenerator{err: errors.New("model exploded")}
		modelName = ""
	}

	srv, err := NewServer(ServerConfig{
		Logger:   testutil.DiscardLogger(),
		Resolver: rag.NewResolver(store, rag.DefaultTopK, testutil.DiscardLogger()),
		Chain:    rag.NewChain(gen, modelName, testutil.DiscardLogger()),
		Store:    store,
	})
	if err != nil {
		t.Fatalf("NewServer() error = %v", err)
	}
	return srv
}

// failGenerator fails every model invocation.
type failGenerator struct {
	err error
}

func (f failGenerator) Generate(_ context.Context, _ ...ai.GenerateOption) (*ai.ModelResponse, error) {
	return nil, f.err
}

// blockingGenerator blocks until the request context is canceled, then
// reports the cancellation cause.
type blockingGenerator struct {
	started  chan struct{}
	returned chan error
}

func (b *blockingGenerator) Generate(ctx context.Context, _ ...ai.GenerateOption) (*ai.ModelResponse, error) {
	close(b.started)
	<-ctx.Done()
	b.returned <- ctx.Err()
	return nil, ctx.Err()
}

func postChat(t *testing.T, handler http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestChatStream_Success(t *testing.T) {
	mock := testutil.NewMockLLM("")
	mock.AddResponse("vacation", "Vacation accrues monthly.")
	querier := &stubQuerier{
		rows: []corpus.ChunkRow{
			{ID: "c1", DocumentName: "handbook.pdf", Content: "Vacation accrues monthly.", Metadata: []byte(`{"page":"3"}`), Similarity: 0.9},
		},
	}
	srv := newTestServer(t, mock, querier)

	rec := postChat(t, srv.Handler(), `{"question":"what is the vacation policy?"}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q, want text/event-stream", ct)
	}
	if cc := rec.Header().Get("Cache-Control"); cc != "no-cache" {
		t.Errorf("Cache-Control = %q, want no-cache", cc)
	}

	payloads := testutil.ParseSSEData(t, rec.Body.String())
	if len(payloads) < 3 {
		t.Fatalf("payloads = %v, want keepalive + tokens + sources + sentinel", payloads)
	}

	// First frame is the empty-token keepalive.
	if payloads[0] != `{"data":""}` {
		t.Errorf("first frame = %q, want empty token frame", payloads[0])
	}
	// Last frame is the literal sentinel.
	if payloads[len(payloads)-1] != "[DONE]" {
		t.Errorf("last frame = %q, want [DONE]", payloads[len(payloads)-1])
	}

	// Token frames between keepalive and sources reconstruct the answer.
	var answer strings.Builder
	sourceFrames := 0
	for _, p := range payloads[1 : len(payloads)-1] {
		var tf struct {
			Data *string `json:"data"`
		}
		var sf struct {
			SourceDocs []sourceDoc `json:"sourceDocs"`
		}
		if err := json.Unmarshal([]byte(p), &sf); err == nil && sf.SourceDocs != nil {
			sourceFrames++
			if len(sf.SourceDocs) != 1 {
				t.Errorf("sourceDocs = %d entries, want 1", len(sf.SourceDocs))
			} else {
				if sf.SourceDocs[0].Content != "Vacation accrues monthly." {
					t.Errorf("source content = %q", sf.SourceDocs[0].Content)
				}
				if sf.SourceDocs[0].Metadata["documentName"] != "handbook.pdf" {
					t.Errorf("source documentName = %q", sf.SourceDocs[0].Metadata["documentName"])
				}
				if sf.SourceDocs[0].Metadata["page"] != "3" {
					t.Errorf("source page metadata = %q", sf.SourceDocs[0].Metadata["page"])
				}
			}
			continue
		}
		if err := json.Unmarshal([]byte(p), &tf); err != nil || tf.Data == nil {
			t.Errorf("unexpected frame %q", p)
			continue
		}
		answer.WriteString(*tf.Data)
	}

	if sourceFrames != 1 {
		t.Errorf("sourceDocs frames = %d, want exactly 1", sourceFrames)
	}
	if answer.String() != "Vacation accrues monthly." {
		t.Errorf("reconstructed answer = %q", answer.String())
	}
}

func TestChatStream_EmptyQuestion(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"missing question", `{}`},
		{"empty question", `{"question":""}`},
		{"whitespace question", `{"question":"  \n  "}`},
		{"malformed body", `{not json`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, testutil.NewMockLLM("unused"), &stubQuerier{})

			rec := postChat(t, srv.Handler(), tt.body)

			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", rec.Code)
			}
			if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("Content-Type = %q, want application/json (no stream opened)", ct)
			}

			var body struct {
				Message string `json:"message"`
			}
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("decoding body: %v", err)
			}
			if body.Message != "No question in the request" {
				t.Errorf("message = %q, want %q", body.Message, "No question in the request")
			}
		})
	}
}

func TestChatStream_GenerationFailure(t *testing.T) {
	srv := newTestServer(t, nil, &stubQuerier{})

	rec := postChat(t, srv.Handler(), `{"question":"anything"}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (stream already open)", rec.Code)
	}

	payloads := testutil.ParseSSEData(t, rec.Body.String())

	// Failure after open: keepalive then sentinel, nothing else. No error
	// frame exists in the protocol and sourceDocs is omitted.
	want := []string{`{"data":""}`, "[DONE]"}
	if len(payloads) != len(want) {
		t.Fatalf("payloads = %v, want %v", payloads, want)
	}
	for i := range want {
		if payloads[i] != want[i] {
			t.Errorf("payload[%d] = %q, want %q", i, payloads[i], want[i])
		}
	}
}

func TestChatStream_MidStreamGenerationFailure(t *testing.T) {
	mock := testutil.NewMockLLM("two tokens plus more")
	mock.FailAfterChunks(2, errors.New("model dropped the connection"))
	querier := &stubQuerier{
		rows: []corpus.ChunkRow{
			{ID: "c1", DocumentName: "handbook.pdf", Content: "policy text", Similarity: 0.9},
		},
	}
	srv := newTestServer(t, mock, querier)

	rec := postChat(t, srv.Handler(), `{"question":"q"}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (stream already open)", rec.Code)
	}

	// Tokens delivered before the failure stay on the wire, the sourceDocs
	// frame is withheld even though retrieval found sources, and the
	// sentinel still closes the stream.
	payloads := testutil.ParseSSEData(t, rec.Body.String())
	want := []string{`{"data":""}`, `{"data":"two "}`, `{"data":"tokens "}`, "[DONE]"}
	if len(payloads) != len(want) {
		t.Fatalf("payloads = %v, want %v", payloads, want)
	}
	for i := range want {
		if payloads[i] != want[i] {
			t.Errorf("payload[%d] = %q, want %q", i, payloads[i], want[i])
		}
	}
	for _, p := range payloads {
		if strings.Contains(p, "sourceDocs") {
			t.Errorf("unexpected sourceDocs frame %q after generation failure", p)
		}
	}
}

func TestChatStream_FilterSelection(t *testing.T) {
	mock := testutil.NewMockLLM("filtered answer")
	querier := &stubQuerier{}
	srv := newTestServer(t, mock, querier)

	rec := postChat(t, srv.Handler(), `{
		"question": "q",
		"documentFilterSelection": ["a.pdf", "b.pdf"],
		"documentFilterCount": 2,
		"filterEnabled": true
	}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	if querier.lastSearch.ResultLimit != 2 {
		t.Errorf("search limit = %d, want 2", querier.lastSearch.ResultLimit)
	}
	if len(querier.lastSearch.Documents) != 2 {
		t.Errorf("search documents = %v, want [a.pdf b.pdf]", querier.lastSearch.Documents)
	}
}

func TestChatStream_FilterEnabledNoSelection(t *testing.T) {
	mock := testutil.NewMockLLM("answer without context")
	querier := &stubQuerier{
		rows: []corpus.ChunkRow{{ID: "c1", Content: "would match"}},
	}
	srv := newTestServer(t, mock, querier)

	rec := postChat(t, srv.Handler(), `{"question":"q","filterEnabled":true}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	if querier.lastSearch.ResultLimit != 0 {
		t.Errorf("search limit = %d, want 0 pass-through", querier.lastSearch.ResultLimit)
	}

	// The degenerate retrieval still completes the stream: empty sourceDocs
	// frame and sentinel.
	payloads := testutil.ParseSSEData(t, rec.Body.String())
	foundEmptySources := false
	for _, p := range payloads {
		if p == `{"sourceDocs":[]}` {
			foundEmptySources = true
		}
	}
	if !foundEmptySources {
		t.Errorf("payloads = %v, want an empty sourceDocs frame", payloads)
	}
	if payloads[len(payloads)-1] != "[DONE]" {
		t.Errorf("last frame = %q, want [DONE]", payloads[len(payloads)-1])
	}
}

func TestChatStream_HistoryAcceptedNotThreaded(t *testing.T) {
	mock := testutil.NewMockLLM("answer")
	srv := newTestServer(t, mock, &stubQuerier{})

	rec := postChat(t, srv.Handler(), `{
		"question": "current question",
		"history": [["old question", "old answer"]]
	}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	calls := mock.Calls()
	if len(calls) != 1 {
		t.Fatalf("model calls = %d, want 1", len(calls))
	}
	if strings.Contains(calls[0].UserMessage, "old question") {
		t.Error("history leaked into the model request")
	}
}

func TestChatStream_ClientDisconnectCancelsGeneration(t *testing.T) {
	gen := &blockingGenerator{
		started:  make(chan struct{}),
		returned: make(chan error, 1),
	}

	g := genkit.Init(context.Background())
	embedder := testutil.NewMockEmbedder(8).RegisterEmbedder(g)
	store := corpus.New(&stubQuerier{}, embedder, testutil.DiscardLogger())

	srv, err := NewServer(ServerConfig{
		Logger:   testutil.DiscardLogger(),
		Resolver: rag.NewResolver(store, rag.DefaultTopK, testutil.DiscardLogger()),
		Chain:    rag.NewChain(gen, "", testutil.DiscardLogger()),
		Store:    store,
	})
	if err != nil {
		t.Fatalf("NewServer() error = %v", err)
	}

	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ts.URL+"/api/chat",
		strings.NewReader(`{"question":"q"}`))
	if err != nil {
		t.Fatalf("building request: %v", err)
	}

	errc := make(chan error, 1)
	go func() {
		resp, reqErr := http.DefaultClient.Do(req)
		if resp != nil {
			resp.Body.Close()
		}
		errc <- reqErr
	}()

	select {
	case <-gen.started:
	case <-time.After(5 * time.Second):
		t.Fatal("generation never started")
	}

	cancel()
	<-errc

	select {
	case genErr := <-gen.returned:
		if !errors.Is(genErr, context.Canceled) {
			t.Errorf("generator saw %v, want context.Canceled", genErr)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("generation was not canceled by client disconnect")
	}
}
