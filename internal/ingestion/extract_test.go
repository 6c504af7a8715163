package ingestion

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nextlevelbuilder/convoy/internal/model"
	"github.com/nextlevelbuilder/convoy/internal/objectstore"
)

func TestExtractManualReturnsTextUnchanged(t *testing.T) {
	e := NewExtractor(nil, nil)
	src := model.KnowledgeSource{Kind: model.KnowledgeKindManual, Text: "refund policy details"}

	got, err := e.Extract(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, "refund policy details", got)
}

func TestExtractURLRunsReadability(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><head><title>Refund Policy</title></head>
<body><article><h1>Refund Policy</h1><p>Refunds are processed within five business days of the original request being received by our support team.</p></article></body></html>`))
	}))
	defer srv.Close()

	e := NewExtractor(srv.Client(), nil)
	src := model.KnowledgeSource{Kind: model.KnowledgeKindURL, URI: srv.URL}

	got, err := e.Extract(context.Background(), src)
	require.NoError(t, err)
	assert.Contains(t, got, "Refunds are processed")
}

func TestExtractFilePlainTextPassesThrough(t *testing.T) {
	store := objectstore.NewMemoryStore()
	_, err := store.Put(context.Background(), "docs/refunds.txt", bytes.NewReader([]byte("  refund policy text  ")), objectstore.PutOptions{})
	require.NoError(t, err)

	e := NewExtractor(nil, store)
	got, err := e.Extract(context.Background(), model.KnowledgeSource{Kind: model.KnowledgeKindFile, URI: "docs/refunds.txt"})
	require.NoError(t, err)
	assert.Equal(t, "refund policy text", got)
}

func TestExtractFileRejectsUnsupportedExtension(t *testing.T) {
	store := objectstore.NewMemoryStore()
	_, err := store.Put(context.Background(), "docs/manual.pdf", bytes.NewReader([]byte("%PDF-1.4 ...")), objectstore.PutOptions{})
	require.NoError(t, err)

	e := NewExtractor(nil, store)
	_, err = e.Extract(context.Background(), model.KnowledgeSource{Kind: model.KnowledgeKindFile, URI: "docs/manual.pdf"})
	assert.Error(t, err)
}

func TestExtractFileMissingKeyFails(t *testing.T) {
	store := objectstore.NewMemoryStore()
	e := NewExtractor(nil, store)

	_, err := e.Extract(context.Background(), model.KnowledgeSource{Kind: model.KnowledgeKindFile, URI: "missing.txt"})
	assert.Error(t, err)
}
