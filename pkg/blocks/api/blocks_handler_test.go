package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-blocks/pkg/blocks"
	memorymedia "github.com/tendant/simple-blocks/pkg/blocks/media/memory"
	"github.com/tendant/simple-blocks/pkg/blocks/repo/memory"
)

// setupBlocksHandlerTest creates a router over an in-memory service with one post
func setupBlocksHandlerTest(t *testing.T) (http.Handler, *blocks.Post) {
	t.Helper()
	ctx := context.Background()
	repo := memory.New()
	media := memorymedia.New("https://cdn.test")
	require.NoError(t, media.Put(ctx, "img-1", "image/png", strings.NewReader("png")))

	svc, err := blocks.New(blocks.WithRepository(repo), blocks.WithMediaStore(media))
	require.NoError(t, err)

	post := &blocks.Post{Slug: "handler-post", Title: "Handler"}
	require.NoError(t, repo.CreatePost(ctx, post))

	return NewBlocksHandler(svc).Routes(), post
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

type blockJSON struct {
	ID       uuid.UUID       `json:"id"`
	Kind     string          `json:"kind"`
	Position int             `json:"position"`
	Name     string          `json:"name"`
	Payload  json.RawMessage `json:"payload"`
}

func decodeBlocks(t *testing.T, rec *httptest.ResponseRecorder) []blockJSON {
	t.Helper()
	var resp struct {
		Blocks []blockJSON `json:"blocks"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Blocks
}

func TestBlocksHandler_Lifecycle(t *testing.T) {
	h, post := setupBlocksHandlerTest(t)
	base := "/posts/" + post.ID.String()

	rec := do(t, h, http.MethodPost, base+"/blocks/bulk", `{"blocks":[
		{"kind":"heading","payload":{"text":"Welcome","level":1}},
		{"kind":"text","payload":{"body":"<p>Some words here</p>"}},
		{"kind":"images","payload":{"images":[{"file_id":"img-1","alt":"cat"}]}}
	]}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decodeBlocks(t, rec)
	require.Len(t, created, 3)

	rec = do(t, h, http.MethodPost, base+"/blocks", `{"kind":"quote","position":0,"payload":{"text":"First!"}}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var quote blockJSON
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &quote))
	assert.Equal(t, 0, quote.Position)

	rec = do(t, h, http.MethodGet, "/posts/by-slug/handler-post/blocks", "")
	require.Equal(t, http.StatusOK, rec.Code)
	list := decodeBlocks(t, rec)
	require.Len(t, list, 4)
	assert.Equal(t, []string{"quote", "heading", "text", "images"}, []string{list[0].Kind, list[1].Kind, list[2].Kind, list[3].Kind})

	rec = do(t, h, http.MethodGet, "/blocks/images/"+created[2].ID.String()+"?media=true", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var withMedia struct {
		MediaURLs map[string]string `json:"media_urls"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &withMedia))
	assert.Equal(t, "https://cdn.test/img-1", withMedia.MediaURLs["img-1"])

	rec = do(t, h, http.MethodPatch, "/blocks/heading/"+created[0].ID.String(), `{"name":"title","patch":{"level":2}}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"text":"Welcome","level":2}`, string(decodeOne(t, rec).Payload))

	rec = do(t, h, http.MethodGet, base+"/analysis", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var analysis blocks.ContentAnalysis
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &analysis))
	assert.Equal(t, 5, analysis.WordCount)
	assert.Equal(t, 12, analysis.MediaSeconds)
	assert.Equal(t, 1, analysis.BlockCounts[blocks.KindImages])

	moves := []blocks.Move{
		{BlockID: quote.ID, Kind: blocks.KindQuote, NewPosition: 3},
		{BlockID: created[0].ID, Kind: blocks.KindHeading, NewPosition: 0},
		{BlockID: created[1].ID, Kind: blocks.KindText, NewPosition: 1},
		{BlockID: created[2].ID, Kind: blocks.KindImages, NewPosition: 2},
	}
	body, _ := json.Marshal(map[string]any{"moves": moves})
	rec = do(t, h, http.MethodPut, "/blocks/order", string(body))
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

	body, _ = json.Marshal(map[string]any{"refs": []blocks.BlockRef{
		{ID: created[1].ID, Kind: blocks.KindText},
		{ID: quote.ID, Kind: blocks.KindQuote},
	}})
	rec = do(t, h, http.MethodPost, "/blocks/delete", string(body))
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

	rec = do(t, h, http.MethodDelete, "/blocks/images/"+created[2].ID.String(), "")
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(t, h, http.MethodGet, base+"/blocks", "")
	require.Equal(t, http.StatusOK, rec.Code)
	list = decodeBlocks(t, rec)
	require.Len(t, list, 1)
	assert.Equal(t, created[0].ID, list[0].ID)
	assert.Equal(t, 0, list[0].Position)
	assert.Equal(t, "title", list[0].Name)
}

func decodeOne(t *testing.T, rec *httptest.ResponseRecorder) blockJSON {
	t.Helper()
	var b blockJSON
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &b))
	return b
}

func TestBlocksHandler_Errors(t *testing.T) {
	h, post := setupBlocksHandlerTest(t)
	base := "/posts/" + post.ID.String()

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
		code   string
	}{
		{"invalid post id", http.MethodGet, "/posts/not-a-uuid/blocks", "", http.StatusBadRequest, "bad_request"},
		{"unknown post", http.MethodGet, "/posts/" + uuid.NewString() + "/blocks", "", http.StatusNotFound, "not_found"},
		{"unknown slug", http.MethodGet, "/posts/by-slug/nope/blocks", "", http.StatusNotFound, "not_found"},
		{"unknown variant", http.MethodPost, base + "/blocks", `{"kind":"banner","payload":{}}`, http.StatusBadRequest, "unknown_variant"},
		{"invalid payload", http.MethodPost, base + "/blocks", `{"kind":"heading","payload":{"text":"x","level":0}}`, http.StatusUnprocessableEntity, "validation_failed"},
		{"missing media", http.MethodPost, base + "/blocks", `{"kind":"table","payload":{"file_id":"nope"}}`, http.StatusUnprocessableEntity, "validation_failed"},
		{"malformed json", http.MethodPost, base + "/blocks", `{"kind":`, http.StatusBadRequest, "bad_request"},
		{"missing block", http.MethodGet, "/blocks/text/" + uuid.NewString(), "", http.StatusNotFound, "not_found"},
		{"incomplete reorder", http.MethodPut, "/blocks/order", `{"moves":[{"block_id":"` + uuid.NewString() + `","kind":"text","new_position":0}]}`, http.StatusConflict, "incomplete_reorder"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())

			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tt.code, resp.Code)
		})
	}

	t.Run("validation field reported", func(t *testing.T) {
		rec := do(t, h, http.MethodPost, base+"/blocks", `{"kind":"list","payload":{"items":[{"text":""}]}}`)
		var resp ErrorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "items[0].text", resp.Field)
	})
}
