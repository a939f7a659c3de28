package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/google/uuid"
	"github.com/tendant/simple-blocks/pkg/blocks"
)

const maxBlocksPerRequest = 200

// BlocksHandler handles HTTP requests for post blocks. Callers are expected to
// be authorized by middleware in front of it.
type BlocksHandler struct {
	service blocks.Service
}

// NewBlocksHandler creates a new blocks handler
func NewBlocksHandler(service blocks.Service) *BlocksHandler {
	return &BlocksHandler{service: service}
}

// Routes returns the routes for blocks. Every request gets its own read cache.
func (h *BlocksHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(RequestCache)

	r.Route("/posts", func(r chi.Router) {
		r.Get("/by-slug/{slug}/blocks", h.GetBlocksBySlug)
		r.Get("/{postID}/blocks", h.GetBlocksByPostID)
		r.Post("/{postID}/blocks", h.CreateBlock)
		r.Post("/{postID}/blocks/bulk", h.CreateBlocks)
		r.Get("/{postID}/analysis", h.AnalyzeContent)
	})

	r.Route("/blocks", func(r chi.Router) {
		r.Post("/delete", h.DeleteBlocks)
		r.Put("/order", h.MoveBlocks)
		r.Get("/{kind}/{blockID}", h.ReadBlock)
		r.Patch("/{kind}/{blockID}", h.UpdateBlock)
		r.Delete("/{kind}/{blockID}", h.DeleteBlock)
	})

	return r
}

// RequestCache attaches a request-scoped read cache to the request context.
func RequestCache(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r.WithContext(blocks.WithRequestCache(r.Context())))
	})
}

// CreateBlockRequest is the request body for creating a block
type CreateBlockRequest struct {
	Kind     blocks.Kind     `json:"kind"`
	Name     string          `json:"name,omitempty"`
	Position *int            `json:"position,omitempty"`
	Payload  json.RawMessage `json:"payload"`
}

// CreateBlocksRequest is the request body for a bulk insert
type CreateBlocksRequest struct {
	Blocks []CreateBlockRequest `json:"blocks"`
}

// UpdateBlockRequest is the request body for updating a block
type UpdateBlockRequest struct {
	Name  *string         `json:"name,omitempty"`
	Patch json.RawMessage `json:"patch,omitempty"`
}

// DeleteBlocksRequest is the request body for a bulk delete
type DeleteBlocksRequest struct {
	Refs []blocks.BlockRef `json:"refs"`
}

// MoveBlocksRequest is the request body for a reorder
type MoveBlocksRequest struct {
	Moves []blocks.Move `json:"moves"`
}

// BlockResponse is a block plus resolved media links
type BlockResponse struct {
	*blocks.Block
	MediaURLs map[string]string `json:"media_urls,omitempty"`
}

// BlocksResponse is the response body for ordered block lists
type BlocksResponse struct {
	Blocks []*blocks.Block `json:"blocks"`
}

func (h *BlocksHandler) toInput(req CreateBlockRequest) (blocks.CreateBlockInput, error) {
	payload, err := h.service.Registry().DecodePayload(req.Kind, req.Payload)
	if err != nil {
		return blocks.CreateBlockInput{}, err
	}
	return blocks.CreateBlockInput{Kind: req.Kind, Name: req.Name, Position: req.Position, Payload: payload}, nil
}

func postID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	idStr := chi.URLParam(r, "postID")
	id, err := uuid.Parse(idStr)
	if err != nil {
		slog.Error("Invalid post ID", "post_id", idStr, "error", err)
		badRequest(w, r, "Invalid post ID")
		return uuid.Nil, false
	}
	return id, true
}

func blockRef(w http.ResponseWriter, r *http.Request) (blocks.BlockRef, bool) {
	idStr := chi.URLParam(r, "blockID")
	id, err := uuid.Parse(idStr)
	if err != nil {
		slog.Error("Invalid block ID", "block_id", idStr, "error", err)
		badRequest(w, r, "Invalid block ID")
		return blocks.BlockRef{}, false
	}
	return blocks.BlockRef{ID: id, Kind: blocks.Kind(chi.URLParam(r, "kind"))}, true
}

// CreateBlock inserts one block, appending unless a position is given
func (h *BlocksHandler) CreateBlock(w http.ResponseWriter, r *http.Request) {
	id, ok := postID(w, r)
	if !ok {
		return
	}
	var req CreateBlockRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		badRequest(w, r, err.Error())
		return
	}
	in, err := h.toInput(req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	block, err := h.service.CreateBlock(r.Context(), id, in)
	if err != nil {
		writeError(w, r, err)
		return
	}

	slog.Info("Block created", "post_id", id, "block_id", block.ID, "kind", block.Kind)
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, block)
}

// CreateBlocks inserts a batch of blocks atomically
func (h *BlocksHandler) CreateBlocks(w http.ResponseWriter, r *http.Request) {
	id, ok := postID(w, r)
	if !ok {
		return
	}
	var req CreateBlocksRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		badRequest(w, r, err.Error())
		return
	}
	if len(req.Blocks) > maxBlocksPerRequest {
		badRequest(w, r, "Too many blocks, max "+strconv.Itoa(maxBlocksPerRequest))
		return
	}

	inputs := make([]blocks.CreateBlockInput, 0, len(req.Blocks))
	for _, b := range req.Blocks {
		in, err := h.toInput(b)
		if err != nil {
			writeError(w, r, err)
			return
		}
		inputs = append(inputs, in)
	}

	created, err := h.service.CreateBlocksInPost(r.Context(), id, inputs)
	if err != nil {
		writeError(w, r, err)
		return
	}

	slog.Info("Blocks created", "post_id", id, "count", len(created))
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, BlocksResponse{Blocks: created})
}

// ReadBlock returns one block. ?media=true resolves its file links.
func (h *BlocksHandler) ReadBlock(w http.ResponseWriter, r *http.Request) {
	ref, ok := blockRef(w, r)
	if !ok {
		return
	}
	block, err := h.service.ReadBlock(r.Context(), ref.ID, ref.Kind)
	if err != nil {
		writeError(w, r, err)
		return
	}

	resp := BlockResponse{Block: block}
	if withMedia, _ := strconv.ParseBool(r.URL.Query().Get("media")); withMedia {
		if resp.MediaURLs, err = h.service.MediaURLs(r.Context(), block); err != nil {
			writeError(w, r, err)
			return
		}
	}
	render.JSON(w, r, resp)
}

// UpdateBlock applies a merge patch and/or rename to one block
func (h *BlocksHandler) UpdateBlock(w http.ResponseWriter, r *http.Request) {
	ref, ok := blockRef(w, r)
	if !ok {
		return
	}
	var req UpdateBlockRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		badRequest(w, r, err.Error())
		return
	}

	block, err := h.service.UpdateBlock(r.Context(), ref.ID, ref.Kind, blocks.UpdateBlockInput{Name: req.Name, Patch: req.Patch})
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.JSON(w, r, block)
}

// DeleteBlock removes one block and closes the gap it leaves
func (h *BlocksHandler) DeleteBlock(w http.ResponseWriter, r *http.Request) {
	ref, ok := blockRef(w, r)
	if !ok {
		return
	}
	if err := h.service.DeleteBlock(r.Context(), ref.ID, ref.Kind); err != nil {
		writeError(w, r, err)
		return
	}
	slog.Info("Block deleted", "block_id", ref.ID, "kind", ref.Kind)
	w.WriteHeader(http.StatusNoContent)
}

// DeleteBlocks removes a set of blocks of one post atomically
func (h *BlocksHandler) DeleteBlocks(w http.ResponseWriter, r *http.Request) {
	var req DeleteBlocksRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		badRequest(w, r, err.Error())
		return
	}
	if err := h.service.DeleteBlocksInPost(r.Context(), req.Refs); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// MoveBlocks applies a complete reorder of one post
func (h *BlocksHandler) MoveBlocks(w http.ResponseWriter, r *http.Request) {
	var req MoveBlocksRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		badRequest(w, r, err.Error())
		return
	}
	if err := h.service.MoveBlocks(r.Context(), req.Moves); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetBlocksByPostID lists a post's blocks in position order
func (h *BlocksHandler) GetBlocksByPostID(w http.ResponseWriter, r *http.Request) {
	id, ok := postID(w, r)
	if !ok {
		return
	}
	list, err := h.service.GetBlocksByPostID(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.JSON(w, r, BlocksResponse{Blocks: list})
}

// GetBlocksBySlug lists a post's blocks, addressing the post by slug
func (h *BlocksHandler) GetBlocksBySlug(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.GetBlocksBySlug(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.JSON(w, r, BlocksResponse{Blocks: list})
}

// AnalyzeContent returns word count, reading time and per-kind counts
func (h *BlocksHandler) AnalyzeContent(w http.ResponseWriter, r *http.Request) {
	id, ok := postID(w, r)
	if !ok {
		return
	}
	analysis, err := h.service.AnalyzeContent(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.JSON(w, r, analysis)
}
