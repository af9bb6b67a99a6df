package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/thoughts/internal/apperror"
	"github.com/sakif/thoughts/internal/auth"
	"github.com/sakif/thoughts/internal/service"
)

// PostHandler serves the /posts endpoints that act on posts and likes.
type PostHandler struct {
	posts     *service.PostService
	maxUpload int64
	logger    *slog.Logger
}

func NewPostHandler(posts *service.PostService, maxUpload int64, logger *slog.Logger) *PostHandler {
	return &PostHandler{
		posts:     posts,
		maxUpload: maxUpload,
		logger:    logger,
	}
}

// HandleCreate stores a post with an optional image.
//
// HTTP: POST /posts/create-post (multipart: post_description, postImage?)
func (h *PostHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	id, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	form, err := readForm(w, r, h.maxUpload, "postImage", "post_description")
	if err != nil {
		writeError(w, err)
		return
	}

	post, err := h.posts.Create(r.Context(), id.UserID, form.get("post_description"), form.image)
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusCreated, "Post added successfully", post)
}

// HandleList returns posts newest first.
//
// HTTP: GET /posts/get-all?search=&page=&limit=
func (h *PostHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	page, err := h.posts.List(r.Context(), pageQuery(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writePage(w, "Posts retrieved successfully", page)
}

// HandleListByUser returns the posts created by one user.
//
// HTTP: GET /posts/get-posts/{userId}?page=&limit=
func (h *PostHandler) HandleListByUser(w http.ResponseWriter, r *http.Request) {
	page, err := h.posts.ListByUser(r.Context(), chi.URLParam(r, "userId"), pageQuery(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writePage(w, "Posts retrieved successfully", page)
}

// HandleGet returns one post and counts the view.
//
// HTTP: GET /posts/get-single/{postId}
func (h *PostHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	post, err := h.posts.Get(r.Context(), chi.URLParam(r, "postId"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Post retrieved successfully", post)
}

// HandleDelete removes a post, its image and its comments.
//
// HTTP: DELETE /posts/delete/{postId}
func (h *PostHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	if err := h.posts.Delete(r.Context(), chi.URLParam(r, "postId"), id); err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Post deleted successfully", nil)
}

type editPostRequest struct {
	Description string `json:"post_description"`
}

// HandleEdit replaces the description of the caller's own post.
//
// HTTP: PATCH /posts/edit/{postId} {"post_description": "..."}
func (h *PostHandler) HandleEdit(w http.ResponseWriter, r *http.Request) {
	id, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	var req editPostRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	post, err := h.posts.Edit(r.Context(), chi.URLParam(r, "postId"), id, req.Description)
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Post updated successfully", post)
}

// HandleToggleLike adds the caller's like or removes it when present. The
// request body is ignored; the like set alone decides the direction.
//
// HTTP: PATCH /posts/edit/add-like/{postId}
func (h *PostHandler) HandleToggleLike(w http.ResponseWriter, r *http.Request) {
	id, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	liked, err := h.posts.ToggleLike(r.Context(), chi.URLParam(r, "postId"), id)
	if err != nil {
		writeError(w, err)
		return
	}

	message := "Like removed successfully"
	if liked {
		message = "Like added successfully"
	}
	writeSuccess(w, http.StatusOK, message, map[string]bool{"liked": liked})
}

// HandleReconcile recomputes every post's comment counter.
//
// HTTP: POST /posts/reconcile-counters (admin)
func (h *PostHandler) HandleReconcile(w http.ResponseWriter, r *http.Request) {
	report, err := h.posts.ReconcileCounters(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Counters reconciled successfully", report)
}

// requireIdentity returns the caller set by auth.RequireAuth. A missing
// identity means the route was mounted without the guard.
func requireIdentity(w http.ResponseWriter, r *http.Request) (auth.Identity, bool) {
	id, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, apperror.Unauthorized("Failed to authenticate. Please login"))
	}
	return id, ok
}
