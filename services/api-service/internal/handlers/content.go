package handlers

import (
	"net/http"

	"github.com/agribeta/agribeta/libs/httpx"
	"github.com/agribeta/agribeta/services/api-service/internal/model"
	"github.com/agribeta/agribeta/services/api-service/internal/posts"
	"github.com/go-chi/chi/v5"
)

func (h *Handler) listPosts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	out, err := h.svc.Posts.List(r.Context(), model.PostFilter{
		CropType: q.Get("crop_type"),
		Search:   q.Get("search"),
		AuthorID: q.Get("author_id"),
		Limit:    queryInt(r, "limit", 20),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"posts": mapSlice(out, toPost)})
}

func (h *Handler) getPost(w http.ResponseWriter, r *http.Request) {
	var viewer *model.Profile
	if p, ok := profileFrom(r.Context()); ok {
		viewer = &p
	}
	p, err := h.svc.Posts.Get(r.Context(), viewer, chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toPost(p))
}

type createPostRequest struct {
	Title    string   `json:"title" validate:"notblank,singleline,max=200"`
	Body     string   `json:"body" validate:"notblank,max=20000"`
	CropType string   `json:"crop_type" validate:"max=60"`
	Tags     []string `json:"tags" validate:"max=10,dive,notblank,singleline,max=40"`
	Publish  bool     `json:"publish"`
}

func (h *Handler) createPost(w http.ResponseWriter, r *http.Request) {
	p, _ := profileFrom(r.Context())
	var req createPostRequest
	if !h.decode(w, r, &req) {
		return
	}
	out, err := h.svc.Posts.Create(r.Context(), p, posts.Draft{
		Title:    req.Title,
		Body:     req.Body,
		CropType: req.CropType,
		Tags:     req.Tags,
		Publish:  req.Publish,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, toPost(out))
}

func (h *Handler) publishPost(w http.ResponseWriter, r *http.Request) {
	h.setPublished(w, r, true)
}

func (h *Handler) unpublishPost(w http.ResponseWriter, r *http.Request) {
	h.setPublished(w, r, false)
}

func (h *Handler) setPublished(w http.ResponseWriter, r *http.Request, published bool) {
	p, _ := profileFrom(r.Context())
	out, err := h.svc.Posts.SetPublished(r.Context(), p, chi.URLParam(r, "id"), published)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toPost(out))
}

func (h *Handler) latestWeather(w http.ResponseWriter, r *http.Request) {
	out, err := h.svc.Weather.Latest(r.Context(), r.URL.Query().Get("location"), queryInt(r, "limit", 10))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"snapshots": mapSlice(out, toWeather)})
}

func (h *Handler) ingestWeather(w http.ResponseWriter, r *http.Request) {
	p, _ := profileFrom(r.Context())
	var req weatherBody
	if !h.decode(w, r, &req) {
		return
	}
	out, err := h.svc.Weather.Ingest(r.Context(), p, model.WeatherSnapshot{
		Location:     req.Location,
		ObservedAt:   req.ObservedAt,
		TemperatureC: req.TemperatureC,
		HumidityPct:  req.HumidityPct,
		RainfallMM:   req.RainfallMM,
		WindKPH:      req.WindKPH,
		Summary:      req.Summary,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, toWeather(out))
}
