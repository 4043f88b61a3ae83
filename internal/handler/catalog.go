package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/pavelanni/examprep/internal/cache"
	"github.com/pavelanni/examprep/internal/model"
)

func (h *Handler) handleCatalog(w http.ResponseWriter, r *http.Request) {
	grade, err := queryInt(r, "grade")
	if err != nil {
		h.fail(w, r, "catalog", err)
		return
	}
	tree, err := h.cache.Get(r.Context(), grade)
	if err != nil {
		if !errors.Is(err, cache.ErrMiss) {
			slog.Warn("read catalog cache", "error", err)
		}
		tree, err = h.store.CatalogTree(grade)
		if err != nil {
			h.fail(w, r, "catalog", err)
			return
		}
		if err := h.cache.Set(r.Context(), grade, tree); err != nil {
			slog.Warn("write catalog cache", "error", err)
		}
	}
	now := time.Now()
	for i := range tree {
		for j := range tree[i].SubChapters {
			sets := tree[i].SubChapters[j].ExamSets
			for k := range sets {
				sets[k] = sets[k].WithEffectiveStatus(now)
			}
		}
	}
	if tree == nil {
		tree = []model.Chapter{}
	}
	writeJSON(w, http.StatusOK, tree)
}

func (h *Handler) handleListChapters(w http.ResponseWriter, r *http.Request) {
	grade, err := queryInt(r, "grade")
	if err != nil {
		h.fail(w, r, "chapter", err)
		return
	}
	chapters, err := h.store.ListChapters(grade)
	if err != nil {
		h.fail(w, r, "chapter", err)
		return
	}
	if chapters == nil {
		chapters = []model.Chapter{}
	}
	writeJSON(w, http.StatusOK, chapters)
}

func (h *Handler) handleCreateChapter(w http.ResponseWriter, r *http.Request) {
	var c model.Chapter
	if err := h.decode(w, r, &c); err != nil {
		h.fail(w, r, "chapter", err)
		return
	}
	id, err := h.store.CreateChapter(c)
	if err != nil {
		h.fail(w, r, "chapter", err)
		return
	}
	h.invalidate(r.Context())
	h.respondChapter(w, r, id, http.StatusCreated)
}

func (h *Handler) handleGetChapter(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "id")
	if err != nil {
		h.fail(w, r, "chapter", err)
		return
	}
	h.respondChapter(w, r, id, http.StatusOK)
}

// respondChapter writes a chapter with its sub-chapters.
func (h *Handler) respondChapter(w http.ResponseWriter, r *http.Request, id int64, status int) {
	c, err := h.store.GetChapter(id)
	if err != nil {
		h.fail(w, r, "chapter", err)
		return
	}
	subs, err := h.store.ListSubChapters(id)
	if err != nil {
		h.fail(w, r, "chapter", err)
		return
	}
	c.SubChapters = subs
	writeJSON(w, status, c)
}

func (h *Handler) handleUpdateChapter(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "id")
	if err != nil {
		h.fail(w, r, "chapter", err)
		return
	}
	var c model.Chapter
	if err := h.decode(w, r, &c); err != nil {
		h.fail(w, r, "chapter", err)
		return
	}
	c.ID = id
	if err := h.store.UpdateChapter(c); err != nil {
		h.fail(w, r, "chapter", err)
		return
	}
	h.invalidate(r.Context())
	h.respondChapter(w, r, id, http.StatusOK)
}

func (h *Handler) handleDeleteChapter(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "id")
	if err != nil {
		h.fail(w, r, "chapter", err)
		return
	}
	if err := h.store.DeleteChapter(id); err != nil {
		h.fail(w, r, "chapter", err)
		return
	}
	h.invalidate(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleCreateSubChapter(w http.ResponseWriter, r *http.Request) {
	chapterID, err := urlID(r, "id")
	if err != nil {
		h.fail(w, r, "chapter", err)
		return
	}
	var sc model.SubChapter
	if err := h.decode(w, r, &sc); err != nil {
		h.fail(w, r, "sub-chapter", err)
		return
	}
	sc.ChapterID = chapterID
	id, err := h.store.CreateSubChapter(sc)
	if err != nil {
		h.fail(w, r, "chapter", err)
		return
	}
	created, err := h.store.GetSubChapter(id)
	if err != nil {
		h.fail(w, r, "sub-chapter", err)
		return
	}
	h.invalidate(r.Context())
	writeJSON(w, http.StatusCreated, created)
}

func (h *Handler) handleUpdateSubChapter(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "id")
	if err != nil {
		h.fail(w, r, "sub-chapter", err)
		return
	}
	existing, err := h.store.GetSubChapter(id)
	if err != nil {
		h.fail(w, r, "sub-chapter", err)
		return
	}
	var sc model.SubChapter
	if err := h.decode(w, r, &sc); err != nil {
		h.fail(w, r, "sub-chapter", err)
		return
	}
	sc.ID = id
	sc.ChapterID = existing.ChapterID
	if err := h.store.UpdateSubChapter(sc); err != nil {
		h.fail(w, r, "sub-chapter", err)
		return
	}
	h.invalidate(r.Context())
	writeJSON(w, http.StatusOK, sc)
}

func (h *Handler) handleDeleteSubChapter(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "id")
	if err != nil {
		h.fail(w, r, "sub-chapter", err)
		return
	}
	if err := h.store.DeleteSubChapter(id); err != nil {
		h.fail(w, r, "sub-chapter", err)
		return
	}
	h.invalidate(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleAssignExamSet(w http.ResponseWriter, r *http.Request) {
	subID, err := urlID(r, "id")
	if err != nil {
		h.fail(w, r, "sub-chapter", err)
		return
	}
	examSetID, err := urlID(r, "examSetID")
	if err != nil {
		h.fail(w, r, "exam set", err)
		return
	}
	if err := h.store.AssignExamSet(examSetID, subID); err != nil {
		h.fail(w, r, "exam set", err)
		return
	}
	h.invalidate(r.Context())
	h.respondExamSet(w, r, examSetID, http.StatusOK)
}

func (h *Handler) handleListExamSets(w http.ResponseWriter, r *http.Request) {
	grade, err := queryInt(r, "grade")
	if err != nil {
		h.fail(w, r, "exam set", err)
		return
	}
	f := model.ExamSetFilter{Grade: grade, Type: model.ExamType(r.URL.Query().Get("type"))}
	sets, err := h.store.ListExamSets(f)
	if err != nil {
		h.fail(w, r, "exam set", err)
		return
	}
	writeExamSets(w, sets)
}

func (h *Handler) handleListUnassigned(w http.ResponseWriter, r *http.Request) {
	sets, err := h.store.ListUnassignedExamSets()
	if err != nil {
		h.fail(w, r, "exam set", err)
		return
	}
	writeExamSets(w, sets)
}

func writeExamSets(w http.ResponseWriter, sets []model.ExamSet) {
	now := time.Now()
	out := make([]model.ExamSet, len(sets))
	for i, e := range sets {
		out[i] = e.WithEffectiveStatus(now)
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) handleCreateExamSet(w http.ResponseWriter, r *http.Request) {
	var e model.ExamSet
	if err := h.decode(w, r, &e); err != nil {
		h.fail(w, r, "exam set", err)
		return
	}
	id, err := h.store.CreateExamSet(e)
	if err != nil {
		h.fail(w, r, "sub-chapter", err)
		return
	}
	h.invalidate(r.Context())
	h.respondExamSet(w, r, id, http.StatusCreated)
}

func (h *Handler) handleGetExamSet(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "id")
	if err != nil {
		h.fail(w, r, "exam set", err)
		return
	}
	d, err := h.store.GetExamSetDetail(id)
	if err != nil {
		h.fail(w, r, "exam set", err)
		return
	}
	d.ExamSet = d.ExamSet.WithEffectiveStatus(time.Now())
	writeJSON(w, http.StatusOK, d)
}

func (h *Handler) respondExamSet(w http.ResponseWriter, r *http.Request, id int64, status int) {
	e, err := h.store.GetExamSet(id)
	if err != nil {
		h.fail(w, r, "exam set", err)
		return
	}
	writeJSON(w, status, e.WithEffectiveStatus(time.Now()))
}

func (h *Handler) handleUpdateExamSet(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "id")
	if err != nil {
		h.fail(w, r, "exam set", err)
		return
	}
	var e model.ExamSet
	if err := h.decode(w, r, &e); err != nil {
		h.fail(w, r, "exam set", err)
		return
	}
	e.ID = id
	if err := h.store.UpdateExamSet(e); err != nil {
		h.fail(w, r, "exam set", err)
		return
	}
	h.invalidate(r.Context())
	h.respondExamSet(w, r, id, http.StatusOK)
}

func (h *Handler) handleDeleteExamSet(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "id")
	if err != nil {
		h.fail(w, r, "exam set", err)
		return
	}
	if err := h.store.DeleteExamSet(id); err != nil {
		h.fail(w, r, "exam set", err)
		return
	}
	h.invalidate(r.Context())
	w.WriteHeader(http.StatusNoContent)
}
